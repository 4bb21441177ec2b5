package chunker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropkiller/catalog-migration/internal/coordination"
	"github.com/dropkiller/catalog-migration/internal/types"
)

func newTestScheduler(workerID string) *Scheduler {
	return New(coordination.NewMemoryService(), "test-migration", 10, time.Minute, workerID)
}

func TestInitializeChunksPartitionsEvenly(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler("w1")

	n, err := s.InitializeChunks(ctx, 95)
	if err != nil {
		t.Fatalf("InitializeChunks failed: %v", err)
	}
	if n != 10 {
		t.Fatalf("expected 10 chunks for 95 records at chunk size 10, got %d", n)
	}

	progress, err := s.GetProgress(ctx)
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if progress.TotalChunks != 10 || progress.PendingChunks != 10 {
		t.Fatalf("unexpected progress after init: %+v", progress)
	}
}

func TestInitializeChunksZeroRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler("w1")

	n, err := s.InitializeChunks(ctx, 0)
	if err != nil {
		t.Fatalf("InitializeChunks failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 chunks for empty source, got %d", n)
	}

	// Boundary behavior (spec.md §8): an empty chunk map must not be
	// reported as "all completed" — the driver treats ChunkCount==0 as
	// its own "nothing to do" branch instead (Q3).
	done, err := s.AreAllChunksCompleted(ctx)
	if err != nil {
		t.Fatalf("AreAllChunksCompleted failed: %v", err)
	}
	if done {
		t.Fatalf("expected AreAllChunksCompleted to be false for an empty map")
	}
	count, err := s.ChunkCount(ctx)
	if err != nil {
		t.Fatalf("ChunkCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected chunk count 0, got %d", count)
	}
}

func TestGetNextChunkLeasesAndAdvancesLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler("w1")
	if _, err := s.InitializeChunks(ctx, 25); err != nil {
		t.Fatalf("InitializeChunks failed: %v", err)
	}

	chunk, err := s.GetNextChunk(ctx)
	if err != nil {
		t.Fatalf("GetNextChunk failed: %v", err)
	}
	if chunk == nil {
		t.Fatalf("expected a leasable chunk")
	}
	if chunk.Status != types.ChunkProcessing || chunk.WorkerID != "w1" {
		t.Fatalf("unexpected leased chunk state: %+v", chunk)
	}

	if err := s.MarkChunkCompleted(ctx, chunk.ChunkID, types.ChunkResult{Processed: 10, ProductsCreated: 10}); err != nil {
		t.Fatalf("MarkChunkCompleted failed: %v", err)
	}

	progress, err := s.GetProgress(ctx)
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if progress.CompletedChunks != 1 || progress.TotalProcessed != 10 {
		t.Fatalf("unexpected progress after completion: %+v", progress)
	}
}

func TestMarkChunkPendingAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler("w1")
	if _, err := s.InitializeChunks(ctx, 10); err != nil {
		t.Fatalf("InitializeChunks failed: %v", err)
	}

	chunk, err := s.GetNextChunk(ctx)
	if err != nil || chunk == nil {
		t.Fatalf("GetNextChunk failed: %v", err)
	}

	if err := s.MarkChunkPending(ctx, chunk.ChunkID); err != nil {
		t.Fatalf("MarkChunkPending failed: %v", err)
	}

	// Scenario 5 (crash-mid-chunk recovery): once reverted to pending,
	// a different worker must be able to lease the same chunk.
	other := New(s.svc, s.namespace, s.chunkSize, s.lockTTL, "w2")
	retried, err := other.GetNextChunk(ctx)
	if err != nil {
		t.Fatalf("GetNextChunk (worker 2) failed: %v", err)
	}
	if retried == nil || retried.ChunkID != chunk.ChunkID {
		t.Fatalf("expected worker 2 to pick up the reverted chunk")
	}
}

// TestLeaseExclusivity is a property test for P4: across many
// concurrent workers racing GetNextChunk, no chunk is ever leased by
// two workers at once.
func TestLeaseExclusivity(t *testing.T) {
	ctx := context.Background()
	svc := coordination.NewMemoryService()
	const numChunks = 50
	const numWorkers = 12

	init := New(svc, "race", 1, time.Minute, "init")
	if _, err := init.InitializeChunks(ctx, numChunks); err != nil {
		t.Fatalf("InitializeChunks failed: %v", err)
	}

	var mu sync.Mutex
	leasedBy := make(map[int]string)
	var duplicateLease atomic.Bool

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		workerID := workerName(w)
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			s := New(svc, "race", 1, time.Minute, workerID)
			for {
				chunk, err := s.GetNextChunk(ctx)
				if err != nil {
					t.Errorf("GetNextChunk failed: %v", err)
					return
				}
				if chunk == nil {
					return
				}
				mu.Lock()
				if prev, ok := leasedBy[chunk.ChunkID]; ok && prev != workerID {
					duplicateLease.Store(true)
				}
				leasedBy[chunk.ChunkID] = workerID
				mu.Unlock()

				if err := s.MarkChunkCompleted(ctx, chunk.ChunkID, types.ChunkResult{Processed: 1}); err != nil {
					t.Errorf("MarkChunkCompleted failed: %v", err)
					return
				}
			}
		}(workerID)
	}
	wg.Wait()

	if duplicateLease.Load() {
		t.Fatalf("two workers leased the same chunk concurrently")
	}
	if len(leasedBy) != numChunks {
		t.Fatalf("expected all %d chunks leased exactly once, got %d", numChunks, len(leasedBy))
	}
}

func workerName(i int) string {
	return "worker-" + string(rune('a'+i))
}

func TestSweepStaleChunksRevertsOrphanedProcessing(t *testing.T) {
	ctx := context.Background()
	svc := coordination.NewMemoryService()
	s := New(svc, "sweep", 10, time.Minute, "w1")
	if _, err := s.InitializeChunks(ctx, 10); err != nil {
		t.Fatalf("InitializeChunks failed: %v", err)
	}
	chunk, err := s.GetNextChunk(ctx)
	if err != nil || chunk == nil {
		t.Fatalf("GetNextChunk failed: %v", err)
	}

	// Simulate a hard crash: the lock key is force-expired out from
	// under the worker without MarkChunkPending ever running.
	if err := svc.ReleaseLock(ctx, s.lockKey(chunk.ChunkID)); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	swept, err := s.SweepStaleChunks(ctx)
	if err != nil {
		t.Fatalf("SweepStaleChunks failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 chunk swept, got %d", swept)
	}

	next, err := s.GetNextChunk(ctx)
	if err != nil {
		t.Fatalf("GetNextChunk after sweep failed: %v", err)
	}
	if next == nil || next.ChunkID != chunk.ChunkID {
		t.Fatalf("expected swept chunk to become leasable again")
	}
}

func TestResetDeletesAllState(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler("w1")
	if _, err := s.InitializeChunks(ctx, 30); err != nil {
		t.Fatalf("InitializeChunks failed: %v", err)
	}
	if _, err := s.GetNextChunk(ctx); err != nil {
		t.Fatalf("GetNextChunk failed: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	count, err := s.ChunkCount(ctx)
	if err != nil {
		t.Fatalf("ChunkCount failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected chunk map empty after reset, got %d entries", count)
	}
}
