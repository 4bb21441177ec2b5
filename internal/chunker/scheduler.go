// Package chunker implements the chunk scheduler (spec component C7):
// partitioning a workload into fixed-size ranges, leasing them out to
// cooperating worker processes through the coordination service, and
// tracking per-chunk progress to completion.
package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dropkiller/catalog-migration/internal/coordination"
	"github.com/dropkiller/catalog-migration/internal/storeerr"
	"github.com/dropkiller/catalog-migration/internal/types"
)

const (
	chunksKeySuffix = "chunks"
	lockKeySuffix   = "lock:"
	stateKeySuffix  = "state" // reserved, currently unused (spec.md §6)
)

// Scheduler is the chunk scheduler. One Scheduler exists per worker
// process; all instances across workers share the same coordination
// service keys and therefore the same chunk map.
type Scheduler struct {
	svc       coordination.Service
	namespace string
	chunkSize int
	lockTTL   time.Duration
	workerID  string
}

// New builds a Scheduler bound to the given coordination service.
// namespace prefixes every key this scheduler touches, so multiple
// migrations (or a test and a real run) can share one Redis without
// colliding.
func New(svc coordination.Service, namespace string, chunkSize int, lockTTL time.Duration, workerID string) *Scheduler {
	return &Scheduler{svc: svc, namespace: namespace, chunkSize: chunkSize, lockTTL: lockTTL, workerID: workerID}
}

func (s *Scheduler) chunksKey() string { return s.namespace + ":" + chunksKeySuffix }
func (s *Scheduler) stateKey() string  { return s.namespace + ":" + stateKeySuffix }
func (s *Scheduler) lockKey(chunkID int) string {
	return fmt.Sprintf("%s:%s%d", s.namespace, lockKeySuffix, chunkID)
}

// InitializeChunks creates ceil(total/chunkSize) pending chunk entries.
// Callers must check the map is empty first (see Driver.Execute);
// InitializeChunks itself does not guard against double-initialization.
func (s *Scheduler) InitializeChunks(ctx context.Context, total int) (int, error) {
	if total <= 0 {
		return 0, nil
	}
	numChunks := (total + s.chunkSize - 1) / s.chunkSize
	for i := 0; i < numChunks; i++ {
		start := i * s.chunkSize
		end := start + s.chunkSize
		if end > total {
			end = total
		}
		chunk := types.ChunkState{
			ChunkID:     i,
			StartOffset: start,
			EndOffset:   end,
			Status:      types.ChunkPending,
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return 0, fmt.Errorf("marshaling chunk %d: %w", i, err)
		}
		if err := s.svc.HashSet(ctx, s.chunksKey(), fmt.Sprint(i), string(data)); err != nil {
			return 0, fmt.Errorf("%w: initializing chunk %d", storeerr.ErrCoordinationUnavailable, i)
		}
	}
	return numChunks, nil
}

// GetNextChunk scans the chunk map in ascending chunk-id order and
// leases the first pending chunk it can acquire the lock for. It
// returns (nil, nil) if no chunk is currently leasable.
func (s *Scheduler) GetNextChunk(ctx context.Context) (*types.ChunkState, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ChunkID < all[j].ChunkID })

	for _, chunk := range all {
		if chunk.Status != types.ChunkPending {
			continue
		}
		acquired, err := s.svc.AcquireLock(ctx, s.lockKey(chunk.ChunkID), s.workerID, int64(s.lockTTL.Seconds()))
		if err != nil {
			return nil, fmt.Errorf("%w: acquiring lock for chunk %d", storeerr.ErrCoordinationUnavailable, chunk.ChunkID)
		}
		if !acquired {
			continue
		}
		// The snapshot read above may be stale: another worker can have
		// leased, completed and released this chunk since. Re-read it
		// under the lock and lease it only if it is still pending.
		current, err := s.load(ctx, chunk.ChunkID)
		if err != nil {
			_ = s.svc.ReleaseLock(ctx, s.lockKey(chunk.ChunkID))
			return nil, err
		}
		if current.Status != types.ChunkPending {
			_ = s.svc.ReleaseLock(ctx, s.lockKey(chunk.ChunkID))
			continue
		}
		chunk = current
		chunk.Status = types.ChunkProcessing
		chunk.WorkerID = s.workerID
		chunk.LastUpdate = time.Now()
		if err := s.save(ctx, chunk); err != nil {
			_ = s.svc.ReleaseLock(ctx, s.lockKey(chunk.ChunkID))
			return nil, err
		}
		leased := chunk
		return &leased, nil
	}
	return nil, nil
}

// RenewLock extends the lease TTL for chunkID. Called periodically by
// the migration driver's lease-renewal timer while a chunk is in
// flight (spec.md §4.1, "Lease renewal contract").
func (s *Scheduler) RenewLock(ctx context.Context, chunkID int) error {
	if err := s.svc.RenewLock(ctx, s.lockKey(chunkID), int64(s.lockTTL.Seconds())); err != nil {
		return fmt.Errorf("%w: renewing lock for chunk %d", storeerr.ErrCoordinationUnavailable, chunkID)
	}
	return nil
}

// MarkChunkCompleted merges result into the chunk's persisted metrics,
// sets status=completed, and releases the lock.
func (s *Scheduler) MarkChunkCompleted(ctx context.Context, chunkID int, result types.ChunkResult) error {
	chunk, err := s.load(ctx, chunkID)
	if err != nil {
		return err
	}
	chunk.Status = types.ChunkCompleted
	chunk.LastUpdate = time.Now()
	chunk.Processed += result.Processed
	chunk.ProvidersCreated += result.ProvidersCreated
	chunk.ProductsCreated += result.ProductsCreated
	chunk.ProductsUpdated += result.ProductsUpdated
	chunk.HistoriesFilled += result.HistoriesFilled
	chunk.MultimediaCreated += result.MultimediaCreated
	chunk.DuplicatesSkipped += result.DuplicatesSkipped
	chunk.Errors += result.Errors
	chunk.ProcessedCount = chunk.Processed

	if err := s.save(ctx, chunk); err != nil {
		return err
	}
	return s.svc.ReleaseLock(ctx, s.lockKey(chunkID))
}

// MarkChunkPending reverts chunkID to pending and releases its lock,
// so another worker (or this one, on a later loop) can retry it. Used
// on a worker-local failure inside ProcessChunk.
func (s *Scheduler) MarkChunkPending(ctx context.Context, chunkID int) error {
	chunk, err := s.load(ctx, chunkID)
	if err != nil {
		return err
	}
	chunk.Status = types.ChunkPending
	chunk.WorkerID = ""
	chunk.LastUpdate = time.Now()
	if err := s.save(ctx, chunk); err != nil {
		return err
	}
	return s.svc.ReleaseLock(ctx, s.lockKey(chunkID))
}

// AreAllChunksCompleted reports true iff the chunk map is non-empty and
// every entry has status=completed.
func (s *Scheduler) AreAllChunksCompleted(ctx context.Context) (bool, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return false, err
	}
	if len(all) == 0 {
		return false, nil
	}
	for _, c := range all {
		if c.Status != types.ChunkCompleted {
			return false, nil
		}
	}
	return true, nil
}

// ChunkCount returns the number of entries currently in the chunk map.
// The driver uses it to skip initialization when a map already exists,
// and to end the run when the map is still empty after initialization
// (a zero-record source, Q3).
func (s *Scheduler) ChunkCount(ctx context.Context) (int, error) {
	n, err := s.svc.HashLen(ctx, s.chunksKey())
	if err != nil {
		return 0, fmt.Errorf("%w: reading chunk count", storeerr.ErrCoordinationUnavailable)
	}
	return n, nil
}

// GetProgress returns a read-only summary across all chunks.
func (s *Scheduler) GetProgress(ctx context.Context) (types.Progress, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return types.Progress{}, err
	}
	var p types.Progress
	p.TotalChunks = len(all)
	for _, c := range all {
		switch c.Status {
		case types.ChunkPending:
			p.PendingChunks++
		case types.ChunkProcessing:
			p.ProcessingChunks++
		case types.ChunkCompleted:
			p.CompletedChunks++
		}
		p.TotalProcessed += c.Processed
		p.TotalDuplicates += c.DuplicatesSkipped
		p.TotalErrors += c.Errors
	}
	return p, nil
}

// Reset unconditionally deletes the chunk map, the reserved state key,
// and every lock key currently outstanding. It does not implicitly run
// during normal operation; callers (the CLI) gate it behind an
// explicit confirmation.
func (s *Scheduler) Reset(ctx context.Context) error {
	all, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	for _, c := range all {
		_ = s.svc.ReleaseLock(ctx, s.lockKey(c.ChunkID))
	}
	if err := s.svc.Delete(ctx, s.chunksKey()); err != nil {
		return fmt.Errorf("%w: deleting chunk map", storeerr.ErrCoordinationUnavailable)
	}
	return s.svc.Delete(ctx, s.stateKey())
}

// SweepStaleChunks resolves Q1 (orphan processing chunks after a hard
// crash): any chunk still marked processing whose lock key is absent
// (the lease expired or was never held) is reverted to pending so
// another worker can pick it up without an operator intervening. The
// driver calls this once before each GetNextChunk poll.
func (s *Scheduler) SweepStaleChunks(ctx context.Context) (int, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, c := range all {
		if c.Status != types.ChunkProcessing {
			continue
		}
		held, err := s.svc.LockExists(ctx, s.lockKey(c.ChunkID))
		if err != nil {
			return swept, fmt.Errorf("%w: checking lock for chunk %d", storeerr.ErrCoordinationUnavailable, c.ChunkID)
		}
		if held {
			continue
		}
		c.Status = types.ChunkPending
		c.WorkerID = ""
		c.LastUpdate = time.Now()
		if err := s.save(ctx, c); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

func (s *Scheduler) loadAll(ctx context.Context) ([]types.ChunkState, error) {
	raw, err := s.svc.HashGetAll(ctx, s.chunksKey())
	if err != nil {
		return nil, fmt.Errorf("%w: reading chunk map", storeerr.ErrCoordinationUnavailable)
	}
	out := make([]types.ChunkState, 0, len(raw))
	for _, v := range raw {
		var c types.ChunkState
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			return nil, fmt.Errorf("decoding chunk state: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Scheduler) load(ctx context.Context, chunkID int) (types.ChunkState, error) {
	raw, err := s.svc.HashGetAll(ctx, s.chunksKey())
	if err != nil {
		return types.ChunkState{}, fmt.Errorf("%w: reading chunk map", storeerr.ErrCoordinationUnavailable)
	}
	v, ok := raw[fmt.Sprint(chunkID)]
	if !ok {
		return types.ChunkState{}, fmt.Errorf("chunk %d: %w", chunkID, storeerr.ErrNotFound)
	}
	var c types.ChunkState
	if err := json.Unmarshal([]byte(v), &c); err != nil {
		return types.ChunkState{}, fmt.Errorf("decoding chunk %d: %w", chunkID, err)
	}
	return c, nil
}

func (s *Scheduler) save(ctx context.Context, c types.ChunkState) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling chunk %d: %w", c.ChunkID, err)
	}
	if err := s.svc.HashSet(ctx, s.chunksKey(), fmt.Sprint(c.ChunkID), string(data)); err != nil {
		return fmt.Errorf("%w: saving chunk %d", storeerr.ErrCoordinationUnavailable, c.ChunkID)
	}
	return nil
}
