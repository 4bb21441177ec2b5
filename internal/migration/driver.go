// Package migration implements the migration driver (spec component
// C8): the per-chunk control loop that leases work from the chunk
// scheduler, runs every source record through the reconciliation
// pipeline (C2 through C6), and reports aggregated metrics back to the
// scheduler and to telemetry.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dropkiller/catalog-migration/internal/chunker"
	"github.com/dropkiller/catalog-migration/internal/config"
	"github.com/dropkiller/catalog-migration/internal/history"
	"github.com/dropkiller/catalog-migration/internal/multimedia"
	"github.com/dropkiller/catalog-migration/internal/product"
	"github.com/dropkiller/catalog-migration/internal/provider"
	"github.com/dropkiller/catalog-migration/internal/reference"
	"github.com/dropkiller/catalog-migration/internal/source"
	"github.com/dropkiller/catalog-migration/internal/telemetry"
	"github.com/dropkiller/catalog-migration/internal/types"
)

// pollInterval is how long the driver sleeps when no chunk is
// currently leasable but the run isn't complete yet (spec.md §4.1).
const pollInterval = 5 * time.Second

// Pipeline bundles the five per-record reconciliation components the
// driver invokes in order for every source record.
type Pipeline struct {
	Reference  *reference.Resolver
	Providers  *provider.Reconciler
	Products   *product.Upserter
	History    *history.GapFiller
	Multimedia *multimedia.Reconciler
}

// Driver is C8. One Driver runs in each worker process.
type Driver struct {
	reader    source.Reader
	scheduler *chunker.Scheduler
	pipeline  Pipeline
	cfg       config.Config
	log       *slog.Logger
	telemetry *telemetry.Recorder

	seen map[string]bool
}

// NewDriver builds a Driver. telemetry may be nil, in which case
// metrics and spans are skipped.
func NewDriver(reader source.Reader, scheduler *chunker.Scheduler, pipeline Pipeline, cfg config.Config, log *slog.Logger, rec *telemetry.Recorder) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		reader:    reader,
		scheduler: scheduler,
		pipeline:  pipeline,
		cfg:       cfg,
		log:       log,
		telemetry: rec,
		seen:      make(map[string]bool),
	}
}

// Execute runs the control loop to completion: initializing chunks on
// a cold start, leasing and processing chunks one at a time, and
// returning once every chunk is completed, when the chunk map is still
// empty after initialization (a zero-record source), or when ctx is
// cancelled.
func (d *Driver) Execute(ctx context.Context) error {
	if err := d.ensureInitialized(ctx); err != nil {
		return err
	}
	count, err := d.scheduler.ChunkCount(ctx)
	if err != nil {
		return fmt.Errorf("reading chunk count: %w", err)
	}
	if count == 0 {
		d.log.Info("no source records to migrate")
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if swept, err := d.scheduler.SweepStaleChunks(ctx); err != nil {
			d.log.Warn("sweeping stale chunks", "error", err)
		} else if swept > 0 {
			d.log.Info("reverted orphaned chunks to pending", "count", swept)
		}

		chunk, err := d.scheduler.GetNextChunk(ctx)
		if err != nil {
			return fmt.Errorf("leasing next chunk: %w", err)
		}

		if chunk == nil {
			done, err := d.scheduler.AreAllChunksCompleted(ctx)
			if err != nil {
				return fmt.Errorf("checking completion: %w", err)
			}
			if done {
				d.log.Info("migration complete")
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		if err := d.runChunk(ctx, *chunk); err != nil {
			d.log.Error("chunk failed, reverting to pending", "chunkId", chunk.ChunkID, "error", err)
			if mErr := d.scheduler.MarkChunkPending(ctx, chunk.ChunkID); mErr != nil {
				return fmt.Errorf("reverting chunk %d to pending: %w", chunk.ChunkID, mErr)
			}
		}
	}
}

// ensureInitialized creates the chunk map on a cold start only; a
// non-empty map (from a prior run or another worker) is left alone
// (spec.md §9, Q3).
func (d *Driver) ensureInitialized(ctx context.Context) error {
	existing, err := d.scheduler.ChunkCount(ctx)
	if err != nil {
		return fmt.Errorf("reading chunk count: %w", err)
	}
	if existing > 0 {
		return nil
	}

	total, err := d.reader.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting source records: %w", err)
	}
	if d.cfg.TestMode && total > config.TestModeRecordCap {
		total = config.TestModeRecordCap
	}

	n, err := d.scheduler.InitializeChunks(ctx, total)
	if err != nil {
		return fmt.Errorf("initializing chunks: %w", err)
	}
	d.log.Info("initialized chunk map", "chunks", n, "records", total)
	return nil
}

// runChunk leases chunk to completion: reads its record window, runs
// every record through the pipeline, and reports the result back to
// the scheduler. A lease-renewal goroutine keeps the lock alive for
// the duration.
func (d *Driver) runChunk(ctx context.Context, chunk types.ChunkState) error {
	runCtx := ctx
	var span trace.Span
	if d.telemetry != nil {
		runCtx, span = d.telemetry.StartChunkSpan(ctx, chunk.ChunkID, d.cfg.WorkerID)
		defer span.End()
	}

	renewDone := make(chan struct{})
	go d.renewLeaseLoop(ctx, chunk.ChunkID, renewDone)
	defer close(renewDone)

	rows, err := d.reader.Read(runCtx, chunk.StartOffset, chunk.EndOffset-chunk.StartOffset)
	if err != nil {
		return fmt.Errorf("reading chunk %d rows: %w", chunk.ChunkID, err)
	}

	var result types.ChunkResult
	for i := range rows {
		// On cancellation the chunk is left unfinished rather than marked
		// completed; the record already started runs to its end because
		// processRecord gets a context that is not cancelled with ctx.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("chunk %d interrupted: %w", chunk.ChunkID, err)
		}
		sp := rows[i]
		if d.seen[sp.SourceID] {
			result.DuplicatesSkipped++
			continue
		}
		d.seen[sp.SourceID] = true

		if err := d.processRecord(context.WithoutCancel(runCtx), &sp, &result); err != nil {
			result.Errors++
			d.log.Warn("record failed", "sourceId", sp.SourceID, "externalId", sp.ExternalID,
				"platform", sp.PlatformName, "country", sp.CountryCode, "chunkId", chunk.ChunkID, "error", err)
		}
		result.Processed++
	}

	if d.telemetry != nil {
		d.telemetry.RecordResult(runCtx, result)
	}
	return d.scheduler.MarkChunkCompleted(ctx, chunk.ChunkID, result)
}

// processRecord runs one source record through providers, product
// upsert, history gap fill, and multimedia reconciliation in order
// (spec.md §4.7). A failure at any step aborts the record but not the
// chunk; the record is counted as an error and the loop continues.
func (d *Driver) processRecord(ctx context.Context, sp *types.SourceProduct, result *types.ChunkResult) error {
	providerID, created, err := d.pipeline.Providers.Reconcile(ctx, sp)
	if err != nil {
		return fmt.Errorf("reconciling provider: %w", err)
	}
	if created {
		result.ProvidersCreated++
	}

	productResult, err := d.pipeline.Products.Upsert(ctx, sp, providerID)
	if err != nil {
		return fmt.Errorf("upserting product: %w", err)
	}
	if productResult.Created {
		result.ProductsCreated++
	} else {
		result.ProductsUpdated++
	}

	current := history.CurrentAggregates{
		SoldUnitsLast7:  sp.SoldUnitsLast7,
		SoldUnitsLast30: sp.SoldUnitsLast30,
		TotalSoldUnits:  sp.TotalSoldUnits,
		BillingLast7:    sp.BillingLast7,
		BillingLast30:   sp.BillingLast30,
		TotalBilling:    sp.TotalBilling,
		SuggestedPrice:  sp.SuggestedPrice,
	}
	filled, err := d.pipeline.History.Fill(ctx, productResult.ProductID, sp.ExternalID, sp.PlatformName, sp.CountryCode, current)
	if err != nil {
		return fmt.Errorf("filling history: %w", err)
	}
	result.HistoriesFilled += filled

	reconciled, err := d.pipeline.Multimedia.Reconcile(ctx, productResult.ProductID, sp.Gallery, sp.CountryCode)
	if err != nil {
		return fmt.Errorf("reconciling multimedia: %w", err)
	}
	result.MultimediaCreated += reconciled

	return nil
}

func (d *Driver) renewLeaseLoop(ctx context.Context, chunkID int, done <-chan struct{}) {
	ticker := time.NewTicker(d.cfg.LockRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.scheduler.RenewLock(ctx, chunkID); err != nil {
				d.log.Warn("renewing chunk lease", "chunkId", chunkID, "error", err)
			}
		}
	}
}
