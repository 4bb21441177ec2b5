// Package telemetry wires OpenTelemetry metrics and tracing for a
// migration run: one counter per outcome kind in spec.md's per-chunk
// result, and a span per chunk carrying chunk id and worker id
// attributes.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"

	"github.com/dropkiller/catalog-migration/internal/types"
)

const instrumentationName = "github.com/dropkiller/catalog-migration/internal/migration"

// Recorder emits chunk-result counters and wraps chunk processing in a
// trace span. Built once per worker process by Setup.
type Recorder struct {
	tracer trace.Tracer

	processed         metric.Int64Counter
	providersCreated  metric.Int64Counter
	productsCreated   metric.Int64Counter
	productsUpdated   metric.Int64Counter
	historiesFilled   metric.Int64Counter
	multimediaCreated metric.Int64Counter
	duplicatesSkipped metric.Int64Counter
	errorsTotal       metric.Int64Counter
}

// Setup builds a MeterProvider against an OTLP HTTP collector when
// otlpEndpoint is non-empty, or stdout otherwise, and returns a
// Recorder plus a shutdown func the caller must defer. It registers no
// TracerProvider: chunk spans go to the global tracer provider, which
// discards them unless the process installs one.
func Setup(ctx context.Context, serviceName, workerID, otlpEndpoint string) (*Recorder, func(context.Context) error, error) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.instance.id", workerID),
	)

	exporter, err := newExporter(ctx, otlpEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("building metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter(instrumentationName)
	r := &Recorder{tracer: otel.Tracer(instrumentationName)}
	if err := r.buildInstruments(meter); err != nil {
		return nil, nil, err
	}
	return r, provider.Shutdown, nil
}

func newExporter(ctx context.Context, otlpEndpoint string) (sdkmetric.Exporter, error) {
	if otlpEndpoint != "" {
		return otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(otlpEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
	}
	return stdoutmetric.New()
}

func (r *Recorder) buildInstruments(meter metric.Meter) error {
	var err error
	if r.processed, err = meter.Int64Counter("migration.records.processed"); err != nil {
		return err
	}
	if r.providersCreated, err = meter.Int64Counter("migration.providers.created"); err != nil {
		return err
	}
	if r.productsCreated, err = meter.Int64Counter("migration.products.created"); err != nil {
		return err
	}
	if r.productsUpdated, err = meter.Int64Counter("migration.products.updated"); err != nil {
		return err
	}
	if r.historiesFilled, err = meter.Int64Counter("migration.history_rows.filled"); err != nil {
		return err
	}
	if r.multimediaCreated, err = meter.Int64Counter("migration.multimedia.created"); err != nil {
		return err
	}
	if r.duplicatesSkipped, err = meter.Int64Counter("migration.records.duplicates_skipped"); err != nil {
		return err
	}
	if r.errorsTotal, err = meter.Int64Counter("migration.records.errors"); err != nil {
		return err
	}
	return nil
}

// StartChunkSpan opens a span for one chunk's processing, tagged with
// chunk id and worker id so traces can be correlated with the chunk
// map in the coordination service.
func (r *Recorder) StartChunkSpan(ctx context.Context, chunkID int, workerID string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "migration.process_chunk",
		trace.WithAttributes(
			attribute.Int("chunk.id", chunkID),
			attribute.String("worker.id", workerID),
		),
	)
}

// RecordResult adds one chunk's outcome counts to the process-wide
// counters.
func (r *Recorder) RecordResult(ctx context.Context, result types.ChunkResult) {
	r.processed.Add(ctx, int64(result.Processed))
	r.providersCreated.Add(ctx, int64(result.ProvidersCreated))
	r.productsCreated.Add(ctx, int64(result.ProductsCreated))
	r.productsUpdated.Add(ctx, int64(result.ProductsUpdated))
	r.historiesFilled.Add(ctx, int64(result.HistoriesFilled))
	r.multimediaCreated.Add(ctx, int64(result.MultimediaCreated))
	r.duplicatesSkipped.Add(ctx, int64(result.DuplicatesSkipped))
	r.errorsTotal.Add(ctx, int64(result.Errors))
}
