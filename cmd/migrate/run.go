package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropkiller/catalog-migration/internal/migration"
	"github.com/dropkiller/catalog-migration/internal/telemetry"
)

var otlpEndpointFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the migration to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, wrapErr, cleanup := withSignalCancel(cmd.Context())
		defer cleanup()

		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		rec, shutdownTelemetry, err := telemetry.Setup(ctx, "catalog-migration", e.cfg.WorkerID, otlpEndpointFlag)
		if err != nil {
			return fmt.Errorf("setting up telemetry: %w", err)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()

		driver := migration.NewDriver(buildSourceReader(e), e.scheduler, buildPipeline(e), e.cfg, e.log, rec)

		err = driver.Execute(ctx)
		return wrapErr(err)
	},
}

func init() {
	runCmd.Flags().StringVar(&otlpEndpointFlag, "otlp-endpoint", "", "OTLP HTTP endpoint for metrics export (stdout if empty)")
}
