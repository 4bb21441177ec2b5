package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropkiller/catalog-migration/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Validate configuration and connectivity, then pre-partition chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := cmd.Context()

		if err := e.legacyDB.PingContext(ctx); err != nil {
			return fmt.Errorf("pinging legacy database: %w", err)
		}
		if err := e.targetDB.PingContext(ctx); err != nil {
			return fmt.Errorf("pinging target database: %w", err)
		}

		existing, err := e.scheduler.ChunkCount(ctx)
		if err != nil {
			return fmt.Errorf("reading chunk count: %w", err)
		}
		if existing > 0 {
			fmt.Printf("configuration valid, legacy and target databases reachable\n")
			fmt.Printf("chunk map already has %d chunks, leaving it alone (use migrate reset --yes first to re-partition)\n", existing)
			return nil
		}

		total, err := buildSourceReader(e).Count(ctx)
		if err != nil {
			return fmt.Errorf("counting source records: %w", err)
		}
		if e.cfg.TestMode && total > config.TestModeRecordCap {
			total = config.TestModeRecordCap
		}

		n, err := e.scheduler.InitializeChunks(ctx, total)
		if err != nil {
			return fmt.Errorf("initializing chunks: %w", err)
		}

		fmt.Printf("configuration valid, legacy and target databases reachable\n")
		fmt.Printf("initialized %d chunks across %d records\n", n, total)
		return nil
	},
}
