package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Print current chunk progress and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.scheduler.GetProgress(cmd.Context())
		if err != nil {
			return fmt.Errorf("reading progress: %w", err)
		}

		fmt.Printf("chunks:     %d total, %d pending, %d processing, %d completed\n",
			p.TotalChunks, p.PendingChunks, p.ProcessingChunks, p.CompletedChunks)
		fmt.Printf("records:    %d processed, %d duplicates skipped, %d errors\n",
			p.TotalProcessed, p.TotalDuplicates, p.TotalErrors)
		return nil
	},
}
