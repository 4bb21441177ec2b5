package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all chunk state so the next run starts over",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetConfirmed {
			return errors.New("refusing to reset chunk state without --yes")
		}

		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.scheduler.Reset(cmd.Context()); err != nil {
			return fmt.Errorf("resetting chunk state: %w", err)
		}
		fmt.Println("chunk state reset")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "confirm deleting all chunk state")
}
