package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <execution_id>",
	Short: "Cancel a running execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	executionID := args[0]

	ctx, cancel := commandContext()
	defer cancel()

	_, err := newClient().CancelExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("CancelExecution failed: %w", err)
	}

	fmt.Printf("Execution %s cancelled.\n", executionID)
	return nil
}
