package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startInput string

var startCmd = &cobra.Command{
	Use:   "start <workflow_id> <version_hash>",
	Short: "Start an execution of a registered workflow version",
	Args:  cobra.ExactArgs(2),
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVarP(&startInput, "input", "i", "{}", "Execution input as JSON")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	workflowID, versionHash := args[0], args[1]

	ctx, cancel := commandContext()
	defer cancel()

	executionID, err := newClient().StartExecution(ctx, workflowID, versionHash, startInput)
	if err != nil {
		return fmt.Errorf("StartExecution failed: %w", err)
	}

	fmt.Println(executionID)
	return nil
}
