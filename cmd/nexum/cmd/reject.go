package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	rejectBy     string
	rejectReason string
)

var rejectCmd = &cobra.Command{
	Use:   "reject <execution_id:node_id>",
	Short: "Reject a pending HUMAN_APPROVAL task",
	Long:  "Reject a pending HUMAN_APPROVAL task. The task ID format is execution_id:node_id.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

func init() {
	rejectCmd.Flags().StringVar(&rejectBy, "by", "", "Approver identity")
	rejectCmd.Flags().StringVarP(&rejectReason, "reason", "r", "", "Rejection reason")
	rootCmd.AddCommand(rejectCmd)
}

func runReject(cmd *cobra.Command, args []string) error {
	executionID, nodeID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	_, err = newClient().RejectTask(ctx, executionID, nodeID, rejectBy, rejectReason)
	if err != nil {
		return fmt.Errorf("RejectTask failed: %w", err)
	}

	fmt.Printf("Task %s rejected.\n", args[0])
	return nil
}
