package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List pending HUMAN_APPROVAL tasks",
	RunE:  runApprovals,
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
}

func runApprovals(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	approvals, err := newClient().PendingApprovals(ctx)
	if err != nil {
		return fmt.Errorf("PendingApprovals failed: %w", err)
	}

	if len(approvals) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-20s %s\n", "EXECUTION ID", "NODE ID", "WORKFLOW", "WAITING")
	for _, item := range approvals {
		waiting := formatTimeAgo(item.StartedAt)
		fmt.Printf("%-38s %-20s %-20s %s\n", item.ExecutionID, item.NodeID, item.WorkflowID, waiting)
	}

	return nil
}
