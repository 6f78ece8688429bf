package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	approveBy      string
	approveComment string
)

var approveCmd = &cobra.Command{
	Use:   "approve <execution_id:node_id>",
	Short: "Approve a pending HUMAN_APPROVAL task",
	Long:  "Approve a pending HUMAN_APPROVAL task. The task ID format is execution_id:node_id.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

func init() {
	approveCmd.Flags().StringVar(&approveBy, "by", "", "Approver identity")
	approveCmd.Flags().StringVarP(&approveComment, "comment", "c", "", "Approval comment")
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	executionID, nodeID, err := parseTaskID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	_, err = newClient().ApproveTask(ctx, executionID, nodeID, approveBy, approveComment)
	if err != nil {
		return fmt.Errorf("ApproveTask failed: %w", err)
	}

	fmt.Printf("Task %s approved.\n", args[0])
	return nil
}

func parseTaskID(taskID string) (string, string, error) {
	parts := strings.SplitN(taskID, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid task ID %q: expected format execution_id:node_id", taskID)
	}
	return parts[0], parts[1], nil
}
