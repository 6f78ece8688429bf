package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <workflow_id>",
	Short: "List workflow versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

func init() {
	rootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	workflowID := args[0]

	ctx, cancel := commandContext()
	defer cancel()

	versions, err := newClient().ListVersions(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("ListVersions failed: %w", err)
	}

	if len(versions) == 0 {
		fmt.Printf("No versions found for workflow %s.\n", workflowID)
		return nil
	}

	fmt.Printf("WORKFLOW: %s\n", workflowID)
	for _, v := range versions {
		status := "INACTIVE"
		if v.ActiveExecutions > 0 {
			status = "ACTIVE"
		}
		deployed := formatTimeAgo(v.RegisteredAt)
		fmt.Printf("  %-16s %-10s deployed %s\n", v.VersionHash, status, deployed)
	}

	return nil
}
