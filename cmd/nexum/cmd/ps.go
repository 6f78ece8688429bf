package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	psWorkflow string
	psStatus   string
	psLimit    int
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List executions",
	RunE:  runPs,
}

func init() {
	psCmd.Flags().StringVar(&psWorkflow, "workflow", "", "Filter by workflow ID")
	psCmd.Flags().StringVar(&psStatus, "status", "", "Filter by status (RUNNING, COMPLETED, FAILED, CANCELLED)")
	psCmd.Flags().IntVar(&psLimit, "limit", 0, "Maximum rows (0 uses the server default)")
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	executions, err := newClient().ListExecutions(ctx, psWorkflow, psStatus, psLimit)
	if err != nil {
		return fmt.Errorf("ListExecutions failed: %w", err)
	}

	if len(executions) == 0 {
		fmt.Println("No executions found.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-12s %s\n", "EXECUTION ID", "WORKFLOW", "STATUS", "STARTED")
	for _, e := range executions {
		started := formatTimeAgo(e.CreatedAt)
		fmt.Printf("%-38s %-20s %-12s %s\n", e.ExecutionID, e.WorkflowID, e.Status, started)
	}

	return nil
}

func formatTimeAgo(ts string) string {
	if ts == "" {
		return "unknown"
	}

	// Try RFC3339 first, then a few common formats
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	var t time.Time
	var err error
	for _, f := range formats {
		t, err = time.Parse(f, ts)
		if err == nil {
			break
		}
	}
	if err != nil {
		return ts
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
