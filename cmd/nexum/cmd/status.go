package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <execution_id>",
	Short: "Show execution status and completed node outputs",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	executionID := args[0]

	ctx, cancel := commandContext()
	defer cancel()

	resp, err := newClient().GetStatus(ctx, executionID)
	if err != nil {
		return fmt.Errorf("GetStatus failed: %w", err)
	}

	fmt.Printf("EXECUTION: %s\n", executionID)
	fmt.Printf("STATUS:    %s\n", resp.Status)

	var completed map[string]json.RawMessage
	if resp.CompletedNodesJSON != "" {
		if err := json.Unmarshal([]byte(resp.CompletedNodesJSON), &completed); err != nil {
			return fmt.Errorf("malformed completed nodes payload: %w", err)
		}
	}
	if len(completed) == 0 {
		return nil
	}

	nodeIDs := make([]string, 0, len(completed))
	for nodeID := range completed {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	fmt.Println()
	fmt.Println("COMPLETED NODES:")
	for _, nodeID := range nodeIDs {
		fmt.Printf("  %-20s %s\n", nodeID, string(completed[nodeID]))
	}

	return nil
}
