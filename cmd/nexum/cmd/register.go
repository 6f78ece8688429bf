package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var registerHash string

var registerCmd = &cobra.Command{
	Use:   "register <workflow_id> <ir_file>",
	Short: "Register a workflow IR version",
	Long:  "Register a workflow IR version from a JSON file. The version hash defaults to the SHA-256 digest of the file contents.",
	Args:  cobra.ExactArgs(2),
	RunE:  runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerHash, "hash", "", "Version hash (default: sha256 of the IR file)")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	workflowID := args[0]

	irJSON, versionHash, err := loadIRFile(args[1])
	if err != nil {
		return err
	}
	if registerHash != "" {
		versionHash = registerHash
	}

	ctx, cancel := commandContext()
	defer cancel()

	resp, err := newClient().RegisterWorkflow(ctx, workflowID, versionHash, irJSON)
	if err != nil {
		return fmt.Errorf("RegisterWorkflow failed: %w", err)
	}

	fmt.Printf("Registered %s version %s\n", workflowID, versionHash)
	fmt.Printf("%s: %s\n", resp.Compatibility, resp.Message)
	return nil
}

// loadIRFile reads an IR document and returns its contents along with the
// content-derived version hash ("sha256:" + hex digest).
func loadIRFile(path string) (irJSON, versionHash string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read IR file: %w", err)
	}
	sum := sha256.Sum256(data)
	return string(data), "sha256:" + hex.EncodeToString(sum[:]), nil
}

// workflowIDFromPath derives a workflow ID from an IR file name, e.g.
// "workflows/orders.json" becomes "orders".
func workflowIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
