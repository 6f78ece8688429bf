// Package cmd implements the nexum CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuro6061/nexum/common/client"
)

// DefaultServer is used when neither --server nor NEXUM_SERVER is set.
const DefaultServer = "http://localhost:50051"

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "nexum",
	Short: "Nexum workflow orchestration CLI",
	Long:  "CLI for managing Nexum workflow executions, versions, and approvals.",
}

func init() {
	def := os.Getenv("NEXUM_SERVER")
	if def == "" {
		def = DefaultServer
	}
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", def, "server address")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(serverAddr)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
