package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuro6061/nexum/common/client"
)

var (
	devPort          string
	devWorkerEnabled bool
	devIRFiles       []string
	devPollRate      float64
)

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Start local nexum-server with SQLite",
	Long: "Start a local nexum-server backed by SQLite. --ir registers workflow files " +
		"on startup; --worker runs a generic development worker against the server.",
	RunE: runDev,
}

func init() {
	devCmd.Flags().StringVar(&devPort, "port", "50051", "Server port")
	devCmd.Flags().BoolVar(&devWorkerEnabled, "worker", false, "Run the built-in dev worker")
	devCmd.Flags().StringArrayVar(&devIRFiles, "ir", nil, "IR file to register on startup (repeatable)")
	devCmd.Flags().Float64Var(&devPollRate, "poll-rate", 5, "Dev worker polls per second")
	rootCmd.AddCommand(devCmd)
}

func findServerBinary() string {
	ext := ""
	if runtime.GOOS == "windows" {
		ext = ".exe"
	}

	candidates := []string{
		filepath.Join(".", "bin", "nexum-server"+ext),
		filepath.Join(".", "nexum-server"+ext),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err == nil {
				return abs
			}
			return path
		}
	}

	// Fall back to PATH lookup
	if path, err := exec.LookPath("nexum-server" + ext); err == nil {
		return path
	}

	return ""
}

func runDev(cmd *cobra.Command, args []string) error {
	binary := findServerBinary()
	if binary == "" {
		return fmt.Errorf("nexum-server binary not found\nLooked in:\n  ./bin/nexum-server\n  ./nexum-server\n  $PATH")
	}

	fmt.Printf("Starting nexum-server on port %s ...\n", devPort)
	fmt.Printf("Binary: %s\n", binary)

	proc := exec.Command(binary)
	proc.Env = append(os.Environ(),
		"NEXUM_PORT="+devPort,
		"DATABASE_URL=sqlite://.nexum/dev.db",
	)
	proc.Stdout = os.Stdout
	proc.Stderr = os.Stderr

	if !devWorkerEnabled && len(devIRFiles) == 0 {
		if err := proc.Run(); err != nil {
			return fmt.Errorf("nexum-server exited: %w", err)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := proc.Start(); err != nil {
		return fmt.Errorf("failed to start nexum-server: %w", err)
	}

	api := client.New("http://localhost:" + devPort)
	worker := newDevWorker(api, devPollRate)
	if err := prepareDevWorker(ctx, api, worker); err != nil {
		_ = proc.Process.Kill()
		_ = proc.Wait()
		return err
	}

	var wg sync.WaitGroup
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if devWorkerEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(workerCtx)
		}()
	}

	err := proc.Wait()
	cancelWorker()
	wg.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("nexum-server exited: %w", err)
	}
	return nil
}

// prepareDevWorker waits for the spawned server to answer health checks,
// then registers any --ir workflow files.
func prepareDevWorker(ctx context.Context, api *client.Client, worker *devWorker) error {
	if err := waitForServer(ctx, api); err != nil {
		return err
	}
	for _, path := range devIRFiles {
		if err := worker.registerWorkflowFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func waitForServer(ctx context.Context, api *client.Client) error {
	deadline := time.Now().Add(15 * time.Second)
	for {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := api.Health(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("nexum-server did not become ready: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}
