// Command loom captures local development telemetry into a SQLite store
// and serves views over it: AI prompts from editor sidecar stores and the
// clipboard, file changes under watched workspaces, shell history, and
// editor todos. Everything stays on the machine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/untoldecay/LoomLog/internal/config"
	"github.com/untoldecay/LoomLog/internal/queries"
	"github.com/untoldecay/LoomLog/internal/rpc"
	"github.com/untoldecay/LoomLog/internal/storage"
	"github.com/untoldecay/LoomLog/internal/storage/sqlite"
	"github.com/untoldecay/LoomLog/internal/ui"
)

var (
	rootCtx    context.Context
	store      storage.Storage
	facade     *queries.Facade
	jsonOutput bool
	dbPath     string
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Local developer telemetry companion",
	Long: `loom captures the telemetry of your local development sessions: AI
prompts from editor sidecar stores and the clipboard, file changes under
watched workspaces, shell history, and editor todos. Captured records are
correlated (which prompt caused which edit) and stored in a single SQLite
file under your control. Nothing leaves the machine.

Run 'loom init' once, then 'loom daemon start' to begin capturing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		ui.ConfigureColor()

		// Flags override config.
		if dataDir != "" {
			config.Set("data-dir", dataDir)
		}
		dataDir = config.DataDir()
		if dbPath != "" {
			config.Set("db", dbPath)
		}
		dbPath = config.DBPath()

		rpc.ClientVersion = Version
		rpc.ServerVersion = Version
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the loom database (default <data-dir>/loom.db)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Loom data directory (default ~/.loom)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "capture", Title: "Capture commands:"},
		&cobra.Group{ID: "views", Title: "View commands:"},
		&cobra.Group{ID: "setup", Title: "Setup commands:"},
		&cobra.Group{ID: "maint", Title: "Maintenance commands:"},
	)
}

// ensureStore opens the SQLite store at the resolved path on first use and
// builds the query facade over it.
func ensureStore() error {
	if store != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	s, err := sqlite.New(rootCtx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store at %s: %w", dbPath, err)
	}
	store = s
	facade = queries.New(s, queries.Config{CacheTTL: config.MillisDuration("cache_ttl_ms")})
	return nil
}

func closeStore() {
	if store != nil {
		_ = store.Close()
		store = nil
		facade = nil
	}
}

// outputJSON marshals v with indentation and prints it to stdout.
func outputJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// FatalError prints a formatted error to stderr and exits 1.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCtx = ctx

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
