package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/wasmwerk/internal/config"
	"github.com/codefionn/wasmwerk/internal/logger"
	"github.com/codefionn/wasmwerk/internal/registry"
	"github.com/codefionn/wasmwerk/internal/toolmgr"
	"github.com/codefionn/wasmwerk/internal/worker"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wasmwerk",
	Short: "Sandboxed WebAssembly tool runner",
	Long: `Wasmwerk runs third-party WebAssembly tools inside a WASI sandbox:
no network, no ambient filesystem, bounded memory and wall-clock time.

Tools are installed from ZIP packages (one manifest.json plus one .wasm
binary) or bootstrapped from a curated built-in list. Arguments are converted
per the tool's declared calling convention and results come back as
structured output.

Use 'wasmwerk help <command>' for more information on a specific command.`,
}

func main() {
	ctx, stop := signalContext()
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// signalContext returns a context canceled on SIGINT/SIGTERM so blocking
// commands like watch unwind their defers instead of dying mid-cleanup.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
}

// app bundles everything a subcommand needs.
type app struct {
	cfg     *config.Config
	store   *registry.Store
	reg     *registry.Registry
	workers *worker.Manager
	mgr     *toolmgr.Manager
}

// openApp loads configuration and opens the registry. Every subcommand goes
// through here so flags behave identically everywhere.
func openApp() (*app, error) {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if verbose {
		level = logger.LevelDebug
	}
	if err := logger.Init(level, cfg.LogPath); err != nil {
		return nil, err
	}

	store, err := registry.OpenStore(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}
	reg := registry.New(store)
	workers := worker.NewManager()
	mgr := toolmgr.New(toolmgr.Options{
		Registry:       reg,
		Workers:        workers,
		WorkDir:        cfg.WorkDir,
		DisableWorkers: cfg.DisableWorkers,
	})
	return &app{cfg: cfg, store: store, reg: reg, workers: workers, mgr: mgr}, nil
}

func (a *app) close() {
	a.workers.Close()
	a.store.Close()
	logger.Global().Close()
}
