// Package main provides the Entropy server CLI entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/entropy-world/entropy/pkg/config"
	"github.com/entropy-world/entropy/pkg/server"
	"github.com/entropy-world/entropy/pkg/storage"
	"github.com/entropy-world/entropy/pkg/world"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "entropy",
		Short: "Entropy - authoritative server for a thermodynamic grid world",
		Long: `Entropy is the server-side authority for a persistent 2D grid world.
Players own autonomous guests that walk a toroidal lattice of nodes and
exchange heat with node cells under a Carnot-style efficiency rule.

The server owns all canonical state (players, guests, nodes) and exposes
its operations over HTTP and WebSocket.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("entropy v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Entropy server",
		Long:  "Start the Entropy world server with its HTTP and WebSocket API",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd)
	serveCmd.Flags().String("address", "", "HTTP bind address")
	serveCmd.Flags().Int("port", 0, "HTTP port")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the world database",
		Long:  "Create the data directory, bootstrap the schema and seed the origin node",
		RunE:  runInit,
	}
	addCommonFlags(initCmd)
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to YAML config file")
	cmd.Flags().String("data-dir", "", "Data directory")
	cmd.Flags().Bool("in-memory", false, "Run without persistence")
	cmd.Flags().String("log-level", "", "Log level (trace|debug|info|warn|error)")
}

// loadConfig layers flags over env over the optional config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Database.DataDir = v
	}
	if v, _ := cmd.Flags().GetBool("in-memory"); v {
		cfg.Database.InMemory = true
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if cmd.Flags().Lookup("address") != nil {
		if v, _ := cmd.Flags().GetString("address"); v != "" {
			cfg.HTTP.Address = v
		}
		if v, _ := cmd.Flags().GetInt("port"); v != 0 {
			cfg.HTTP.Port = v
		}
	}
	return cfg, setupLogging(cfg)
}

func setupLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logrus.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

func openEngine(cfg *config.Config) (storage.Engine, error) {
	if cfg.Database.InMemory {
		logrus.Warn("running without persistence; the world dies with the process")
		return storage.NewMemoryEngine(), nil
	}
	if err := os.MkdirAll(cfg.Database.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
		DataDir:    cfg.Database.DataDir,
		SyncWrites: cfg.Database.SyncWrites,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}

	w := world.New(engine)
	defer w.Close()
	if err := w.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping world: %w", err)
	}

	srv := server.New(w, cfg.ListenAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	logrus.Info("server stopped")
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	w := world.New(engine)
	defer w.Close()

	if err := w.Bootstrap(cmd.Context()); err != nil {
		return fmt.Errorf("bootstrapping world: %w", err)
	}
	logrus.WithField("data_dir", cfg.Database.DataDir).Info("world initialized; origin node seeded")
	return nil
}
