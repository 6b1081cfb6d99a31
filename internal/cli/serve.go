package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weftdb/weft/internal/atom"
	"github.com/weftdb/weft/internal/bus"
	"github.com/weftdb/weft/internal/config"
	"github.com/weftdb/weft/internal/engine"
	"github.com/weftdb/weft/internal/kv"
	"github.com/weftdb/weft/internal/logging"
	"github.com/weftdb/weft/internal/registry"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/internal/telemetry"
)

// NewServeCommand creates the serve command: run a weft node.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		configPath  string
		schemaFiles []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a weft node",
		Long: `Run a weft node: open the atom store and registry slots, restore
persisted schemas, and serve transform execution until interrupted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if rootOpts.Verbose {
				cfg.Log.Level = "debug"
			}
			return serve(cmd.Context(), cfg, schemaFiles)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringArrayVar(&schemaFiles, "schema", nil, "CUE schema file to load on startup (repeatable)")
	return cmd
}

func serve(parent context.Context, cfg config.Config, schemaFiles []string) error {
	logger := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	b := bus.New()

	store, err := atom.Open(filepath.Join(cfg.DataDir, "atoms.db"),
		atom.WithNotifier(b),
		atom.WithBatchSize(cfg.Engine.BatchSize),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	slots, err := kv.OpenBolt(filepath.Join(cfg.DataDir, "slots.db"))
	if err != nil {
		return err
	}
	defer slots.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(registry.WithStore(slots), registry.WithLogger(logger))
	if err := reg.Load(ctx); err != nil {
		return err
	}

	manager := schema.NewManager(store, reg, b,
		schema.WithSlots(slots),
		schema.WithLogger(logger),
	)
	if err := manager.Restore(ctx); err != nil {
		return err
	}
	for _, path := range schemaFiles {
		if err := manager.LoadFile(ctx, path); err != nil {
			return err
		}
	}

	metrics := telemetry.New()
	eng := engine.New(reg, store, b,
		engine.WithTimeout(cfg.ExecutionTimeout()),
		engine.WithMaxRetries(cfg.Engine.MaxRetries),
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithMetrics(metrics),
		engine.WithLogger(logger),
	)
	defer eng.Close()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return b.Run(groupCtx)
	})
	group.Go(func() error {
		return eng.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		b.Close()
		return nil
	})

	if cfg.Metrics.Enabled {
		server := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	logger.Info("node started", "data_dir", cfg.DataDir,
		"timeout", cfg.ExecutionTimeout(), "retries", cfg.Engine.MaxRetries)

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("node stopped")
	return err
}
