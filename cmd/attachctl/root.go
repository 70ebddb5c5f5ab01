package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lk2023060901/attachment-store/internal/conf"
	"github.com/lk2023060901/attachment-store/internal/pkg/injector"
	"github.com/lk2023060901/attachment-store/internal/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	configFile  string
	metricsAddr string
	verbose     bool

	config *conf.Config
	log    *logger.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "attachctl",
		Short: "Attachment storage and migration tool",
		Long: `attachctl manages attachment bytes stored on the local filesystem and in a
remote blob store, and drives the migration between them.

Examples:
  attachctl mode                         # Show the active storage mode
  attachctl mode set remote-primary      # Flip the migration flags in redis
  attachctl health                       # Report backend health
  attachctl migrate --concurrency 16     # Copy every attachment into the active store
  attachctl zip 10042 -o issue.zip       # Bundle an issue's attachments
  attachctl zip-list issue.zip --max 20  # Inspect a zip attachment`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging to the console")
	root.PersistentFlags().StringVar(&c.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(
		c.modeCommand(),
		c.healthCommand(),
		c.migrateCommand(),
		c.zipCommand(),
		c.zipListCommand(),
		c.zipExtractCommand(),
		c.moveIssueCommand(),
		c.deleteIssueDirCommand(),
		c.verifyCommand(),
		c.removeCommand(),
	)
	return root
}

func (c *cli) init() error {
	config, err := conf.Load(c.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if c.verbose {
		config.Log = *config.Log.Apply(logger.Verbose()...)
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := logger.InitGlobal(&config.Log); err != nil {
		return fmt.Errorf("failed to initialize global logger: %w", err)
	}

	c.config = config
	c.log = log
	return nil
}

// withApp builds the application, runs fn and releases every resource
func (c *cli) withApp(ctx context.Context, fn func(ctx context.Context, app *injector.App) error) error {
	app, cleanup, err := injector.InitializeApp(c.config, c.log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer cleanup()

	if c.metricsAddr != "" {
		stop := c.serveMetrics(app)
		defer stop()
	}

	return fn(ctx, app)
}

func (c *cli) serveMetrics(app *injector.App) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              c.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("metrics server failed", zap.Error(err))
		}
	}()
	c.log.Info("serving metrics", zap.String("addr", c.metricsAddr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
