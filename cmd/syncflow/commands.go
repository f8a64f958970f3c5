package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/config"
	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
	"github.com/ajitpratap0/syncflow/pkg/scheduler"
)

func newValidateCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			for _, def := range cfg.Syncs {
				s, err := cfg.BuildSync(def)
				if err != nil {
					return err
				}
				spec, _ := s.ScheduleCronExpression()
				if spec == "" {
					spec = "manual"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s: %s -> %s (%s, %s)\n",
					s.ID, s.SourceID, s.DestinationID, s.Config.SyncMode, spec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d connectors, %d syncs\n",
				len(cfg.Connectors), len(cfg.Syncs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "syncflow.yaml", "Path to the configuration file")
	return cmd
}

func newRunCommand() *cobra.Command {
	var (
		configFile string
		syncID     string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run syncs once",
		Long: `Run one configured sync, or every configured sync, once and exit.

Example:
  syncflow run --config syncflow.yaml --sync users
  syncflow run --config syncflow.yaml --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (syncID == "") == !all {
				return errors.New(errors.ErrorTypeValidation, "exactly one of --sync or --all is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, prometheus.NewRegistry(), nil)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			ids, err := a.loadSyncs(ctx)
			if err != nil {
				return err
			}

			start := time.Now()
			if all {
				err = a.executor.ExecuteAll(ctx, ids)
			} else {
				if _, ok := a.cfg.SyncDefinition(syncID); !ok {
					return errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("sync %q is not configured", syncID))
				}
				_, err = a.executor.Execute(ctx, syncID)
			}
			a.logger.Info("sync runs finished", zap.Duration("duration", time.Since(start)), zap.Error(err))
			return err
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "syncflow.yaml", "Path to the configuration file")
	cmd.Flags().StringVar(&syncID, "sync", "", "Id of the sync to run")
	cmd.Flags().BoolVar(&all, "all", false, "Run every configured sync")
	return cmd
}

func newScheduleCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run syncs on their schedules until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}

			// the scheduler calls back into a, which exists once newApp returns
			var a *app
			cron := scheduler.NewCronScheduler(ctx,
				func(ctx context.Context, syncID string) (string, error) {
					return a.service.ScheduleSpec(ctx, syncID)
				},
				func(ctx context.Context, kind scheduler.WorkflowKind, syncID string) {
					a.executor.Trigger(ctx, kind, syncID)
				},
				logger.Get(),
			)

			a, err = newApp(cfg, prometheus.DefaultRegisterer, cron)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			if _, err := a.loadSyncs(ctx); err != nil {
				return err
			}

			if a.cfg.Metrics.Enabled {
				srv := serveMetrics(a.cfg.Metrics, a.logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			cron.Start()
			a.logger.Info("scheduler running", zap.Int("workflows", len(cron.Entries())))
			<-ctx.Done()
			a.logger.Info("shutting down scheduler")
			cron.Stop()
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "syncflow.yaml", "Path to the configuration file")
	return cmd
}

// serveMetrics exposes the default prometheus registry
func serveMetrics(cfg config.MetricsConfig, l *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Error("metrics server failed", zap.Error(err))
		}
	}()
	l.Info("metrics server listening", zap.String("address", cfg.Address), zap.String("path", cfg.Path))
	return srv
}
