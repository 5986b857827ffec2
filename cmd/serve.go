package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mathiasgse/screenfree/internal/api"
	"github.com/mathiasgse/screenfree/internal/monitoring"
	"github.com/mathiasgse/screenfree/internal/schedule"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger surface and scheduled runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		sched, err := schedule.New(ctx, env.Runner, cfg.Schedule.Entries)
		if err != nil {
			return err
		}

		opts := api.Options{
			Token:          cfg.Server.APIToken,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			DefaultLimit:   cfg.Discovery.DefaultLimit,
		}
		if env.Breakers != nil {
			opts.Breakers = env.Breakers
		}
		server := api.NewServer(env.Store, env.Runner, env.Scraper, env.Reviewer, opts)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			sched.Start()
			<-gctx.Done()
			sched.Stop()

			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
		})

		if cfg.Monitoring.Enabled {
			collector := monitoring.NewCollector(env.Store,
				time.Duration(cfg.Monitoring.StaleRunMinutes)*time.Minute)
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}

		err = g.Wait()

		zap.L().Info("waiting for background runs")
		env.Runner.Wait()
		env.Scraper.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
