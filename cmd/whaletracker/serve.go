package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/liamashdown/whaletracker/internal/alerts"
	"github.com/liamashdown/whaletracker/internal/api"
	"github.com/liamashdown/whaletracker/internal/processor"
	"github.com/liamashdown/whaletracker/internal/storage"
)

const shutdownTimeout = 15 * time.Second

var serveNoDispatch bool

// serveCmd runs the HTTP API alongside the alert dispatch loop
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the whale API and dispatch alerts",
	Long: `Start the HTTP API (with /health, /ready and /metrics) and poll whale
alerts on ALERT_POLL_INTERVAL, forwarding new ones to the configured senders.
When DATABASE_DSN is set the dispatch ledger is kept in MySQL, otherwise in memory.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoDispatch, "no-dispatch", false, "Serve the API without the alert dispatch loop")
}

// ledger is what the dispatcher and the shutdown path need from storage
type ledger interface {
	processor.Ledger
	Close() error
}

func openLedger(a *app) (ledger, error) {
	if a.cfg.DatabaseDSN == "" {
		a.log.Info("DATABASE_DSN not set, keeping alert ledger in memory")
		return storage.NewMemory(), nil
	}

	db, err := storage.New(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(); err != nil {
		db.Close()
		return nil, err
	}
	a.log.Info("Database migrations complete")
	return db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.WithField("mode", a.service.GetAPIKeyStatus().Mode.Mode).Info("Starting whaletracker service")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(api.DefaultServerConfig(a.cfg.HTTPPort), a.service, a.log)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if !serveNoDispatch {
		l, err := openLedger(a)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		defer l.Close()

		sender := alerts.NewFromConfig(a.cfg, a.log)
		a.log.WithField("alert_mode", a.cfg.AlertMode).Info("Alert sender initialized")

		proc := processor.New(a.cfg, a.service, l, sender, a.log)
		g.Go(func() error {
			proc.Run(gctx)
			return nil
		})
	}

	err = g.Wait()
	a.log.Info("Graceful shutdown complete")
	return err
}
