package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-client/internal/api"
	"github.com/spec-kit/ticket-client/internal/config"
	"github.com/spec-kit/ticket-client/internal/credstore"
	"github.com/spec-kit/ticket-client/internal/events"
	"github.com/spec-kit/ticket-client/internal/observability"
	"github.com/spec-kit/ticket-client/internal/session"
	"github.com/spec-kit/ticket-client/internal/stub"
	"github.com/spec-kit/ticket-client/internal/ticketstore"
	"github.com/spec-kit/ticket-client/internal/worker"
)

// app bundles the constructed client stack for command handlers.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *session.Store
	tickets *ticketstore.Store
	redis   *credstore.Redis
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := observability.NewMetrics()
	client := api.NewClient(cfg.API, logger, metrics)

	a := &app{cfg: cfg, logger: logger}

	var store credstore.Store
	switch cfg.Credentials.Backend {
	case "redis":
		a.redis = credstore.NewRedis(cfg.Credentials, logger)
		store = a.redis
	case "memory":
		store = credstore.NewMemory()
	default:
		store, err = credstore.NewFile(cfg.Credentials.Dir)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
	}

	dispatcher := events.NewInMemoryDispatcher()
	a.session = session.New(session.Dependencies{
		API:         client,
		Credentials: store,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
	})
	a.tickets = ticketstore.New(a.session, dispatcher, logger)

	if cfg.Refresh.Enabled {
		go worker.NewRefreshWorker(a.session, cfg.Refresh, logger).Run(context.Background())
	}

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	_ = a.logger.Sync()
}

func main() {
	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Client for the support-ticketing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var a *app
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "stub" {
			return nil
		}
		var err error
		a, err = newApp()
		return err
	}
	root.PersistentPostRun = func(*cobra.Command, []string) {
		if a != nil {
			a.close()
		}
	}

	root.AddCommand(
		loginCmd(&a),
		registerCmd(&a),
		logoutCmd(&a),
		whoamiCmd(&a),
		ticketsCmd(&a),
		statsCmd(&a),
		stubCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func stubCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run the in-memory stub backend",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}

			server := stub.NewServer(logger)
			go func() {
				if err := server.Listen(addr); err != nil {
					log.Fatalf("stub listen: %v", err)
				}
			}()
			logger.Info("stub backend listening", zap.String("addr", addr))

			waitForShutdown(logger)
			return server.Shutdown()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	return cmd
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
