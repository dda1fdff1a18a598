package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/phx-stream/internal/config"
	"github.com/rickgao/phx-stream/internal/database"
	"github.com/rickgao/phx-stream/internal/logging"
	"github.com/rickgao/phx-stream/internal/metrics"
	"github.com/rickgao/phx-stream/internal/phx"
	"github.com/rickgao/phx-stream/internal/recorder"
	"github.com/rickgao/phx-stream/internal/transport"
	"github.com/rickgao/phx-stream/internal/version"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, join the configured topics and tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAndValidate(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.New(cfg.Log, os.Stdout)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			slog.SetDefault(logger)

			logger.Info("starting phxtail",
				"version", version.Version,
				"commit", version.Commit,
				"config", configPath,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/phxtail.yaml", "path to config file")
	return cmd
}

// run wires the components together and blocks until ctx is cancelled or
// the socket stops. Components shut down in reverse start order.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ep, err := cfg.Socket.Endpoint()
	if err != nil {
		return fmt.Errorf("socket endpoint: %w", err)
	}

	m := metrics.New(nil)

	// Recorder (optional)
	var (
		rec *recorder.Recorder
		db  pinger
	)
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Recorder.Database.Host,
			"port", cfg.Recorder.Database.Port,
			"database", cfg.Recorder.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		db = pool

		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
			BufferSize:    cfg.Recorder.BufferSize,
		}, pool, m, logger)
		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
	}

	// Socket
	wsCfg := cfg.Socket.WebSocketConfig()
	wsCfg.Header = http.Header{"User-Agent": {version.UserAgent()}}
	tr := transport.NewWebSocket(wsCfg, logger)

	sock, err := phx.NewSocket(cfg.Socket.PhxConfig(ep.URL()), tr,
		phx.WithLogger(logger),
		phx.WithObserver(m),
		phx.WithDelegate(phx.DelegateFuncs{
			OnOpen:  func() { logger.Info("socket open", "url", ep.String()) },
			OnClose: func(err error) { logger.Warn("socket closed", "error", err) },
			OnError: func(err error) { logger.Warn("socket error", "error", err) },
		}),
	)
	var (
		sink    eventRecorder
		started stopper
	)
	if rec != nil {
		sink, started = rec, rec
	}
	if err != nil {
		abortStartup(nil, started, logger)
		return fmt.Errorf("create socket: %w", err)
	}

	if err := joinTopics(sock, cfg.Topics, newTail(logger, sink), logger); err != nil {
		abortStartup(sock, started, logger)
		return err
	}

	// Health and metrics server (optional)
	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           newRouter(sock, db, m.Handler(), cfg.Metrics.Path),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if srv != nil {
		g.Go(func() error {
			logger.Info("starting health server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sock.Done():
		}

		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown", "error", err)
			}
		}
		if err := sock.Close(); err != nil && !errors.Is(err, phx.ErrSocketClosed) {
			logger.Warn("socket close", "error", err)
		}
		if rec != nil {
			rec.Stop(shutdownCtx)
			logger.Info("recorder stats", "stats", rec.Stats())
		}

		logger.Info("phxtail stopped", "socket_stats", sock.Stats())
		return nil
	})

	return g.Wait()
}

// joiner is the part of *phx.Socket used to join configured topics.
type joiner interface {
	Join(topic string, msg phx.Message, onJoined func(*phx.Channel)) (*phx.Channel, error)
}

func joinTopics(sock joiner, topics []config.TopicConfig, t *tail, logger *slog.Logger) error {
	for _, topic := range topics {
		if _, err := sock.Join(topic.Topic, phx.Message(topic.Params), t.onJoined(topic.Events)); err != nil {
			return fmt.Errorf("join %s: %w", topic.Topic, err)
		}
		logger.Info("joining topic", "topic", topic.Topic, "events", topic.Events)
	}
	return nil
}

// stopper is satisfied by *recorder.Recorder.
type stopper interface {
	Stop(ctx context.Context) error
}

// abortStartup releases what run started before failing. Either argument
// may be nil.
func abortStartup(sock interface{ Close() error }, rec stopper, logger *slog.Logger) {
	if sock != nil {
		if err := sock.Close(); err != nil && !errors.Is(err, phx.ErrSocketClosed) {
			logger.Warn("socket close", "error", err)
		}
	}
	if rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rec.Stop(ctx)
	}
}
