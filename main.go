package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"speech-presenter/cmd"
	"speech-presenter/internal/chord"
	"speech-presenter/internal/clock"
	"speech-presenter/internal/controller"
	"speech-presenter/internal/performance"
	"speech-presenter/internal/platform/config"
	"speech-presenter/internal/platform/logger"
	"speech-presenter/internal/platform/metrics"
	"speech-presenter/internal/remote"
	"speech-presenter/internal/server"
	"speech-presenter/pkg/deps"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// ─── Step 1: Load .env, then parse CLI arguments ───
	if err := config.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "[WARN] .env:", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		cmd.PrintUsageAndExit()
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	// ─── Step 2: Setup context with signal handling ───
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("presenter stopped", "error", err)
		os.Exit(1)
	}
	log.Info("presenter stopped")
}

func run(ctx context.Context, cfg *cmd.Config, log *slog.Logger) error {
	// ─── Step 3: Preflight checks (script loadable, hub backend reachable) ───
	registry := performance.DefaultRegistry()
	var perf *performance.Performance

	checker := deps.NewChecker()
	checker.Add("script", func(ctx context.Context) error {
		p, err := registry.LoadWith(ctx, cfg.Loader, cfg.Script)
		if err != nil {
			return err
		}
		perf = p
		return nil
	})

	var transport remote.Transport
	switch cfg.Transport {
	case cmd.TransportRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		checker.Add("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		transport = remote.NewRedisTransport(client, cfg.RedisPrefix, log, remote.EventUpdateCount)
	default:
		transport = remote.NewSignalRTransport(cfg.HubURL, remote.SignalROptions{
			SkipNegotiation: cfg.SkipNegotiation,
			Logger:          log,
		})
	}

	if err := checker.CheckAndLog(ctx, log); err != nil {
		return err
	}
	log.Info("performance loaded",
		"performance_id", perf.ID,
		"title", perf.Title,
		"segments", perf.Len(),
		"transport", cfg.Transport,
	)

	// ─── Step 4: Wire channel, clock, controller and status store ───
	m := metrics.New()
	channel := remote.NewChannel(transport, log)
	store := server.NewStore(perf)

	ctl := controller.New(ctx, perf,
		clock.New(clock.WithInterval(cfg.TickInterval)),
		channel,
		controller.WithCallbacks(store.Callbacks()),
		controller.WithLogger(log),
		controller.WithObserver(m),
	)

	channel.OnStateChange(func(connected bool) {
		ctl.SetConnected(connected)
		store.SetConnected(connected)
		m.SetHubConnected(connected)
	})
	channel.Subscribe(remote.EventUpdateCount, func(payload string) {
		n, err := store.UpdateCount(payload)
		if err != nil {
			log.Debug("audience update without count", "payload", payload, "error", err)
			return
		}
		m.SetAudience(float64(n))
	})

	// ─── Step 5: Serve the control API and run until signalled ───
	feed := server.NewFeed(store, log)
	api := server.NewAPI(ctl, channel, chord.NewDetector(), store, m, log)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.SetupRouter(api, feed, log, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("control API listening", "addr", srv.Addr, "session_id", store.Status().SessionID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.AutoConnect {
		g.Go(func() error {
			// a failed connect leaves the presenter up; /hub/connect retries
			if err := channel.Connect(gctx); err != nil {
				log.Warn("initial hub connect failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		feed.Close()
		err := srv.Shutdown(shutdownCtx)
		if derr := channel.Disconnect(shutdownCtx); derr != nil {
			log.Warn("hub disconnect failed", "error", derr)
		}
		return err
	})

	return g.Wait()
}
