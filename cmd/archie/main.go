// Command archie serves a demo System over HTTP and CloudEvents.
//
//	archie -config archie.toml
//
//	curl localhost:8080/healthcheck
//	curl localhost:8080/adam
//	curl -X POST localhost:8080/greetings -H 'Content-Type: application/json' -d '{"name":"eve"}'
//	curl localhost:8080/_system/doc
//	curl -X POST localhost:8080/_events \
//	  -H "Ce-Id: 1" -H "Ce-Type: HEALTHCHECK" -H "Ce-Source: /curl" -H "Ce-Specversion: 1.0"
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

	"golang.org/x/sync/errgroup"

	"archie/api"
	"archie/cloudevent"
	"archie/config"
	"archie/pkg"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "archie: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := &pkg.Metrics{}
	sys := newSystem(logger, metrics, cfg.SystemOptions(logger)...)

	handler, err := newHandler(ctx, cfg, sys, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "system", sys.Name(), "patterns", sys.UsesPatterns())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	stats := metrics.Stats()
	logger.Info("stopped",
		"dispatched", stats.Dispatched,
		"failed", stats.Failed,
		"panics", stats.Panics,
		"expired", stats.Expired,
		"avgDuration", stats.AvgDuration.String(),
		"maxDuration", stats.MaxDuration.String())
	return err
}

// newHandler mounts the CloudEvents receiver, when configured, next to the
// HTTP adapter's catch-all action route.
func newHandler(ctx context.Context, cfg config.Config, sys *pkg.System, logger *slog.Logger) (http.Handler, error) {
	adapter := api.New(sys,
		api.WithTimeout(cfg.HTTP.Timeout.Std()),
		api.WithLogger(logger),
		api.WithIntrospectionPrefix(cfg.HTTP.IntrospectionPrefix),
	)

	if cfg.CloudEvents.Path == "" {
		return adapter.Handler(), nil
	}

	receiver := cloudevent.NewReceiver(sys,
		cloudevent.WithSource(cfg.CloudEvents.Source),
		cloudevent.WithTimeout(cfg.HTTP.Timeout.Std()),
		cloudevent.WithLogger(logger),
	)
	ce, err := cloudevent.NewHTTPHandler(ctx, receiver)
	if err != nil {
		return nil, err
	}
	adapter.Router().Handle(cfg.CloudEvents.Path, ce)

	return adapter.Handler(), nil
}
