// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/internal/config"
	"github.com/phimhub/phimhub/internal/http/routes"
	"github.com/phimhub/phimhub/internal/jobs"
	"github.com/phimhub/phimhub/internal/logging"
	"github.com/phimhub/phimhub/internal/proxy"
	"github.com/phimhub/phimhub/internal/revalidate"
	"github.com/phimhub/phimhub/listing"
	"github.com/phimhub/phimhub/phimapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger, closeLog := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = closeLog() }()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api stopped")
		_ = closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Upstream: transport -> gateway -> client
	transport := phimapi.NewTransport(
		phimapi.WithHTTPClient(&http.Client{Timeout: cfg.Up.Timeout}),
		phimapi.WithRetry(cfg.Up.RetryMax),
		phimapi.WithTransportLogger(logger.With().Str("component", "upstream").Logger()),
	)
	gw, err := proxy.New(cfg.Up.BaseURL, transport,
		proxy.WithRate(cfg.Up.RatePerSec, cfg.Up.Burst),
		proxy.WithStaticMaxAge(cfg.Cache.StaticMaxAge),
		proxy.WithLogger(logger.With().Str("component", "proxy").Logger()),
	)
	if err != nil {
		return err
	}
	client, err := phimapi.New(
		phimapi.WithBaseURL(cfg.Up.BaseURL),
		phimapi.WithFetcher(gw),
		phimapi.WithImageCDN(cfg.Up.ImageCDN),
		phimapi.WithDefaultLimit(cfg.Page.DefaultLimit, cfg.Page.MaxLimit),
	)
	if err != nil {
		return err
	}

	// Server cache: Redis when configured so revalidation reaches every instance
	var store cache.TagStore = cache.NewMemoryTagStore(nil)
	revalOpts := []revalidate.Option{revalidate.WithLogger(logger.With().Str("component", "revalidate").Logger())}
	if cfg.HasRedis() {
		rdb, err := cache.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = cache.NewRedisTagStore(rdb, "")

		enq := jobs.NewEnqueuer(cfg.RedisAddr)
		defer enq.Close()
		revalOpts = append(revalOpts, revalidate.WithWarmEnqueuer(enq))
		logger.Info().Str("redis", cfg.RedisAddr).Msg("using redis tag store")
	}

	svc := listing.NewService(client, store,
		listing.WithTTLs(cfg.TTLs()),
		listing.WithLimits(cfg.Page.DefaultLimit, cfg.Page.MaxLimit),
		listing.WithLogger(logger.With().Str("component", "listing").Logger()),
	)

	// Router / server
	s := routes.New(routes.ServerOptions{
		Catalog:     svc,
		Proxy:       gw,
		Revalidator: revalidate.New(store, revalOpts...),
		Cfg:         *cfg,
	})
	h := hlog.NewHandler(logger)(s.Router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("upstream", cfg.Up.BaseURL).Msg("starting api")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
