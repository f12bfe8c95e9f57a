package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/phimhub/phimhub/cache"
	"github.com/phimhub/phimhub/internal/config"
	"github.com/phimhub/phimhub/internal/jobs"
	"github.com/phimhub/phimhub/internal/logging"
	"github.com/phimhub/phimhub/internal/proxy"
	"github.com/phimhub/phimhub/listing"
	"github.com/phimhub/phimhub/phimapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = closeLog() }()

	if !cfg.HasRedis() {
		logger.Error().Msg("REDIS_ADDR is required for the worker")
		return
	}
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	targets, err := jobs.ParseTargets(cfg.WarmTargets)
	if err != nil {
		return err
	}

	transport := phimapi.NewTransport(
		phimapi.WithHTTPClient(&http.Client{Timeout: cfg.Up.Timeout}),
		phimapi.WithRetry(cfg.Up.RetryMax),
		phimapi.WithTransportLogger(logger),
	)
	gw, err := proxy.New(cfg.Up.BaseURL, transport,
		proxy.WithRate(cfg.Up.RatePerSec, cfg.Up.Burst),
		proxy.WithLogger(logger),
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

	// The worker fills the same Redis tag store the api reads from.
	rdb, err := cache.DialRedis(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	svc := listing.NewService(client, cache.NewRedisTagStore(rdb, ""),
		listing.WithTTLs(cfg.TTLs()),
		listing.WithLimits(cfg.Page.DefaultLimit, cfg.Page.MaxLimit),
		listing.WithLogger(logger),
	)

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			jobs.QueueWarm: 5,
			"default":      1,
		},
		Logger: asynqLogger{logger},
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskWarmCatalog, jobs.NewWarmHandler(svc, targets, cfg.WarmConcurrency, logger))

	logger.Info().Int("targets", len(targets)).Msg("worker running")
	return srv.Run(mux)
}

// asynqLogger routes asynq's own logs through zerolog.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
