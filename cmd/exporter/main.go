package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Pipewatch/internal/config/exporter"
	"github.com/NordCoder/Pipewatch/internal/emitter"
	"github.com/NordCoder/Pipewatch/internal/obs"
	"github.com/NordCoder/Pipewatch/internal/repository/gitlab"
	kafkaRepo "github.com/NordCoder/Pipewatch/internal/repository/kafka"
	pg "github.com/NordCoder/Pipewatch/internal/repository/postgres"
	"github.com/NordCoder/Pipewatch/internal/services/exporter"
	"github.com/NordCoder/Pipewatch/internal/services/exporter/repo"
	"github.com/NordCoder/Pipewatch/internal/sink"
	"github.com/NordCoder/Pipewatch/internal/tracker"
	"github.com/NordCoder/Pipewatch/internal/workpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config (optional)")
	flag.Parse()

	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting exporter",
		zap.Int64("group_id", cfg.Source.GroupID),
		zap.Int("tokens", len(cfg.Source.Tokens)),
		zap.Strings("ignored_subgroups", cfg.Source.IgnoredSubgroups),
		zap.Duration("interval", cfg.Poll.Interval),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.Bool("kafka", cfg.Kafka.Enable),
		zap.Bool("archive", cfg.Archive.Enable),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// gitlab
	pool := workpool.New(l, cfg.GitLab.Workers)
	pool.Start(ctx)
	defer func() { _ = pool.Close() }()

	client, err := gitlab.New(cfg.GitLab, nil, pool, l)
	if err != nil {
		l.Fatal("gitlab client", zap.Error(err))
	}
	tokens := gitlab.NewTokens(client, cfg.Source.Tokens, cfg.GitLab.TokenAttempts, l)

	// sinks
	registry := emitter.New()
	var optional []sink.Named

	if cfg.Kafka.Enable {
		prod := kafkaRepo.BootstrapProducer(ctx, cfg.Kafka, l)
		defer func() { _ = prod.Close() }()
		optional = append(optional, kafkaRepo.NewRecordEvents(prod))
	}

	if cfg.Archive.Enable {
		if cfg.Archive.AutoMigrate {
			if err := pg.Migrate(ctx, cfg.Archive.DB.URL); err != nil {
				l.Fatal("archive migrate", zap.Error(err))
			}
		}
		db, err := pg.New(ctx, cfg.Archive.DB)
		if err != nil {
			l.Fatal("archive db connect", zap.Error(err))
		}
		defer db.Close()
		optional = append(optional, pg.NewRecordRepo(db, pg.NewTransactor(db, l)))
	}

	fanout := sink.NewFanout(l, registry, optional...)

	// wiring
	scanner := tracker.NewScanner(l)
	scanner.OverlapPages = cfg.Poll.OverlapPages
	scanner.MaxAge = cfg.Poll.WatchMaxAge

	uc := exporter.NewUC(l, tracker.NewState(), scanner, repo.Tokens{T: tokens}, fanout,
		cfg.Source.GroupID, cfg.Source.IgnoredSubgroups)
	runner := exporter.New(l, uc, cfg.Poll.Interval)

	// http
	srv := obs.BootstrapHTTPServer(cfg.Server.AsServerConfig(),
		registry.Handler(prometheus.DefaultGatherer), runner.Healthy, l)

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("exporter started", zap.Strings("sinks", fanout.Names()))

	// loop
	exitCode := 0
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner stopped", zap.Error(err))
			exitCode = 1
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), orDefault(cfg.Server.GracefulTimeout, 3*time.Second))
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		l.Warn("http shutdown", zap.Error(err))
	}
	l.Info("bye")
	if exitCode != 0 {
		stop()
		_ = l.Sync()
		os.Exit(exitCode)
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
