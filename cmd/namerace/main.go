// Command namerace races for the names listed in its config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/st-keller/namerace"
	"github.com/st-keller/namerace/config"
	"github.com/st-keller/namerace/resolve"
	"github.com/st-keller/namerace/transport"
)

func main() {
	configPath := flag.String("config", "./namerace.toml", "path to config file")
	initConfig := flag.Bool("init", false, "write a default config file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.WriteDefault(*configPath); err != nil {
			log.Fatalf("failed to write default config: %v", err)
		}
		log.Printf("wrote default config to %s", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		if werr := config.WriteDefault(*configPath); werr != nil {
			log.Fatalf("failed to write default config: %v", werr)
		}
		log.Fatalf("%s not found, created a default config; fill it in and run again", *configPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := newLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	won, err := run(ctx, cfg, logr)
	if err != nil {
		logr.Error("Run finished with errors", zap.Error(err))
	}
	if !won {
		stop()
		_ = logr.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) (bool, error) {
	trust, err := transport.LoadTrustStore(cfg.TLS.SystemRoots, cfg.TLS.Roots...)
	if err != nil {
		return false, fmt.Errorf("failed to load trust store: %w", err)
	}
	for _, r := range trust.Expired() {
		logr.Warn("Expired root in trust store", zap.String("subject", r.Subject), zap.String("path", r.Path))
	}

	rc := cfg.RaceConfig()
	rc.RootCAs = trust.Pool()
	rc.Logger = logr
	rc.Tokens = cfg.Credential()
	rc.Resolver, err = releaseResolver(cfg, trust, logr)
	if err != nil {
		return false, err
	}
	if cfg.Race.CheckEligibility {
		httpClient := transport.BuildHTTP2Client(trust.Pool(), cfg.Resolver.Timeout)
		rc.Eligibility = resolve.NewEligibilityChecker(cfg.Resolver.ServicesURL, httpClient, logr)
	}

	client, err := namerace.New(rc)
	if err != nil {
		return false, fmt.Errorf("failed to create client: %w", err)
	}

	reports, err := client.RunQueue(ctx, cfg.Race.Names, cfg.Resolver.PreviousHolder)
	won := false
	for _, r := range reports {
		fields := []zap.Field{
			zap.String("race_id", r.Info.RaceID),
			zap.String("name", r.Info.Name),
			zap.Time("release", r.Release),
			zap.Duration("correction", r.Correction),
			zap.Bool("won", r.Won()),
		}
		for _, s := range r.Latency {
			fields = append(fields, zap.Any("latency_"+s.Target, s))
		}
		logr.Info("Race report", fields...)
		won = won || r.Won()
	}
	return won, err
}

func releaseResolver(cfg *config.Config, trust *transport.TrustStore, logr *zap.Logger) (namerace.ReleaseResolver, error) {
	at, err := cfg.StaticRelease()
	if err != nil {
		return nil, err
	}
	if !at.IsZero() {
		return resolve.Static{At: at}, nil
	}
	httpClient := transport.BuildHTTP2Client(trust.Pool(), cfg.Resolver.Timeout)
	return resolve.NewHTTPResolver(cfg.Resolver.BaseURL, httpClient, logr), nil
}

func newLogger(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
