// Command erisrun starts the daemons listed in a configuration file
// and keeps them running.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"eris/internal/config"
	"eris/internal/launch"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "eris.yaml", "Path to the YAML configuration file")
	var maxBackoff time.Duration
	flag.DurationVar(&maxBackoff, "max-backoff", 5*time.Minute, "Time to keep exponential back-off before switching to the retry interval")
	var retryInterval time.Duration
	flag.DurationVar(&retryInterval, "retry-interval", 10*time.Minute, "Time to wait between restart attempts once back-off is exhausted")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.WithError(err).Fatal("invalid log level")
		}
		logger.SetLevel(level)
	}
	if len(cfg.Services) == 0 {
		logger.Fatal("configuration lists no services")
	}

	runner, err := launch.NewRunner(launch.RunnerConfig{
		MaxBackoffDuration: maxBackoff,
		RetryInterval:      retryInterval,
		Config:             cfg,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize runner")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.WithField("config", configPath).Info("starting services")
	runner.WithLogger(logger).Start(ctx)
	logger.Info("all services stopped")
}
