// Command erisd serves a block store over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"eris/internal/config"
	"eris/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	var dir string
	flag.StringVar(&dir, "dir", "", "Directory for a local block store (instead of -config)")
	var address string
	flag.StringVar(&address, "address", "", "Address to listen on (overrides the configuration)")
	var gcInterval time.Duration
	flag.DurationVar(&gcInterval, "gc-interval", 30*time.Minute, "Interval between store garbage collection runs (0 to disable)")
	flag.Parse()

	logger := logrus.New()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	storeCfg := config.StoreConfig{Kind: "memory"}
	if configPath != "" {
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
		storeCfg = cfg.Store
		if address == "" {
			address = cfg.HTTP.Address
		}
	} else if dir != "" {
		storeCfg = config.StoreConfig{Kind: "badger", Path: dir}
	} else {
		logger.Warn("no -config or -dir given, blocks are stored in memory only")
	}
	if address == "" {
		address = ":0"
	}

	blocks, err := store.FromConfig(ctx, storeCfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to open block store")
	}
	defer blocks.Close()

	// Periodically reclaim space from deleted value log segments.
	inner := blocks
	if c, ok := inner.(*store.Cache); ok {
		inner = c.Unwrap()
	}
	if b, ok := inner.(*store.Badger); ok && gcInterval > 0 {
		go runGC(ctx, logger, b, gcInterval)
	}

	server := store.NewServer(blocks).WithLogger(logger)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.WithError(err).Fatalf("failed to listen on %s", address)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port
	logger.WithFields(logrus.Fields{
		"port":  actualPort,
		"store": storeCfg.Kind,
	}).Info("listening")

	srv := &http.Server{Handler: server}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("server failed")
	}
	logger.Info("shut down")
}

// runGC loops the store's garbage collector until it reports nothing
// left to rewrite, once per interval.
func runGC(ctx context.Context, logger *logrus.Logger, b *store.Badger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rewritten := 0
			for {
				again, err := b.RunGC()
				if err != nil {
					logger.WithError(err).Warn("store garbage collection failed")
					break
				}
				if !again {
					break
				}
				rewritten++
			}
			if rewritten > 0 {
				logger.Info(fmt.Sprintf("garbage collection rewrote %d value log segments", rewritten))
			}
		}
	}
}
