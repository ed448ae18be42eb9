// Command erisfuse mounts the name registry as a read-only FUSE
// filesystem, decoding content from a block store on demand.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/sirupsen/logrus"

	"eris/internal/config"
	"eris/internal/fusefs"
	"eris/internal/namespace"
	"eris/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	var dir string
	flag.StringVar(&dir, "dir", "", "Directory of a local block store (instead of -config)")
	var url string
	flag.StringVar(&url, "url", "", "URL of a block store service (instead of -config)")
	var names string
	flag.StringVar(&names, "names", "", "Directory of the name registry")
	var mountpoint string
	flag.StringVar(&mountpoint, "mountpoint", "", "Directory to mount on (overrides the configuration)")
	flag.Parse()

	logger := logrus.New()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	storeCfg := config.StoreConfig{}
	switch {
	case configPath != "":
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
		if names == "" {
			names = cfg.FUSE.Namespace
		}
		if mountpoint == "" {
			mountpoint = cfg.FUSE.Mountpoint
		}
	case dir != "":
		storeCfg = config.StoreConfig{Kind: "badger", Path: dir}
	case url != "":
		storeCfg = config.StoreConfig{Kind: "http", URL: url}
	default:
		logger.Fatal("one of -config, -dir or -url is required")
	}
	if names == "" {
		logger.Fatal("a name registry directory is required (-names or fuse.namespace)")
	}
	if mountpoint == "" {
		logger.Fatal("a mountpoint is required (-mountpoint or fuse.mountpoint)")
	}

	blocks, err := store.FromConfig(ctx, storeCfg)
	if err != nil {
		logger.WithError(err).Fatal("failed to open block store")
	}
	defer blocks.Close()

	ns, err := namespace.NewFileSystemNamespace(names, 5*time.Minute)
	if err != nil {
		logger.WithError(err).Fatal("failed to open name registry")
	}
	defer ns.Close()

	server, err := fs.Mount(mountpoint, fusefs.NewRoot(blocks, ns), fusefs.MountOptions())
	if err != nil {
		logger.WithError(err).Fatalf("failed to mount on %s", mountpoint)
	}
	logger.WithField("mountpoint", mountpoint).Info("mounted")

	go func() {
		<-ctx.Done()
		if err := server.Unmount(); err != nil {
			logger.WithError(err).Warn("unmount failed, try: fusermount -u " + mountpoint)
		}
	}()

	server.Wait()
	logger.Info("shut down")
}
