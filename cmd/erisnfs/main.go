// Command erisnfs serves the name registry as a read-only NFSv3
// export, decoding content from a block store on demand.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"eris/internal/config"
	"eris/internal/erisfs"
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
	var address string
	flag.StringVar(&address, "address", "", "Address to listen on (overrides the configuration)")
	var handleLimit int
	flag.IntVar(&handleLimit, "handles", 1024, "Number of file handles to keep cached")
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
			names = cfg.NFS.Namespace
		}
		if address == "" {
			address = cfg.NFS.Address
		}
	case dir != "":
		storeCfg = config.StoreConfig{Kind: "badger", Path: dir}
	case url != "":
		storeCfg = config.StoreConfig{Kind: "http", URL: url}
	default:
		logger.Fatal("one of -config, -dir or -url is required")
	}
	if names == "" {
		logger.Fatal("a name registry directory is required (-names or nfs.namespace)")
	}
	if address == "" {
		address = ":2049"
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

	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.WithError(err).Fatalf("failed to listen on %s", address)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	logger.WithField("port", port).Info("serving NFS")
	logger.Infof("mount with: mount -t nfs -o nolock,vers=3,tcp,port=%d,mountport=%d localhost:/ <mountpoint>", port, port)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	handler := nfshelper.NewNullAuthHandler(erisfs.New(blocks, ns))
	cached := nfshelper.NewCachingHandler(handler, handleLimit)
	if err := nfs.Serve(listener, cached); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		logger.WithError(err).Fatal("NFS server failed")
	}
	logger.Info("shut down")
}
