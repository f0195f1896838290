// Command daxd is the OpenDAX tag server: it parses its configuration,
// builds the dispatcher and its supporting engines, opens the module
// sockets, and serves until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opendax/daxd/internal/adminapi"
	"github.com/opendax/daxd/internal/bus"
	"github.com/opendax/daxd/internal/config"
	"github.com/opendax/daxd/internal/dispatch"
	"github.com/opendax/daxd/internal/retention"
	"github.com/opendax/daxd/internal/retention/flatfile"
	"github.com/opendax/daxd/internal/retention/sqlstore"
	"github.com/opendax/daxd/pkg/daxlog"
)

func main() {
	var cli config.CommandLine
	var flagGops bool
	flag.StringVar(&cli.ConfigFile, "C", "", "path to the `tagserver.conf`-style config file")
	flag.StringVar(&cli.SocketName, "S", "", "override the unix domain `socket` path")
	flag.StringVar(&cli.ServerIP, "I", "", "override the TCP bind `address`")
	flag.BoolVar(&cli.Verbose, "v", false, "run at debug log level")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	var serverPort uint
	flag.UintVar(&serverPort, "P", 0, "override the TCP bind `port`")
	flag.Parse()
	if serverPort != 0 {
		cli.ServerPort = uint16(serverPort)
	}

	cfg, err := config.Init(cli)
	if err != nil {
		daxlog.Fatalf("config: %v", err)
	}
	daxlog.SetLevel(cfg.LogLevel)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			daxlog.Fatalf("gops/agent.Listen failed: %v", err)
		}
	}

	if err := run(cfg); err != nil {
		daxlog.Fatalf("daxd: %v", err)
	}
}

func run(cfg config.Config) error {
	promReg := prometheus.NewRegistry()

	b, err := bus.Start(cfg.NatsEmbeddedPort)
	if err != nil {
		return fmt.Errorf("starting internal bus: %w", err)
	}
	defer b.Close()

	ret, closeBackend, err := openRetention(cfg)
	if err != nil {
		return fmt.Errorf("opening retention backend: %w", err)
	}
	defer closeBackend()

	srv := dispatch.New(cfg, b, ret, promReg)
	if err := srv.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrapping system tags: %w", err)
	}
	if err := ret.Restore(srv.CDTs, srv.Store); err != nil {
		return fmt.Errorf("restoring retained tags: %w", err)
	}
	if err := srv.WireBus(b); err != nil {
		return fmt.Errorf("wiring notification delivery: %w", err)
	}

	listeners, err := srv.Listen()
	if err != nil {
		return fmt.Errorf("opening listeners: %w", err)
	}
	defer listeners.Close()

	admin, err := adminapi.New(cfg.AdminAddr, promReg, srv.Store, srv.StartedAt)
	if err != nil {
		return fmt.Errorf("opening admin surface: %w", err)
	}
	go func() {
		if err := admin.Serve(); err != nil {
			daxlog.Warnf("admin surface stopped: %v", err)
		}
	}()

	go srv.Run()
	go srv.Serve(listeners)

	daxlog.Infof("daxd listening on %s and %s:%d", cfg.SocketName, cfg.ServerIP, cfg.ServerPort)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	daxlog.Infof("daxd shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = admin.Shutdown(ctx)
	listeners.Close()
	srv.Stop()
	return nil
}

// openRetention builds the configured persistence backend and, when it is
// the structured one, its optional scheduled S3 backup job.
func openRetention(cfg config.Config) (*retention.Engine, func(), error) {
	switch cfg.DBDriver {
	case "sqlite3":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, nil, err
		}
		store, err := sqlstore.Open("sqlite3", cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		backend := retention.NewSQLBackend(store)
		eng := retention.NewEngine(backend).WithCDTBackend(backend)

		closeFn := func() { _ = store.Close() }
		if cfg.S3Bucket != "" {
			s3backup, err := sqlstore.NewS3Backup(store, cfg.DBPath, sqlstore.S3BackupConfig{
				Bucket:   cfg.S3Bucket,
				Region:   cfg.S3Region,
				Endpoint: cfg.S3Endpoint,
				Every:    cfg.S3BackupEvery,
			})
			if err != nil {
				_ = store.Close()
				return nil, nil, err
			}
			s3backup.Start()
			closeFn = func() {
				s3backup.Stop()
				_ = store.Close()
			}
		}
		return eng, closeFn, nil

	case "flatfile", "":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, nil, err
		}
		store, err := flatfile.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		backend := retention.NewFlatfileBackend(store)
		eng := retention.NewEngine(backend)
		return eng, func() { _ = store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown dbdriver %q", cfg.DBDriver)
	}
}
