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

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/nulltea/latpir/core"
	"github.com/nulltea/latpir/fhe"
	"github.com/nulltea/latpir/pir"
	"github.com/nulltea/latpir/service"
	"github.com/nulltea/latpir/store"
)

type pirServer interface {
	service.Backend
	Load(ctx context.Context, params pir.Parameters, records [][]byte) error
}

func newPIRServer(cfg Config, log logr.Logger) pirServer {
	opts := []pir.ServerOption{pir.WithLogger(log.WithName("pir")), pir.WithWorkers(cfg.Workers)}
	if cfg.Backend == "plain" {
		log.Info("serving with the plain backend, queries are NOT private")
		return pir.NewServer(pir.NewPlainScheme, opts...)
	}
	return pir.NewServer(fhe.NewScheme, opts...)
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := core.NewLogger("pir-server", cfg.Verbosity)
	if err := run(cfg, log); err != nil {
		log.Error(err, "server failed")
		os.Exit(1)
	}
}

func run(cfg Config, log logr.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Trace {
		shutdown, err := core.InstallStdoutTracer()
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	scope, closer := core.NewRootScope("pir", log, cfg.MetricsInterval)
	defer closer.Close()

	srv := newPIRServer(cfg, log)
	reloader := service.NewReloader(cfg.Database, func(ctx context.Context, db *store.Database) error {
		log.Info("loading database", "path", cfg.Database, "records", len(db.Records),
			"size", humanize.Bytes(uint64(len(db.Records)*db.RecordSize)))
		return srv.Load(ctx, cfg.Parameters(len(db.Records), db.RecordSize), db.Records)
	}, log.WithName("reload"), scope)
	if _, err := reloader.Reload(ctx); err != nil {
		return fmt.Errorf("initial load of %s: %w", cfg.Database, err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		if err := reloader.Run(ctx, hup); err != nil {
			log.Error(err, "database watcher stopped")
		}
	}()

	handler, err := service.NewHandler(service.NewPIRService(srv,
		service.WithLogger(log.WithName("rpc")),
		service.WithScope(scope)))
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/rpc", handler)
	httpServer := &http.Server{Addr: cfg.Listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("serving", "listen", cfg.Listen, "backend", cfg.Backend)
	err = httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		log.Info("server shutdown")
		return nil
	}
	return err
}
