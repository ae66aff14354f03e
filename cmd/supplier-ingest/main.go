package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hazyhaar/supplier-ingest/pkg/api"
	"github.com/hazyhaar/supplier-ingest/pkg/config"
	"github.com/hazyhaar/supplier-ingest/pkg/metrics"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/hazyhaar/supplier-ingest/pkg/profile"
	"github.com/mark3labs/mcp-go/server"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		cmdIngest(os.Args[2:])
	case "watch":
		cmdWatch(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "profiles":
		cmdProfiles(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: supplier-ingest <command> [flags]

Commands:
  ingest    Normalize price-list files, directories, zips or URLs
  watch     Poll an inbox directory and ingest new files
  serve     Start the HTTP API (and /metrics)
  mcp       Serve the ingestion tools over MCP stdio
  profiles  List supplier profiles or detect one for a file name
  runs      Show the ingestion ledger
`)
}

// env is what every subcommand needs once configuration is loaded.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	reg    *profile.Registry
}

func setup(cfgPath, logLevel string) env {
	cfg, found, err := config.Load(cfgPath)
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := config.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if !found {
		logger.Debug("no config file, using defaults", "path", cfgPath)
	}

	reg, err := profile.Load(cfg.ProfilesFile)
	if err != nil {
		logger.Error("load profiles", "path", cfg.ProfilesFile, "error", err)
		os.Exit(1)
	}
	logger.Debug("profiles loaded", "count", reg.Count())
	return env{cfg: cfg, logger: logger, reg: reg}
}

func (e env) newRunner(obs pipeline.Observer) *pipeline.Runner {
	runner, err := pipeline.New(e.reg, e.cfg.PipelineOptions(e.logger, obs))
	if err != nil {
		e.logger.Error("invalid pipeline options", "error", err)
		os.Exit(1)
	}
	return runner
}

func commonFlags(fs *flag.FlagSet) (cfgPath, logLevel *string) {
	cfgPath = fs.String("config", "config.yaml", "path to config file")
	logLevel = fs.String("log-level", "", "override log level (debug, info, warn, error)")
	return
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	e := setup(*cfgPath, *logLevel)
	if *addr != "" {
		e.cfg.Addr = *addr
	}

	m := metrics.New()
	router := newLiveRouter(func(reg *profile.Registry) http.Handler {
		next := e
		next.reg = reg
		return api.NewRouter(next.newRunner(m), e.logger, m.Handler())
	})
	router.load(e.reg)
	profiles := e.reg.Count()

	srv := &http.Server{
		Addr:              e.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// SIGHUP: reload profiles.
	// SIGINT/SIGTERM: graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			e.logger.Info("SIGHUP received, reloading profiles")
			reg, err := profile.Load(e.cfg.ProfilesFile)
			if err != nil {
				e.logger.Error("reload failed", "error", err)
				continue
			}
			router.load(reg)
			e.logger.Info("profiles reloaded", "count", reg.Count())
		}
	}()

	if e.cfg.MetricsAddr != "" {
		go serveMetrics(ctx, e.cfg.MetricsAddr, m, e.logger)
	}

	go func() {
		e.logger.Info("supplier-ingest listening", "addr", e.cfg.Addr, "profiles", profiles)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	e.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// liveRouter serves the handler built for the most recently loaded profile
// registry. Reloads never touch a handler that is serving requests.
type liveRouter struct {
	current atomic.Pointer[http.Handler]
	build   func(*profile.Registry) http.Handler
}

func newLiveRouter(build func(*profile.Registry) http.Handler) *liveRouter {
	return &liveRouter{build: build}
}

func (l *liveRouter) load(reg *profile.Registry) {
	h := l.build(reg)
	l.current.Store(&h)
}

func (l *liveRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*l.current.Load()).ServeHTTP(w, r)
}

// serveMetrics exposes /metrics on its own listener until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", "error", err)
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	e := setup(*cfgPath, *logLevel)
	srv := server.NewMCPServer("supplier-ingest", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	api.RegisterMCPTools(srv, e.newRunner(nil), e.logger)

	e.logger.Info("mcp stdio server starting", "profiles", e.reg.Count())
	if err := server.ServeStdio(srv); err != nil {
		e.logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
