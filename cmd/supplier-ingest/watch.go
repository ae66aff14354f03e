package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/supplier-ingest/pkg/export"
	"github.com/hazyhaar/supplier-ingest/pkg/inbox"
	"github.com/hazyhaar/supplier-ingest/pkg/ledger"
	"github.com/hazyhaar/supplier-ingest/pkg/metrics"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
)

func cmdWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	dir := fs.String("dir", "", "inbox directory (overrides config)")
	once := fs.Bool("once", false, "scan once and exit")
	fs.Parse(args)

	e := setup(*cfgPath, *logLevel)
	if *dir != "" {
		e.cfg.Watch.Dir = *dir
	}
	f, err := export.ParseFormat(e.cfg.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur: %v\n", err)
		os.Exit(1)
	}

	l, err := ledger.Open(e.cfg.LedgerDB)
	if err != nil {
		e.logger.Error("open ledger", "path", e.cfg.LedgerDB, "error", err)
		os.Exit(1)
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if e.cfg.MetricsAddr != "" {
		go serveMetrics(ctx, e.cfg.MetricsAddr, m, e.logger)
	}

	w := inbox.NewWatcher(e.cfg.Watch.Dir, e.newRunner(m), l, e.logger, e.cfg.Watch.Interval)
	w.OnReport = func(rep *pipeline.Report) {
		exportReport(rep, e.cfg.OutputDir, f)
	}

	if *once {
		if _, err := w.Scan(ctx); err != nil {
			e.logger.Error("inbox scan failed", "dir", e.cfg.Watch.Dir, "error", err)
			os.Exit(1)
		}
		return
	}

	e.logger.Info("watching inbox", "dir", e.cfg.Watch.Dir, "interval", e.cfg.Watch.Interval)
	w.Start(ctx)
	e.logger.Info("watch stopped")
}
