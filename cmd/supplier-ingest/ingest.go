package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hazyhaar/supplier-ingest/pkg/export"
	"github.com/hazyhaar/supplier-ingest/pkg/inbox"
	"github.com/hazyhaar/supplier-ingest/pkg/ledger"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
)

type urlList []string

func (u *urlList) String() string     { return strings.Join(*u, ",") }
func (u *urlList) Set(v string) error { *u = append(*u, v); return nil }

func cmdIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	var urls urlList
	fs.Var(&urls, "url", "download a price list before ingesting (repeatable)")
	format := fs.String("format", "", "export format: csv, json or sqlite (overrides config)")
	outDir := fs.String("out", "", "export directory (overrides config)")
	reportPath := fs.String("report", "", "also write the text report to this file")
	noExport := fs.Bool("no-export", false, "do not write exports")
	noLedger := fs.Bool("no-ledger", false, "do not record the run in the ledger")
	timeout := fs.Duration("timeout", time.Hour, "overall timeout")
	fs.Parse(args)

	e := setup(*cfgPath, *logLevel)
	if *outDir != "" {
		e.cfg.OutputDir = *outDir
	}
	if *format != "" {
		e.cfg.Format = *format
	}
	f, err := export.ParseFormat(e.cfg.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur: %v\n", err)
		os.Exit(1)
	}

	inputs := fs.Args()
	if len(inputs) == 0 && len(urls) == 0 {
		fmt.Println("Usage :")
		fmt.Println("  supplier-ingest ingest [flags] <file|dir|zip>...")
		fmt.Println("  supplier-ingest ingest -url <url> [-url <url>...]")
		fmt.Println()
		fs.PrintDefaults()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	workDir, err := os.MkdirTemp("", "supplier-ingest-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(workDir)

	downloads := make(map[string]string)
	for _, u := range urls {
		fmt.Printf("[download] %s ...\n", u)
		p, err := inbox.Download(ctx, u, filepath.Join(workDir, "downloads"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "[download] ERREUR: %v\n", err)
			continue
		}
		downloads[p] = u
		inputs = append(inputs, p)
	}

	files, err := inbox.Collect(inputs, workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("Aucun fichier à traiter.")
		os.Exit(1)
	}
	fmt.Printf("Import en cours... %d fichier(s), %d worker(s)\n", len(files), e.cfg.Workers)

	rep := e.newRunner(nil).RunBatch(ctx, inbox.Paths(files))

	if !*noExport {
		exportReport(rep, e.cfg.OutputDir, f)
	}
	stats := fileStats(rep)
	stats = relabel(rep, origins(files, downloads), stats)
	if !*noLedger && e.cfg.LedgerDB != "" {
		if err := recordRun(e.cfg.LedgerDB, rep, stats); err != nil {
			e.logger.Error("ledger", "path", e.cfg.LedgerDB, "error", err)
		}
	}

	fmt.Println()
	rep.WriteText(os.Stdout)
	if *reportPath != "" {
		if err := writeReport(*reportPath, rep); err != nil {
			fmt.Fprintf(os.Stderr, "Erreur rapport: %v\n", err)
		}
	}

	if rep.Failed == len(rep.Files) {
		os.RemoveAll(workDir)
		os.Exit(1)
	}
}

func exportReport(rep *pipeline.Report, dir string, f export.Format) {
	ex := export.NewExporter(dir, f)
	for _, res := range rep.Files {
		if res.Err != nil {
			continue
		}
		out, err := ex.Write(res)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] ERREUR export: %v\n", res.Provider, err)
			continue
		}
		fmt.Printf("[%s] OK -> %s (%d produits)\n", res.Provider, out, len(res.Products))
	}
}

func recordRun(path string, rep *pipeline.Report, stats map[string]ledger.Stat) error {
	l, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()
	return l.RecordRun(rep, stats)
}

func fileStats(rep *pipeline.Report) map[string]ledger.Stat {
	stats := make(map[string]ledger.Stat, len(rep.Files))
	for _, res := range rep.Files {
		if info, err := os.Stat(res.File); err == nil {
			stats[res.File] = ledger.Stat{Size: info.Size(), ModTime: info.ModTime().Unix()}
		}
	}
	return stats
}

// origins maps each local path to the input the user named. Files under a
// download are reported by URL.
func origins(files []inbox.Source, downloads map[string]string) map[string]string {
	m := make(map[string]string, len(files))
	for _, src := range files {
		origin := src.Origin
		for local, u := range downloads {
			if rest, ok := strings.CutPrefix(origin, local); ok {
				origin = u + rest
				break
			}
		}
		m[src.Path] = origin
	}
	return m
}

// relabel replaces work directory paths in rep with their origins so the
// report and the ledger outlive the work directory.
func relabel(rep *pipeline.Report, origins map[string]string, stats map[string]ledger.Stat) map[string]ledger.Stat {
	out := make(map[string]ledger.Stat, len(stats))
	for _, res := range rep.Files {
		origin, ok := origins[res.File]
		if !ok {
			origin = res.File
		}
		if st, ok := stats[res.File]; ok {
			out[origin] = st
		}
		res.File = origin
	}
	return out
}

func writeReport(path string, rep *pipeline.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rep.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
