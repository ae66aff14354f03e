package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/supplier-ingest/pkg/ledger"
)

func cmdProfiles(args []string) {
	fs := flag.NewFlagSet("profiles", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	detect := fs.String("detect", "", "print the profile matching this file name")
	fs.Parse(args)

	e := setup(*cfgPath, *logLevel)
	if *detect != "" {
		p, err := e.reg.Detect(*detect)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Erreur: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(p.ID)
		return
	}

	fmt.Println("Profils fournisseurs :")
	fmt.Println()
	for _, info := range e.reg.List() {
		mode := "colonne"
		if info.CategoryIsRow {
			mode = "ligne"
		}
		fmt.Printf("  %-15s  %-40s  catégorie=%-7s  marge=%.2f\n", info.ID, info.Detector, mode, info.DefaultMargin)
	}
}

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	cfgPath, logLevel := commonFlags(fs)
	limit := fs.Int("limit", 20, "number of runs to list")
	runID := fs.String("run", "", "list the files of one run")
	fs.Parse(args)

	e := setup(*cfgPath, *logLevel)
	l, err := ledger.Open(e.cfg.LedgerDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur ouverture ledger: %v\n", err)
		os.Exit(1)
	}
	defer l.Close()

	if *runID != "" {
		files, err := l.ListFiles(*runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Erreur: %v\n", err)
			os.Exit(1)
		}
		for _, f := range files {
			status := f.Status
			if f.Error != nil {
				status += ": " + *f.Error
			}
			fmt.Printf("  %-40s  %-15s  produits=%-5d lignes=%-5d ignorées=%-4d  %s\n",
				f.Path, f.Provider, f.Products, f.TotalRows, f.SkippedRows, status)
		}
		return
	}

	runs, err := l.ListRuns(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erreur: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("Aucun import enregistré.")
		return
	}
	for _, r := range runs {
		started := time.Unix(r.StartedAt, 0).Format("2006-01-02 15:04:05")
		fmt.Printf("  %s  %s  fichiers=%d (échecs %d)  produits=%d\n", r.RunID, started, r.Files, r.Failed, r.Products)
	}
}
