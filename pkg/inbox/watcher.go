package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hazyhaar/supplier-ingest/pkg/ledger"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/hazyhaar/supplier-ingest/pkg/sheet"
)

// Watcher watches a directory and ingests the spreadsheets the ledger has not
// seen with the same size and modification time.
type Watcher struct {
	dir      string
	runner   *pipeline.Runner
	ledger   *ledger.Ledger
	logger   *slog.Logger
	interval time.Duration

	// OnReport, when set, is called after every run that processed files.
	OnReport func(*pipeline.Report)
}

// NewWatcher creates a Watcher that scans dir every interval.
func NewWatcher(dir string, runner *pipeline.Runner, l *ledger.Ledger, logger *slog.Logger, interval time.Duration) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, runner: runner, ledger: l, logger: logger, interval: interval}
}

// settleDelay is how long the directory must stay quiet after a change
// event before a scan starts, so files still being copied are not read.
var settleDelay = 2 * time.Second

// Start runs an immediate scan then repeats every interval until ctx is
// cancelled. Filesystem events on the directory trigger an extra scan once
// the directory settles; the ticker still runs when events are unavailable.
func (w *Watcher) Start(ctx context.Context) {
	changes := w.notify(ctx)
	w.scanAndLog(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanAndLog(ctx)
		case <-changes:
			settle = time.After(settleDelay)
		case <-settle:
			settle = nil
			w.scanAndLog(ctx)
		}
	}
}

// notify forwards create and write events on supported files. It returns a
// nil channel when the directory cannot be watched.
func (w *Watcher) notify(ctx context.Context) <-chan struct{} {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fs events unavailable, polling only", "error", err)
		return nil
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		w.logger.Warn("fs events unavailable, polling only", "dir", w.dir, "error", err)
		return nil
	}

	out := make(chan struct{}, 1)
	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) || !sheet.Supported(ev.Name) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("fs event error", "dir", w.dir, "error", err)
			}
		}
	}()
	return out
}

func (w *Watcher) scanAndLog(ctx context.Context) {
	if _, err := w.Scan(ctx); err != nil {
		w.logger.Error("inbox scan failed", "dir", w.dir, "error", err)
	}
}

// Scan ingests the new files of the directory once. It returns nil when
// there was nothing to do.
func (w *Watcher) Scan(ctx context.Context) (*pipeline.Report, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var files []string
	stats := make(map[string]ledger.Stat)
	for _, e := range entries {
		if e.IsDir() || !sheet.Supported(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		p := filepath.Join(w.dir, e.Name())
		st := ledger.Stat{Size: info.Size(), ModTime: info.ModTime().Unix()}
		seen, err := w.ledger.Seen(p, st.Size, st.ModTime)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}
		files = append(files, p)
		stats[p] = st
	}
	if len(files) == 0 {
		w.logger.Debug("inbox scan: nothing new", "dir", w.dir)
		return nil, nil
	}
	sort.Strings(files)

	rep := w.runner.RunBatch(ctx, files)
	if ctx.Err() != nil {
		// Cancelled files are retried on the next start.
		return rep, ctx.Err()
	}
	if err := w.ledger.RecordRun(rep, stats); err != nil {
		return rep, fmt.Errorf("record run: %w", err)
	}
	w.logger.Info("inbox scan complete", "dir", w.dir, "run_id", rep.RunID, "files", len(files), "failed", rep.Failed)
	if w.OnReport != nil {
		w.OnReport(rep)
	}
	return rep, nil
}
