// Package pipeline runs supplier files end to end: detection, header
// resolution, row classification, normalization, attribute extraction and
// category inference, then duplicate detection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hazyhaar/supplier-ingest/pkg/attr"
	"github.com/hazyhaar/supplier-ingest/pkg/catalog"
	"github.com/hazyhaar/supplier-ingest/pkg/category"
	"github.com/hazyhaar/supplier-ingest/pkg/classify"
	"github.com/hazyhaar/supplier-ingest/pkg/dedupe"
	"github.com/hazyhaar/supplier-ingest/pkg/profile"
	"github.com/hazyhaar/supplier-ingest/pkg/sheet"
	"golang.org/x/sync/errgroup"
)

// Observer receives one call per processed file. Implementations must be
// safe for concurrent use.
type Observer interface {
	FileProcessed(res *FileResult)
}

// Options configure a Runner. Zero values select the defaults.
type Options struct {
	Workers            int
	CategoryThreshold  float64
	DuplicateThreshold float64
	Compare            string // similarity comparison mode, see normalize.Get
	Patterns           []attr.PatternSpec
	Rules              []category.Rule
	Logger             *slog.Logger
	Observer           Observer
}

// Runner holds the immutable collaborators shared by every file. Per-file
// state (seen codes, classifier state) lives in a single ProcessSheet call.
type Runner struct {
	registry   *profile.Registry
	extractor  *attr.Extractor
	inferencer *category.Inferencer
	detector   *dedupe.Detector
	workers    int
	logger     *slog.Logger
	observer   Observer
}

// New builds a Runner over reg.
func New(reg *profile.Registry, opts Options) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	extractor := attr.Default()
	if len(opts.Patterns) > 0 {
		var err error
		if extractor, err = attr.New(opts.Patterns); err != nil {
			return nil, fmt.Errorf("attribute patterns: %w", err)
		}
	}
	inferencer, err := category.New(category.Options{
		Rules:     opts.Rules,
		Threshold: opts.CategoryThreshold,
		Normalize: opts.Compare,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	detector, err := dedupe.New(dedupe.Options{
		Threshold: opts.DuplicateThreshold,
		Normalize: opts.Compare,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		registry:   reg,
		extractor:  extractor,
		inferencer: inferencer,
		detector:   detector,
		workers:    workers,
		logger:     logger,
		observer:   opts.Observer,
	}, nil
}

// Registry returns the profile registry the runner detects against.
func (r *Runner) Registry() *profile.Registry {
	return r.registry
}

// FileResult is the outcome of one file. Err is set when the file was
// aborted (unknown provider, unreadable, missing required column, cancelled);
// Products is then empty.
type FileResult struct {
	File       string                  `json:"file"`
	Provider   string                  `json:"provider,omitempty"`
	Sheet      string                  `json:"sheet,omitempty"`
	HeaderRow  int                     `json:"header_row"`
	Products   []*catalog.Product      `json:"products"`
	Duplicates []catalog.DuplicatePair `json:"duplicates"`
	Summary    catalog.Summary         `json:"summary"`
	Duration   time.Duration           `json:"duration_ns"`
	Err        error                   `json:"-"`
	Error      string                  `json:"error,omitempty"`
}

// Failed returns the error that aborted the file, or nil.
func (res *FileResult) Failed() error {
	return res.Err
}

func (res *FileResult) fail(err error) *FileResult {
	res.Err = err
	res.Error = err.Error()
	res.Products = nil
	res.Duplicates = nil
	return res
}

// ProcessFile detects the provider of path, reads it and runs the pipeline.
func (r *Runner) ProcessFile(ctx context.Context, path string) *FileResult {
	start := time.Now()
	res := &FileResult{File: path, Products: []*catalog.Product{}}
	defer r.finish(res, start)

	p, err := r.registry.Detect(path)
	if err != nil {
		return res.fail(err)
	}
	res.Provider = p.ID

	s, err := sheet.ReadFile(path, readOptions(p))
	if err != nil {
		return res.fail(err)
	}
	r.processSheet(ctx, res, p, s)
	return res
}

// Process runs the pipeline over src, using name for detection and format.
func (r *Runner) Process(ctx context.Context, name string, src io.Reader) *FileResult {
	start := time.Now()
	res := &FileResult{File: name, Products: []*catalog.Product{}}
	defer r.finish(res, start)

	p, err := r.registry.Detect(name)
	if err != nil {
		return res.fail(err)
	}
	res.Provider = p.ID

	s, err := sheet.Read(src, filepath.Base(name), readOptions(p))
	if err != nil {
		return res.fail(err)
	}
	r.processSheet(ctx, res, p, s)
	return res
}

// ProcessSheet runs the pipeline over an in-memory sheet with a known profile.
func (r *Runner) ProcessSheet(ctx context.Context, name string, p *profile.Profile, s *sheet.Sheet) *FileResult {
	start := time.Now()
	res := &FileResult{File: name, Provider: p.ID, Products: []*catalog.Product{}}
	defer r.finish(res, start)
	r.processSheet(ctx, res, p, s)
	return res
}

func (r *Runner) processSheet(ctx context.Context, res *FileResult, p *profile.Profile, s *sheet.Sheet) {
	res.Sheet = s.Name
	res.HeaderRow = sheet.ResolveHeader(s.Rows, p.HeaderRow)
	layout, err := sheet.Bind(s.Header(res.HeaderRow), p)
	if err != nil {
		res.fail(err)
		return
	}

	body := s.Body(res.HeaderRow)
	sum := &res.Summary
	sum.TotalRows = len(body)

	classified, skipped := classify.New(layout, p.CategoryIsRow).Classify(body)
	sum.SkippedRows = skipped

	norm := catalog.NewNormalizer(p.ID, p.Margin())
	for _, cr := range classified {
		cand, ok := cr.(classify.ProductCandidate)
		if !ok {
			continue
		}
		prod, failures, err := norm.Normalize(cand)
		switch {
		case errors.Is(err, catalog.ErrMissingIdentity):
			sum.RejectedRows++
			sum.SkippedRows++
			continue
		case errors.Is(err, catalog.ErrDuplicateCode):
			sum.DuplicateCodes++
			sum.SkippedRows++
			r.logger.Debug("duplicate code skipped", "file", res.File, "error", err)
			continue
		}
		sum.CoercionFailures += failures
		res.Products = append(res.Products, prod)
	}

	// Extraction and inference write disjoint product fields.
	var catRes category.Result
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.extractor.ApplyAll(res.Products)
		return nil
	})
	g.Go(func() error {
		catRes = r.inferencer.InferAll(res.Products)
		return nil
	})
	_ = g.Wait()

	dup := r.detector.Detect(res.Products)
	res.Duplicates = dup.Pairs
	if res.Duplicates == nil {
		res.Duplicates = []catalog.DuplicatePair{}
	}

	sum.UncategorizedCount = catRes.Uncategorized
	sum.DuplicatePairsFound = len(dup.Pairs)
	sum.LowConfidence = catRes.LowConfidence + dup.NearMisses
}

func (r *Runner) finish(res *FileResult, start time.Time) {
	res.Duration = time.Since(start)
	if res.Err != nil {
		r.logger.Warn("file aborted", "file", res.File, "provider", res.Provider, "error", res.Err)
	} else {
		r.logger.Info("file processed",
			"file", res.File,
			"provider", res.Provider,
			"products", len(res.Products),
			"total_rows", res.Summary.TotalRows,
			"skipped", res.Summary.SkippedRows,
			"coercion_failures", res.Summary.CoercionFailures,
			"uncategorized", res.Summary.UncategorizedCount,
			"duplicate_pairs", res.Summary.DuplicatePairsFound,
		)
	}
	if r.observer != nil {
		r.observer.FileProcessed(res)
	}
}

func readOptions(p *profile.Profile) sheet.Options {
	return sheet.Options{Sheet: p.Sheet, Delimiter: p.Delimiter, Encoding: p.Encoding}
}
