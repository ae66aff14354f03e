// Package inbox turns user inputs (files, directories, zip archives, URLs)
// into the list of price-list files a batch should process, and polls an
// inbox directory for new ones.
package inbox

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/supplier-ingest/pkg/sheet"
)

// retryBackoff returns the wait before a download attempt (attempt >= 1).
var retryBackoff = func(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Download fetches rawURL into destDir with retries and returns the local
// path. The file keeps the base name of the URL path so that provider
// detection still works on it.
func Download(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("url %s has no file name", rawURL)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, name)
	if err := downloadFile(ctx, rawURL, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// downloadFile writes into dest+".part" and renames it on success, so a
// watched inbox never sees a half-written price list.
func downloadFile(ctx context.Context, rawURL, dest string) error {
	client := &http.Client{Timeout: 5 * time.Minute}
	part := dest + ".part"

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff(attempt)):
			}
		}
		lastErr = fetch(ctx, client, rawURL, part)
		if lastErr == nil {
			return os.Rename(part, dest)
		}
		os.Remove(part)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("download %s failed after 3 attempts: %w", rawURL, lastErr)
}

func fetch(ctx context.Context, client *http.Client, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Source is one file to process and where it came from. Origin is the path
// the user gave, or archive!entry for a file extracted from a zip; it stays
// meaningful after the work directory is removed.
type Source struct {
	Path   string
	Origin string
}

// Collect expands inputs into processable files. Directories are walked
// recursively and zip archives are extracted under workDir; in both cases
// only supported spreadsheet files are kept. A plain file named explicitly
// is kept as is so the pipeline can report why it fails.
func Collect(inputs []string, workDir string) ([]Source, error) {
	var files []Source
	archives := make(map[string]bool)
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", in, err)
		}
		switch {
		case info.IsDir():
			found, err := walkDir(in)
			if err != nil {
				return nil, err
			}
			for _, p := range found {
				files = append(files, Source{Path: p, Origin: p})
			}
		case isZip(in):
			dest := filepath.Join(workDir, strings.TrimSuffix(uniqueName(filepath.Base(in), archives), filepath.Ext(in)))
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, err
			}
			extracted, err := unzipFile(in, dest)
			if err != nil {
				return nil, err
			}
			files = append(files, extracted...)
		default:
			files = append(files, Source{Path: in, Origin: in})
		}
	}
	return files, nil
}

// Paths returns the local paths of sources.
func Paths(sources []Source) []string {
	paths := make([]string, len(sources))
	for i, src := range sources {
		paths[i] = src.Path
	}
	return paths
}

func walkDir(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && sheet.Supported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func isZip(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".zip")
}

// unzipFile extracts the spreadsheets of a zip archive flat into destDir
// and returns them in archive order. Entry directories are dropped,
// so names never escape destDir; entries sharing a base name get -2, -3...
// before the extension. Other entries, including __MACOSX and dot-file
// metadata, are skipped.
func unzipFile(src, destDir string) ([]Source, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var sources []Source
	used := make(map[string]bool)
	for _, f := range r.File {
		base := filepath.Base(f.Name)
		if f.FileInfo().IsDir() || strings.HasPrefix(base, ".") ||
			strings.Contains(f.Name, "__MACOSX/") || !sheet.Supported(base) {
			continue
		}
		destPath := filepath.Join(destDir, uniqueName(base, used))
		if err := extract(f, destPath); err != nil {
			return nil, err
		}
		sources = append(sources, Source{Path: destPath, Origin: src + "!" + f.Name})
	}
	return sources, nil
}

func extract(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// uniqueName returns base, or base with a -N suffix before the extension
// when an earlier entry already took it. Comparison ignores case.
func uniqueName(base string, used map[string]bool) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s-%d%s", stem, n, ext)
	}
	used[strings.ToLower(name)] = true
	return name
}
