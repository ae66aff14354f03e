// Package sheet reads supplier spreadsheets (CSV, XLSX) into raw rows with no
// header assumption, locates the real header row and binds profile columns
// to fixed slots.
package sheet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrLegacyXLS is returned for BIFF .xls workbooks. They are still picked up
// by directory scans so the run reports them instead of skipping them.
var ErrLegacyXLS = fmt.Errorf("%w: legacy .xls workbook, save it as .xlsx", ErrUnsupportedFormat)

// Options tune a reader for one supplier layout.
type Options struct {
	Sheet     string // XLSX sheet name; first sheet when empty or absent
	Delimiter string // CSV delimiter; sniffed when empty
	Encoding  string // CSV encoding label (htmlindex); UTF-8 when empty
}

// Sheet is a grid of raw cell strings in source order.
type Sheet struct {
	Name string
	Rows [][]string
}

// Row is one raw row with its 1-based line number in the source sheet.
type Row struct {
	Line  int
	Cells []string
}

// Blank reports whether every cell of the row is empty after trimming.
func (r Row) Blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Body returns the rows that follow the header row.
func (s *Sheet) Body(header int) []Row {
	if header+1 >= len(s.Rows) {
		return nil
	}
	rows := make([]Row, 0, len(s.Rows)-header-1)
	for i := header + 1; i < len(s.Rows); i++ {
		rows = append(rows, Row{Line: i + 1, Cells: s.Rows[i]})
	}
	return rows
}

// Header returns the row at index i, or nil when out of range.
func (s *Sheet) Header(i int) []string {
	if i < 0 || i >= len(s.Rows) {
		return nil
	}
	return s.Rows[i]
}

// Supported reports whether path has a spreadsheet extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}

// ReadFile reads path with the reader matching its extension.
func ReadFile(path string, opts Options) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, filepath.Base(path), opts)
}

// Read reads r using the format implied by name's extension. A name without
// extension (an upload, a download with no suffix) is sniffed from content.
func Read(r io.Reader, name string, opts Options) (*Sheet, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		br := bufio.NewReaderSize(r, sniffLen)
		head, _ := br.Peek(sniffLen)
		ext = sniff(head)
		r = br
	}
	switch ext {
	case ".csv", ".txt":
		return ReadCSV(r, opts)
	case ".xlsx", ".xlsm":
		return ReadXLSX(r, opts)
	case ".xls":
		return nil, ErrLegacyXLS
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

const sniffLen = 3072

// sniff maps detected content to the extension of the reader to use.
func sniff(head []byte) string {
	for mt := mimetype.Detect(head); mt != nil; mt = mt.Parent() {
		switch {
		case mt.Is("application/vnd.ms-excel"):
			return ".xls"
		case mt.Is("application/zip"):
			return ".xlsx"
		case mt.Is("text/plain"):
			return ".csv"
		}
	}
	return ""
}
