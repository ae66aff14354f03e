package sheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ReadCSV reads every record of a CSV stream as a raw row.
func ReadCSV(r io.Reader, opts Options) (*Sheet, error) {
	// Transcode non-UTF-8 encodings declared by the profile.
	var reader io.Reader = r
	if enc := opts.Encoding; enc != "" && !isUTF8(enc) {
		e, err := htmlindex.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", enc, err)
		}
		reader = transform.NewReader(r, e.NewDecoder())
	}

	br := bufio.NewReader(reader)
	// Excel writes a UTF-8 BOM on "CSV UTF-8" exports.
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}

	delim := opts.Delimiter
	if delim == "" {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = []rune(delim)[0]
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return &Sheet{Rows: rows}, nil
}

// sniffDelimiter picks the most frequent of ; , and tab on the first line.
// Spanish exports default to ";".
func sniffDelimiter(br *bufio.Reader) string {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, bestCount := ";", 0
	for _, d := range []string{";", ",", "\t"} {
		if n := strings.Count(line, d); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func isUTF8(enc string) bool {
	switch strings.ToLower(strings.ReplaceAll(enc, "-", "")) {
	case "utf8", "":
		return true
	}
	return false
}
