package fileutils

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// PipeDelimiter separates columns in summary output files.
const PipeDelimiter = '|'

// Truncate trims s and cuts it to at most max bytes without splitting a rune.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// AppendDelimitedRow appends one row to path, creating the file and its directory as needed.
// Fields containing the delimiter, quotes or line breaks are quoted so each row reads back
// intact. No header is written and no file lock is taken: there is a single writer.
func AppendDelimitedRow(path string, fields []string, comma rune) error {
	if path == "" {
		return errors.New("AppendDelimitedRow: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("AppendDelimitedRow: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("AppendDelimitedRow: open: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = comma
	if err := w.Write(fields); err != nil {
		_ = f.Close()
		return fmt.Errorf("AppendDelimitedRow: write: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("AppendDelimitedRow: flush: %w", err)
	}
	return f.Close()
}

// ReadDelimitedRows reads every row of a delimited file. fieldsPerRow > 0 enforces a column count.
func ReadDelimitedRows(path string, comma rune, fieldsPerRow int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadDelimitedRows: open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = fieldsPerRow
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadDelimitedRows: %s: %w", path, err)
	}
	return rows, nil
}

// HeaderRows is a delimited table whose first row named the columns.
type HeaderRows struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewHeaderRows builds a table from a header and its rows.
func NewHeaderRows(header []string, rows [][]string) HeaderRows {
	h := HeaderRows{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, name := range header {
		h.index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	return h
}

// Missing returns the required columns absent from the header.
func (h HeaderRows) Missing(required ...string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := h.index[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Get returns the named column of row i, or "" if the column is absent.
func (h HeaderRows) Get(i int, column string) string {
	j, ok := h.index[column]
	if !ok || j >= len(h.Rows[i]) {
		return ""
	}
	return h.Rows[i][j]
}

// ReadHeaderRows reads a comma-separated file with a header row and checks that every
// required column is present.
func ReadHeaderRows(r io.Reader, required ...string) (HeaderRows, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return HeaderRows{}, errors.New("ReadHeaderRows: missing header row")
		}
		return HeaderRows{}, fmt.Errorf("ReadHeaderRows: header: %w", err)
	}

	h := NewHeaderRows(header, nil)
	if missing := h.Missing(required...); len(missing) > 0 {
		return HeaderRows{}, fmt.Errorf("ReadHeaderRows: missing columns: %s", strings.Join(missing, ", "))
	}

	h.Rows, err = cr.ReadAll()
	if err != nil {
		return HeaderRows{}, fmt.Errorf("ReadHeaderRows: rows: %w", err)
	}
	return h, nil
}

// WriteHeaderRows writes a comma-separated file with a header row, atomically.
func WriteHeaderRows(path string, header []string, rows [][]string) error {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("WriteHeaderRows: header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("WriteHeaderRows: rows: %w", err)
	}
	return WriteFileAtomicSameDir(path, []byte(b.String()), 0o644)
}

func WriteJSONFileAtomic(path string, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	b = append(b, '\n')
	if err := WriteFileAtomicSameDir(path, b, 0o644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func WriteFileAtomicSameDir(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp_"+filepath.Base(path)+"_*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
