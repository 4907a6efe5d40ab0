package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joseph-ayodele/video-insights/internal/common"
)

// ErrNotFound is returned by reads of a table that does not exist on disk.
var ErrNotFound = fmt.Errorf("table %w", common.ErrNotFound)

// Record is one row keyed by column title.
type Record map[string]string

// Table is a fully read table: its header plus every row in file order.
type Table struct {
	Name    string
	Header  []string
	Records []Record
}

// KeySet maps each key to the index of the first row that carried it.
type KeySet map[string]int

// Has reports whether key was already written.
func (k KeySet) Has(key string) bool {
	_, ok := k[key]
	return ok
}

// Store persists tables as always-quoted CSV files under one directory.
// Appends to the same file are serialized; reads are not gated.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger, locks: make(map[string]*sync.Mutex)}
}

// Dir returns the directory holding the tables.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of a table.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// Exists reports whether the table file is present.
func (s *Store) Exists(name string) bool {
	st, err := os.Stat(s.Path(name))
	return err == nil && !st.IsDir()
}

func (s *Store) lock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *Store) open(name string) (*os.File, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

// ReadAll returns the header and every row. An empty file yields an empty table.
func (s *Store) ReadAll(name string) (*Table, error) {
	f, err := s.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &Table{Name: name}
	cr := newReader(f)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}
	t.Header = cleanHeader(header)

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if isBlank(row) {
			continue
		}
		rec := make(Record, len(t.Header))
		for i, col := range t.Header {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// KeysPresent scans the table once and returns every non-empty key in keyColumn.
// On duplicates the first row wins.
func (s *Store) KeysPresent(name, keyColumn string) (KeySet, error) {
	t, err := s.ReadAll(name)
	if err != nil {
		return nil, err
	}
	keys := make(KeySet, len(t.Records))
	for i, rec := range t.Records {
		k := strings.TrimSpace(rec[keyColumn])
		if k == "" {
			continue
		}
		if _, seen := keys[k]; seen {
			s.logger.Warn("table.duplicate_key", "table", name, "key", k, "first_row", keys[k], "row", i)
			continue
		}
		keys[k] = i
	}
	return keys, nil
}

// Headers returns the column titles of a table without reading its rows.
func (s *Store) Headers(name string) ([]string, error) {
	f, err := s.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := newReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}
	return cleanHeader(header), nil
}

// Append writes records to the end of the table, creating it with header when
// it is missing or empty. Rows follow the header already on disk; columns it
// lacks are dropped with a warning. The file is synced before returning.
func (s *Store) Append(name string, header []string, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}

	existing, err := s.Headers(name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	f, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", name, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	columns := existing
	if len(columns) == 0 {
		columns = header
		if err := writeRow(w, columns); err != nil {
			return fmt.Errorf("write header of %s: %w", name, err)
		}
	} else {
		s.warnDroppedColumns(name, columns, header)
	}

	for _, rec := range records {
		if err := writeRow(w, rec.Values(columns)); err != nil {
			return fmt.Errorf("append to %s: %w", name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	return nil
}

// Replace atomically rewrites a whole table. Only derived tables use it.
func (s *Store) Replace(name string, header []string, records []Record) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create table dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeRow(w, header); err != nil {
		tmp.Close()
		return err
	}
	for _, rec := range records {
		if err := writeRow(w, rec.Values(header)); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) warnDroppedColumns(name string, onDisk, header []string) {
	have := make(map[string]struct{}, len(onDisk))
	for _, c := range onDisk {
		have[c] = struct{}{}
	}
	for _, c := range header {
		if _, ok := have[c]; !ok {
			s.logger.Warn("table.column_not_in_file", "table", name, "column", c)
		}
	}
}

// Values lays the record out in column order; absent columns become "".
func (r Record) Values(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = r[c]
	}
	return out
}

// writeRow emits one line with every field quoted.
func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, c := range h {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
