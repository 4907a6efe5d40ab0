package merge

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/video-insights/constants"
	"github.com/joseph-ayodele/video-insights/internal/table"
)

// Result describes one merge.
type Result struct {
	Tables  []string // inputs that were present
	Header  []string
	Rows    int
	Elapsed time.Duration
}

// Merger outer-joins the stage tables into the combined table.
type Merger struct {
	store  *table.Store
	inputs []string
	output string
	logger *slog.Logger
}

func NewMerger(store *table.Store, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		store:  store,
		inputs: constants.CombinedInputTables,
		output: constants.CombinedTable,
		logger: logger,
	}
}

// Output is the combined table name.
func (m *Merger) Output() string { return m.output }

// Build computes the combined table without writing it.
//
// Columns are matched by normalized name and keep the first title seen. The
// key is each row's first column value. Later tables overwrite earlier ones.
func (m *Merger) Build() (*table.Table, []string, error) {
	var (
		header  []string
		titles  = map[string]string{} // normalized -> first title
		order   []string              // keys in first-seen order
		rows    = map[string]map[string]string{}
		present []string
	)

	for _, name := range m.inputs {
		if name == m.output {
			continue
		}
		t, err := m.store.ReadAll(name)
		if err != nil {
			if errors.Is(err, table.ErrNotFound) {
				m.logger.Debug("merge.table.missing", "table", name)
				continue
			}
			return nil, nil, fmt.Errorf("read %s: %w", name, err)
		}
		present = append(present, name)
		if len(t.Header) == 0 {
			continue
		}

		for _, h := range t.Header {
			n := Normalize(h)
			if _, seen := titles[n]; !seen {
				titles[n] = h
				header = append(header, h)
			}
		}

		keyCol := t.Header[0]
		for _, rec := range t.Records {
			key := strings.TrimSpace(rec[keyCol])
			if key == "" {
				continue
			}
			row, ok := rows[key]
			if !ok {
				row = map[string]string{}
				rows[key] = row
				order = append(order, key)
			}
			for col, val := range rec {
				row[Normalize(col)] = val
			}
		}
	}

	out := &table.Table{Name: m.output, Header: header}
	for _, key := range order {
		rec := make(table.Record, len(header))
		for _, h := range header {
			rec[h] = rows[key][Normalize(h)]
		}
		out.Records = append(out.Records, rec)
	}
	return out, present, nil
}

// Merge rebuilds the combined table from scratch and replaces it on disk.
func (m *Merger) Merge() (Result, error) {
	start := time.Now()
	t, present, err := m.Build()
	if err != nil {
		return Result{}, err
	}
	res := Result{Tables: present, Header: t.Header, Rows: len(t.Records)}
	if len(present) == 0 {
		m.logger.Warn("merge.no_inputs")
		res.Elapsed = time.Since(start)
		return res, nil
	}

	if err := m.store.Replace(m.output, t.Header, t.Records); err != nil {
		return res, fmt.Errorf("write %s: %w", m.output, err)
	}
	res.Elapsed = time.Since(start)
	m.logger.Info("merge.done",
		"tables", len(present),
		"columns", len(t.Header),
		"rows", res.Rows,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

// Normalize is the column matching form: lowercased, spaces as underscores.
func Normalize(col string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(col)), " ", "_")
}
