package stage

import (
	"context"
	"time"

	"github.com/joseph-ayodele/video-insights/internal/table"
)

// WorkItem is one unit of work for a stage: a key plus whatever payload the
// loader produced (a media path, transcript text, or the upstream row).
type WorkItem struct {
	Key    string
	Path   string
	Text   string
	Source table.Record
}

// Stage describes one pipeline phase. The runner owns checkpointing,
// admission, retries, placeholders and progress; a Stage only knows its data.
type Stage interface {
	Name() string
	// Table is the output table name; it doubles as the checkpoint.
	Table() string
	// Header is the full, ordered output column list, custom fields included.
	Header() []string
	// Load returns candidate items in a stable order.
	Load(ctx context.Context) ([]WorkItem, error)
	// Process turns one item into its output record.
	Process(ctx context.Context, item WorkItem) (table.Record, error)
	// Placeholder is written when Process fails terminally.
	Placeholder(item WorkItem, err error) table.Record
}

// ShortCircuiter lets a stage answer an item without any external call.
type ShortCircuiter interface {
	ShortCircuit(item WorkItem) (table.Record, bool)
}

// Stats summarizes one stage run.
type Stats struct {
	Stage          string
	Total          int
	Done           int
	Remaining      int
	ShortCircuited int
	Succeeded      int
	Failed         int
	Elapsed        time.Duration
}

// Nothing reports whether the run found no remaining work.
func (s Stats) Nothing() bool { return s.Remaining == 0 }

// Progress receives one tick per finished item.
type Progress interface {
	Start(stage string, total int)
	Tick(stage, key string, failed bool)
	Finish(stage string)
}

type noProgress struct{}

func (noProgress) Start(string, int)         {}
func (noProgress) Tick(string, string, bool) {}
func (noProgress) Finish(string)             {}
