package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/joseph-ayodele/video-insights/internal/stage"
)

// Progress prints one "[n/total]" line per finished item.
type Progress struct {
	p     *Printer
	mu    sync.Mutex
	total map[string]int
	count map[string]int
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{p: NewPrinter(w), total: map[string]int{}, count: map[string]int{}}
}

var _ stage.Progress = (*Progress)(nil)

func (pr *Progress) Start(stageName string, total int) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.total[stageName] = total
	pr.count[stageName] = 0
	fmt.Fprintf(pr.p.w, "\n%s: %d remaining\n", stageName, total)
}

func (pr *Progress) Tick(stageName, key string, failed bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.count[stageName]++
	mark := pr.p.paint(green, "ok")
	if failed {
		mark = pr.p.paint(red, "error")
	}
	fmt.Fprintf(pr.p.w, "[%d/%d] %s %s\n", pr.count[stageName], pr.total[stageName], key, mark)
}

func (pr *Progress) Finish(stageName string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	delete(pr.total, stageName)
	delete(pr.count, stageName)
}
