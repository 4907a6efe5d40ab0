// Package console renders progress lines and end-of-run banners.
package console

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"github.com/joseph-ayodele/video-insights/internal/repository"
	"github.com/joseph-ayodele/video-insights/internal/stage"
)

const (
	green = "\x1b[32m"
	red   = "\x1b[31m"
	dim   = "\x1b[2m"
	reset = "\x1b[0m"
)

// Printer writes to a console stream, coloring only real terminals.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w, color: IsTerminal(w)}
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) paint(code, s string) string {
	if !p.color {
		return s
	}
	return code + s + reset
}

// Done prints the per-stage summary table and the success banner.
func (p *Printer) Done(stats []stage.Stats, elapsed time.Duration) {
	if len(stats) > 0 {
		table := tablewriter.NewWriter(p.w)
		table.SetHeader([]string{"Stage", "Total", "Already Done", "Processed", "Skipped", "Failed", "Elapsed"})
		table.SetBorder(false)
		table.SetAutoFormatHeaders(false)
		for _, s := range stats {
			table.Append([]string{
				s.Stage,
				humanize.Comma(int64(s.Total)),
				humanize.Comma(int64(s.Done)),
				humanize.Comma(int64(s.Succeeded)),
				humanize.Comma(int64(s.ShortCircuited)),
				humanize.Comma(int64(s.Failed)),
				FormatDuration(s.Elapsed),
			})
		}
		fmt.Fprintln(p.w)
		table.Render()
	}
	fmt.Fprintf(p.w, "\n%s %s\n", p.paint(green, "Done!"), p.paint(dim, "in "+FormatDuration(elapsed)))
}

// Nothing prints the banner for a stage with no remaining work.
func (p *Printer) Nothing(stageName string) {
	fmt.Fprintf(p.w, "\n%s\n", p.paint(green, "Done! No new items to process for "+stageName+"."))
}

// Error prints the failure banner.
func (p *Printer) Error(err error) {
	fmt.Fprintf(p.w, "\n%s\n", p.paint(red, "Error! Check logs for details."))
	if err != nil {
		fmt.Fprintf(p.w, "  %v\n", err)
	}
}

// Inputs prints what discovery found.
func (p *Printer) Inputs(dir string, count int, bytes int64) {
	fmt.Fprintf(p.w, "Found %s videos (%s) in %s\n",
		humanize.Comma(int64(count)), humanize.Bytes(uint64(bytes)), dir)
}

// History renders recent journal rows.
func (p *Printer) History(runs []repository.StageRun) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, "No runs recorded.")
		return
	}
	table := tablewriter.NewWriter(p.w)
	table.SetHeader([]string{"Started", "Run", "Stage", "Status", "Processed", "Failed", "Took", "Error"})
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = FormatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
		runID := r.RunID
		if len(runID) > 8 {
			runID = runID[:8]
		}
		table.Append([]string{
			humanize.Time(r.StartedAt),
			runID,
			r.Stage,
			string(r.Status),
			strconv.Itoa(r.Succeeded + r.ShortCircuited),
			strconv.Itoa(r.Failed),
			took,
			truncate(r.Error, 60),
		})
	}
	table.Render()
}

// FormatDuration rounds to a readable precision.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
