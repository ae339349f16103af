// Package report renders batch progress in a terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/root4loot/thumbnailer"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

// Terminal draws a progress bar and the current status line, and prints one
// line per finished item.
type Terminal struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	bar     progress.Model
	done    int
}

// NewTerminal returns a reporter writing to out. A disabled reporter prints
// nothing.
func NewTerminal(out io.Writer, enabled bool) *Terminal {
	return &Terminal{
		out:     out,
		enabled: enabled,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

func (t *Terminal) ItemStarted(index, total int, item thumbnailer.WorkItem) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "\r\033[2K%s %s", t.bar.ViewAs(thumbnailer.Progress(t.done, total)), statusStyle.Render(thumbnailer.StatusLine(index, total, item)))
}

func (t *Terminal) ItemFinished(index, total int, result thumbnailer.CaptureResult) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done = index + 1
	fmt.Fprintf(t.out, "\r\033[2K%s\n", ItemLine(result))
	if t.done < total {
		fmt.Fprintf(t.out, "%s", t.bar.ViewAs(thumbnailer.Progress(t.done, total)))
	}
}

// ItemLine is the one-line outcome of a single item.
func ItemLine(result thumbnailer.CaptureResult) string {
	name := result.Item.Filename + ".jpg"

	if !result.OK() {
		return fmt.Sprintf("%s %s %s", errorStyle.Render("FAIL"), name, mutedStyle.Render(thumbnailer.ErrorMessage(result.Err)))
	}

	line := fmt.Sprintf("%s %s %s", okStyle.Render("OK"), name, mutedStyle.Render(result.Duration.Round(10*time.Millisecond).String()))
	if result.SimilarTo != "" {
		line += " " + warnStyle.Render("looks like "+result.SimilarTo)
	}
	return line
}

// Summary describes a finished batch: counts, failures and similar pairs.
func Summary(payload *thumbnailer.Payload) string {
	style := okStyle
	if len(payload.Failures) > 0 {
		style = warnStyle
	}
	if payload.Entries == 0 {
		style = errorStyle
	}

	s := style.Render(fmt.Sprintf("%d/%d thumbnails captured", payload.Entries, payload.Total)) +
		mutedStyle.Render(" -> "+payload.ArchiveFilename())

	for _, f := range payload.Failures {
		s += "\n  " + errorStyle.Render("failed") + " " + f.Filename + " " + mutedStyle.Render(f.URL+": "+f.Message)
	}

	similar := make([]string, 0, len(payload.Similar))
	for name := range payload.Similar {
		similar = append(similar, name)
	}
	sort.Strings(similar)
	for _, name := range similar {
		s += "\n  " + warnStyle.Render("similar") + " " + name + " " + mutedStyle.Render("looks like "+payload.Similar[name])
	}

	return s
}
