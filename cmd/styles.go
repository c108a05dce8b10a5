package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	sqlStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("111")).Border(lipgloss.NormalBorder(), false, false, false, true).PaddingLeft(1)
)

// progressPrinter renders upload progress as a single redrawn line. The
// uploader serialises its progress calls, so no locking is needed.
type progressPrinter struct {
	bar   progress.Model
	out   io.Writer
	every time.Duration
	last  time.Time
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		out:   out,
		every: 100 * time.Millisecond,
	}
}

func (p *progressPrinter) Update(done, total int) {
	if total == 0 {
		return
	}
	now := time.Now()
	if done < total && now.Sub(p.last) < p.every {
		return
	}
	p.last = now
	pct := float64(done) / float64(total)
	fmt.Fprintf(p.out, "\r%s %d/%d rows", p.bar.ViewAs(pct), done, total)
	if done == total {
		fmt.Fprintln(p.out)
	}
}
