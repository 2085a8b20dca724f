// Package tui draws a terminal monitor for a running export: progress,
// the live spectrum and the lyric being recorded.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/satindergrewal/lyricvid/internal/export"
)

const pollInterval = 100 * time.Millisecond

// Job is the part of an export job the monitor reads.
type Job interface {
	Snapshot() export.Snapshot
}

type tickMsg time.Time

// Model is the Bubbletea model for the export monitor.
type Model struct {
	job      Job
	song     string
	snap     export.Snapshot
	bar      progress.Model
	spin     spinner.Model
	done     bool
	quitting bool
	width    int
}

// NewModel creates a monitor for job. song is shown in the header.
func NewModel(job Job, song string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle
	return Model{
		job:  job,
		song: song,
		snap: job.Snapshot(),
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(panelWidth), progress.WithoutPercentage()),
		spin: sp,
	}
}

// Init starts polling and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spin.Tick)
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update polls the job on every tick and quits once it is done or failed.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		m.snap = m.job.Snapshot()
		if m.snap.Status.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Snapshot returns the last polled job state.
func (m Model) Snapshot() export.Snapshot { return m.snap }

// Run shows the monitor until the job finishes, the user quits or ctx is
// cancelled. The export itself keeps running if the user quits.
func Run(ctx context.Context, job Job, song string) (export.Snapshot, error) {
	p := tea.NewProgram(NewModel(job, song), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return job.Snapshot(), err
	}
	return final.(Model).Snapshot(), nil
}
