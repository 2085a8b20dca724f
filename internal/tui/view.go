package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/satindergrewal/lyricvid/internal/export"
)

const (
	panelWidth = 60
	numBands   = 20
)

var barBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// View renders the full monitor frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	sections := []string{
		m.renderTitle(),
		m.renderStatus(),
		"",
		m.renderSpectrum(),
		m.bar.ViewAs(m.snap.Progress),
		m.renderTime(),
		"",
		m.renderLyric(),
	}
	if m.snap.Error != "" {
		sections = append(sections, "", errorStyle.Render(truncate(m.snap.Error, panelWidth)))
	}
	if m.snap.Status == export.Done && m.snap.Artifact != "" {
		sections = append(sections, "", textStyle.Render("Saved "+m.snap.Artifact))
	}
	sections = append(sections, "", dimStyle.Render("q quit monitor, export keeps running"))
	return frameStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderTitle() string {
	title := titleStyle.Render("LYRICVID EXPORT")
	if m.song == "" {
		return title
	}
	return title + "  " + songStyle.Render(truncate(m.song, panelWidth-18))
}

func (m Model) renderStatus() string {
	status := string(m.snap.Status)
	if m.snap.Status.Active() {
		status = m.spin.View() + " " + status
	}
	format := strings.ToUpper(m.snap.Format)
	return statusStyle.Render(status) + dimStyle.Render(fmt.Sprintf("  %s  %d frames  %3.0f%%", format, m.snap.Frames, m.snap.Progress*100))
}

func (m Model) renderTime() string {
	return textStyle.Render(fmt.Sprintf("%s / %s", clock(m.snap.Position), clock(m.snap.Duration))) +
		dimStyle.Render(fmt.Sprintf("  elapsed %s", clock(m.snap.Elapsed)))
}

func (m Model) renderLyric() string {
	if m.snap.Lyric == "" {
		return dimStyle.Render("♪")
	}
	return lyricStyle.Render(truncate(m.snap.Lyric, panelWidth))
}

// renderSpectrum averages the frequency bins into numBands coloured bars.
func (m Model) renderSpectrum() string {
	levels := Bands(m.snap.Freq, numBands)
	bw := (panelWidth - (numBands - 1)) / numBands

	var sb strings.Builder
	for i, level := range levels {
		idx := int(level * float64(len(barBlocks)-1))
		idx = max(0, min(idx, len(barBlocks)-1))

		var style lipgloss.Style
		switch {
		case level > 0.75:
			style = specHighStyle
		case level > 0.45:
			style = specMidStyle
		default:
			style = specLowStyle
		}
		sb.WriteString(style.Render(strings.Repeat(barBlocks[idx], bw)))
		if i < len(levels)-1 {
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

// Bands averages freq into n levels in [0, 1]. Empty input gives silence.
func Bands(freq []uint8, n int) []float64 {
	out := make([]float64, n)
	if len(freq) == 0 {
		return out
	}
	for b := range n {
		lo := b * len(freq) / n
		hi := max((b+1)*len(freq)/n, lo+1)
		hi = min(hi, len(freq))
		sum := 0
		for _, v := range freq[lo:hi] {
			sum += int(v)
		}
		out[b] = float64(sum) / float64(hi-lo) / 255
	}
	return out
}

func clock(secs float64) string {
	s := int(secs)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
