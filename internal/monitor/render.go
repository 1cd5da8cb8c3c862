// Package monitor renders router and attention state for terminals: one-shot
// reports for CLI commands and a live dashboard polling a running server.
package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/ctxroute/internal/attention"
	ctxhttp "github.com/fyrsmithlabs/ctxroute/internal/http"
	"github.com/fyrsmithlabs/ctxroute/internal/router"
)

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	// units and secondary info
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

func row(label, value string) string {
	return labelStyle.Render("  "+label+": ") + valueStyle.Render(value) + "\n"
}

// RenderDecision renders a routing decision.
func RenderDecision(task string, d router.Decision) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" ctxroute decision ") + "\n")
	b.WriteString(row("Task", task))
	b.WriteString(row("Route", d.Route))
	b.WriteString(row("Confidence", FormatPercentage(d.Confidence)))
	b.WriteString(row("State", d.StateKey))

	var flags []string
	if d.Explored {
		flags = append(flags, warningStyle.Render("explored"))
	}
	if d.Cached {
		flags = append(flags, healthyStyle.Render("cached"))
	}
	if len(flags) > 0 {
		b.WriteString(labelStyle.Render("  Flags: ") + strings.Join(flags, " ") + "\n")
	}

	if len(d.Alternatives) > 0 {
		b.WriteString(sectionStyle.Render("┃ Alternatives") + "\n")
		for _, alt := range d.Alternatives {
			b.WriteString(row(alt.Route, fmt.Sprintf("%.4f", alt.Value)))
		}
	}
	return containerStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderStats renders a stats report.
func RenderStats(s ctxhttp.StatsResponse) string {
	st := s.Router
	var b strings.Builder
	b.WriteString(headerStyle.Render(" ctxroute stats ") + "\n")

	b.WriteString(sectionStyle.Render("┃ Learner") + "\n")
	b.WriteString(row("Updates", fmt.Sprintf("%d", st.UpdateCount)))
	b.WriteString(row("Steps", fmt.Sprintf("%d", st.StepCount)))
	b.WriteString(row("States", fmt.Sprintf("%d", st.TableSize)))
	b.WriteString(row("Epsilon", fmt.Sprintf("%.4f", st.Epsilon)))
	b.WriteString(row("Avg |TD|", fmt.Sprintf("%.4f", st.AvgTDError)))

	b.WriteString(sectionStyle.Render("┃ Decision Cache") + "\n")
	b.WriteString(row("Entries", fmt.Sprintf("%d", st.CacheSize)))
	b.WriteString(row("Hit ratio", FormatPercentage(HitRatio(st.CacheHits, st.CacheMisses))))

	b.WriteString(sectionStyle.Render("┃ Replay") + "\n")
	b.WriteString(row("Buffered", fmt.Sprintf("%d", st.ReplaySize)))
	b.WriteString(row("Total", fmt.Sprintf("%d", st.TotalExperiences)))

	if s.Memories >= 0 {
		b.WriteString(sectionStyle.Render("┃ Memory") + "\n")
		b.WriteString(row("Memories", fmt.Sprintf("%d", s.Memories)))
	}
	if len(s.Routes) > 0 {
		b.WriteString(labelStyle.Render("  Routes: ") + dimStyle.Render(strings.Join(s.Routes, ", ")) + "\n")
	}
	return containerStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderBenchmark renders a benchmark result.
func RenderBenchmark(r attention.BenchmarkResult) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" attention benchmark ") + "\n")
	b.WriteString(row("Shape", fmt.Sprintf("%d x %d", r.NumVectors, r.Dimensions)))
	b.WriteString(row("Iterations", fmt.Sprintf("%d", r.Iterations)))
	b.WriteString(row("Backend", r.Backend))
	b.WriteString(row("Block", fmt.Sprintf("%d", r.BlockSize)))

	b.WriteString(sectionStyle.Render("┃ Latency") + "\n")
	b.WriteString(row("Direct", FormatLatency(r.DirectAvg)))
	b.WriteString(row("Tiled", FormatLatency(r.TiledAvg)))
	speedup := fmt.Sprintf("%.2fx", r.Speedup)
	if r.Speedup >= 1 {
		speedup = healthyStyle.Render(speedup)
	} else {
		speedup = warningStyle.Render(speedup)
	}
	b.WriteString(labelStyle.Render("  Speedup: ") + speedup + "\n")

	b.WriteString(sectionStyle.Render("┃ Score Memory") + "\n")
	b.WriteString(row("Direct", FormatMemory(r.DirectMemoryBytes)))
	b.WriteString(row("Tiled", FormatMemory(r.TiledMemoryBytes)))
	b.WriteString(row("Reduction", fmt.Sprintf("%.1fx", r.MemoryReduction)))
	return containerStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderError renders a failure message.
func RenderError(title string, err error) string {
	return errorStyle.Render("✗ "+title) + "\n" + dimStyle.Render("Error: ") + errorStyle.Render(err.Error())
}
