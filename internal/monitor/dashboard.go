package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	ctxhttp "github.com/fyrsmithlabs/ctxroute/internal/http"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// StatsSource fetches the current server stats.
type StatsSource interface {
	Stats(ctx context.Context) (*ctxhttp.StatsResponse, error)
}

// Model is the BubbleTea dashboard model.
type Model struct {
	source     StatsSource
	target     string
	interval   time.Duration
	lastUpdate time.Time
	stats      ctxhttp.StatsResponse
	history    History
	err        error
	quitting   bool

	epsilonProgress progress.Model
	hitProgress     progress.Model
}

// History holds the last historySize samples per series.
type History struct {
	Epsilon    []float64
	TDError    []float64
	TableSize  []float64
	UpdateRate []float64
}

// NewModel creates a dashboard polling source every interval. target is
// shown in the header and error view.
func NewModel(source StatsSource, target string, interval time.Duration) Model {
	return Model{
		source:   source,
		target:   target,
		interval: interval,
		epsilonProgress: progress.New(
			progress.WithGradient("#00ffff", "#ff00ff"),
			progress.WithWidth(40),
		),
		hitProgress: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
		history: History{
			Epsilon:    make([]float64, 0, historySize),
			TDError:    make([]float64, 0, historySize),
			TableSize:  make([]float64, 0, historySize),
			UpdateRate: make([]float64, 0, historySize),
		},
	}
}

// getTDBadge grades the running TD error.
func getTDBadge(avgTD float64) string {
	if avgTD < 0.1 {
		return healthyStyle.Render("[✓]")
	} else if avgTD < 0.5 {
		return warningStyle.Render("[⚠]")
	}
	return errorStyle.Render("[✗]")
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type statsMsg ctxhttp.StatsResponse
type errMsg error

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchStats(m.source),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStats(source StatsSource) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		stats, err := source.Stats(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statsMsg(*stats)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchStats(m.source)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchStats(m.source),
		)

	case statsMsg:
		next := ctxhttp.StatsResponse(msg)
		if !m.lastUpdate.IsZero() {
			delta := float64(next.Router.UpdateCount) - float64(m.stats.Router.UpdateCount)
			m.history.UpdateRate = appendToHistory(m.history.UpdateRate, max(0, delta))
		}
		m.history.Epsilon = appendToHistory(m.history.Epsilon, next.Router.Epsilon)
		m.history.TDError = appendToHistory(m.history.TDError, next.Router.AvgTDError)
		m.history.TableSize = appendToHistory(m.history.TableSize, float64(next.Router.TableSize))

		m.stats = next
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("ctxroute Monitor")

	var content string
	content += "\n"
	content += errorStyle.Render("⚠ Cannot reach ctxroute server") + "\n"
	content += "\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.target) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n"
	content += "\n"
	content += dimStyle.Render("Start the server with: ctxroute serve") + "\n"
	content += "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	st := m.stats.Router
	var content string

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}
	content += headerStyle.Render(" ctxroute Monitor ") + "\n"
	content += fmt.Sprintf("%s   %s   %s\n",
		healthyStyle.Render("✓ CONNECTED"),
		dimStyle.Render(m.target),
		dimStyle.Render(lastUpdateStr))

	content += "\n" + sectionStyle.Render("┃ Learning") + "\n"
	content += labelStyle.Render("  Updates: ") +
		valueStyle.Render(fmt.Sprintf("%d", st.UpdateCount)) +
		dimStyle.Render(fmt.Sprintf(" (%d steps)", st.StepCount)) +
		"   " + createSparkline(m.history.UpdateRate) + "\n"
	content += labelStyle.Render("  Avg |TD|: ") +
		valueStyle.Render(fmt.Sprintf("%.4f", st.AvgTDError)) +
		" " + getTDBadge(st.AvgTDError) +
		"   " + createSparkline(m.history.TDError) + "\n"
	content += labelStyle.Render("  Epsilon: ") +
		m.epsilonProgress.ViewAs(min(1, max(0, st.Epsilon))) +
		" " + dimStyle.Render(fmt.Sprintf("%.4f", st.Epsilon)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Q-Table") + "\n"
	content += labelStyle.Render("  States: ") +
		valueStyle.Render(fmt.Sprintf("%d", st.TableSize)) +
		"   " + createSparkline(m.history.TableSize) + "\n"

	ratio := HitRatio(st.CacheHits, st.CacheMisses)
	content += "\n" + sectionStyle.Render("┃ Decision Cache") + "\n"
	content += labelStyle.Render("  Hit ratio: ") +
		m.hitProgress.ViewAs(ratio) +
		" " + dimStyle.Render(FormatPercentage(ratio)) + "\n"
	content += labelStyle.Render("  Entries: ") +
		valueStyle.Render(fmt.Sprintf("%d", st.CacheSize)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Replay & Memory") + "\n"
	content += labelStyle.Render("  Replay: ") +
		valueStyle.Render(fmt.Sprintf("%d buffered / %d total", st.ReplaySize, st.TotalExperiences)) + "\n"
	if m.stats.Memories >= 0 {
		content += labelStyle.Render("  Memories: ") +
			valueStyle.Render(fmt.Sprintf("%d", m.stats.Memories)) + "\n"
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	content += "\n" + footer

	return containerStyle.Render(content)
}
