// Package tui is the forecast dashboard served over SSH.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cryptobeacon/internal/domain"
)

type ForecastQuerier interface {
	ForecastSymbol(ctx context.Context, symbol string, days int) (*domain.ForecastResult, error)
}

type Services struct {
	Forecasts ForecastQuerier
	Symbols   []string
	Days      int
	MaxDays   int
	Username  string
}

const requestTimeout = 90 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	upStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedCoin = lipgloss.NewStyle().Bold(true).Underline(true)
)

// forecastMsg carries a finished request back into the update loop.
type forecastMsg struct {
	symbol string
	days   int
	result *domain.ForecastResult
	err    error
}

type AppModel struct {
	svc     Services
	index   int
	days    int
	loading bool
	result  *domain.ForecastResult
	err     error
	spinner spinner.Model
	width   int
	height  int
}

func NewAppModel(svc Services) *AppModel {
	if len(svc.Symbols) == 0 {
		svc.Symbols = domain.SupportedSymbols
	}
	if svc.MaxDays < 1 {
		svc.MaxDays = 30
	}
	days := svc.Days
	if days < 1 || days > svc.MaxDays {
		days = min(7, svc.MaxDays)
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &AppModel{svc: svc, days: days, spinner: sp, loading: true}
}

func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *AppModel) Symbol() string { return m.svc.Symbols[m.index] }

func (m *AppModel) Days() int { return m.days }

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case forecastMsg:
		if msg.symbol != m.Symbol() || msg.days != m.days {
			return m, nil
		}
		m.loading = false
		m.result, m.err = msg.result, msg.err
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "right", "l", "tab":
		m.index = (m.index + 1) % len(m.svc.Symbols)
	case "left", "h", "shift+tab":
		m.index = (m.index - 1 + len(m.svc.Symbols)) % len(m.svc.Symbols)
	case "up", "k", "+":
		if m.days >= m.svc.MaxDays {
			return m, nil
		}
		m.days++
	case "down", "j", "-":
		if m.days <= 1 {
			return m, nil
		}
		m.days--
	case "r":
	default:
		return m, nil
	}
	m.loading = true
	m.result, m.err = nil, nil
	return m, tea.Batch(m.spinner.Tick, m.fetch())
}

func (m *AppModel) fetch() tea.Cmd {
	symbol, days, svc := m.Symbol(), m.days, m.svc.Forecasts
	return func() tea.Msg {
		if svc == nil {
			return forecastMsg{symbol: symbol, days: days, err: fmt.Errorf("forecasts unavailable")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		res, err := svc.ForecastSymbol(ctx, symbol, days)
		return forecastMsg{symbol: symbol, days: days, result: res, err: err}
	}
}

func (m *AppModel) View() string {
	var sb strings.Builder
	user := m.svc.Username
	if user == "" {
		user = "guest"
	}
	sb.WriteString(titleStyle.Render("cryptobeacon") + dimStyle.Render("  "+user) + "\n\n")
	sb.WriteString(m.symbolBar() + "\n\n")

	switch {
	case m.loading:
		sb.WriteString(fmt.Sprintf("%s forecasting %s for %d days...\n", m.spinner.View(), m.Symbol(), m.days))
	case m.err != nil:
		sb.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.result != nil:
		sb.WriteString(boxStyle.Render(m.table()) + "\n")
	}

	sb.WriteString("\n" + dimStyle.Render("←/→ symbol  ↑/↓ days  r refresh  q quit"))
	return sb.String()
}

func (m *AppModel) symbolBar() string {
	parts := make([]string, len(m.svc.Symbols))
	for i, s := range m.svc.Symbols {
		if i == m.index {
			parts[i] = selectedCoin.Render(s)
			continue
		}
		parts[i] = dimStyle.Render(s)
	}
	return strings.Join(parts, " ")
}

func (m *AppModel) table() string {
	r := m.result
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s  model %s\n", headerStyle.Render(r.Symbol), formatPrice(r.CurrentPrice), r.Model)
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %16s %9s", "Day", "Price", "Change")) + "\n")
	for i, v := range r.Forecast {
		label := fmt.Sprintf("+%d", i+1)
		if i < len(r.Labels) {
			label = r.Labels[i]
		}
		change := 0.0
		if r.CurrentPrice != 0 {
			change = (v - r.CurrentPrice) / r.CurrentPrice * 100
		}
		row := fmt.Sprintf("%-6s %16s %+8.2f%%", label, formatPrice(v), change)
		sb.WriteString(colorize(row, change) + "\n")
	}
	sb.WriteString(colorize(fmt.Sprintf("%-6s %16s %+8.2f%%", "Total", formatPrice(r.PredictedPrice), r.ChangePercent), r.ChangePercent))
	return sb.String()
}

func colorize(s string, change float64) string {
	switch {
	case change > 0:
		return upStyle.Render(s)
	case change < 0:
		return downStyle.Render(s)
	}
	return s
}

func formatPrice(v float64) string {
	switch {
	case v >= 1:
		return fmt.Sprintf("$%.2f", v)
	case v >= 0.01:
		return fmt.Sprintf("$%.4f", v)
	default:
		return fmt.Sprintf("$%.8f", v)
	}
}
