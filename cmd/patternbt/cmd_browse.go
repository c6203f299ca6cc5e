package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"patternbt/internal/domain"
	"patternbt/internal/report"
	"patternbt/internal/store"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse journaled runs and their trades in the terminal",
	RunE:  runBrowse,
}

var browseLimit int

func init() {
	rootCmd.AddCommand(browseCmd)

	browseCmd.Flags().IntVar(&browseLimit, "limit", 200, "maximum runs to load (0 for all)")
}

func runBrowse(cmd *cobra.Command, _ []string) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return err
	}
	j, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer j.Close()

	p := tea.NewProgram(
		newBrowseModel(cmd.Context(), j, browseLimit),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	return err
}

// Styles.
var (
	headerBarStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	footerBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	selectedStyle  = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("236"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	errStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// Messages.
type runsLoadedMsg struct {
	runs []domain.Run
	err  error
}

type tradesLoadedMsg struct {
	runID  string
	trades []domain.Trade
	err    error
}

// browseModel shows the run list; enter opens the selected run's trades.
type browseModel struct {
	ctx     context.Context
	journal store.RunJournal
	limit   int

	runs     []domain.Run
	selected int

	tradesFor string // run ID whose trades are shown; "" = run list
	trades    []domain.Trade

	err           error
	viewport      viewport.Model
	ready         bool
	width, height int
}

func newBrowseModel(ctx context.Context, j store.RunJournal, limit int) browseModel {
	return browseModel{ctx: ctx, journal: j, limit: limit}
}

func (m browseModel) loadRuns() tea.Msg {
	runs, err := m.journal.ListRuns(m.ctx, m.limit)
	return runsLoadedMsg{runs: runs, err: err}
}

func (m browseModel) loadTrades(runID string) tea.Cmd {
	return func() tea.Msg {
		trades, err := m.journal.ListTrades(m.ctx, runID)
		return tradesLoadedMsg{runID: runID, trades: trades, err: err}
	}
}

func (m browseModel) Init() tea.Cmd {
	return m.loadRuns
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadRuns
		case "esc", "backspace":
			if m.tradesFor != "" {
				m.tradesFor, m.trades = "", nil
				m.refresh(true)
			}
			return m, nil
		case "enter":
			if m.tradesFor == "" && m.selected < len(m.runs) {
				return m, m.loadTrades(m.runs[m.selected].ID)
			}
			return m, nil
		case "up", "down":
			if m.tradesFor != "" || len(m.runs) == 0 {
				break
			}
			if msg.String() == "up" && m.selected > 0 {
				m.selected--
			}
			if msg.String() == "down" && m.selected < len(m.runs)-1 {
				m.selected++
			}
			m.refresh(false)
			m.ensureVisible()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := max(m.height-2, 1)
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
			m.refresh(true)
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		return m, nil

	case runsLoadedMsg:
		m.err = msg.err
		m.runs = msg.runs
		m.selected = min(m.selected, max(len(m.runs)-1, 0))
		m.refresh(true)
		return m, nil

	case tradesLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.tradesFor, m.trades = msg.runID, msg.trades
		}
		m.refresh(true)
		return m, nil
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// refresh re-renders the viewport content, optionally scrolling to the top.
func (m *browseModel) refresh(top bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderContent())
	if top {
		m.viewport.GotoTop()
	}
}

// ensureVisible scrolls so the selected run row is on screen. Row i sits on
// content line i+1, below the column header.
func (m *browseModel) ensureVisible() {
	line := m.selected + 1
	if line < m.viewport.YOffset {
		m.viewport.SetYOffset(line)
	} else if line >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(line - m.viewport.Height + 1)
	}
}

func (m browseModel) renderContent() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(errStyle.Render("error: "+m.err.Error()) + "\n")
	}

	if m.tradesFor != "" {
		if len(m.trades) == 0 {
			b.WriteString("no trades\n")
			return b.String()
		}
		b.WriteString(colHeaderStyle.Render(" "+report.TradeHeader()) + "\n")
		for _, t := range m.trades {
			style := gainStyle
			if t.ReturnPct < 0 {
				style = lossStyle
			}
			b.WriteString(style.Render(" "+report.TradeRow(t)) + "\n")
		}
		return b.String()
	}

	if len(m.runs) == 0 {
		b.WriteString("no runs recorded\n")
		return b.String()
	}
	b.WriteString(colHeaderStyle.Render(" "+report.RunHeader()) + "\n")
	for i, r := range m.runs {
		row := " " + report.RunRow(r)
		if i == m.selected {
			row = selectedStyle.Render(padOrTrunc(row, m.width))
		}
		b.WriteString(row + "\n")
	}
	return b.String()
}

func (m browseModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := fmt.Sprintf(" patternbt runs    %d loaded ", len(m.runs))
	footerLeft := " q quit  up/dn select  enter trades  r reload  pgup/dn scroll"
	if m.tradesFor != "" {
		header = fmt.Sprintf(" run %s    %d trades ", m.tradesFor, len(m.trades))
		footerLeft = " q quit  esc back  pgup/dn scroll"
	}

	footerRight := fmt.Sprintf("%.0f%% ", m.viewport.ScrollPercent()*100)
	gap := max(m.width-len(footerLeft)-len(footerRight), 0)
	footer := footerLeft + strings.Repeat(" ", gap) + footerRight

	return headerBarStyle.Render(padOrTrunc(header, m.width)) + "\n" +
		m.viewport.View() + "\n" +
		footerBarStyle.Render(padOrTrunc(footer, m.width))
}

// padOrTrunc pads s with spaces or truncates it to exactly width columns.
func padOrTrunc(s string, width int) string {
	if width <= 0 {
		return s
	}
	if len(s) > width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
