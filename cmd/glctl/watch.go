package main

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	cl "greenledger/internal/cli"
	"greenledger/internal/game"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")).Padding(0, 1)
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Italic(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	tableBorder = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

func newWatchCmd(apiBase *string) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live leaderboard for the projector",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval < time.Second {
				interval = time.Second
			}
			m := newWatchModel(newClient(apiBase), interval)
			_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "refresh interval")
	return cmd
}

type snapshotMsg struct {
	teams []game.TeamView
	state game.GameState
	at    time.Time
}

type fetchErrMsg struct{ err error }

type refreshMsg time.Time

type watchModel struct {
	client   *cl.Client
	interval time.Duration
	table    table.Model
	spinner  spinner.Model
	state    game.GameState
	updated  time.Time
	loading  bool
	err      error
}

func newWatchModel(client *cl.Client, interval time.Duration) watchModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 3},
			{Title: "Team", Width: 10},
			{Title: "Score", Width: 9},
			{Title: "Cash", Width: 11},
			{Title: "Debt", Width: 6},
			{Title: "Supplier", Width: 20},
			{Title: "Status", Width: 7},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("28"))
	t.SetStyles(styles)

	return watchModel{
		client:   client,
		interval: interval,
		table:    t,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		loading:  true,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, fetchSnapshot(m.client))
}

func fetchSnapshot(client *cl.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		teams, err := client.Teams(ctx)
		if err != nil {
			return fetchErrMsg{err: err}
		}
		state, err := client.State(ctx)
		if err != nil {
			return fetchErrMsg{err: err}
		}
		return snapshotMsg{teams: teams, state: state, at: time.Now()}
	}
}

func (m watchModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, fetchSnapshot(m.client)
		}
	case snapshotMsg:
		m.loading = false
		m.err = nil
		m.state = msg.state
		m.updated = msg.at
		m.table.SetRows(leaderboardRows(msg.teams))
		return m, m.scheduleRefresh()
	case fetchErrMsg:
		m.loading = false
		m.err = msg.err
		return m, m.scheduleRefresh()
	case refreshMsg:
		m.loading = true
		return m, fetchSnapshot(m.client)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	header := titleStyle.Render(fmt.Sprintf("GREEN LEDGER  round %d", m.state.CurrentRound))
	if m.state.ActiveEvent != "" && m.state.ActiveEvent != game.NoChoice {
		header += statusStyle.Render("  last event: " + m.state.ActiveEvent)
	}
	body := tableBorder.Render(m.table.View())

	status := "updated " + m.updated.Format("15:04:05")
	if m.updated.IsZero() {
		status = "connecting"
	}
	if m.loading {
		status = m.spinner.View() + " " + status
	}
	footer := statusStyle.Render(status + "  r refresh  q quit")
	if m.err != nil {
		footer = errorStyle.Render(m.err.Error()) + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, bannerStyle.Render(m.state.SystemMessage), body, footer)
}

// leaderboardRows ranks by score, breaking ties by team code.
func leaderboardRows(teams []game.TeamView) []table.Row {
	ranked := slices.Clone(teams)
	slices.SortStableFunc(ranked, func(a, b game.TeamView) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	rows := make([]table.Row, 0, len(ranked))
	for i, t := range ranked {
		rows = append(rows, table.Row{
			strconv.Itoa(i + 1),
			t.Code,
			strconv.FormatFloat(t.Score, 'f', 0, 64),
			formatCash(t.Cash),
			strconv.FormatInt(t.CarbonDebt, 10),
			truncate(t.InventoryChoice, 20),
			lockLabel(t.Locked),
		})
	}
	return rows
}
