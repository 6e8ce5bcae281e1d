package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"sqlrestore/internal/metadata"
	"sqlrestore/internal/restore"
)

type previewKeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Statement key.Binding
	Confirm   key.Binding
	Cancel    key.Binding
}

func (k previewKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Statement, k.Confirm, k.Cancel}
}

func (k previewKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultPreviewKeys() previewKeyMap {
	return previewKeyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Statement: key.NewBinding(key.WithKeys(" ", "s"), key.WithHelp("s", "show statement")),
		Confirm:   key.NewBinding(key.WithKeys("enter", "y"), key.WithHelp("enter/y", "restore")),
		Cancel:    key.NewBinding(key.WithKeys("q", "esc", "n", "ctrl+c"), key.WithHelp("n/esc", "cancel")),
	}
}

// PlanPreviewModel lists the points of a restore plan and asks for
// confirmation before anything is sent to the server
type PlanPreviewModel struct {
	plan      *restore.Plan
	server    string
	cursor    int
	expanded  bool
	confirmed bool
	done      bool
	keys      previewKeyMap
	help      help.Model
}

// NewPlanPreview creates the preview for plan against server
func NewPlanPreview(plan *restore.Plan, server string) PlanPreviewModel {
	return PlanPreviewModel{
		plan:   plan,
		server: server,
		keys:   defaultPreviewKeys(),
		help:   help.New(),
	}
}

func (m PlanPreviewModel) Init() tea.Cmd {
	return nil
}

func (m PlanPreviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.done = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Confirm):
			m.confirmed = true
			m.done = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}

		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.plan.Points)-1 {
				m.cursor++
			}

		case key.Matches(msg, m.keys.Statement):
			m.expanded = !m.expanded
		}
	}

	return m, nil
}

func (m PlanPreviewModel) View() string {
	if m.done {
		if m.confirmed {
			return successStyle.Render(fmt.Sprintf("Restoring %s...", m.plan.Database)) + "\n"
		}
		return errorStyle.Render("Restore cancelled") + "\n"
	}

	var s strings.Builder

	s.WriteString("\n" + titleStyle.Render("SQL Server Restore Plan") + "\n\n")
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Server:  "), m.server))
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Database:"), m.plan.Database))
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Target:  "), m.plan.Target.Summary()))
	if m.plan.Continue {
		s.WriteString(infoStyle.Render("Continuing a restore left in NORECOVERY, full backup skipped") + "\n")
	}
	for _, w := range m.plan.Warnings {
		s.WriteString(warningStyle.Render("⚠ "+w) + "\n")
	}
	s.WriteString("\n")

	for i := range m.plan.Points {
		line := pointLine(i, &m.plan.Points[i])
		if i == m.cursor {
			s.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}

	if m.expanded && len(m.plan.Points) > 0 {
		s.WriteString("\n" + statementBoxStyle.Render(m.plan.Points[m.cursor].Statement) + "\n")
	}

	s.WriteString(fmt.Sprintf("\n%s\n", infoStyle.Render(
		fmt.Sprintf("%d point(s), %s", len(m.plan.Points), metadata.FormatSize(m.plan.TotalSize())))))
	s.WriteString("\n" + m.help.View(m.keys) + "\n")

	return s.String()
}

func pointLine(i int, p *restore.RestorePoint) string {
	mode := strings.ToUpper(string(p.Recovery))
	if !p.StopAt.IsZero() {
		mode += " @ " + p.StopAt.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%2d. %-12s %-28s %d device(s) %10s  %s",
		i+1, p.Type, p.Label(), len(p.Descriptors), metadata.FormatSize(p.Size()),
		recoveryStyle(string(p.Recovery)).Render(mode))
}

// Confirmed reports whether the user accepted the plan
func (m PlanPreviewModel) Confirmed() bool {
	return m.confirmed
}

// ConfirmPlan shows the plan preview on the given terminal streams and
// returns whether the user accepted it
func ConfirmPlan(ctx context.Context, plan *restore.Plan, server string, in io.Reader, out io.Writer) (bool, error) {
	p := tea.NewProgram(NewPlanPreview(plan, server),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out))

	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("plan preview failed: %w", err)
	}
	m, ok := final.(PlanPreviewModel)
	return ok && m.Confirmed(), nil
}
