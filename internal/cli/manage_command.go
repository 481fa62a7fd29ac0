package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"flexfetch/internal/model"
	"flexfetch/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type manageMode int

const (
	manageModeBrowse manageMode = iota
	manageModeForm
	manageModeDeleteConfirm
)

type manageModel struct {
	queries []model.Query
	cursor  int
	width   int
	height  int
	mode    manageMode
	form    *manageForm

	confirmDeleteID string
	statusMessage   string
	fatalErr        error
}

type manageLoadedMsg struct {
	queries []model.Query
	err     error
}

type manageSaveMsg struct {
	message string
	err     error
}

type manageDeleteMsg struct {
	message string
	err     error
}

var (
	manageTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	manageMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	manageErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	manageOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	managePanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	manageSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

func runManage(args []string) error {
	fs := flag.NewFlagSet("manage", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("manage requires an interactive terminal (TTY)")
	}

	m := manageModel{mode: manageModeBrowse}
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("manage requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(manageModel); ok {
		return fm.fatalErr
	}
	return nil
}

func loadQueriesCmd() tea.Cmd {
	return func() tea.Msg {
		st, err := store.OpenDefault()
		if err != nil {
			return manageLoadedMsg{err: err}
		}
		defer st.Close()
		queries, err := st.ListQueries()
		return manageLoadedMsg{queries: queries, err: err}
	}
}

func deleteQueryCmd(id string) tea.Cmd {
	return func() tea.Msg {
		st, err := store.OpenDefault()
		if err != nil {
			return manageDeleteMsg{err: err}
		}
		defer st.Close()
		if err := st.RemoveQuery(id); err != nil {
			return manageDeleteMsg{err: err}
		}
		return manageDeleteMsg{message: fmt.Sprintf("query %s removed", id)}
	}
}

func (m manageModel) Init() tea.Cmd {
	return loadQueriesCmd()
}

func (m manageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case manageLoadedMsg:
		if msg.err != nil {
			m.fatalErr = msg.err
			return m, tea.Quit
		}
		m.queries = msg.queries
		if m.cursor > len(m.queries) {
			m.cursor = len(m.queries)
		}
		return m, nil
	case manageSaveMsg:
		if msg.err != nil {
			if m.form != nil {
				m.form.Error = msg.err.Error()
				m.form.Saving = false
			}
			return m, nil
		}
		m.mode = manageModeBrowse
		m.form = nil
		m.statusMessage = msg.message
		return m, loadQueriesCmd()
	case manageDeleteMsg:
		m.mode = manageModeBrowse
		m.confirmDeleteID = ""
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = msg.message
		return m, loadQueriesCmd()
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch m.mode {
	case manageModeBrowse:
		return m.updateBrowse(keyMsg)
	case manageModeForm:
		return m.updateForm(keyMsg)
	case manageModeDeleteConfirm:
		return m.updateDeleteConfirm(keyMsg)
	default:
		return m, nil
	}
}

// Browse rows are the queries followed by one synthetic "add" row.
func (m manageModel) totalBrowseRows() int {
	return len(m.queries) + 1
}

func (m manageModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < m.totalBrowseRows()-1 {
			m.cursor++
		}
		return m, nil
	case "r":
		return m, loadQueriesCmd()
	case "n":
		m.mode = manageModeForm
		m.form = newManageForm(nil, m.width)
		m.statusMessage = ""
		return m, nil
	case "enter", "e":
		if m.cursor >= len(m.queries) {
			m.mode = manageModeForm
			m.form = newManageForm(nil, m.width)
			m.statusMessage = ""
			return m, nil
		}
		selected := m.queries[m.cursor]
		m.mode = manageModeForm
		m.form = newManageForm(&selected, m.width)
		m.statusMessage = ""
		return m, nil
	case "d":
		if len(m.queries) == 0 || m.cursor >= len(m.queries) {
			m.statusMessage = "select a query to delete"
			return m, nil
		}
		m.mode = manageModeDeleteConfirm
		m.confirmDeleteID = m.queries[m.cursor].ID
		return m, nil
	}
	return m, nil
}

func (m manageModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = manageModeBrowse
		return m, nil
	}
	if m.form.Saving {
		return m, nil
	}

	switch strings.ToLower(msg.String()) {
	case "ctrl+c", "esc":
		m.mode = manageModeBrowse
		m.form = nil
		m.statusMessage = "edit cancelled"
		return m, nil
	case "up", "shift+tab":
		m.form.commitInput()
		if m.form.Index > 0 {
			m.form.Index--
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "down", "tab":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 {
			m.form.Index++
		}
		m.form.loadFieldIntoInput()
		return m, nil
	case "left", "right", " ":
		if m.form.currentField().Kind == manageFieldSelect {
			m.form.cycleSelectField()
			return m, nil
		}
	case "enter":
		m.form.commitInput()
		if m.form.Index < len(m.form.Fields)-1 {
			m.form.Index++
			m.form.loadFieldIntoInput()
			return m, nil
		}
		if err := m.form.validate(); err != nil {
			m.form.Error = err.Error()
			return m, nil
		}
		m.form.Saving = true
		return m, saveQueryCmd(*m.form)
	}

	if m.form.currentField().Kind != manageFieldSelect {
		var cmd tea.Cmd
		m.form.Input, cmd = m.form.Input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m manageModel) updateDeleteConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		return m, deleteQueryCmd(m.confirmDeleteID)
	case "n", "esc", "ctrl+c":
		m.mode = manageModeBrowse
		m.confirmDeleteID = ""
		m.statusMessage = "delete cancelled"
		return m, nil
	}
	return m, nil
}

func (m manageModel) View() string {
	switch m.mode {
	case manageModeForm:
		return m.viewForm()
	case manageModeDeleteConfirm:
		return m.viewDeleteConfirm()
	default:
		return m.viewBrowse()
	}
}

func (m manageModel) viewBrowse() string {
	header := manageTitleStyle.Render("flexfetch queries")
	var rows []string
	for i, q := range m.queries {
		line := fmt.Sprintf("%-10s %-28s %-20s %s", q.ID, clip(q.DisplayName(), 28), q.Type, formatHours(q.EffectiveInterval()))
		if i == m.cursor {
			line = manageSelStyle.Render(line)
		}
		rows = append(rows, line)
	}
	addLine := "+ add query"
	if m.cursor == len(m.queries) {
		addLine = manageSelStyle.Render(addLine)
	}
	rows = append(rows, addLine)

	hints := manageMutedStyle.Render("up/down move · enter edit · n new · d delete · r reload · q quit")
	status := ""
	if m.statusMessage != "" {
		status = manageOKStyle.Render(m.statusMessage)
	}
	list := managePanelStyle.Render(strings.Join(rows, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, list, hints, status)
}

func (m manageModel) viewForm() string {
	if m.form == nil {
		return ""
	}
	header := manageTitleStyle.Render(m.form.Title)
	var lines []string
	for i, f := range m.form.Fields {
		marker := "  "
		value := f.Value
		if i == m.form.Index {
			marker = "> "
			if f.Kind == manageFieldSelect {
				value = "< " + f.Value + " >"
			} else {
				value = m.form.Input.View()
			}
		}
		if value == "" {
			value = manageMutedStyle.Render("(default)")
		}
		lines = append(lines, fmt.Sprintf("%s%-10s %s", marker, f.Label, value))
		if i == m.form.Index && f.Help != "" {
			lines = append(lines, "  "+manageMutedStyle.Render(f.Help))
		}
	}
	if m.form.Error != "" {
		lines = append(lines, manageErrorStyle.Render(m.form.Error))
	}
	hints := manageMutedStyle.Render("tab next field · enter save · esc cancel")
	panel := managePanelStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, hints)
}

func (m manageModel) viewDeleteConfirm() string {
	panel := managePanelStyle.Render(fmt.Sprintf(
		"delete query %s and its download history?\n\n%s",
		m.confirmDeleteID,
		manageMutedStyle.Render("y confirm · n cancel"),
	))
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
	}
	return panel
}
