package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/models"
	"github.com/balkashynov/qcscan/internal/scan"
)

// Submitter runs a scan through the ingestion pipeline
type Submitter interface {
	Submit(ctx context.Context, sessionID, code, scanRecordID string) scan.Result
}

// ItemLister reads the items of a session
type ItemLister interface {
	ListItems(ctx context.Context, sessionID, status string) ([]models.InspectionItem, error)
}

// StationConfig wires a station to the pipeline
type StationConfig struct {
	Scans       Submitter
	Items       ItemLister
	StepTimeout time.Duration
	MaxParallel int
}

// StationModel is the scanner station. A keyboard-wedge scanner types the
// decoded code followed by Enter into the input.
type StationModel struct {
	width  int
	height int

	cfg     StationConfig
	session models.WorkerSession
	input   textinput.Model

	items   []models.InspectionItem // active items
	now     time.Time
	last    *scan.Result
	lastAt  time.Time
	lastErr error
	scans   int

	ending  bool // user asked to end the session
	exiting bool
}

type stationTickMsg time.Time

type scanResultMsg struct {
	code   string
	result scan.Result
}

type itemsMsg struct {
	items []models.InspectionItem
	err   error
}

// NewStationModel creates a station for an active session
func NewStationModel(cfg StationConfig, session models.WorkerSession) StationModel {
	input := textinput.New()
	input.Width = 40
	input.CharLimit = 500
	input.Placeholder = "Scan a code..."
	input.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
	input.PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPlaceholder))
	input.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))
	input.Focus()

	return StationModel{
		cfg:     cfg,
		session: session,
		input:   input,
		now:     time.Now(),
	}
}

// Init starts the clock and loads the active items
func (m StationModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick(), m.loadItems())
}

// Update handles messages
func (m StationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stationTickMsg:
		m.now = time.Time(msg)
		if m.ending || m.exiting {
			return m, nil
		}
		return m, tick()

	case scanResultMsg:
		res := msg.result
		m.last = &res
		m.lastAt = m.now
		if res.Accepted() {
			m.scans++
		}
		return m, m.loadItems()

	case itemsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.items = msg.items
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.exiting = true
			return m, tea.Quit
		case tea.KeyCtrlE:
			m.ending = true
			return m, tea.Quit
		case tea.KeyEnter:
			code := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if code == "" {
				return m, nil
			}
			return m, m.submit(code)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return stationTickMsg(t)
	})
}

func (m StationModel) submit(code string) tea.Cmd {
	scans := m.cfg.Scans
	sessionID := m.session.ID
	return func() tea.Msg {
		res := scans.Submit(context.Background(), sessionID, code, uuid.New().String())
		return scanResultMsg{code: code, result: res}
	}
}

func (m StationModel) loadItems() tea.Cmd {
	items := m.cfg.Items
	sessionID := m.session.ID
	return func() tea.Msg {
		active, err := items.ListItems(context.Background(), sessionID, models.StatusActive)
		return itemsMsg{items: active, err: err}
	}
}

// View renders the station
func (m StationModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	helpBar := m.renderHelpBar()
	contentHeight := m.height - 2

	if m.width < 90 {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderSessionPanel(m.width, contentHeight/2),
			m.renderItemsPanel(m.width, contentHeight-contentHeight/2),
			helpBar,
		)
	}

	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth - 2

	content := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderSessionPanel(leftWidth, contentHeight),
		"  ",
		m.renderItemsPanel(rightWidth, contentHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, content, helpBar)
}

// renderSessionPanel renders the session clock, the scan input and the last outcome
func (m StationModel) renderSessionPanel(width, height int) string {
	center := lipgloss.NewStyle().Align(lipgloss.Center).Width(width)

	var components []string

	header := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorAccentBright)).
		Bold(true).
		Align(lipgloss.Center).
		Width(width).
		Render("QC STATION · " + m.session.WorkerID)
	components = append(components, header)

	clock := strings.Split(renderBigClock(m.now.Sub(m.session.StartedAt)), "\n")
	for i, line := range clock {
		clock[i] = center.Render(line)
	}
	components = append(components, strings.Join(clock, "\n"))

	started := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorSecondaryText)).
		Italic(true).
		Align(lipgloss.Center).
		Width(width).
		Render(fmt.Sprintf("Session started at %s · %d scans", m.session.StartedAt.Format("15:04:05"), m.scans))
	components = append(components, started)

	inputBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccentMain)).
		Padding(0, 1).
		Render(m.input.View())
	components = append(components, center.Render(inputBox))

	if line := m.renderLastOutcome(); line != "" {
		components = append(components, center.Render(line))
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(components, "\n\n"))
}

func (m StationModel) renderLastOutcome() string {
	if m.last == nil {
		return ""
	}
	if !m.last.Accepted() {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorDisabledText)).
			Render("duplicate scan ignored")
	}

	o := m.last.Outcome
	color := ColorError
	icon := "❌"
	switch {
	case o.IsTransition():
		color = ColorSuccess
		icon = "✅"
		if o.Type == inspection.OutcomeEntranceStarted {
			icon = "▶️ "
		}
	case o.IsPolicyRejection():
		color = ColorWarning
		icon = "⛔"
	}

	text := icon + " " + o.Message
	if o.Overdue {
		text += " (overdue)"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(text)
}

// renderItemsPanel renders the in-flight items with their elapsed time
func (m StationModel) renderItemsPanel(width, height int) string {
	var b strings.Builder

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorPrimaryText)).
		Align(lipgloss.Center).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccentMain)).
		Width(width - 4).
		Padding(0, 1).
		Render(fmt.Sprintf("In inspection %d/%d", len(m.items), m.cfg.MaxParallel))
	b.WriteString(title)
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("Error: " + m.lastErr.Error()))
		b.WriteString("\n")
	}

	if len(m.items) == 0 {
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorDisabledText)).
			Italic(true).
			Render("Nothing in inspection. Scan a code to start."))
		return lipgloss.NewStyle().Width(width).Height(height).Render(b.String())
	}

	codeWidth := width - 16
	if codeWidth < 8 {
		codeWidth = 8
	}
	for _, item := range m.items {
		code := item.Code
		if len(code) > codeWidth {
			code = code[:codeWidth-3] + "..."
		}

		elapsed := item.Elapsed(m.now)
		color := ColorPrimaryText
		if m.isOverdue(elapsed) {
			color = ColorWarning
		}

		line := fmt.Sprintf("%-*s %10s", codeWidth, code, clockText(elapsed))
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(line))
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().Width(width).Height(height).Render(b.String())
}

func (m StationModel) isOverdue(elapsed time.Duration) bool {
	return m.cfg.StepTimeout > 0 && elapsed > m.cfg.StepTimeout
}

// renderHelpBar renders the help bar at the bottom
func (m StationModel) renderHelpBar() string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorHelpText)).
		Italic(true).
		Align(lipgloss.Center).
		Width(m.width).
		Render("enter submit scan · ctrl+e end session · esc/ctrl+c leave (session keeps running)")
}
