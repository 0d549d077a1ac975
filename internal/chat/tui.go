package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

const helpLine = "Enter to send · /tool <name> <input> · /reset · Esc skips replay · Ctrl+C quits"

var dataURI = regexp.MustCompile(`data:image/png;base64,[A-Za-z0-9+/=]+`)

type styles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	help      lipgloss.Style
	status    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1),
		user:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		help:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		status:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// Messages for tea updates
type (
	replyMsg struct {
		msg model.Message
		err error
	}
	tickMsg struct{}
)

// Model is the bubbletea chat UI.
type Model struct {
	ctx  context.Context
	conv *Conversation

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   styles

	title     string
	charDelay time.Duration

	pending bool
	// replaying holds the reply being revealed; shown counts revealed runes.
	replaying []rune
	shown     int
	status    string

	width  int
	height int
}

// Options configure NewModel.
type Options struct {
	Title     string
	CharDelay time.Duration
}

func NewModel(ctx context.Context, conv *Conversation, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(80, 20)

	title := opts.Title
	if title == "" {
		title = "Watson Civil Database Chatbot"
	}

	m := Model{
		ctx:       ctx,
		conv:      conv,
		input:     ti,
		viewport:  vp,
		spinner:   sp,
		styles:    defaultStyles(),
		title:     title,
		charDelay: opts.CharDelay,
		width:     80,
		height:    24,
	}
	m.renderer = newRenderer(m.width)
	m.refresh()
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width <= 0 || msg.Height <= 0 {
			return m, nil
		}
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.renderer = newRenderer(msg.Width)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.status = ""
		m.replaying = []rune(displayText(msg.msg.Text))
		m.shown = 0
		if m.charDelay <= 0 {
			m.replaying = nil
		}
		m.refresh()
		return m, m.tick()

	case tickMsg:
		if m.replaying == nil {
			return m, nil
		}
		m.shown++
		if m.shown >= len(m.replaying) {
			m.replaying = nil
		}
		m.refresh()
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.pending {
			// the user message lands in the session from the worker goroutine
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		if m.replaying != nil {
			m.replaying = nil
			m.refresh()
		}
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.pending {
		return m, nil
	}

	if msg.Type == tea.KeyEnter {
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		return m.dispatch(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) dispatch(text string) (tea.Model, tea.Cmd) {
	ctx, conv := m.ctx, m.conv

	if text == "/reset" {
		conv.Reset(ctx)
		m.replaying = nil
		m.status = "Started a new session."
		m.refresh()
		return m, nil
	}

	var run func() (model.Message, error)
	if name, input, ok := ParseToolCommand(text); ok {
		if name == "" {
			m.status = "Usage: /tool <name> <input>"
			m.refresh()
			return m, nil
		}
		run = func() (model.Message, error) { return conv.RunTool(ctx, name, input) }
	} else {
		run = func() (model.Message, error) { return conv.Submit(ctx, text) }
	}

	m.pending = true
	m.replaying = nil
	m.status = ""
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		msg, err := run()
		return replyMsg{msg: msg, err: err}
	})
}

func (m Model) tick() tea.Cmd {
	if m.replaying == nil {
		return nil
	}
	return tea.Tick(m.charDelay, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	switch {
	case m.pending:
		b.WriteString(m.spinner.View() + " Thinking...")
	case m.status != "":
		b.WriteString(m.styles.status.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.help.Render(helpLine))
	return b.String()
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	history := m.conv.Session().History()
	blocks := make([]string, 0, len(history))
	for i, msg := range history {
		if msg.IsFromUser {
			blocks = append(blocks, m.styles.user.Render("You: ")+msg.Text)
			continue
		}
		label := m.styles.assistant.Render("Assistant:")
		if i == len(history)-1 && m.replaying != nil {
			blocks = append(blocks, label+"\n"+string(m.replaying[:m.shown]))
			continue
		}
		blocks = append(blocks, label+"\n"+m.renderMarkdown(displayText(msg.Text)))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// displayText collapses inline PNG data URIs, which are unreadable in a terminal.
func displayText(text string) string {
	return dataURI.ReplaceAllStringFunc(text, func(uri string) string {
		return fmt.Sprintf("[PNG chart, %d bytes base64]", len(uri)-len("data:image/png;base64,"))
	})
}
