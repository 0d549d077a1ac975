package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

func newTestModel(delay time.Duration) (Model, *echoHandler) {
	h := &echoHandler{}
	conv := NewConversation(h, toolRunner{}, nil, model.NewSession("tui"))
	return NewModel(context.Background(), conv, Options{CharDelay: delay}), h
}

func typeText(m Model, text string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

// runBatch executes cmd and returns the first replyMsg it produces.
func runBatch(t *testing.T, cmd tea.Cmd) replyMsg {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if r, ok := c().(replyMsg); ok {
				return r
			}
		}
		t.Fatal("batch produced no reply")
	}
	r, ok := msg.(replyMsg)
	require.True(t, ok, "unexpected msg %T", msg)
	return r
}

func TestEnterSubmitsAndReplays(t *testing.T) {
	m, h := newTestModel(time.Millisecond)
	m = typeText(m, "hello")
	assert.Equal(t, "hello", m.input.Value())

	m, cmd := press(m, tea.KeyEnter)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())

	reply := runBatch(t, cmd)
	require.NoError(t, reply.err)
	assert.Equal(t, 1, h.calls)

	next, tick := m.Update(reply)
	m = next.(Model)
	assert.False(t, m.pending)
	require.NotNil(t, m.replaying)
	assert.Equal(t, 0, m.shown)
	require.NotNil(t, tick)

	for i := 0; m.replaying != nil; i++ {
		require.Less(t, i, 1000)
		next, _ = m.Update(tickMsg{})
		m = next.(Model)
	}
	assert.Contains(t, m.transcript(), "reply to hello")
	assert.Equal(t, 2, m.conv.Session().Len())
}

func TestReplayRevealsOneRunePerTick(t *testing.T) {
	m, _ := newTestModel(time.Millisecond)
	next, _ := m.Update(replyMsg{msg: model.Message{Text: "héllo"}})
	m = next.(Model)

	for want := 1; want <= 4; want++ {
		next, _ = m.Update(tickMsg{})
		m = next.(Model)
		assert.Equal(t, want, m.shown)
	}
	next, _ = m.Update(tickMsg{})
	m = next.(Model)
	assert.Nil(t, m.replaying)
}

func TestInputIgnoredWhilePending(t *testing.T) {
	m, h := newTestModel(0)
	m = typeText(m, "first")
	m, _ = press(m, tea.KeyEnter)
	require.True(t, m.pending)

	m = typeText(m, "second")
	assert.Empty(t, m.input.Value())

	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Zero(t, h.calls)
}

func TestEscSkipsReplay(t *testing.T) {
	m, _ := newTestModel(time.Second)
	next, _ := m.Update(replyMsg{msg: model.Message{Text: "a long reply"}})
	m = next.(Model)
	require.NotNil(t, m.replaying)

	m, _ = press(m, tea.KeyEsc)
	assert.Nil(t, m.replaying)
}

func TestToolCommand(t *testing.T) {
	m, h := newTestModel(0)
	m = typeText(m, "/tool echo hi")
	m, cmd := press(m, tea.KeyEnter)

	reply := runBatch(t, cmd)
	require.NoError(t, reply.err)
	assert.Equal(t, "echo:hi", reply.msg.Text)
	assert.Zero(t, h.calls)

	next, _ := m.Update(reply)
	m = next.(Model)
	m = typeText(m, "/tool")
	m, cmd = press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "Usage")
}

func TestResetCommand(t *testing.T) {
	m, _ := newTestModel(0)
	old := m.conv.Session().ID
	m = typeText(m, "/reset")
	m, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
	assert.NotEqual(t, old, m.conv.Session().ID)
}

func TestWindowResize(t *testing.T) {
	m, _ := newTestModel(0)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 34, m.viewport.Height)

	next, _ = m.Update(tea.WindowSizeMsg{Width: 0, Height: 0})
	assert.Equal(t, 120, next.(Model).width)
}

func TestDisplayTextCollapsesImages(t *testing.T) {
	out := displayText("chart: data:image/png;base64,iVBORw0KGgo= done")
	assert.Equal(t, "chart: [PNG chart, 12 bytes base64] done", out)
}

func TestViewShowsTitleAndHelp(t *testing.T) {
	m, _ := newTestModel(0)
	v := m.View()
	assert.True(t, strings.Contains(v, "Watson Civil Database Chatbot"))
	assert.Contains(t, v, "/reset")
}
