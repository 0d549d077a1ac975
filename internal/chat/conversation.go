// Package chat is the interactive surface: a transcript bound to one session
// and the terminal UI that drives it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/watson-civil-chatbot/server/internal/agent/graph/tools"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
	"github.com/watson-civil-chatbot/server/internal/agent/session"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
)

// ErrEmptyInput is returned for blank submissions; nothing is recorded.
var ErrEmptyInput = errors.New("empty input")

// Handler answers one query for a session.
type Handler interface {
	Handle(ctx context.Context, sess *model.Session, query string) (string, error)
}

// ToolRunner dispatches a tool directly.
type ToolRunner interface {
	RunTool(ctx context.Context, sess *model.Session, name, input string) tools.Result
}

// Conversation owns the session of one chat and persists it after every turn.
type Conversation struct {
	handler Handler
	runner  ToolRunner
	repo    model.SessionRepository

	mu   sync.Mutex
	sess *model.Session
}

// NewConversation binds handler to sess. runner and repo may be nil.
func NewConversation(handler Handler, runner ToolRunner, repo model.SessionRepository, sess *model.Session) *Conversation {
	if sess == nil {
		sess = session.New()
	}
	return &Conversation{handler: handler, runner: runner, repo: repo, sess: sess}
}

// Session returns the current session.
func (c *Conversation) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Submit records text as a user message, asks the handler synchronously and
// records the reply. A handler error becomes an "Error: ..." reply so the
// transcript always gains exactly two messages.
func (c *Conversation) Submit(ctx context.Context, text string) (model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, ErrEmptyInput
	}
	sess := c.Session()
	sess.Append(text, true)

	reply, err := c.handler.Handle(ctx, sess, text)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sess.ID).Msg("chat turn failed")
		reply = "Error: " + err.Error()
	}
	msg := sess.Append(reply, false)
	c.save(ctx, sess)
	return msg, nil
}

// RunTool handles the "/tool <name> <input>" command: the command line and the
// tool's text are recorded like a normal turn. Failure text is recorded as the
// tool produced it.
func (c *Conversation) RunTool(ctx context.Context, name, input string) (model.Message, error) {
	if c.runner == nil {
		return model.Message{}, fmt.Errorf("direct tool calls are not available")
	}
	if strings.TrimSpace(name) == "" {
		return model.Message{}, ErrEmptyInput
	}
	sess := c.Session()
	sess.Append(strings.TrimSpace("/tool "+name+" "+input), true)

	res := c.runner.RunTool(ctx, sess, name, input)
	if res.Failed() {
		logx.Debug().Str("session_id", sess.ID).Str("tool", name).Str("outcome", res.Kind.String()).Msg("direct tool call failed")
	}
	msg := sess.Append(res.Text(), false)
	c.save(ctx, sess)
	return msg, nil
}

// Reset drops the current session and starts a fresh one.
func (c *Conversation) Reset(ctx context.Context) *model.Session {
	c.mu.Lock()
	old := c.sess
	c.sess = session.New()
	fresh := c.sess
	c.mu.Unlock()

	if c.repo != nil && old != nil {
		if err := c.repo.Delete(ctx, old.ID); err != nil {
			logx.Warn().Err(err).Str("session_id", old.ID).Msg("failed to delete session")
		}
	}
	return fresh
}

func (c *Conversation) save(ctx context.Context, sess *model.Session) {
	if c.repo == nil {
		return
	}
	if err := c.repo.Save(ctx, sess); err != nil {
		logx.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to save session")
	}
}

// ParseToolCommand splits "/tool <name> <input>". ok is false for other text.
func ParseToolCommand(text string) (name, input string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(text), "/tool")
	if !found || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return "", "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", "", true
	}
	name = fields[0]
	input = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), name))
	return name, input, true
}
