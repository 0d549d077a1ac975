package tools

import (
	"context"
	"errors"
	"sync"
)

// scriptedCompleter returns replies in order and records what it was asked.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	err     error
	systems []string
	users   []string
}

func (c *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systems = append(c.systems, system)
	c.users = append(c.users, user)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

// stubAdapter is a fixed-result adapter used to exercise the registry.
type stubAdapter struct {
	name   string
	result Result
	calls  int
}

func (s *stubAdapter) Name() string        { return s.name }
func (s *stubAdapter) Description() string { return s.name + " tool" }
func (s *stubAdapter) Run(context.Context, string) Result {
	s.calls++
	return s.result
}
