package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/watson-civil-chatbot/server/internal/agent/graph"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/nodes"
	"github.com/watson-civil-chatbot/server/internal/agent/graph/tools"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
	"github.com/watson-civil-chatbot/server/internal/agent/repo"
	"github.com/watson-civil-chatbot/server/internal/agent/session"
	"github.com/watson-civil-chatbot/server/internal/chat"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
	"github.com/watson-civil-chatbot/server/pkg/metrics"
)

// app is the wired assistant: orchestrator, session store and the optional
// metrics endpoint.
type app struct {
	cfg     AppConfig
	orch    *graph.Orchestrator
	repo    model.SessionRepository
	closers []func() error
}

func buildApp(ctx context.Context, cfg AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	chatModel, err := nodes.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	completer := tools.ModelCompleter{Model: chatModel}

	registry, err := tools.NewRegistry(tools.DefaultGateRules,
		tools.NewSearch(tools.NewSerpAPI(cfg.Search)),
		tools.NewSQL(cfg.Data, completer),
		tools.NewDataframe(cfg.Data, completer),
		tools.NewChart(cfg.Data.ChartDir),
		tools.Echo{},
		tools.NewExpert(completer),
	)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	a.orch, err = graph.New(ctx, graph.Config{
		ChatModel:    chatModel,
		ModelName:    cfg.LLM.Model,
		Registry:     registry,
		Conversation: cfg.Conversation,
		Title:        cfg.Chat.Title,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New()
		if err != nil {
			return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.repo = repo.NewRedisSessionRepository(rdb, cfg.Conversation.TTL)
		logx.Info().Msg("Connected to Redis; sessions are persisted")
	} else {
		a.repo = session.NewMemoryRepository()
	}

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	logx.Info().Str("addr", addr).Msg("Serving metrics")
}

// conversation resumes sessionID (or starts a new session) and binds it to the orchestrator.
func (a *app) conversation(ctx context.Context, sessionID string) (*chat.Conversation, error) {
	sess, err := session.Resume(ctx, a.repo, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume session %q: %w", sessionID, err)
	}
	return chat.NewConversation(a.orch, a.orch, a.repo, sess), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("close failed")
		}
	}
}
