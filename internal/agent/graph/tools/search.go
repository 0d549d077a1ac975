package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

const noSearchResult = "No good search result found"

// Searcher runs a web query and returns the best textual answer.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SerpAPI queries serpapi.com and extracts an answer the way the SerpAPI
// wrapper popular in agent frameworks does: answer box first, then knowledge
// graph, then organic snippets.
type SerpAPI struct {
	apiKey  string
	baseURL string
	engine  string
	client  *resty.Client
}

func NewSerpAPI(cfg model.SearchConfig) *SerpAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(3 * time.Second)

	engine := cfg.Engine
	if engine == "" {
		engine = "google"
	}
	return &SerpAPI{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, engine: engine, client: client}
}

type serpResponse struct {
	Error     string `json:"error"`
	AnswerBox *struct {
		Answer                  string   `json:"answer"`
		Snippet                 string   `json:"snippet"`
		SnippetHighlightedWords []string `json:"snippet_highlighted_words"`
	} `json:"answer_box"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledge_graph"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Search(ctx context.Context, query string) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":       query,
			"engine":  s.engine,
			"api_key": s.apiKey,
		}).
		Get(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("serpapi request: %w", err)
	}

	var out serpResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		if resp.StatusCode() != http.StatusOK {
			return "", fmt.Errorf("serpapi http %d", resp.StatusCode())
		}
		return "", fmt.Errorf("decode serpapi response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("serpapi: %s", out.Error)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("serpapi http %d", resp.StatusCode())
	}
	return out.best(), nil
}

func (r *serpResponse) best() string {
	if ab := r.AnswerBox; ab != nil {
		switch {
		case ab.Answer != "":
			return ab.Answer
		case ab.Snippet != "":
			return ab.Snippet
		case len(ab.SnippetHighlightedWords) > 0:
			return ab.SnippetHighlightedWords[0]
		}
	}
	if kg := r.KnowledgeGraph; kg != nil && kg.Description != "" {
		return kg.Description
	}

	var snippets []string
	for _, o := range r.OrganicResults {
		if o.Snippet == "" {
			continue
		}
		snippets = append(snippets, fmt.Sprintf("%s (%s): %s", o.Title, o.Link, o.Snippet))
		if len(snippets) == 3 {
			break
		}
	}
	if len(snippets) > 0 {
		return strings.Join(snippets, "\n")
	}
	return noSearchResult
}

// Search is the web search tool.
type Search struct {
	searcher Searcher
}

func NewSearch(searcher Searcher) *Search {
	return &Search{searcher: searcher}
}

func (s *Search) Name() string { return ToolSearch }

func (s *Search) Description() string {
	return "Performs an internet search for current events, public information and anything not in the contracts data. Input is the search query."
}

func (s *Search) Run(ctx context.Context, input string) Result {
	if strings.TrimSpace(input) == "" {
		return Fail(KindInvalidInput, "Error: search query is empty")
	}
	answer, err := s.searcher.Search(ctx, input)
	if err != nil {
		return Fail(KindUpstream, "Error performing search: %v", err)
	}
	return OK(answer)
}
