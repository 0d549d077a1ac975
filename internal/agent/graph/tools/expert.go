package tools

import (
	"context"
	"strings"
)

const expertSystemPrompt = "You are FDOT Bot, an expert agent specialized in FDOT-related queries for civil engineering construction. Answer clearly and concisely."

// Expert answers FDOT and civil-engineering questions straight from the model.
type Expert struct {
	llm Completer
}

func NewExpert(llm Completer) *Expert {
	return &Expert{llm: llm}
}

func (e *Expert) Name() string { return ToolExpert }

func (e *Expert) Description() string {
	return "FDOT Bot: answers general questions about FDOT specifications, standards and civil engineering construction practice. Input is the question."
}

func (e *Expert) Run(ctx context.Context, input string) Result {
	if strings.TrimSpace(input) == "" {
		return Fail(KindInvalidInput, "Error: expert question is empty")
	}
	answer, err := e.llm.Complete(ctx, expertSystemPrompt, input)
	if err != nil {
		return Fail(KindUpstream, "Error calling FDOT expert model: %v", err)
	}
	return OK(answer)
}
