package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL      time.Duration `envconfig:"CONVERSATION_TTL" default:"24h"`
	MaxTurns int           `envconfig:"CONVERSATION_MAX_TURNS" default:"6"`
	Tools    struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"8"`
	}
	// ContextDoc is prepended to every query routed through the orchestrator.
	ContextDoc string `envconfig:"CONTEXT_DOC" default:"src/data/CONTEXT.md"`
}

type LLMConfig struct {
	Provider     string  `envconfig:"LLM_PROVIDER" default:"openai"`
	OpenAIAPIKey string  `envconfig:"OPENAI_API_KEY" required:"true"`
	GeminiAPIKey string  `envconfig:"GEMINI_API_KEY"`
	Model        string  `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	BaseURL      string  `envconfig:"LLM_BASE_URL"`
	MaxTokens    int     `envconfig:"LLM_MAX_TOKENS" default:"2000"`
	Temperature  float32 `envconfig:"LLM_TEMPERATURE" default:"0"`
}

type SearchConfig struct {
	APIKey  string        `envconfig:"SERPAPI_API_KEY" required:"true"`
	BaseURL string        `envconfig:"SEARCH_BASE_URL" default:"https://serpapi.com/search.json"`
	Engine  string        `envconfig:"SEARCH_ENGINE" default:"google"`
	Timeout time.Duration `envconfig:"SEARCH_TIMEOUT" default:"20s"`
}

type DataConfig struct {
	DatabaseURL   string `envconfig:"SQL_DATABASE_URL" default:"sqlite://fdot_database.db"`
	ExpectedTable string `envconfig:"SQL_EXPECTED_TABLE"`
	SchemaDoc     string `envconfig:"SQL_SCHEMA_DOC" default:"src/data/SQL.md"`
	MaxRows       int    `envconfig:"SQL_MAX_ROWS" default:"50"`
	CSVPath       string `envconfig:"CSV_PATH" default:"src/data/DedupeContract_202502192343.csv"`
	CSVDoc        string `envconfig:"CSV_DOC" default:"src/data/CSV.md"`
	ChartDir      string `envconfig:"CHART_DIR"`
}

type ChatConfig struct {
	CharDelay time.Duration `envconfig:"CHAT_CHAR_DELAY" default:"10ms"`
	Title     string        `envconfig:"CHAT_TITLE" default:"Watson Civil Database Chatbot"`
}
