package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/watson-civil-chatbot/server/internal/chat"
	logx "github.com/watson-civil-chatbot/server/pkg/logger"
)

var (
	envFile   string
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "watson",
	Short: "Watson Civil Database Chatbot",
	Long: "A conversational assistant over FDOT contract data. It routes questions to web search, " +
		"SQL, dataframe analysis, charting and an FDOT expert, and shows its chain of thought.",
	SilenceUsage: true,
	RunE:         runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat (default)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and print the answer with its chain of thought",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "resume a saved session by ID")
	rootCmd.AddCommand(chatCmd, askCmd)
}

func main() {
	logx.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads config and wires the app. Missing credentials stop the process
// here, before any tool is built.
func setup(ctx context.Context, logToFile bool) (*app, func(), error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to load configuration")
	}

	cleanup := func() {}
	opts := logx.LoggerOpts{Environment: cfg.env()}
	if logToFile && cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		opts.Output = f
		cleanup = func() { _ = f.Close() }
	}
	logx.Init(opts)

	a, err := buildApp(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return a, func() { a.Close(); cleanup() }, nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, cleanup, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer cleanup()

	conv, err := a.conversation(ctx, sessionID)
	if err != nil {
		return err
	}
	logx.Info().Str("session_id", conv.Session().ID).Msg("Chat started")

	m := chat.NewModel(ctx, conv, chat.Options{Title: a.cfg.Chat.Title, CharDelay: a.cfg.Chat.CharDelay})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	fmt.Printf("Session %s saved. Resume with --session %s\n", conv.Session().ID, conv.Session().ID)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, cleanup, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	conv, err := a.conversation(ctx, sessionID)
	if err != nil {
		return err
	}
	msg, err := conv.Submit(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg.Text)
	return nil
}
