package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/watson-civil-chatbot/server/internal/core"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// Output overrides the destination; nil means stderr. The chat TUI owns the
	// terminal, so it points this at a log file.
	Output io.Writer
}

func safe(opts ...LoggerOpts) *LoggerOpts {
	if len(opts) == 0 {
		return DefaultLoggerOpts
	}
	return &opts[0]
}

func Init(opts ...LoggerOpts) {
	o := safe(opts...)
	out := o.Output
	if out == nil {
		out = os.Stderr
	}

	if o.Environment.IsProduction() {
		log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(zerolog.InfoLevel)
		return
	}

	// Colour codes only make sense on a terminal.
	console := zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stderr && out != os.Stdout}
	log.Logger = zerolog.New(console).With().Timestamp().Caller().Logger().Level(zerolog.DebugLevel)
}

// Discard silences all logging; tests use it to keep output clean.
func Discard() {
	log.Logger = zerolog.Nop()
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
