package tools

import (
	"fmt"
)

// ErrorKind classifies a failed tool run.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindUnavailable: a file, database or backend the tool needs is missing.
	KindUnavailable
	// KindInvalidInput: the tool could not interpret its input.
	KindInvalidInput
	// KindUpstream: an external API or model call failed.
	KindUpstream
	// KindGateClosed: the tool's prerequisite has not succeeded in this session.
	KindGateClosed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindUpstream:
		return "upstream"
	case KindGateClosed:
		return "gate_closed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of one tool run. Exactly one of Output (Kind ==
// KindNone) or Err (any other kind) is meaningful.
type Result struct {
	Output string
	Kind   ErrorKind
	Err    error
}

// OK wraps a successful output.
func OK(output string) Result {
	return Result{Output: output}
}

// Fail wraps a failure; the message becomes the text the model observes.
func Fail(kind ErrorKind, format string, args ...any) Result {
	return Result{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Failed reports whether the run did not produce an answer.
func (r Result) Failed() bool {
	return r.Kind != KindNone
}

// Text is what flows back to the reasoning engine: the output, or the
// descriptive error string.
func (r Result) Text() string {
	if !r.Failed() {
		return r.Output
	}
	if r.Err == nil {
		return r.Kind.String()
	}
	return r.Err.Error()
}
