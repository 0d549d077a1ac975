// Package contextdoc loads the static documents that describe the data schema.
package contextdoc

import (
	"os"
	"strings"

	logx "github.com/watson-civil-chatbot/server/pkg/logger"
)

// Load reads the document at path. Any failure yields "" so a missing
// document never aborts a query.
func Load(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	b, err := os.ReadFile(path)
	if err != nil {
		logx.Debug().Err(err).Str("path", path).Msg("context document unavailable; continuing without it")
		return ""
	}
	return string(b)
}

// Headings introducing a prefixed document.
const (
	DocumentationHeading = "Please refer to the following documentation before answering:"
	CSVHeading           = "Please refer to the following CSV documentation before answering:"
)

// Prefix prepends doc to query. A blank doc leaves the query untouched.
func Prefix(doc, query string) string {
	return PrefixWith(DocumentationHeading, doc, query)
}

// PrefixWith is Prefix with a custom heading line.
func PrefixWith(heading, doc, query string) string {
	if strings.TrimSpace(doc) == "" {
		return query
	}
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n")
	b.WriteString(doc)
	b.WriteString("\n\nUser Query:\n")
	b.WriteString(query)
	return b.String()
}

// LoadAndPrefix reads path at call time and prefixes query with its content.
func LoadAndPrefix(path, query string) string {
	return Prefix(Load(path), query)
}
