package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/watson-civil-chatbot/server/internal/agent/contextdoc"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

const sqlSystemPrompt = `You translate questions about a contracts database into a single read-only SQL query.
Rules:
- Answer with exactly one SELECT (or WITH ... SELECT) statement and nothing else.
- Only use tables and columns listed in the schema.
- Never modify data.
- Limit results to %d rows unless the question asks for an aggregate.
Dialect: %s.

Schema:
%s`

var (
	sqlFence     = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")
	sqlForbidden = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|attach|detach|pragma|vacuum|truncate|grant|revoke|merge|copy)\b`)
	sqlStart     = regexp.MustCompile(`(?i)^\s*(select|with)\b`)
)

// DSN is a parsed SQL_DATABASE_URL.
type DSN struct {
	Driver string // "sqlite" or "pgx"
	Source string
	// Path is the sqlite file, empty for in-memory or server databases.
	Path string
}

// ParseDSN accepts sqlite://path, sqlite:///abs/path, a bare file path, or a
// postgres:// / postgresql:// URL.
func ParseDSN(raw string) (DSN, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return DSN{}, errors.New("database url is empty")
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return DSN{Driver: "pgx", Source: raw}, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		// sqlite:///abs keeps its leading slash, sqlite://rel is relative
		if path == "" {
			return DSN{}, fmt.Errorf("sqlite url %q has no path", raw)
		}
		return sqliteDSN(path), nil
	case strings.Contains(raw, "://"):
		return DSN{}, fmt.Errorf("unsupported database url scheme in %q", raw)
	default:
		return sqliteDSN(raw), nil
	}
}

func sqliteDSN(path string) DSN {
	if path == ":memory:" {
		return DSN{Driver: "sqlite", Source: path}
	}
	return DSN{Driver: "sqlite", Source: "file:" + path + "?mode=ro", Path: path}
}

// SQL answers natural-language questions against the contracts database.
type SQL struct {
	dsn       DSN
	dsnErr    error
	table     string
	schemaDoc string
	maxRows   int
	llm       Completer
	timeout   time.Duration
}

func NewSQL(cfg model.DataConfig, llm Completer) *SQL {
	dsn, err := ParseDSN(cfg.DatabaseURL)
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 50
	}
	return &SQL{
		dsn:       dsn,
		dsnErr:    err,
		table:     cfg.ExpectedTable,
		schemaDoc: cfg.SchemaDoc,
		maxRows:   maxRows,
		llm:       llm,
		timeout:   30 * time.Second,
	}
}

func (t *SQL) Name() string { return ToolSQL }

func (t *SQL) Description() string {
	return "Answers questions from the FDOT contracts SQL database (contracts, vendors, amounts, dates). Input is the question in plain English."
}

func (t *SQL) Run(ctx context.Context, input string) Result {
	if strings.TrimSpace(input) == "" {
		return Fail(KindInvalidInput, "Error: sql question is empty")
	}
	if t.dsnErr != nil {
		return Fail(KindUnavailable, "Error: database is not configured: %v", t.dsnErr)
	}
	if t.dsn.Path != "" {
		if _, err := os.Stat(t.dsn.Path); err != nil {
			return Fail(KindUnavailable, "Error: database file %s is not available: %v", t.dsn.Path, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	db, err := sql.Open(t.dsn.Driver, t.dsn.Source)
	if err != nil {
		return Fail(KindUnavailable, "Error opening database: %v", err)
	}
	defer db.Close()

	schema, err := introspect(ctx, db, t.dsn.Driver)
	if err != nil {
		return Fail(KindUnavailable, "Error reading database schema: %v", err)
	}
	if len(schema) == 0 {
		return Fail(KindUnavailable, "Error: database has no tables")
	}
	if t.table != "" {
		if _, ok := schema[t.table]; !ok {
			return Fail(KindUnavailable, "Error: expected table %q not found in database (tables: %s)", t.table, strings.Join(schema.tables(), ", "))
		}
	}

	dialect := "SQLite"
	if t.dsn.Driver == "pgx" {
		dialect = "PostgreSQL"
	}
	system := fmt.Sprintf(sqlSystemPrompt, t.maxRows, dialect, schema.String())
	raw, err := t.llm.Complete(ctx, system, contextdoc.LoadAndPrefix(t.schemaDoc, input))
	if err != nil {
		return Fail(KindUpstream, "Error generating SQL: %v", err)
	}
	query, err := ExtractSelect(raw)
	if err != nil {
		return Fail(KindInvalidInput, "Error: could not derive a read-only query: %v", err)
	}

	table, err := runQuery(ctx, db, query, t.maxRows)
	if err != nil {
		return Fail(KindInvalidInput, "Error executing query %q: %v", query, err)
	}
	return OK(fmt.Sprintf("```sql\n%s\n```\n\n%s", query, table))
}

// ExtractSelect pulls one read-only statement out of a model reply.
func ExtractSelect(reply string) (string, error) {
	q := strings.TrimSpace(reply)
	if m := sqlFence.FindStringSubmatch(q); m != nil {
		q = strings.TrimSpace(m[1])
	}
	q = strings.TrimSpace(strings.TrimRight(q, "; \n\t"))
	if q == "" {
		return "", errors.New("empty query")
	}
	bare := maskQuoted(q)
	if strings.Contains(bare, ";") {
		return "", errors.New("multiple statements are not allowed")
	}
	if !sqlStart.MatchString(bare) {
		return "", fmt.Errorf("not a SELECT statement: %q", firstLine(q))
	}
	if kw := sqlForbidden.FindString(bare); kw != "" {
		return "", fmt.Errorf("forbidden keyword %q", strings.ToUpper(kw))
	}
	return q, nil
}

// maskQuoted blanks the contents of quoted literals and identifiers so the
// statement checks only see SQL syntax. A doubled quote stays inside the literal.
func maskQuoted(q string) string {
	b := []byte(q)
	var quote byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case quote == 0 && (c == '\'' || c == '"'):
			quote = c
		case quote != 0 && c == quote:
			if i+1 < len(b) && b[i+1] == quote {
				b[i], b[i+1] = ' ', ' '
				i++
				continue
			}
			quote = 0
		case quote != 0:
			b[i] = ' '
		}
	}
	return string(b)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

type column struct {
	Name string
	Type string
}

type dbSchema map[string][]column

func (s dbSchema) tables() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s dbSchema) String() string {
	var b strings.Builder
	for _, name := range s.tables() {
		cols := make([]string, len(s[name]))
		for i, c := range s[name] {
			cols[i] = strings.TrimSpace(c.Name + " " + c.Type)
		}
		fmt.Fprintf(&b, "%s(%s)\n", name, strings.Join(cols, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func introspect(ctx context.Context, db *sql.DB, driver string) (dbSchema, error) {
	if driver == "pgx" {
		return introspectPostgres(ctx, db)
	}
	return introspectSQLite(ctx, db)
}

func introspectSQLite(ctx context.Context, db *sql.DB) (dbSchema, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(dbSchema, len(names))
	for _, n := range names {
		cols, err := db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, n)
		if err != nil {
			return nil, err
		}
		for cols.Next() {
			var c column
			if err := cols.Scan(&c.Name, &c.Type); err != nil {
				cols.Close()
				return nil, err
			}
			out[n] = append(out[n], c)
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func introspectPostgres(ctx context.Context, db *sql.DB) (dbSchema, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := dbSchema{}
	for rows.Next() {
		var table string
		var c column
		if err := rows.Scan(&table, &c.Name, &c.Type); err != nil {
			return nil, err
		}
		out[table] = append(out[table], c)
	}
	return out, rows.Err()
}

// runQuery executes query inside a read-only transaction that is always rolled
// back, and renders at most maxRows rows as a Markdown table.
func runQuery(ctx context.Context, db *sql.DB, query string, maxRows int) (string, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return "", fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var records [][]string
	truncated := false
	for rows.Next() {
		if len(records) == maxRows {
			truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = formatCell(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(records) == 0 {
		return "(no rows)", nil
	}
	table := MarkdownTable(cols, records)
	if truncated {
		table += fmt.Sprintf("\n\n(showing first %d rows)", maxRows)
	}
	return table, nil
}

func formatCell(v any) string {
	switch vv := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(vv)
	case time.Time:
		return vv.Format(time.RFC3339)
	default:
		return fmt.Sprint(vv)
	}
}

// MarkdownTable renders a header and rows as a GitHub-flavoured table.
func MarkdownTable(header []string, rows [][]string) string {
	esc := func(s string) string {
		return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
	}
	var b strings.Builder
	b.WriteString("|")
	for _, h := range header {
		b.WriteString(" " + esc(h) + " |")
	}
	b.WriteString("\n|")
	for range header {
		b.WriteString(" --- |")
	}
	for _, r := range rows {
		b.WriteString("\n|")
		for _, c := range r {
			b.WriteString(" " + esc(c) + " |")
		}
	}
	return b.String()
}
