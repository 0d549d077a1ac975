package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/watson-civil-chatbot/server/internal/agent/contextdoc"
	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

const dataframePlanPrompt = `You analyse a CSV table loaded as a dataframe. Reply with one JSON object and nothing else:
{
  "filters":   [{"column": "<name>", "op": "==|!=|>|>=|<|<=|in", "value": <value or list>}],
  "group_by":  ["<column>"],
  "aggregate": [{"column": "<column>", "func": "sum|mean|count|min|max|median|std"}],
  "sort":      {"column": "<column>", "desc": true},
  "select":    ["<column>"],
  "limit":     <rows>,
  "answer":    "<direct answer if the profile alone is enough, else empty>"
}
All fields are optional. Give either operations or an answer; an answer is ignored when operations are present. Only use columns from the profile. Aggregated columns are named <column>_<FUNC>, e.g. amount_SUM.

Profile:
%s`

const dataframeAnswerPrompt = `Answer the user's question from the analysis result below. Be concise and cite figures exactly.

Analysis result:
%s`

// AnalysisPlan is the model's structured request against the dataframe.
type AnalysisPlan struct {
	Filters []struct {
		Column string `json:"column"`
		Op     string `json:"op"`
		Value  any    `json:"value"`
	} `json:"filters"`
	GroupBy   []string `json:"group_by"`
	Aggregate []struct {
		Column string `json:"column"`
		Func   string `json:"func"`
	} `json:"aggregate"`
	Sort *struct {
		Column string `json:"column"`
		Desc   bool   `json:"desc"`
	} `json:"sort"`
	Select []string `json:"select"`
	Limit  int      `json:"limit"`
	Answer string   `json:"answer"`
}

// Dataframe answers questions over the contracts CSV export.
type Dataframe struct {
	csvPath string
	csvDoc  string
	llm     Completer
	maxRows int
}

func NewDataframe(cfg model.DataConfig, llm Completer) *Dataframe {
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 50
	}
	return &Dataframe{csvPath: cfg.CSVPath, csvDoc: cfg.CSVDoc, llm: llm, maxRows: maxRows}
}

func (d *Dataframe) Name() string { return ToolDataframe }

func (d *Dataframe) Description() string {
	return "Analyses the contracts CSV export with dataframe operations (filters, group-by, sums, averages, top-N). Input is the analysis question."
}

func (d *Dataframe) Run(ctx context.Context, input string) Result {
	if strings.TrimSpace(input) == "" {
		return Fail(KindInvalidInput, "Error: dataframe question is empty")
	}

	df, err := LoadCSV(d.csvPath)
	if err != nil {
		return Fail(KindUnavailable, "Error reading CSV file: %v", err)
	}

	query := contextdoc.PrefixWith(contextdoc.CSVHeading, contextdoc.Load(d.csvDoc), input)
	raw, err := d.llm.Complete(ctx, fmt.Sprintf(dataframePlanPrompt, Profile(df)), query)
	if err != nil {
		return Fail(KindUpstream, "Error planning dataframe analysis: %v", err)
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return Fail(KindInvalidInput, "Error: could not parse analysis plan: %v", err)
	}

	if plan.Empty() {
		if answer := strings.TrimSpace(plan.Answer); answer != "" {
			return OK(answer)
		}
		return Fail(KindInvalidInput, "Error: analysis plan has no operations and no answer")
	}

	out, err := plan.Apply(df, d.maxRows)
	if err != nil {
		return Fail(KindInvalidInput, "Error applying analysis plan: %v", err)
	}
	if out.Nrow() == 0 {
		return OK(noRowsMatched)
	}

	table := frameTable(out)
	answer, err := d.llm.Complete(ctx, fmt.Sprintf(dataframeAnswerPrompt, table), input)
	if err != nil {
		return Fail(KindUpstream, "Error summarising dataframe analysis: %v", err)
	}
	return OK(answer + "\n\n" + table)
}

// LoadCSV reads the whole file into memory.
func LoadCSV(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.WithLazyQuotes(true))
	if df.Err != nil {
		return dataframe.DataFrame{}, df.Err
	}
	return df, nil
}

// Profile summarises shape, column types, describe() and the first rows.
func Profile(df dataframe.DataFrame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "shape: %d rows x %d columns\n\ncolumns:\n", df.Nrow(), df.Ncol())
	types := df.Types()
	for i, n := range df.Names() {
		fmt.Fprintf(&b, "- %s (%s)\n", n, types[i])
	}
	b.WriteString("\ndescribe:\n")
	b.WriteString(frameTable(df.Describe()))
	b.WriteString("\n\nhead:\n")
	head := df
	if df.Nrow() > 5 {
		head = df.Subset([]int{0, 1, 2, 3, 4})
	}
	b.WriteString(frameTable(head))
	return b.String()
}

// ParsePlan decodes the first JSON object in reply, tolerating code fences.
func ParsePlan(reply string) (AnalysisPlan, error) {
	var plan AnalysisPlan
	start, end := strings.IndexByte(reply, '{'), strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return plan, fmt.Errorf("no JSON object in %q", firstLine(strings.TrimSpace(reply)))
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &plan); err != nil {
		return plan, err
	}
	return plan, nil
}

var aggregations = map[string]dataframe.AggregationType{
	"sum":    dataframe.Aggregation_SUM,
	"mean":   dataframe.Aggregation_MEAN,
	"avg":    dataframe.Aggregation_MEAN,
	"count":  dataframe.Aggregation_COUNT,
	"min":    dataframe.Aggregation_MIN,
	"max":    dataframe.Aggregation_MAX,
	"median": dataframe.Aggregation_MEDIAN,
	"std":    dataframe.Aggregation_STD,
}

var comparators = map[string]series.Comparator{
	"==": series.Eq,
	"=":  series.Eq,
	"!=": series.Neq,
	">":  series.Greater,
	">=": series.GreaterEq,
	"<":  series.Less,
	"<=": series.LessEq,
	"in": series.In,
}

const noRowsMatched = "No rows in the CSV matched the requested filters."

// Empty reports whether the plan asks for no dataframe operation at all.
func (p AnalysisPlan) Empty() bool {
	return len(p.Filters) == 0 && len(p.GroupBy) == 0 && len(p.Aggregate) == 0 &&
		p.Sort == nil && len(p.Select) == 0 && p.Limit == 0
}

// Apply runs the plan in order: filter, group/aggregate, sort, select, limit.
// A plan with no operations yields an empty frame.
func (p AnalysisPlan) Apply(df dataframe.DataFrame, maxRows int) (dataframe.DataFrame, error) {
	if p.Empty() {
		return dataframe.DataFrame{}, nil
	}

	has := make(map[string]bool, df.Ncol())
	for _, n := range df.Names() {
		has[n] = true
	}
	check := func(cols ...string) error {
		for _, c := range cols {
			if !has[c] {
				return fmt.Errorf("unknown column %q", c)
			}
		}
		return nil
	}

	out := df
	for _, f := range p.Filters {
		if err := check(f.Column); err != nil {
			return out, err
		}
		cmp, ok := comparators[strings.ToLower(f.Op)]
		if !ok {
			return out, fmt.Errorf("unsupported filter op %q", f.Op)
		}
		out = out.Filter(dataframe.F{Colname: f.Column, Comparator: cmp, Comparando: comparando(cmp, f.Value)})
		if out.Err != nil {
			return out, out.Err
		}
	}

	if len(p.Aggregate) > 0 {
		if len(p.GroupBy) == 0 {
			return out, fmt.Errorf("aggregate requires group_by")
		}
		if err := check(p.GroupBy...); err != nil {
			return out, err
		}
		types := make([]dataframe.AggregationType, len(p.Aggregate))
		cols := make([]string, len(p.Aggregate))
		for i, a := range p.Aggregate {
			if err := check(a.Column); err != nil {
				return out, err
			}
			t, ok := aggregations[strings.ToLower(a.Func)]
			if !ok {
				return out, fmt.Errorf("unsupported aggregate %q", a.Func)
			}
			types[i], cols[i] = t, a.Column
		}
		out = out.GroupBy(p.GroupBy...).Aggregation(types, cols)
		if out.Err != nil {
			return out, out.Err
		}
		has = make(map[string]bool, out.Ncol())
		for _, n := range out.Names() {
			has[n] = true
		}
	}

	if p.Sort != nil && p.Sort.Column != "" {
		if err := check(p.Sort.Column); err != nil {
			return out, err
		}
		order := dataframe.Sort(p.Sort.Column)
		if p.Sort.Desc {
			order = dataframe.RevSort(p.Sort.Column)
		}
		out = out.Arrange(order)
		if out.Err != nil {
			return out, out.Err
		}
	}

	if len(p.Select) > 0 {
		if err := check(p.Select...); err != nil {
			return out, err
		}
		out = out.Select(p.Select)
	}

	limit := p.Limit
	if limit <= 0 || limit > maxRows {
		limit = maxRows
	}
	if out.Nrow() > limit {
		idx := make([]int, limit)
		for i := range idx {
			idx[i] = i
		}
		out = out.Subset(idx)
	}
	return out, out.Err
}

func comparando(cmp series.Comparator, v any) any {
	if cmp != series.In {
		return v
	}
	list, ok := v.([]any)
	if !ok {
		return []string{fmt.Sprint(v)}
	}
	out := make([]string, len(list))
	for i, item := range list {
		out[i] = fmt.Sprint(item)
	}
	return out
}

func frameTable(df dataframe.DataFrame) string {
	records := df.Records()
	if len(records) == 0 {
		return "(empty)"
	}
	return MarkdownTable(records[0], records[1:])
}
