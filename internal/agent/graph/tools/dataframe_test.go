package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

const contractsCSV = `vendor,amount,district
Acme Paving,1200.5,3
Gulf Bridge,98000,3
Acme Paving,450,5
Coastal Signs,300,5
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVAndProfile(t *testing.T) {
	df, err := LoadCSV(writeFixture(t, "c.csv", contractsCSV))
	require.NoError(t, err)
	assert.Equal(t, 4, df.Nrow())

	p := Profile(df)
	assert.Contains(t, p, "shape: 4 rows x 3 columns")
	assert.Contains(t, p, "- vendor (string)")
	assert.Contains(t, p, "- amount (float)")
	assert.Contains(t, p, "Gulf Bridge")
}

func TestPlanFilterSortLimit(t *testing.T) {
	df, err := LoadCSV(writeFixture(t, "c.csv", contractsCSV))
	require.NoError(t, err)

	plan, err := ParsePlan("```json\n" + `{"filters":[{"column":"district","op":"==","value":5}],"sort":{"column":"amount","desc":true},"select":["vendor"],"limit":1}` + "\n```")
	require.NoError(t, err)

	out, err := plan.Apply(df, 50)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"vendor"}, {"Acme Paving"}}, out.Records())
}

func TestPlanGroupBy(t *testing.T) {
	df, err := LoadCSV(writeFixture(t, "c.csv", contractsCSV))
	require.NoError(t, err)

	plan, err := ParsePlan(`{"group_by":["district"],"aggregate":[{"column":"amount","func":"sum"}],"sort":{"column":"district"}}`)
	require.NoError(t, err)

	out, err := plan.Apply(df, 50)
	require.NoError(t, err)
	require.Equal(t, 2, out.Nrow())
	sums := out.Col("amount_SUM").Float()
	assert.InDelta(t, 99200.5, sums[0], 1e-9)
	assert.InDelta(t, 750, sums[1], 1e-9)
}

func TestPlanUnknownColumn(t *testing.T) {
	df, err := LoadCSV(writeFixture(t, "c.csv", contractsCSV))
	require.NoError(t, err)
	plan, err := ParsePlan(`{"select":["nope"]}`)
	require.NoError(t, err)
	_, err = plan.Apply(df, 50)
	assert.ErrorContains(t, err, `unknown column "nope"`)
}

func TestDataframeRun(t *testing.T) {
	csv := writeFixture(t, "c.csv", contractsCSV)
	doc := writeFixture(t, "CSV.md", "amount is in USD")
	llm := &scriptedCompleter{replies: []string{
		`{"filters":[{"column":"vendor","op":"in","value":["Gulf Bridge"]}],"select":["vendor","amount"]}`,
		"Gulf Bridge holds a $98,000 contract.",
	}}
	tool := NewDataframe(model.DataConfig{CSVPath: csv, CSVDoc: doc}, llm)

	res := tool.Run(context.Background(), "what does Gulf Bridge hold?")
	require.False(t, res.Failed(), res.Text())
	assert.True(t, strings.HasPrefix(res.Output, "Gulf Bridge holds a $98,000 contract."))
	assert.Contains(t, res.Output, "| Gulf Bridge | 98000")

	require.Len(t, llm.users, 2)
	assert.Equal(t, "Please refer to the following CSV documentation before answering:\n\namount is in USD\n\nUser Query:\nwhat does Gulf Bridge hold?", llm.users[0])
}

func TestDataframeDirectAnswer(t *testing.T) {
	csv := writeFixture(t, "c.csv", contractsCSV)
	llm := &scriptedCompleter{replies: []string{`{"answer":"There are 4 contracts."}`}}
	res := NewDataframe(model.DataConfig{CSVPath: csv}, llm).Run(context.Background(), "how many rows?")
	require.False(t, res.Failed(), res.Text())
	assert.Equal(t, "There are 4 contracts.", res.Output)
}

func TestDataframeMissingCSV(t *testing.T) {
	res := NewDataframe(model.DataConfig{CSVPath: filepath.Join(t.TempDir(), "none.csv")}, &scriptedCompleter{}).Run(context.Background(), "q")
	assert.Equal(t, KindUnavailable, res.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error reading CSV file: "), res.Text())
}

func TestDataframeNoMatchIgnoresGuessedAnswer(t *testing.T) {
	csv := writeFixture(t, "c.csv", contractsCSV)
	llm := &scriptedCompleter{replies: []string{
		`{"filters":[{"column":"district","op":"==","value":9}],"answer":"District 9 has 2 contracts."}`,
	}}
	res := NewDataframe(model.DataConfig{CSVPath: csv}, llm).Run(context.Background(), "contracts in district 9?")
	require.False(t, res.Failed(), res.Text())
	assert.Equal(t, noRowsMatched, res.Output)
	assert.Len(t, llm.users, 1)
}

func TestDataframeEmptyPlan(t *testing.T) {
	csv := writeFixture(t, "c.csv", contractsCSV)
	llm := &scriptedCompleter{replies: []string{"```json\n{}\n```"}}
	res := NewDataframe(model.DataConfig{CSVPath: csv}, llm).Run(context.Background(), "anything")
	assert.Equal(t, KindInvalidInput, res.Kind)
	assert.Contains(t, res.Text(), "no operations")
	assert.Len(t, llm.users, 1)
}
