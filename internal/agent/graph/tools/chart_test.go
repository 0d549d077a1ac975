package tools

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestChartDataURI(t *testing.T) {
	res := NewChart("").Run(context.Background(), "5, 10, 15")
	require.False(t, res.Failed(), res.Text())
	require.True(t, strings.HasPrefix(res.Output, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(res.Output, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), string(pngMagic)))
}

func TestChartWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	res := NewChart(dir).Run(context.Background(), "1,2,3")
	require.False(t, res.Failed(), res.Text())
	assert.Equal(t, dir, filepath.Dir(res.Output))

	b, err := os.ReadFile(res.Output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), string(pngMagic)))
}

func TestChartBadInput(t *testing.T) {
	for _, in := range []string{"", "a, b", "1,,2", "5; 10"} {
		res := NewChart("").Run(context.Background(), in)
		assert.Equal(t, KindInvalidInput, res.Kind, in)
		assert.True(t, strings.HasPrefix(res.Text(), "Error parsing input data: "), res.Text())
	}
}

func TestParseSeries(t *testing.T) {
	got, err := ParseSeries(" 1.5, -2 ,3e2")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2, 300}, got)
}
