package contextdoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	assert.Equal(t, "", Load(filepath.Join(t.TempDir(), "nope.md")))
	assert.Equal(t, "", Load(""))
}

func TestLoadAndPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CSV.md")
	require.NoError(t, os.WriteFile(path, []byte("column amount is USD"), 0o644))

	got := LoadAndPrefix(path, "total amount?")
	assert.Equal(t, "Please refer to the following documentation before answering:\n\ncolumn amount is USD\n\nUser Query:\ntotal amount?", got)
}

func TestPrefixBlankDoc(t *testing.T) {
	assert.Equal(t, "q", Prefix("  \n", "q"))
	assert.Equal(t, "q", LoadAndPrefix(filepath.Join(t.TempDir(), "missing"), "q"))
}
