package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutputFile(t *testing.T) {
	dir := t.TempDir()

	out, err := NewOutputFile(dir, "", "dump", "dissect:target:dump_file")
	require.NoError(t, err)

	_, err = uuid.Parse(out.UUID)
	require.NoError(t, err)
	assert.Equal(t, "dump", out.Extension)
	assert.Equal(t, "dissect:target:dump_file", out.DataType)
	assert.Equal(t, filepath.Join(dir, out.UUID+".dump"), out.Path)
	assert.Equal(t, out.UUID+".dump", out.DisplayName)
}

func TestNewOutputFile_NoExtension(t *testing.T) {
	out, err := NewOutputFile(t.TempDir(), "timeline", "", "")
	require.NoError(t, err)
	assert.Equal(t, "timeline", out.DisplayName)
	assert.False(t, strings.Contains(filepath.Base(out.Path), "."))
}

func TestNewOutputFile_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	out, err := NewOutputFile(dir, "", "dump", "")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, filepath.Dir(out.Path))
}

func TestNewOutputFile_UniquePaths(t *testing.T) {
	dir := t.TempDir()
	a, err := NewOutputFile(dir, "", "dump", "")
	require.NoError(t, err)
	b, err := NewOutputFile(dir, "", "dump", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)
}

func TestNewOutputFile_RequiresDirectory(t *testing.T) {
	_, err := NewOutputFile("", "", "dump", "")
	require.Error(t, err)
}
