package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_ReplacesExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "file.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first, and much longer than the second"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestMarshalJSON_StableAndUnescaped(t *testing.T) {
	v := map[string]any{"b": "<a&b>", "a": 1}
	first, err := MarshalJSON(v)
	require.NoError(t, err)
	second, err := MarshalJSON(v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": \"<a&b>\"\n}\n", string(first))
}
