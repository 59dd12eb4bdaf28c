package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSubDir_CreatesAndIsIdempotent(t *testing.T) {
	t.Chdir(t.TempDir())

	dir, err := EnsureSubDir("spool")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	again, err := EnsureSubDir("spool")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestStage_CopiesContentAndKeepsExtension(t *testing.T) {
	t.Chdir(t.TempDir())

	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpegbytes"), 0o600))

	staged, err := Stage(src, "spool")
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(staged))

	got, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), got)

	// staging again produces a distinct file
	staged2, err := Stage(src, "spool")
	require.NoError(t, err)
	assert.NotEqual(t, staged, staged2)
}

func TestStage_MissingSource(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Stage("does-not-exist.png", "spool")
	assert.Error(t, err)
}
