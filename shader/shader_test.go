package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadVerbatim(t *testing.T) {
	blob := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0xff, 0x10}
	path := filepath.Join(t.TempDir(), "tri.vert.spv")
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.spv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.spv")
}

func TestSourceLanguage(t *testing.T) {
	assert.Equal(t, LanguageGLSL, SourceLanguage("shaders/tri.glsl"))
	assert.Equal(t, LanguageGLSL, SourceLanguage("shaders/tri.VERT"))
	assert.Equal(t, LanguageHLSL, SourceLanguage("shaders/tri.hlsl"))
	assert.Equal(t, LanguageUnknown, SourceLanguage("shaders/tri.spv"))
	assert.Equal(t, LanguageUnknown, SourceLanguage("shaders/tri"))
}
