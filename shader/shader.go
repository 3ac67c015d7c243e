// Package shader loads compiled shader bytecode for pipeline
// configuration. Blobs are treated as opaque: no parsing or validation
// happens at this layer.
package shader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Language tags the source language a shader file was written in.
// Informational only; it never affects how the blob is handled.
type Language int

const (
	LanguageUnknown Language = iota
	LanguageGLSL
	LanguageHLSL
)

func (l Language) String() string {
	switch l {
	case LanguageGLSL:
		return "glsl"
	case LanguageHLSL:
		return "hlsl"
	default:
		return "unknown"
	}
}

// Load reads a compiled shader blob verbatim from path.
func Load(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading shader %q", path)
	}
	return code, nil
}

// SourceLanguage maps a shader file's extension to its source
// language. Compiled artifacts (.spv) and unrecognized extensions
// report LanguageUnknown.
func SourceLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glsl", ".vert", ".frag":
		return LanguageGLSL
	case ".hlsl":
		return LanguageHLSL
	default:
		return LanguageUnknown
	}
}
