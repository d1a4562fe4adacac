package errors

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// ValidateIncludePath validates the path named by a {{#plantuml ...}} directive.
//
// Include paths are relative to the file that contains the directive, so
// parent references ("../shared/a.puml") are allowed. The rules only make
// sure the path can name a single file:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters (this includes newlines)
//   - Last element must be a file name, not ".", ".." or a trailing separator
func ValidateIncludePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "include path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "include path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "include path contains invalid characters")
		}
	}

	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return New(ErrCodeInvalidPath, "include path %q names a directory", path)
	}

	switch filepath.Base(filepath.Clean(path)) {
	case ".", "..", string(filepath.Separator):
		return New(ErrCodeInvalidPath, "include path %q has no file name", path)
	}

	return nil
}

// ValidateArtifactName validates an artifact file name requested over HTTP.
// It must be "<identity>.<format>" with no path components.
func ValidateArtifactName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "artifact name cannot be empty")
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidInput, "artifact name cannot contain path separators")
	}

	stem, ext, ok := strings.Cut(name, ".")
	if !ok || ext == "" {
		return New(ErrCodeInvalidInput, "artifact name %q has no format extension", name)
	}
	if _, err := uuid.Parse(stem); err != nil {
		return Wrap(ErrCodeInvalidInput, err, "artifact name %q is not an identity", name)
	}

	return nil
}
