package render

import (
	"strings"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/identity"
)

// FormatSVG is the only output format currently produced.
const FormatSVG = "svg"

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatSVG: true,
}

var mimeTypes = map[string]string{
	FormatSVG: "image/svg+xml",
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat, "invalid format: %q (must be svg)", format)
	}
	return nil
}

// MimeType returns the media type of artifacts in the given format.
func MimeType(format string) string {
	if m, ok := mimeTypes[format]; ok {
		return m
	}
	return "application/octet-stream"
}

// namePrefix introduces a diagram's human-readable name on its first line.
const namePrefix = "@startuml "

// Target is a single render request.
type Target struct {
	// ID is the content address of Content.
	ID identity.Identity
	// Content is the raw PlantUML source.
	Content string
	// Name is the diagram name from an "@startuml <name>" first line, if any.
	Name string
	// Format is the requested output format, e.g. "svg".
	Format string
}

// NewTarget builds the render request for content.
func NewTarget(content, format string) Target {
	return Target{
		ID:      identity.Of(content),
		Content: content,
		Name:    Name(content),
		Format:  format,
	}
}

// Filename returns the canonical artifact file name, "<id>.<format>".
func (t Target) Filename() string {
	return t.ID.Filename(t.Format)
}

// Name extracts the diagram name from the first line of content.
// It returns "" when content does not start with "@startuml <name>".
func Name(content string) string {
	rest, ok := strings.CutPrefix(content, namePrefix)
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
