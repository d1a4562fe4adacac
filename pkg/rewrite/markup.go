package rewrite

import (
	"encoding/base64"
	"fmt"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/render"
)

// Mode selects how an image is referenced from the rewritten document.
type Mode string

const (
	// ModeDataURI inlines the artifact as a base64 data URI.
	ModeDataURI Mode = "data-uri"
	// ModeLink references the artifact file by path.
	ModeLink Mode = "link"
)

// ParseMode validates a mode name. An empty name selects ModeDataURI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDataURI:
		return ModeDataURI, nil
	case ModeLink:
		return ModeLink, nil
	}
	return "", errors.New(errors.ErrCodeInvalidInput, "invalid mode: %q (must be %s or %s)", s, ModeDataURI, ModeLink)
}

// Image returns markdown image markup.
func Image(alt, src string) string {
	return fmt.Sprintf("![%s](%s)", alt, src)
}

// DataURI encodes data as a data URI of the format's media type.
func DataURI(format string, data []byte) string {
	return "data:" + render.MimeType(format) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
