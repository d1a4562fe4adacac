// Package identity derives the content address of a diagram.
//
// An [Identity] is a 128-bit value computed from the raw diagram source and
// nothing else: not its position in a document, not the document it came
// from. Two byte-identical diagrams anywhere in a book therefore share one
// Identity, one cache entry and one artifact file named "<identity>.<format>".
//
// The value is built from two runs of the 64-bit xxHash over the content, the
// second run continuing after a single 0x00 byte. The halves are concatenated
// big-endian and printed in UUID form.
//
// xxHash is not collision resistant against an adversary. That is an accepted
// trade-off: an Identity only gates a render cache. Replacing the hash would
// change every Identity and orphan every artifact produced so far.
package identity

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Identity is the 128-bit content address of a diagram source.
type Identity [16]byte

// Of computes the Identity of content.
func Of(content string) Identity {
	d := xxhash.New()
	_, _ = d.WriteString(content)
	return sum(d)
}

// OfBytes computes the Identity of content.
func OfBytes(content []byte) Identity {
	d := xxhash.New()
	_, _ = d.Write(content)
	return sum(d)
}

func sum(d *xxhash.Digest) Identity {
	var id Identity
	binary.BigEndian.PutUint64(id[:8], d.Sum64())
	_, _ = d.Write([]byte{0})
	binary.BigEndian.PutUint64(id[8:], d.Sum64())
	return id
}

// Parse parses the textual form produced by [Identity.String].
func Parse(s string) (Identity, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Identity{}, err
	}
	return Identity(u), nil
}

// String returns the canonical xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx form.
func (id Identity) String() string {
	return uuid.UUID(id).String()
}

// Filename returns the artifact file name for the given format, e.g.
// "bd15ddc5-f769-719d-dbb5-be1228872d69.svg".
func (id Identity) Filename(format string) string {
	return id.String() + "." + format
}

// IsZero reports whether id is the zero value.
func (id Identity) IsZero() bool {
	return id == Identity{}
}
