// Package book speaks the mdBook preprocessor protocol.
//
// mdBook runs a preprocessor with a JSON array [context, book] on stdin and
// expects the modified book as JSON on stdout. Only chapter contents are
// touched: every other field, and every item that is not a chapter
// ("Separator", {"PartTitle": ...}), is written back as it was read.
package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/matzehuels/pumlbook/pkg/errors"
)

// Context is the first element of the preprocessor input.
type Context struct {
	Root          string          `json:"root"`
	Config        json.RawMessage `json:"config"`
	Renderer      string          `json:"renderer"`
	MdBookVersion string          `json:"mdbook_version"`
}

// Src returns the [book] src setting, or "" when unset.
func (c *Context) Src() string {
	var cfg struct {
		Book struct {
			Src string `json:"src"`
		} `json:"book"`
	}
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return ""
	}
	return cfg.Book.Src
}

// Preprocessor returns the raw [preprocessor.<name>] table, or nil.
func (c *Context) Preprocessor(name string) json.RawMessage {
	var cfg struct {
		Preprocessor map[string]json.RawMessage `json:"preprocessor"`
	}
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return nil
	}
	return cfg.Preprocessor[name]
}

// Book is the second element of the preprocessor input.
type Book struct {
	Sections []*Item
	fields   map[string]json.RawMessage
}

// Item is one entry of a section list. Exactly one of Chapter and raw is
// set.
type Item struct {
	Chapter *Chapter
	raw     json.RawMessage
}

// Chapter is a book chapter. Path is nil for draft chapters.
type Chapter struct {
	Name     string
	Content  string
	Path     *string
	SubItems []*Item
	fields   map[string]json.RawMessage
}

// ReadRequest decodes a [context, book] pair.
func ReadRequest(r io.Reader) (*Context, *Book, error) {
	var pair []json.RawMessage
	if err := json.NewDecoder(r).Decode(&pair); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode preprocessor input")
	}
	if len(pair) != 2 {
		return nil, nil, errors.New(errors.ErrCodeInvalidInput, "preprocessor input must be [context, book], got %d elements", len(pair))
	}

	var ctx Context
	if err := json.Unmarshal(pair[0], &ctx); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode context")
	}
	var b Book
	if err := json.Unmarshal(pair[1], &b); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode book")
	}
	return &ctx, &b, nil
}

// Write encodes b as the preprocessor output.
func Write(w io.Writer, b *Book) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode book")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write book")
	}
	return nil
}

// Chapters returns every chapter depth-first, in reading order.
func (b *Book) Chapters() []*Chapter {
	var out []*Chapter
	var walk func([]*Item)
	walk = func(items []*Item) {
		for _, it := range items {
			if it.Chapter == nil {
				continue
			}
			out = append(out, it.Chapter)
			walk(it.Chapter.SubItems)
		}
	}
	walk(b.Sections)
	return out
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Book) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &b.fields); err != nil {
		return err
	}
	if raw, ok := b.fields["sections"]; ok {
		if err := json.Unmarshal(raw, &b.Sections); err != nil {
			return fmt.Errorf("sections: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b *Book) MarshalJSON() ([]byte, error) {
	fields := clone(b.fields)
	sections, err := json.Marshal(items(b.Sections))
	if err != nil {
		return nil, err
	}
	fields["sections"] = sections
	return json.Marshal(fields)
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var variant map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &variant); err != nil {
			return err
		}
		if raw, ok := variant["Chapter"]; ok && len(variant) == 1 {
			var ch Chapter
			if err := json.Unmarshal(raw, &ch); err != nil {
				return fmt.Errorf("chapter: %w", err)
			}
			it.Chapter = &ch
			return nil
		}
	}
	it.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (it *Item) MarshalJSON() ([]byte, error) {
	if it.Chapter == nil {
		return it.raw, nil
	}
	return json.Marshal(map[string]*Chapter{"Chapter": it.Chapter})
}

// UnmarshalJSON implements json.Unmarshaler.
func (ch *Chapter) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &ch.fields); err != nil {
		return err
	}
	decode := func(key string, v any) error {
		raw, ok := ch.fields[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}
	if err := decode("name", &ch.Name); err != nil {
		return err
	}
	if err := decode("content", &ch.Content); err != nil {
		return err
	}
	if err := decode("path", &ch.Path); err != nil {
		return err
	}
	return decode("sub_items", &ch.SubItems)
}

// MarshalJSON implements json.Marshaler.
func (ch *Chapter) MarshalJSON() ([]byte, error) {
	fields := clone(ch.fields)
	var err error
	if fields["content"], err = json.Marshal(ch.Content); err != nil {
		return nil, err
	}
	if fields["sub_items"], err = json.Marshal(items(ch.SubItems)); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// items keeps empty lists as [] rather than null.
func items(list []*Item) []*Item {
	if list == nil {
		return []*Item{}
	}
	return list
}

func clone(m map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
