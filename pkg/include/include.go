// Package include resolves {{#plantuml path}} directives.
//
// A directive names a diagram file relative to the document that contains
// it. Loading a directive reads that file and expands any directives inside
// it in turn, relative to the included file's own directory, until
// [Resolver.MaxDepth] levels deep. Nothing tracks which files were already
// visited: a file that includes itself is expanded MaxDepth times and the
// innermost directive is left as written, with a warning naming the document
// where the chain started.
//
// Escaped directives (\{{#plantuml path}}) are never resolved and pass
// through byte-for-byte, backslash included.
package include

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/observability"
	"github.com/matzehuels/pumlbook/pkg/rewrite"
	"github.com/matzehuels/pumlbook/pkg/scan"
)

// DefaultMaxDepth bounds directive expansion when no limit is configured.
const DefaultMaxDepth = 10

// Link is one directive found in a text.
type Link struct {
	// Start and End delimit the whole directive, braces included.
	Start int
	End   int
	// Path is the trimmed file path between the braces.
	Path string
	// Raw is the directive text exactly as written.
	Raw string
	// Escaped marks a \{{#plantuml ...}} directive.
	Escaped bool
}

// Included is a loaded and expanded directive target.
type Included struct {
	Path    string
	Content string
	Stats   Stats
}

// Stats counts what happened to the directives of a text and of every
// file it pulled in.
type Stats struct {
	Included  int
	Failed    int
	Escaped   int
	Truncated int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Included += other.Included
	s.Failed += other.Failed
	s.Escaped += other.Escaped
	s.Truncated += other.Truncated
}

// Resolver loads directive targets. The zero value is not usable; see
// [NewResolver].
type Resolver struct {
	Matcher  *scan.Matcher
	MaxDepth int
}

// NewResolver returns a Resolver using the shared directive matcher.
// A maxDepth of zero or less selects [DefaultMaxDepth].
func NewResolver(maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{Matcher: scan.Directives(), MaxDepth: maxDepth}
}

// LinkOf converts a scanned directive block into a Link.
func LinkOf(text string, b scan.Block) Link {
	return Link{
		Start:   b.Start,
		End:     b.End,
		Path:    strings.TrimSpace(b.Content),
		Raw:     text[b.Start:b.End],
		Escaped: b.Suppressed,
	}
}

// Links yields the directives of text in order.
func (r *Resolver) Links(text string) iter.Seq[Link] {
	return func(yield func(Link) bool) {
		for b := range r.Matcher.Blocks(text) {
			if !yield(LinkOf(text, b)) {
				return
			}
		}
	}
}

// Resolve maps a directive to the file it names.
func (r *Resolver) Resolve(baseDir string, l Link) (string, error) {
	if err := errors.ValidateIncludePath(l.Path); err != nil {
		return "", err
	}

	path := l.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileNotFound, err, "include %q", l.Path)
	}
	if !info.Mode().IsRegular() {
		return "", errors.New(errors.ErrCodeFileNotFound, "include %q is not a regular file", l.Path)
	}
	return path, nil
}

// Load reads the file named by l and expands its own directives at
// depth+1. origin names the document the chain started from.
func (r *Resolver) Load(ctx context.Context, origin, baseDir string, l Link, depth int) (Included, error) {
	path, err := r.Resolve(baseDir, l)
	if err != nil {
		return Included{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Included{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "read include %q", l.Path)
	}
	if f := filesFrom(ctx); f != nil {
		f.add(path)
	}

	content, stats := r.Expand(ctx, origin, string(data), filepath.Dir(path), depth+1)
	return Included{Path: path, Content: content, Stats: stats}, nil
}

// Expand replaces every directive in text with the contents of the file it
// names. Directives that fail to load are logged and left in place.
func (r *Resolver) Expand(ctx context.Context, origin, text, baseDir string, depth int) (string, Stats) {
	var stats Stats

	if depth >= r.MaxDepth {
		if r.hasActive(text) {
			stats.Truncated++
			err := errors.New(errors.ErrCodeDepthExceeded, "include depth %d reached", r.MaxDepth)
			log.FromContext(ctx).Warn("include chain truncated", "origin", origin, "depth", depth, "error", err)
			observability.Render().OnIncludeTruncated(ctx, origin, depth)
		}
		return text, stats
	}

	res := rewrite.Rewrite(ctx, text, r.Matcher.Blocks(text), func(ctx context.Context, b scan.Block) (string, error) {
		inc, err := r.Load(ctx, origin, baseDir, LinkOf(text, b), depth)
		if err != nil {
			return "", err
		}
		stats.Add(inc.Stats)
		return inc.Content, nil
	})

	stats.Included += res.Replaced
	stats.Failed += res.Failed
	stats.Escaped += res.Suppressed
	return res.Text, stats
}

// hasActive reports whether text holds at least one unescaped directive.
func (r *Resolver) hasActive(text string) bool {
	for b := range r.Matcher.Blocks(text) {
		if !b.Suppressed {
			return true
		}
	}
	return false
}
