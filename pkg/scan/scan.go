package scan

import (
	"iter"
	"sync"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Block is one located diagram occurrence in a text buffer.
//
// Start and End are byte offsets into the scanned text; [Start, End) covers
// the full markup including both delimiters. Content is the text strictly
// between the delimiters and shares memory with the scanned buffer.
type Block struct {
	Start      int
	End        int
	Content    string
	Suppressed bool
}

// Syntax names the delimiter literals of one markup form.
type Syntax struct {
	// Open starts a block that should be processed.
	Open string
	// OpenSuppressed starts a block that must be left untouched.
	OpenSuppressed string
	// Close ends a block. It is never accepted as an opener.
	Close string
}

// Fence is the inline fenced-block form.
var Fence = Syntax{
	Open:           "```plantuml\n",
	OpenSuppressed: "```plantuml,ignore\n",
	Close:          "```",
}

// Directive is the {{#plantuml path}} include form.
var Directive = Syntax{
	Open:           "{{#plantuml",
	OpenSuppressed: `\{{#plantuml`,
	Close:          "}}",
}

type token int

const (
	tokenOpen token = iota
	tokenOpenSuppressed
	tokenClose
)

// Matcher finds the blocks of one [Syntax]. It is built once and is
// read-only afterwards, so a single Matcher may be shared by any number of
// goroutines.
type Matcher struct {
	syntax Syntax
	ac     ahocorasick.AhoCorasick
}

// NewMatcher builds a Matcher for s.
//
// Matching is leftmost-longest: at any position the longest delimiter wins,
// so "```plantuml\n" is preferred over its prefix "```".
func NewMatcher(s Syntax) *Matcher {
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		MatchKind: ahocorasick.LeftMostLongestMatch,
		DFA:       true,
	})
	// Pattern indices line up with the token constants.
	ac := builder.Build([]string{s.Open, s.OpenSuppressed, s.Close})
	return &Matcher{syntax: s, ac: ac}
}

var (
	fences     = sync.OnceValue(func() *Matcher { return NewMatcher(Fence) })
	directives = sync.OnceValue(func() *Matcher { return NewMatcher(Directive) })
)

// Fences returns the process-wide Matcher for [Fence].
func Fences() *Matcher { return fences() }

// Directives returns the process-wide Matcher for [Directive].
func Directives() *Matcher { return directives() }

// Syntax returns the delimiters this Matcher was built for.
func (m *Matcher) Syntax() Syntax { return m.syntax }

// Scan returns a fresh Scanner over text.
func (m *Matcher) Scan(text string) *Scanner {
	return &Scanner{text: text, matches: m.ac.FindAll(text)}
}

// Blocks returns the blocks of text as a sequence. Every call scans anew.
func (m *Matcher) Blocks(text string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		s := m.Scan(text)
		for {
			b, ok := s.Next()
			if !ok || !yield(b) {
				return
			}
		}
	}
}

// FindAll returns every block of text.
func (m *Matcher) FindAll(text string) []Block {
	var out []Block
	for b := range m.Blocks(text) {
		out = append(out, b)
	}
	return out
}

// Scanner yields the blocks of one text buffer from left to right. It cannot
// be rewound; call [Matcher.Scan] again to start over.
type Scanner struct {
	text    string
	matches []ahocorasick.Match
	pos     int
	// end is the offset just past the last delimiter consumed. The
	// automaton reports overlapping matches when one delimiter is a suffix
	// of another ("{{#plantuml" inside "\{{#plantuml"); those are skipped.
	end int
}

// take returns the next match starting at or after from, skipping
// closers unless allowClose is set.
func (s *Scanner) take(from int, allowClose bool) (ahocorasick.Match, bool) {
	for s.pos < len(s.matches) {
		m := s.matches[s.pos]
		s.pos++
		if m.Start() < from {
			continue
		}
		if !allowClose && token(m.Pattern()) == tokenClose {
			continue
		}
		return m, true
	}
	return ahocorasick.Match{}, false
}

// Next returns the next block. The second result is false once the text is
// exhausted. An opener without a following delimiter ends the sequence: the
// unterminated block is dropped, not reported.
func (s *Scanner) Next() (Block, bool) {
	open, ok := s.take(s.end, false)
	if !ok {
		return Block{}, false
	}
	// Whatever delimiter comes next closes the block.
	closing, ok := s.take(open.End(), true)
	if !ok {
		s.end = len(s.text)
		return Block{}, false
	}
	s.end = closing.End()

	return Block{
		Start:      open.Start(),
		End:        closing.End(),
		Content:    s.text[open.End():closing.Start()],
		Suppressed: token(open.Pattern()) == tokenOpenSuppressed,
	}, true
}
