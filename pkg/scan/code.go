package scan

import (
	"iter"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Span is a byte range [Start, End) of a text buffer.
type Span struct {
	Start int
	End   int
}

// Contains reports whether offset falls inside s.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset < s.End
}

// CodeSpans returns the content ranges of code blocks that markdown shows
// verbatim: indented blocks and fenced blocks of any language other than
// plantuml. Spans are in document order.
func CodeSpans(text string) []Span {
	src := []byte(text)
	doc := goldmark.DefaultParser().Parse(gmtext.NewReader(src))

	var spans []Span
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch b := n.(type) {
		case *ast.FencedCodeBlock:
			if strings.HasPrefix(string(b.Language(src)), "plantuml") {
				return ast.WalkSkipChildren, nil
			}
		case *ast.CodeBlock:
		default:
			return ast.WalkContinue, nil
		}
		lines := n.Lines()
		if lines.Len() > 0 {
			spans = append(spans, Span{Start: lines.At(0).Start, End: lines.At(lines.Len() - 1).Stop})
		}
		return ast.WalkSkipChildren, nil
	})
	return spans
}

// Outside drops the blocks of seq that start inside one of spans. Both
// sequences must be in document order.
func Outside(seq iter.Seq[Block], spans []Span) iter.Seq[Block] {
	if len(spans) == 0 {
		return seq
	}
	return func(yield func(Block) bool) {
		i := 0
		for b := range seq {
			for i < len(spans) && spans[i].End <= b.Start {
				i++
			}
			if i < len(spans) && spans[i].Contains(b.Start) {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}
