// Package rewrite replaces scanned blocks in a document with new text.
//
// [Rewrite] walks the blocks of a document in order and copies everything
// between them verbatim. Each block is handed to a [ReplaceFunc]; its result
// takes the place of the block. A block whose replacement fails, and every
// suppressed block, is copied through unchanged, so a rewrite never loses
// text and never aborts half way.
package rewrite

import (
	"context"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/scan"
)

// ReplaceFunc produces the replacement text for a block.
type ReplaceFunc func(ctx context.Context, b scan.Block) (string, error)

// Result is the rewritten text and a tally of what happened to each block.
type Result struct {
	Text       string
	Replaced   int
	Failed     int
	Suppressed int
}

// Blocks is the number of blocks seen.
func (r Result) Blocks() int {
	return r.Replaced + r.Failed + r.Suppressed
}

// Rewrite builds a new text from text with every block in blocks replaced.
// blocks must yield non-overlapping spans of text in ascending order.
//
// Failures are logged through the logger in ctx, followed by one line per
// error in the cause chain.
func Rewrite(ctx context.Context, text string, blocks iter.Seq[scan.Block], replace ReplaceFunc) Result {
	var (
		out    strings.Builder
		res    Result
		cursor int
	)
	out.Grow(len(text))

	for b := range blocks {
		out.WriteString(text[cursor:b.Start])
		cursor = b.End

		if b.Suppressed {
			res.Suppressed++
			out.WriteString(text[b.Start:b.End])
			continue
		}

		repl, err := replace(ctx, b)
		if err != nil {
			res.Failed++
			LogFailure(ctx, b.Content, err)
			out.WriteString(text[b.Start:b.End])
			continue
		}
		res.Replaced++
		out.WriteString(repl)
	}
	out.WriteString(text[cursor:])

	res.Text = out.String()
	return res
}

// LogFailure reports a block that could not be replaced: one error line,
// then a warning for every cause underneath err.
func LogFailure(ctx context.Context, content string, err error) {
	logger := log.FromContext(ctx)
	logger.Error("failed to process diagram", "code", errors.GetCode(err), "error", errors.UserMessage(err), "diagram", excerpt(content))
	for _, cause := range errors.Causes(err) {
		logger.Warn("caused by", "error", cause)
	}
}

// excerpt shortens diagram source for log lines.
func excerpt(content string) string {
	const max = 80
	content = strings.TrimSpace(content)
	if i := strings.IndexByte(content, '\n'); i >= 0 && i < max {
		return content[:i] + " ..."
	}
	if len(content) > max {
		n := max
		for n > 0 && !utf8.RuneStart(content[n]) {
			n--
		}
		return content[:n] + "..."
	}
	return content
}
