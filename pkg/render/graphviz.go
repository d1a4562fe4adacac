package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/pumlbook/pkg/errors"
)

// Graphviz renders "@startdot ... @enddot" diagrams in-process, without
// starting a JVM. Only SVG output is supported.
type Graphviz struct{}

// Render implements Gateway.
func (Graphviz) Render(ctx context.Context, t Target, dir string) (string, error) {
	if t.Format != FormatSVG {
		return "", errors.New(errors.ErrCodeInvalidFormat, "graphviz renders svg only, not %q", t.Format)
	}

	svg, err := RenderDOT(ctx, DOTSource(t.Content))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeRender, err, "graphviz")
	}

	out := filepath.Join(dir, sourceName+"."+t.Format)
	if err := os.WriteFile(out, svg, 0o644); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "write %s", out)
	}
	return out, nil
}

// DOTSource strips the @startdot and @enddot lines from content.
func DOTSource(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "@startdot") {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "@enddot") {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}

// RenderDOT renders a DOT graph to SVG using Graphviz.
func RenderDOT(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
