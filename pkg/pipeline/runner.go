package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pumlbook/pkg/cache"
	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/include"
	"github.com/matzehuels/pumlbook/pkg/observability"
	"github.com/matzehuels/pumlbook/pkg/render"
	"github.com/matzehuels/pumlbook/pkg/rewrite"
	"github.com/matzehuels/pumlbook/pkg/scan"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner holds no per-document state. Multiple goroutines can safely
// use the same Runner for different documents; the store's
// write-then-rename keeps concurrent renders of one diagram consistent.
type Runner struct {
	Store    cache.Store
	Gateway  render.Gateway
	Fences   *scan.Matcher
	Resolver *include.Resolver
	Options  Options
	Logger   *log.Logger
}

// NewRunner creates a runner rendering with gw into store.
func NewRunner(store cache.Store, gw render.Gateway, opts Options) (*Runner, error) {
	if store == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "runner needs an artifact store")
	}
	if gw == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "runner needs a render gateway")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return &Runner{
		Store:    store,
		Gateway:  gw,
		Fences:   scan.Fences(),
		Resolver: include.NewResolver(opts.MaxDepth),
		Options:  opts,
		Logger:   opts.Logger,
	}, nil
}

// Process rewrites every diagram in doc. It never fails as a whole: a
// diagram that cannot be rendered is logged and kept as written.
func (r *Runner) Process(ctx context.Context, doc Document) (string, Stats) {
	start := time.Now()
	logger := r.Logger.With("document", doc.Path)
	ctx = log.WithContext(ctx, logger)

	var stats Stats

	// Pass 1: top-level directives, each one a diagram of its own. Directives
	// quoted in other code blocks are left alone.
	directives := scan.Outside(r.Resolver.Matcher.Blocks(doc.Content), scan.CodeSpans(doc.Content))
	res := rewrite.Rewrite(ctx, doc.Content, directives,
		func(ctx context.Context, b scan.Block) (string, error) {
			inc, err := r.Resolver.Load(ctx, doc.Path, doc.Dir, include.LinkOf(doc.Content, b), 0)
			if err != nil {
				return "", err
			}
			stats.Included += 1 + inc.Stats.Included
			stats.Truncated += inc.Stats.Truncated
			return r.replace(ctx, &stats, inc.Content, doc.Dir)
		})
	stats.tally(res)

	// Pass 2: fenced blocks.
	text := res.Text
	res = rewrite.Rewrite(ctx, text, r.Fences.Blocks(text),
		func(ctx context.Context, b scan.Block) (string, error) {
			return r.replace(ctx, &stats, b.Content, doc.Dir)
		})
	stats.tally(res)

	stats.Duration = time.Since(start)
	if stats.Blocks > 0 {
		logger.Debug("processed document",
			"diagrams", stats.Blocks,
			"rendered", stats.Rendered,
			"cached", stats.CacheHits,
			"failed", stats.Failed,
			"duration", stats.Duration)
	}
	return res.Text, stats
}

func (r *Runner) replace(ctx context.Context, stats *Stats, content, docDir string) (string, error) {
	markup, hit, err := r.RenderContent(ctx, content, docDir)
	if err != nil {
		return "", err
	}
	if hit {
		stats.CacheHits++
	} else {
		stats.Rendered++
	}
	return markup, nil
}

func (s *Stats) tally(res rewrite.Result) {
	s.Blocks += res.Blocks()
	s.Failed += res.Failed
	s.Suppressed += res.Suppressed
}

// RenderContent renders one diagram source and returns its image markup.
// hit reports whether the artifact was already cached.
func (r *Runner) RenderContent(ctx context.Context, content, docDir string) (string, bool, error) {
	t := render.NewTarget(content, r.Options.Format)

	path, hit, err := r.Store.Ensure(ctx, t, render.GatewayFunc(r.render))
	if err != nil {
		return "", false, err
	}

	src, err := r.source(t, path, docDir)
	if err != nil {
		return "", hit, err
	}
	return rewrite.Image(t.Name, src), hit, nil
}

// render runs the gateway on a cache miss and reports the render lifecycle.
func (r *Runner) render(ctx context.Context, t render.Target, dir string) (string, error) {
	id := t.ID.String()
	hooks := observability.Render()
	hooks.OnRenderStart(ctx, id, t.Format)

	start := time.Now()
	path, err := r.Gateway.Render(ctx, t, dir)
	elapsed := time.Since(start)
	hooks.OnRenderComplete(ctx, id, t.Format, elapsed, err)

	if err == nil {
		log.FromContext(ctx).Debug("rendered diagram", "id", id, "name", t.Name, "duration", elapsed)
	}
	return path, err
}

// source builds the image reference for an artifact according to the mode.
func (r *Runner) source(t render.Target, path, docDir string) (string, error) {
	if r.Options.Mode == rewrite.ModeLink {
		return r.link(t, path, docDir), nil
	}

	data, err := r.Store.Read(path)
	if err != nil {
		return "", err
	}
	return rewrite.DataURI(t.Format, data), nil
}

// link returns LinkPrefix/<file> when a prefix is set, otherwise the
// artifact path relative to the document directory, falling back to the
// path itself.
func (r *Runner) link(t render.Target, path, docDir string) string {
	if r.Options.LinkPrefix != "" {
		return strings.TrimSuffix(r.Options.LinkPrefix, "/") + "/" + t.Filename()
	}
	if docDir != "" {
		if rel, err := filepath.Rel(docDir, path); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}
