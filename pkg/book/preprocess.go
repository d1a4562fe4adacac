package book

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pumlbook/pkg/pipeline"
)

// Preprocessor rewrites the diagrams of every chapter in a book.
type Preprocessor struct {
	Runner *pipeline.Runner
	// SrcDir is the book's source directory; chapter paths are relative to it.
	SrcDir string
	// Jobs is the number of chapters processed at once. Values below one
	// mean one.
	Jobs int
}

// Run processes all chapters of b in place. Diagram failures never fail the
// run; the only error is ctx being cancelled.
func (p *Preprocessor) Run(ctx context.Context, b *Book) (pipeline.Stats, error) {
	start := time.Now()
	jobs := max(p.Jobs, 1)

	var (
		mu    sync.Mutex
		total pipeline.Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, ch := range b.Chapters() {
		if ch.Path == nil || ch.Content == "" {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, stats := p.Runner.Process(gctx, p.document(ch))
			ch.Content = out

			mu.Lock()
			total.Add(stats)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	total.Duration = time.Since(start)
	log.FromContext(ctx).Info("preprocessed book",
		"diagrams", total.Blocks,
		"rendered", total.Rendered,
		"cached", total.CacheHits,
		"failed", total.Failed,
		"jobs", jobs,
		"duration", total.Duration.Round(time.Millisecond))
	return total, err
}

func (p *Preprocessor) document(ch *Chapter) pipeline.Document {
	path := filepath.FromSlash(*ch.Path)
	return pipeline.Document{
		Path:    *ch.Path,
		Dir:     filepath.Join(p.SrcDir, filepath.Dir(path)),
		Content: ch.Content,
	}
}
