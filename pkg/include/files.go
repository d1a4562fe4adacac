package include

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
)

// Files records the files loaded through directives while a context
// carrying it is in use. It is safe for concurrent use.
type Files struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func (f *Files) add(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paths == nil {
		f.paths = make(map[string]struct{})
	}
	f.paths[path] = struct{}{}
}

// Paths returns the recorded files as sorted absolute paths.
func (f *Files) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.paths))
	for p := range f.paths {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

type filesKey struct{}

// WithFiles returns a context under which [Resolver.Load] records every file
// it reads into f.
func WithFiles(ctx context.Context, f *Files) context.Context {
	return context.WithValue(ctx, filesKey{}, f)
}

func filesFrom(ctx context.Context) *Files {
	f, _ := ctx.Value(filesKey{}).(*Files)
	return f
}
