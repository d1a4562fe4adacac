package cache

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/observability"
	"github.com/matzehuels/pumlbook/pkg/render"
)

// writer returns a gateway that writes body to name inside the scratch dir
// and counts its invocations.
func writer(name, body string, calls *atomic.Int32) render.Gateway {
	return render.GatewayFunc(func(ctx context.Context, t render.Target, dir string) (string, error) {
		calls.Add(1)
		out := filepath.Join(dir, name)
		return out, os.WriteFile(out, []byte(body), 0o644)
	})
}

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	return s
}

func assertNoScratch(t *testing.T, s *FileStore) {
	t.Helper()
	left, _ := filepath.Glob(filepath.Join(s.Dir(), scratchPattern))
	if len(left) != 0 {
		t.Errorf("scratch directories left behind: %v", left)
	}
}

func TestEnsureMissThenHit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	var calls atomic.Int32
	gw := writer("diagram.svg", "<svg/>", &calls)
	tg := render.NewTarget("@startuml\nA -> B\n@enduml\n", render.FormatSVG)

	path, hit, err := s.Ensure(ctx, tg, gw)
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if hit {
		t.Error("first Ensure() reported a hit")
	}
	if path != filepath.Join(s.Dir(), tg.Filename()) {
		t.Errorf("path = %q, want %q", path, filepath.Join(s.Dir(), tg.Filename()))
	}

	path2, hit, err := s.Ensure(ctx, tg, gw)
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if !hit || path2 != path {
		t.Errorf("second Ensure() = (%q, %v), want (%q, true)", path2, hit, path)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("gateway called %d times, want 1", n)
	}
	assertNoScratch(t, s)
}

func TestEnsureRelocatesNamedOutput(t *testing.T) {
	s := newStore(t)
	var calls atomic.Int32
	tg := render.NewTarget("@startuml Sequence\nA -> B\n@enduml\n", render.FormatSVG)

	path, _, err := s.Ensure(context.Background(), tg, writer("Sequence.svg", "<svg>named</svg>", &calls))
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if filepath.Base(path) != tg.Filename() {
		t.Errorf("artifact %q not renamed to %q", filepath.Base(path), tg.Filename())
	}
	data, err := s.Read(path)
	if err != nil || string(data) != "<svg>named</svg>" {
		t.Errorf("Read() = %q, %v", data, err)
	}
}

func TestEnsureFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tg := render.NewTarget("@startuml\nbroken\n", render.FormatSVG)

	fail := render.GatewayFunc(func(ctx context.Context, t render.Target, dir string) (string, error) {
		return "", errors.New(errors.ErrCodeRender, "plantuml: Syntax Error?")
	})
	if _, _, err := s.Ensure(ctx, tg, fail); !errors.Is(err, errors.ErrCodeRender) {
		t.Fatalf("Ensure() error = %v, want %s", err, errors.ErrCodeRender)
	}
	if _, ok := s.Lookup(tg.ID, tg.Format); ok {
		t.Fatal("failed render left an artifact behind")
	}
	assertNoScratch(t, s)

	var calls atomic.Int32
	if _, hit, err := s.Ensure(ctx, tg, writer("diagram.svg", "<svg/>", &calls)); err != nil || hit {
		t.Errorf("retry Ensure() = hit %v, err %v", hit, err)
	}
	if calls.Load() != 1 {
		t.Error("retry did not invoke the gateway")
	}
}

func TestEnsureMissingProducedFile(t *testing.T) {
	s := newStore(t)
	ghost := render.GatewayFunc(func(ctx context.Context, t render.Target, dir string) (string, error) {
		return filepath.Join(dir, "nothing.svg"), nil
	})

	_, _, err := s.Ensure(context.Background(), render.NewTarget("@startuml\n@enduml\n", render.FormatSVG), ghost)
	if !errors.Is(err, errors.ErrCodeArtifactMissing) {
		t.Errorf("Ensure() error = %v, want %s", err, errors.ErrCodeArtifactMissing)
	}
}

func TestEnsureKeepsFilesOutsideScratch(t *testing.T) {
	root := t.TempDir()
	s, err := Prepare(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	victim := filepath.Join(root, "logo.svg")
	if err := os.WriteFile(victim, []byte("<svg>mine</svg>"), 0o644); err != nil {
		t.Fatal(err)
	}

	escape := render.GatewayFunc(func(ctx context.Context, t render.Target, dir string) (string, error) {
		return filepath.Join(dir, "..", "..", "logo.svg"), nil
	})
	_, _, err = s.Ensure(context.Background(), render.NewTarget("@startuml\nA\n@enduml\n", render.FormatSVG), escape)
	if !errors.Is(err, errors.ErrCodeArtifactMissing) {
		t.Errorf("Ensure() error = %v, want %s", err, errors.ErrCodeArtifactMissing)
	}
	if data, err := os.ReadFile(victim); err != nil || string(data) != "<svg>mine</svg>" {
		t.Errorf("file outside the cache was touched: %q, %v", data, err)
	}
}

func TestEnsureIgnoresTraversalDiagramName(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	root := t.TempDir()
	s, err := Prepare(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	victim := filepath.Join(root, "logo.svg")
	if err := os.WriteFile(victim, []byte("<svg>mine</svg>"), 0o644); err != nil {
		t.Fatal(err)
	}

	gw := &render.PlantUML{Command: []string{"sh", "-c", "true"}}
	tg := render.NewTarget("@startuml ../../logo\nA -> B\n@enduml\n", render.FormatSVG)
	if _, _, err := s.Ensure(context.Background(), tg, gw); !errors.Is(err, errors.ErrCodeArtifactMissing) {
		t.Errorf("Ensure() error = %v, want %s", err, errors.ErrCodeArtifactMissing)
	}
	if data, err := os.ReadFile(victim); err != nil || string(data) != "<svg>mine</svg>" {
		t.Errorf("file outside the cache was touched: %q, %v", data, err)
	}
	if _, ok := s.Lookup(tg.ID, tg.Format); ok {
		t.Error("artifact stored for a render that produced nothing")
	}
}

func TestEnsureConcurrent(t *testing.T) {
	s := newStore(t)
	var calls atomic.Int32
	gw := writer("diagram.svg", "<svg>same</svg>", &calls)
	tg := render.NewTarget("@startuml\nA -> B\n@enduml\n", render.FormatSVG)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := s.Ensure(context.Background(), tg, gw); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Ensure() error: %v", err)
	}
	data, err := os.ReadFile(s.Path(tg.ID, tg.Format))
	if err != nil || string(data) != "<svg>same</svg>" {
		t.Errorf("artifact = %q, %v", data, err)
	}
	if n := calls.Load(); n < 1 || n > workers {
		t.Errorf("gateway called %d times", n)
	}
	assertNoScratch(t, s)
}

func TestNewFileStore(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := NewFileStore(missing); !errors.Is(err, errors.ErrCodeOutputDir) {
		t.Errorf("NewFileStore(missing) error = %v, want %s", err, errors.ErrCodeOutputDir)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(file); !errors.Is(err, errors.ErrCodeOutputDir) {
		t.Errorf("NewFileStore(file) error = %v, want %s", err, errors.ErrCodeOutputDir)
	}
}

func TestPrepare(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "book", ".plantuml_cache")
	s, err := Prepare(dir)
	if err != nil {
		t.Fatalf("Prepare() error: %v", err)
	}
	if s.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", s.Dir(), dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("cache directory not created: %v", err)
	}
}

func TestListAndClear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	var calls atomic.Int32
	for i := range 2 {
		tg := render.NewTarget(fmt.Sprintf("@startuml\nA -> B%d\n@enduml\n", i), render.FormatSVG)
		if _, _, err := s.Ensure(ctx, tg, writer("diagram.svg", "<svg/>", &calls)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "README.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(s.Dir(), ".render-stale"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Format != "svg" || e.Size != int64(len("<svg/>")) || e.ID.IsZero() {
			t.Errorf("unexpected entry %+v", e)
		}
	}

	n, err := s.Clear()
	if err != nil || n != 2 {
		t.Errorf("Clear() = %d, %v, want 2", n, err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "README.txt")); err != nil {
		t.Error("Clear() removed a file it does not own")
	}
	assertNoScratch(t, s)
}

func TestArtifact(t *testing.T) {
	s := newStore(t)
	var calls atomic.Int32
	tg := render.NewTarget("@startuml\nA -> B\n@enduml\n", render.FormatSVG)
	if _, _, err := s.Ensure(context.Background(), tg, writer("diagram.svg", "<svg/>", &calls)); err != nil {
		t.Fatal(err)
	}

	if path, err := s.Artifact(tg.Filename()); err != nil || path != s.Path(tg.ID, tg.Format) {
		t.Errorf("Artifact(existing) = %q, %v", path, err)
	}

	tests := []struct {
		name string
		code errors.Code
	}{
		{"../etc/passwd", errors.ErrCodeInvalidInput},
		{"diagram.svg", errors.ErrCodeInvalidInput},
		{"00000000-0000-0000-0000-000000000000.svg", errors.ErrCodeArtifactMissing},
	}
	for _, tt := range tests {
		if _, err := s.Artifact(tt.name); !errors.Is(err, tt.code) {
			t.Errorf("Artifact(%q) error = %v, want %s", tt.name, err, tt.code)
		}
	}
}

func TestRefreshAlwaysRenders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	r := NewRefresh(s)
	var calls atomic.Int32
	tg := render.NewTarget("@startuml\nA -> B\n@enduml\n", render.FormatSVG)

	for range 2 {
		if _, hit, err := r.Ensure(ctx, tg, writer("diagram.svg", "<svg/>", &calls)); err != nil || hit {
			t.Fatalf("Refresh.Ensure() = hit %v, err %v", hit, err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("gateway called %d times, want 2", n)
	}
	if _, ok := s.Lookup(tg.ID, tg.Format); !ok {
		t.Error("Refresh did not store the artifact")
	}
}

type countingCacheHooks struct {
	observability.NoopCacheHooks
	hits, misses, sets atomic.Int32
}

func (h *countingCacheHooks) OnCacheHit(context.Context, string)        { h.hits.Add(1) }
func (h *countingCacheHooks) OnCacheMiss(context.Context, string)       { h.misses.Add(1) }
func (h *countingCacheHooks) OnCacheSet(context.Context, string, int64) { h.sets.Add(1) }

func TestEnsureReportsCacheEvents(t *testing.T) {
	hooks := &countingCacheHooks{}
	observability.SetCacheHooks(hooks)
	t.Cleanup(observability.Reset)

	s := newStore(t)
	var calls atomic.Int32
	tg := render.NewTarget("@startuml\nA -> B\n@enduml\n", render.FormatSVG)
	for range 3 {
		if _, _, err := s.Ensure(context.Background(), tg, writer("diagram.svg", "<svg/>", &calls)); err != nil {
			t.Fatal(err)
		}
	}

	if hooks.misses.Load() != 1 || hooks.sets.Load() != 1 || hooks.hits.Load() != 2 {
		t.Errorf("events: misses=%d sets=%d hits=%d, want 1/1/2",
			hooks.misses.Load(), hooks.sets.Load(), hooks.hits.Load())
	}
}
