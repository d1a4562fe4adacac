package book

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/pumlbook/pkg/cache"
	"github.com/matzehuels/pumlbook/pkg/pipeline"
	"github.com/matzehuels/pumlbook/pkg/render"
)

const request = `[
  {
    "root": "/book",
    "config": {
      "book": {"authors": [], "language": "en", "src": "pages", "title": "Example"},
      "preprocessor": {"plantuml": {"command": "pumlbook", "mode": "link"}}
    },
    "renderer": "html",
    "mdbook_version": "0.4.40"
  },
  {
    "sections": [
      {"PartTitle": "Part One"},
      {"Chapter": {
        "name": "Intro",
        "content": "# Intro\n` + "```plantuml\\n@startuml Intro\\nA -> B\\n@enduml\\n```" + `\n",
        "number": [1],
        "sub_items": [
          {"Chapter": {
            "name": "Nested",
            "content": "{{#plantuml a.puml}}",
            "number": [1, 1],
            "sub_items": [],
            "path": "sub/nested.md",
            "source_path": "sub/nested.md",
            "parent_names": ["Intro"]
          }}
        ],
        "path": "intro.md",
        "source_path": "intro.md",
        "parent_names": []
      }},
      "Separator",
      {"Chapter": {
        "name": "Draft",
        "content": "",
        "number": null,
        "sub_items": [],
        "path": null,
        "source_path": null,
        "parent_names": []
      }}
    ],
    "__non_exhaustive": null
  }
]`

func TestReadRequest(t *testing.T) {
	ctx, b, err := ReadRequest(strings.NewReader(request))
	if err != nil {
		t.Fatalf("ReadRequest() error: %v", err)
	}

	if ctx.Root != "/book" || ctx.Renderer != "html" || ctx.MdBookVersion != "0.4.40" {
		t.Errorf("context = %+v", ctx)
	}
	if ctx.Src() != "pages" {
		t.Errorf("Src() = %q", ctx.Src())
	}
	if got := string(ctx.Preprocessor("plantuml")); !strings.Contains(got, `"mode": "link"`) {
		t.Errorf("Preprocessor(plantuml) = %s", got)
	}
	if ctx.Preprocessor("katex") != nil {
		t.Error("Preprocessor(katex) should be nil")
	}

	if len(b.Sections) != 4 {
		t.Fatalf("got %d sections, want 4", len(b.Sections))
	}
	var names []string
	for _, ch := range b.Chapters() {
		names = append(names, ch.Name)
	}
	if diff := cmp.Diff([]string{"Intro", "Nested", "Draft"}, names); diff != "" {
		t.Errorf("Chapters() mismatch (-want +got):\n%s", diff)
	}
	if b.Chapters()[2].Path != nil {
		t.Error("draft chapter should have a nil path")
	}
}

func TestReadRequestErrors(t *testing.T) {
	inputs := []string{
		"",
		"{}",
		"[{}]",
		`[{"root": 1}, {}]`,
		`[{}, {"sections": [{"Chapter": {"name": 3}}]}]`,
	}
	for _, in := range inputs {
		if _, _, err := ReadRequest(strings.NewReader(in)); err == nil {
			t.Errorf("ReadRequest(%q) should fail", in)
		}
	}
}

func TestWritePreservesUnknownFields(t *testing.T) {
	_, b, err := ReadRequest(strings.NewReader(request))
	if err != nil {
		t.Fatal(err)
	}
	b.Chapters()[0].Content = "changed"

	var buf bytes.Buffer
	if err := Write(&buf, b); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	var got, want any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	var pair []json.RawMessage
	if err := json.Unmarshal([]byte(request), &pair); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(pair[1], &want); err != nil {
		t.Fatal(err)
	}
	sections := want.(map[string]any)["sections"].([]any)
	sections[1].(map[string]any)["Chapter"].(map[string]any)["content"] = "changed"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Write() mismatch (-want +got):\n%s", diff)
	}
}

type svgGateway struct{}

func (svgGateway) Render(ctx context.Context, t render.Target, dir string) (string, error) {
	out := filepath.Join(dir, "diagram.svg")
	return out, os.WriteFile(out, []byte("<svg/>"), 0o644)
}

func TestPreprocessorRun(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "pages")
	if err := os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "sub", "a.puml"), []byte("@startuml Nested\nC -> D\n@enduml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := cache.Prepare(filepath.Join(root, ".plantuml_cache"))
	if err != nil {
		t.Fatal(err)
	}
	runner, err := pipeline.NewRunner(store, svgGateway{}, pipeline.Options{})
	if err != nil {
		t.Fatal(err)
	}

	_, b, err := ReadRequest(strings.NewReader(request))
	if err != nil {
		t.Fatal(err)
	}
	p := &Preprocessor{Runner: runner, SrcDir: srcDir, Jobs: 4}
	stats, err := p.Run(context.Background(), b)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	chapters := b.Chapters()
	if want := "# Intro\n![Intro](data:image/svg+xml;base64,PHN2Zy8+)\n"; chapters[0].Content != want {
		t.Errorf("Intro content = %q, want %q", chapters[0].Content, want)
	}
	if want := "![Nested](data:image/svg+xml;base64,PHN2Zy8+)"; chapters[1].Content != want {
		t.Errorf("Nested content = %q, want %q", chapters[1].Content, want)
	}
	if chapters[2].Content != "" {
		t.Errorf("draft chapter changed: %q", chapters[2].Content)
	}
	if stats.Blocks != 2 || stats.Rendered != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPreprocessorRunCancelled(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	runner, err := pipeline.NewRunner(store, svgGateway{}, pipeline.Options{})
	if err != nil {
		t.Fatal(err)
	}
	_, b, err := ReadRequest(strings.NewReader(request))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Preprocessor{Runner: runner, SrcDir: t.TempDir()}).Run(ctx, b); err == nil {
		t.Error("Run() with a cancelled context should fail")
	}
}
