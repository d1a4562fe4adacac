package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/matzehuels/pumlbook/pkg/cache"
	"github.com/matzehuels/pumlbook/pkg/pipeline"
	"github.com/matzehuels/pumlbook/pkg/render"
	"github.com/matzehuels/pumlbook/pkg/rewrite"
)

var svgGateway = render.GatewayFunc(func(ctx context.Context, t render.Target, dir string) (string, error) {
	out := filepath.Join(dir, "diagram.svg")
	return out, os.WriteFile(out, []byte("<svg/>"), 0o644)
})

func newTestServer(t *testing.T, opts pipeline.Options) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	if err := os.MkdirAll(filepath.Join(srcDir, "guide"), 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := cache.Prepare(filepath.Join(root, ".plantuml_cache"))
	if err != nil {
		t.Fatal(err)
	}
	runner, err := pipeline.NewRunner(store, svgGateway, opts)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(newServer(runner, store, srcDir))
	t.Cleanup(srv.Close)
	return srv, srcDir
}

func post(t *testing.T, url, body string, header map[string]string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(data)
}

func TestServeRender(t *testing.T) {
	srv, _ := newTestServer(t, pipeline.Options{})

	resp, body := post(t, srv.URL+"/render", "Intro\n```plantuml\n@startuml Seq\nA -> B\n@enduml\n```\n", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if want := "Intro\n![Seq](data:image/svg+xml;base64,PHN2Zy8+)\n"; body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
	if got := resp.Header.Get(statsHeader); !strings.HasPrefix(got, "1 diagrams: 1 rendered") {
		t.Errorf("%s = %q", statsHeader, got)
	}
}

func TestServeRenderResolvesDirectivesAgainstDocument(t *testing.T) {
	srv, srcDir := newTestServer(t, pipeline.Options{})
	if err := os.WriteFile(filepath.Join(srcDir, "guide", "flow.puml"), []byte("@startuml Flow\nA -> B\n@enduml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, body := post(t, srv.URL+"/render", "{{#plantuml flow.puml}}", map[string]string{documentHeader: "guide/page.md"})
	if want := "![Flow](data:image/svg+xml;base64,PHN2Zy8+)"; body != want {
		t.Errorf("body = %q, want %q", body, want)
	}

	// Without the header the directive is resolved against the source root.
	_, body = post(t, srv.URL+"/render", "{{#plantuml flow.puml}}", nil)
	if body != "{{#plantuml flow.puml}}" {
		t.Errorf("body = %q, want the directive kept", body)
	}
}

func TestServeRenderRejectsEscapingDocument(t *testing.T) {
	srv, _ := newTestServer(t, pipeline.Options{})

	for _, doc := range []string{"../outside.md", "/etc/passwd"} {
		resp, body := post(t, srv.URL+"/render", "text", map[string]string{documentHeader: doc})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", doc, resp.StatusCode)
		}
		var e errorResponse
		if err := json.Unmarshal([]byte(body), &e); err != nil || e.Code != "INVALID_PATH" {
			t.Errorf("%s: body = %s", doc, body)
		}
	}
}

var artifactLink = regexp.MustCompile(`\(/artifacts/([^)]+)\)`)

func TestServeArtifacts(t *testing.T) {
	srv, _ := newTestServer(t, pipeline.Options{Mode: rewrite.ModeLink, LinkPrefix: artifactRoute})

	_, body := post(t, srv.URL+"/render", "```plantuml\nA -> B\n```", nil)
	m := artifactLink.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("no artifact link in %q", body)
	}

	resp, err := http.Get(srv.URL + artifactRoute + "/" + m[1])
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(data) != "<svg/>" {
		t.Errorf("GET artifact = %d %q", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestServeArtifactErrors(t *testing.T) {
	srv, _ := newTestServer(t, pipeline.Options{})

	tests := []struct {
		name string
		want int
	}{
		{"not-an-identity.svg", http.StatusBadRequest},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", http.StatusBadRequest},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8.svg", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + artifactRoute + "/" + tt.name)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}
}

func TestServeHealth(t *testing.T) {
	srv, _ := newTestServer(t, pipeline.Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var h healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || h.Status != "ok" || h.Build.Version == "" {
		t.Errorf("GET /healthz = %d %+v", resp.StatusCode, h)
	}
}

func TestServeMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, pipeline.Options{})

	resp, err := http.Get(srv.URL + "/render")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /render = %d, want 405", resp.StatusCode)
	}
}
