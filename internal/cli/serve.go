package cli

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pumlbook/pkg/buildinfo"
	"github.com/matzehuels/pumlbook/pkg/cache"
	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/observability"
	"github.com/matzehuels/pumlbook/pkg/pipeline"
	"github.com/matzehuels/pumlbook/pkg/render"
	"github.com/matzehuels/pumlbook/pkg/rewrite"
)

const (
	// artifactRoute is where cached artifacts are served; link mode points here
	// unless --link-prefix says otherwise.
	artifactRoute = "/artifacts"

	// documentHeader names the chapter a POST /render body belongs to,
	// relative to the source directory.
	documentHeader = "X-Document-Path"

	// statsHeader carries the diagram counters of a /render response.
	statsHeader = "X-Diagram-Stats"

	maxBodyBytes    = 8 << 20
	shutdownTimeout = 5 * time.Second
)

// serveCommand creates the serve command for the HTTP preview service.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve diagram rendering over HTTP",
		Long: `Serve runs an HTTP service for editor previews.

  POST /render             markdown in, rewritten markdown out
  GET  /artifacts/{name}   a cached artifact
  GET  /healthz            liveness

The chapter path, relative to the source directory, may be given in the
X-Document-Path header so that directives resolve as they would in the book.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3300", "listen address")

	return cmd
}

func (c *CLI) runServe(cmd *cobra.Command, addr string) error {
	ctx := cmd.Context()
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if rewrite.Mode(cfg.Mode) == rewrite.ModeLink && cfg.LinkPrefix == "" {
		cfg.LinkPrefix = artifactRoute
	}
	runner, store, err := c.newRunner(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(runner, store, cfg.SrcDir()),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	printInfo(cmd.ErrOrStderr(), "Serving on %s", StyleLink.Render("http://"+addr))

	select {
	case err := <-errCh:
		return errors.Wrap(errors.ErrCodeInternal, err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "shutdown")
	}
	loggerFromContext(ctx).Info("server stopped")
	return nil
}

// server handles the preview routes.
type server struct {
	runner *pipeline.Runner
	store  *cache.FileStore
	srcDir string
}

// newServer builds the router for the preview service.
func newServer(runner *pipeline.Runner, store *cache.FileStore, srcDir string) http.Handler {
	s := &server{runner: runner, store: store, srcDir: srcDir}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe)

	r.Get("/healthz", s.health)
	r.Post("/render", s.render)
	r.Get(artifactRoute+"/{name}", s.artifact)
	return r
}

// observe reports every request to the HTTP hooks.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, time.Since(start))
	})
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{Status: "ok", Build: buildinfo.Get()})
}

func (s *server) render(w http.ResponseWriter, r *http.Request) {
	dir := s.srcDir
	path := r.Header.Get(documentHeader)
	if path != "" {
		if !filepath.IsLocal(filepath.FromSlash(path)) {
			writeError(w, errors.New(errors.ErrCodeInvalidPath, "document path %q must stay inside the source directory", path))
			return
		}
		dir = filepath.Join(s.srcDir, filepath.Dir(filepath.FromSlash(path)))
	} else {
		path = "request"
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "read request body"))
		return
	}

	out, stats := s.runner.Process(r.Context(), pipeline.Document{Path: path, Dir: dir, Content: string(body)})
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set(statsHeader, stats.String())
	io.WriteString(w, out)
}

func (s *server) artifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, err := s.store.Artifact(name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", render.MimeType(filepath.Ext(name)[1:]))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeFile(w, r, path)
}

// errorResponse is the JSON body of failed requests.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPath, errors.ErrCodeInvalidFormat:
		status = http.StatusBadRequest
	case errors.ErrCodeArtifactMissing, errors.ErrCodeFileNotFound:
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Code:    string(errors.GetCode(err)),
		Message: errors.UserMessage(err),
	})
}
