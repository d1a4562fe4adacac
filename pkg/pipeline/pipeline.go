// Package pipeline turns a markdown document with embedded PlantUML into a
// document with image references.
//
// This package implements the complete scan → identify → cache → render →
// rewrite pipeline that is shared by the mdBook preprocessor, the render
// command and the preview server. By centralizing this logic, every entry
// point produces the same output for the same input.
//
// # Passes
//
// A document is processed in two passes:
//
//  1. Directives: every top-level {{#plantuml path}} is loaded (expanding any
//     directives inside the included file, up to MaxDepth levels) and the
//     resulting source is rendered as one diagram
//  2. Fences: every ```plantuml fenced block is rendered
//
// Each diagram is rendered at most once per cache: its identity names the
// artifact file, and an existing file is reused as-is. A diagram that cannot
// be rendered is logged and left in the document exactly as written.
//
// # Usage
//
//	store, _ := cache.Prepare(dir)
//	runner, err := pipeline.NewRunner(store, render.NewPlantUML("", true), pipeline.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, stats := runner.Process(ctx, pipeline.Document{
//	    Path:    "chapter_1.md",
//	    Dir:     "src",
//	    Content: markdown,
//	})
package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/include"
	"github.com/matzehuels/pumlbook/pkg/render"
	"github.com/matzehuels/pumlbook/pkg/rewrite"
)

// =============================================================================
// Default Values - Single Source of Truth for every entry point
// =============================================================================

const (
	// DefaultFormat is the artifact format.
	DefaultFormat = render.FormatSVG

	// DefaultMode inlines artifacts, so rendered documents are self-contained.
	DefaultMode = rewrite.ModeDataURI

	// DefaultMaxDepth bounds directive expansion.
	DefaultMaxDepth = include.DefaultMaxDepth
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the pipeline.
// This struct supports JSON serialization for server requests.
type Options struct {
	Format     string       `json:"format,omitempty"`
	Mode       rewrite.Mode `json:"mode,omitempty"`
	LinkPrefix string       `json:"link_prefix,omitempty"`
	MaxDepth   int          `json:"max_depth,omitempty"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// SetDefaults fills in zero-valued fields.
func (o *Options) SetDefaults() {
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if o.Mode == "" {
		o.Mode = DefaultMode
	}
	if o.MaxDepth == 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Validate checks option values. Call SetDefaults first.
func (o *Options) Validate() error {
	if err := render.ValidateFormat(o.Format); err != nil {
		return err
	}
	if _, err := rewrite.ParseMode(string(o.Mode)); err != nil {
		return err
	}
	if o.MaxDepth < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "max depth must be at least 1, got %d", o.MaxDepth)
	}
	return nil
}

// ValidateAndSetDefaults applies defaults and validates.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	o.SetDefaults()
	if err := o.Validate(); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// =============================================================================
// Documents and Results
// =============================================================================

// Document is one markdown source to process.
type Document struct {
	// Path identifies the document in logs, e.g. "chapter_1.md".
	Path string
	// Dir is the directory directive paths and relative links are resolved
	// against.
	Dir string
	// Content is the markdown text.
	Content string
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Blocks     int // Diagrams found, suppressed ones included
	Rendered   int // Diagrams rendered by the gateway
	CacheHits  int // Diagrams whose artifact already existed
	Failed     int // Diagrams left unchanged because of an error
	Suppressed int // Escaped directives and ignored fences
	Included   int // Files pulled in through directives
	Truncated  int // Include chains cut at MaxDepth
	Duration   time.Duration
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Blocks += other.Blocks
	s.Rendered += other.Rendered
	s.CacheHits += other.CacheHits
	s.Failed += other.Failed
	s.Suppressed += other.Suppressed
	s.Included += other.Included
	s.Truncated += other.Truncated
	s.Duration += other.Duration
}

// String summarizes the counters for log lines.
func (s Stats) String() string {
	return fmt.Sprintf("%d diagrams: %d rendered, %d cached, %d failed, %d suppressed",
		s.Blocks, s.Rendered, s.CacheHits, s.Failed, s.Suppressed)
}
