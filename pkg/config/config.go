// Package config loads pumlbook settings.
//
// Settings come from four places, later ones winning:
//
//  1. [Default]
//  2. the [preprocessor.plantuml] table of book.toml, plus [book] src
//  3. the same table as mdBook passes it in the preprocessor context
//  4. command-line flags (applied by the caller)
//
// Keys use mdBook's kebab-case convention:
//
//	[preprocessor.plantuml]
//	plantuml-cmd = "java -jar /opt/plantuml.jar"
//	pipe = true
//	mode = "data-uri"     # or "link"
//	format = "svg"
//	max-depth = 10
//	link-prefix = ""
//	cache-dir = ".plantuml_cache"
//	jobs = 4
//	graphviz = true
//
// The key that names the diagram renderer is "plantuml-cmd" rather than
// "command" because mdBook reserves "command" for the preprocessor itself.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/include"
	"github.com/matzehuels/pumlbook/pkg/pipeline"
	"github.com/matzehuels/pumlbook/pkg/render"
	"github.com/matzehuels/pumlbook/pkg/rewrite"
)

const (
	// BookFile is the mdBook configuration file name.
	BookFile = "book.toml"

	// Section is the preprocessor table name under [preprocessor].
	Section = "plantuml"

	// DefaultSrc is mdBook's default source directory.
	DefaultSrc = "src"

	// CacheDirName is the artifact directory created next to the source
	// directory.
	CacheDirName = ".plantuml_cache"
)

// Config holds every pumlbook setting.
type Config struct {
	// Root is the book root directory, the one holding book.toml.
	Root string `toml:"-" json:"-"`
	// Src is the source directory relative to Root.
	Src string `toml:"-" json:"-"`

	CacheDir   string `toml:"cache-dir" json:"cache-dir"`
	Command    string `toml:"plantuml-cmd" json:"plantuml-cmd"`
	Pipe       bool   `toml:"pipe" json:"pipe"`
	Mode       string `toml:"mode" json:"mode"`
	Format     string `toml:"format" json:"format"`
	MaxDepth   int    `toml:"max-depth" json:"max-depth"`
	LinkPrefix string `toml:"link-prefix" json:"link-prefix"`
	Jobs       int    `toml:"jobs" json:"jobs"`
	Graphviz   bool   `toml:"graphviz" json:"graphviz"`
}

// Default returns the built-in settings for a book rooted at ".".
func Default() Config {
	return Config{
		Root:     ".",
		Src:      DefaultSrc,
		Command:  render.DefaultCommand,
		Pipe:     true,
		Mode:     string(rewrite.ModeDataURI),
		Format:   render.FormatSVG,
		MaxDepth: include.DefaultMaxDepth,
		Jobs:     1,
		Graphviz: true,
	}
}

// mdbookKeys are preprocessor settings interpreted by mdBook itself.
var mdbookKeys = map[string]bool{
	"command":   true,
	"renderers": true,
	"before":    true,
	"after":     true,
	"optional":  true,
}

// bookToml is the subset of book.toml pumlbook reads.
type bookToml struct {
	Book struct {
		Src string `toml:"src"`
	} `toml:"book"`
	Preprocessor map[string]toml.Primitive `toml:"preprocessor"`
}

// Load reads root/book.toml on top of the defaults. A missing book.toml is
// not an error.
func Load(root string) (Config, error) {
	cfg := Default()
	cfg.Root = root

	path := filepath.Join(root, BookFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	var book bookToml
	meta, err := toml.DecodeFile(path, &book)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s: failed to parse TOML", path)
	}
	if book.Book.Src != "" {
		cfg.Src = book.Book.Src
	}
	if prim, ok := book.Preprocessor[Section]; ok {
		if err := meta.PrimitiveDecode(prim, &cfg); err != nil {
			return Config{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s: [preprocessor.%s]", path, Section)
		}
	}

	for _, key := range meta.Undecoded() {
		if len(key) == 3 && key[0] == "preprocessor" && key[1] == Section && !mdbookKeys[key[2]] {
			log.Warn("unknown setting", "file", path, "key", key.String())
		}
	}
	return cfg, nil
}

// FromMdBook builds the settings mdBook hands a preprocessor: the book root,
// the [book] src value and the preprocessor's own table as JSON.
func FromMdBook(root, src string, table []byte) (Config, error) {
	cfg := Default()
	cfg.Root = root
	if src != "" {
		cfg.Src = src
	}
	if err := cfg.ApplyJSON(table); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyJSON overrides the fields present in data, a JSON object using the
// same keys as book.toml. Empty data is a no-op.
func (c *Config) ApplyJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "preprocessor.%s settings", Section)
	}
	return nil
}

// Validate checks setting values.
func (c *Config) Validate() error {
	if err := render.ValidateFormat(c.Format); err != nil {
		return err
	}
	if _, err := rewrite.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.MaxDepth < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "max-depth must be at least 1, got %d", c.MaxDepth)
	}
	if c.Jobs < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "jobs must be at least 1, got %d", c.Jobs)
	}
	if c.Command == "" {
		return errors.New(errors.ErrCodeInvalidInput, "plantuml-cmd cannot be empty")
	}
	return nil
}

// SrcDir returns the book's source directory.
func (c *Config) SrcDir() string {
	return filepath.Join(c.Root, c.Src)
}

// ArtifactDir returns the cache directory. Relative cache-dir values are
// taken from the book root; the default is a .plantuml_cache directory next
// to the source directory.
func (c *Config) ArtifactDir() string {
	switch {
	case c.CacheDir != "" && filepath.IsAbs(c.CacheDir):
		return c.CacheDir
	case c.CacheDir != "":
		return filepath.Join(c.Root, c.CacheDir)
	case filepath.Clean(c.Src) == ".":
		return filepath.Join(c.Root, CacheDirName)
	}
	return filepath.Join(filepath.Dir(c.SrcDir()), CacheDirName)
}

// Gateway builds the renderer the settings describe.
func (c *Config) Gateway() render.Gateway {
	d := render.Dispatch{Default: render.NewPlantUML(c.Command, c.Pipe)}
	if c.Graphviz {
		d.Dot = render.Graphviz{}
	}
	return d
}

// PipelineOptions converts the settings for pipeline.NewRunner.
func (c *Config) PipelineOptions(logger *log.Logger) pipeline.Options {
	return pipeline.Options{
		Format:     c.Format,
		Mode:       rewrite.Mode(c.Mode),
		LinkPrefix: c.LinkPrefix,
		MaxDepth:   c.MaxDepth,
		Logger:     logger,
	}
}

// String summarizes the settings for debug logs.
func (c Config) String() string {
	return fmt.Sprintf("src=%s cache=%s cmd=%q pipe=%t mode=%s format=%s max-depth=%d jobs=%d graphviz=%t",
		c.SrcDir(), c.ArtifactDir(), c.Command, c.Pipe, c.Mode, c.Format, c.MaxDepth, c.Jobs, c.Graphviz)
}
