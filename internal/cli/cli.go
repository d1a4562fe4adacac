package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/pumlbook/pkg/buildinfo"
	"github.com/matzehuels/pumlbook/pkg/cache"
	"github.com/matzehuels/pumlbook/pkg/config"
	"github.com/matzehuels/pumlbook/pkg/observability"
	"github.com/matzehuels/pumlbook/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for commands and display.
const appName = "pumlbook"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	flags  configFlags
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
// Run without a subcommand, it acts as an mdBook preprocessor.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Render PlantUML diagrams in mdBook books",
		Long: `pumlbook replaces ` + "```plantuml" + ` blocks and {{#plantuml path}} directives in
markdown with rendered images. Without a subcommand it runs as an mdBook
preprocessor, reading [context, book] JSON on stdin and writing the book to stdout.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			registerHooks(c.Logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPreprocessor(cmd)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	c.flags.register(root.PersistentFlags())

	// Register all subcommands
	root.AddCommand(c.supportsCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Configuration Flags
// =============================================================================

// configFlags holds the persistent flags that override book.toml settings.
type configFlags struct {
	book       string
	cacheDir   string
	command    string
	pipe       bool
	mode       string
	format     string
	maxDepth   int
	linkPrefix string
	jobs       int
	graphviz   bool
	force      bool
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	def := config.Default()
	fs.StringVar(&f.book, "book", ".", "book root directory (holding book.toml)")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "artifact cache directory (default: .plantuml_cache next to the source directory)")
	fs.StringVar(&f.command, "plantuml-cmd", def.Command, "PlantUML command line")
	fs.BoolVar(&f.pipe, "pipe", def.Pipe, "stream diagrams through plantuml stdin/stdout")
	fs.StringVar(&f.mode, "mode", def.Mode, "image reference mode: data-uri, link")
	fs.StringVar(&f.format, "format", def.Format, "artifact format (svg)")
	fs.IntVar(&f.maxDepth, "max-depth", def.MaxDepth, "maximum {{#plantuml}} include depth")
	fs.StringVar(&f.linkPrefix, "link-prefix", "", "URL prefix for artifacts in link mode")
	fs.IntVar(&f.jobs, "jobs", def.Jobs, "chapters processed in parallel")
	fs.BoolVar(&f.graphviz, "graphviz", def.Graphviz, "render @startdot diagrams in-process")
	fs.BoolVar(&f.force, "force", false, "re-render diagrams even when cached")
}

// apply overrides cfg with every flag set on the command line.
func (f *configFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("cache-dir") {
		cfg.CacheDir = f.cacheDir
	}
	if changed("plantuml-cmd") {
		cfg.Command = f.command
	}
	if changed("pipe") {
		cfg.Pipe = f.pipe
	}
	if changed("mode") {
		cfg.Mode = f.mode
	}
	if changed("format") {
		cfg.Format = f.format
	}
	if changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if changed("link-prefix") {
		cfg.LinkPrefix = f.linkPrefix
	}
	if changed("jobs") {
		cfg.Jobs = f.jobs
	}
	if changed("graphviz") {
		cfg.Graphviz = f.graphviz
	}
}

// loadConfig reads book.toml from --book and applies flag overrides.
func (c *CLI) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(c.flags.book)
	if err != nil {
		return config.Config{}, err
	}
	c.flags.apply(cmd, &cfg)
	return cfg, cfg.Validate()
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner prepares the artifact directory and creates a pipeline runner.
func (c *CLI) newRunner(cfg config.Config) (*pipeline.Runner, *cache.FileStore, error) {
	store, err := cache.Prepare(cfg.ArtifactDir())
	if err != nil {
		return nil, nil, err
	}

	var s cache.Store = store
	if c.flags.force {
		s = cache.NewRefresh(store)
	}

	c.Logger.Debug("configuration", "settings", cfg.String())
	runner, err := pipeline.NewRunner(s, cfg.Gateway(), cfg.PipelineOptions(c.Logger))
	if err != nil {
		return nil, nil, err
	}
	return runner, store, nil
}

// registerHooks routes observability events to the debug log.
func registerHooks(logger *log.Logger) {
	observability.SetRenderHooks(&logRenderHooks{logger: logger})
	observability.SetCacheHooks(&logCacheHooks{logger: logger})
	observability.SetHTTPHooks(&logHTTPHooks{logger: logger})
}
