package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pumlbook/pkg/errors"
	"github.com/matzehuels/pumlbook/pkg/include"
	"github.com/matzehuels/pumlbook/pkg/pipeline"
)

// renderFlags holds the flags for the render command.
type renderFlags struct {
	output string
	watch  bool
}

// renderCommand creates the render command for processing a single markdown file.
func (c *CLI) renderCommand() *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "render <file.md>",
		Short: "Render the diagrams of one markdown file",
		Long: `Render replaces the diagrams of a single markdown file, outside of mdBook.

Settings are read from book.toml in the --book directory. Directive paths are
resolved against the file's own directory. The result goes to stdout unless
--output names a file.`,
		Example: `  # Print the rewritten chapter
  pumlbook render src/architecture.md

  # Write to a file and re-render on every change
  pumlbook render src/architecture.md -o preview.md --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "re-render when markdown or diagram sources change")

	return cmd
}

// runRender renders input once and, with --watch, again after each change.
func (c *CLI) runRender(cmd *cobra.Command, input string, flags renderFlags) error {
	ctx := cmd.Context()
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	runner, _, err := c.newRunner(cfg)
	if err != nil {
		return err
	}

	r := &fileRenderer{
		runner: runner,
		input:  input,
		output: flags.output,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}
	included := &include.Files{}
	if _, err := r.render(include.WithFiles(ctx, included)); err != nil {
		return err
	}
	if !flags.watch {
		return nil
	}

	dir, err := filepath.Abs(filepath.Dir(input))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", input)
	}
	w, err := newWatcher(dir, r.outputPath())
	if err != nil {
		return err
	}
	defer w.Close()

	logger := loggerFromContext(ctx)
	watchIncluded := func(files *include.Files) {
		if err := w.addFiles(files.Paths()); err != nil {
			logger.Warn("cannot watch included files", "error", err)
		}
	}
	watchIncluded(included)

	printInfo(r.stderr, "Watching %s for changes", dir)
	return w.Run(ctx, func(ctx context.Context) {
		prog := newProgress(logger)
		included := &include.Files{}
		stats, err := r.render(include.WithFiles(ctx, included))
		if err != nil {
			logger.Warn("render failed", "file", input, "error", errors.UserMessage(err))
			return
		}
		watchIncluded(included)
		prog.done(fmt.Sprintf("Re-rendered %s: %s", input, stats))
	})
}

// fileRenderer processes one markdown file to stdout or an output file.
type fileRenderer struct {
	runner *pipeline.Runner
	input  string
	output string
	stdout io.Writer
	stderr io.Writer
}

func (r *fileRenderer) toStdout() bool {
	return r.output == "" || r.output == "-"
}

// outputPath returns the absolute output file, or "" for stdout.
func (r *fileRenderer) outputPath() string {
	if r.toStdout() {
		return ""
	}
	abs, err := filepath.Abs(r.output)
	if err != nil {
		return r.output
	}
	return abs
}

func (r *fileRenderer) render(ctx context.Context) (pipeline.Stats, error) {
	data, err := os.ReadFile(r.input)
	if err != nil {
		return pipeline.Stats{}, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", r.input)
	}
	abs, err := filepath.Abs(r.input)
	if err != nil {
		return pipeline.Stats{}, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", r.input)
	}
	doc := pipeline.Document{Path: r.input, Dir: filepath.Dir(abs), Content: string(data)}

	if r.toStdout() {
		out, stats := r.runner.Process(ctx, doc)
		if _, err := io.WriteString(r.stdout, out); err != nil {
			return stats, errors.Wrap(errors.ErrCodeInternal, err, "write output")
		}
		return stats, nil
	}

	spinner := newSpinner(ctx, r.stderr, fmt.Sprintf("Rendering %s...", r.input))
	spinner.Start()
	out, stats := r.runner.Process(ctx, doc)
	if err := os.WriteFile(r.output, []byte(out), 0o644); err != nil {
		spinner.StopWithError(fmt.Sprintf("Failed to write %s", r.output))
		return stats, errors.Wrap(errors.ErrCodeOutputDir, err, "write %s", r.output)
	}
	spinner.StopWithSuccess(fmt.Sprintf("Rendered %s", r.input))
	printFile(r.stderr, r.output)
	printStats(r.stderr, stats)
	if stats.Failed > 0 {
		printWarning(r.stderr, "%d diagrams were left as written, see the log for causes", stats.Failed)
	}
	return stats, nil
}
