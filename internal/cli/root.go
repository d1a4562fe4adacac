package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/pumlbook/pkg/book"
	"github.com/matzehuels/pumlbook/pkg/config"
)

// runPreprocessor handles the mdBook preprocessor protocol: [context, book]
// JSON on stdin, the rewritten book on stdout. Nothing else may be written to
// stdout; status goes to the logger.
//
// Settings come from the context mdBook passes, not from --book, so the book
// root always matches the one mdBook is building. Explicit flags still win.
func (c *CLI) runPreprocessor(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	mctx, b, err := book.ReadRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}
	logger.Debug("preprocessor request",
		"root", mctx.Root,
		"renderer", mctx.Renderer,
		"mdbook", mctx.MdBookVersion)

	cfg, err := config.FromMdBook(mctx.Root, mctx.Src(), mctx.Preprocessor(config.Section))
	if err != nil {
		return err
	}
	c.flags.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	runner, _, err := c.newRunner(cfg)
	if err != nil {
		return err
	}

	p := &book.Preprocessor{Runner: runner, SrcDir: cfg.SrcDir(), Jobs: cfg.Jobs}
	if _, err := p.Run(ctx, b); err != nil {
		return err
	}
	return book.Write(cmd.OutOrStdout(), b)
}

// supportsCommand answers mdBook's renderer check. Diagrams are rewritten to
// plain markdown images, which every renderer accepts.
func (c *CLI) supportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "supports <renderer>",
		Short:  "Report renderer support to mdBook",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			loggerFromContext(cmd.Context()).Debug("renderer supported", "renderer", args[0])
			return nil
		},
	}
}
