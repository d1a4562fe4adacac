package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pumlbook/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the rendered diagram cache",
		Long: `The cache directory holds one artifact per distinct diagram, named after the
diagram's content identity. Artifacts are reused until the cache is cleared.`,
	}

	cmd.AddCommand(c.cacheListCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// openCache opens the configured artifact directory. It returns nil when the
// directory does not exist yet.
func (c *CLI) openCache(cmd *cobra.Command) (*cache.FileStore, string, error) {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	dir := cfg.ArtifactDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, dir, nil
	}
	store, err := cache.NewFileStore(dir)
	return store, dir, err
}

// cacheListCommand creates the "cache list" subcommand.
func (c *CLI) cacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := c.openCache(cmd)
			if err != nil {
				return err
			}
			if store == nil {
				printInfo(cmd.ErrOrStderr(), "Cache is empty")
				return nil
			}
			entries, err := store.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				printInfo(cmd.ErrOrStderr(), "Cache is empty")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cacheTable(entries))
			return nil
		},
	}
}

// cacheTable renders entries with human-readable sizes and ages.
func cacheTable(entries []cache.Entry) string {
	var total int64
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		total += e.Size
		rows = append(rows, []string{
			e.ID.String(),
			e.Format,
			humanize.Bytes(uint64(e.Size)),
			humanize.Time(e.ModTime),
		})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Identity", "Format", "Size", "Written").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return StyleValue
			}
			return StyleDim
		})

	summary := StyleDim.Render(fmt.Sprintf("%s in %s artifacts",
		humanize.Bytes(uint64(total)), humanize.Comma(int64(len(entries)))))
	return t.Render() + "\n" + summary
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, dir, err := c.openCache(cmd)
			if err != nil {
				return err
			}
			w := cmd.ErrOrStderr()
			if store == nil {
				printInfo(w, "Cache is empty")
				return nil
			}

			count, err := store.Clear()
			if err != nil {
				return err
			}
			printSuccess(w, "Cleared %d cached artifacts", count)
			printKeyValue(w, "Directory", dir)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.ArtifactDir())
			return nil
		},
	}
}
