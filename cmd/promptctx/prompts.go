package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptctx/internal/compose"
	"github.com/jackzampolin/promptctx/internal/prompts"
	"github.com/jackzampolin/promptctx/internal/svcctx"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage and compose prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		search, _ := cmd.Flags().GetString("search")
		status, _ := cmd.Flags().GetString("status")
		if status != "" && !prompts.Status(status).Valid() {
			return fmt.Errorf("unknown status %q", status)
		}

		list, err := s.Prompts.List(cmd.Context(), prompts.ListOptions{
			Search: search,
			Status: prompts.Status(status),
		})
		if err != nil {
			return err
		}

		type row struct {
			Name        string   `json:"name" yaml:"name"`
			ID          string   `json:"id" yaml:"id"`
			Status      string   `json:"status,omitempty" yaml:"status,omitempty"`
			Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
			Description string   `json:"description,omitempty" yaml:"description,omitempty"`
			Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
		}
		rows := make([]row, 0, len(list))
		for _, p := range list {
			rows = append(rows, row{
				Name:        p.Name,
				ID:          p.ID,
				Status:      string(p.Metadata.Status),
				Version:     p.Version,
				Description: p.Description,
				Tags:        p.Tags,
			})
		}
		return printer(cmd).Print(rows)
	},
}

var promptsViewCmd = &cobra.Command{
	Use:   "view <name>",
	Short: "Compose a prompt and show every section",
	Long: `Compose a prompt and print the full composition result: the prompt,
its related assets, query results and output templates.

Use --report to also write a markdown report.

Examples:
  promptctx prompts view summarize
  promptctx prompts view summarize --no-queries
  promptctx prompts view summarize --report summarize.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		res, err := s.Pipeline.Compose(cmd.Context(), args[0], composeOptions(cmd, s))
		if err != nil {
			return err
		}

		if report, _ := cmd.Flags().GetString("report"); report != "" {
			if err := writeReport(report, res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", report)
		}
		return printer(cmd).Print(res)
	},
}

var promptsComposeCmd = &cobra.Command{
	Use:   "compose <name>",
	Short: "Print the combined content of a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		res, err := s.Pipeline.Compose(cmd.Context(), args[0], composeOptions(cmd, s))
		if err != nil {
			return err
		}
		return printer(cmd).Text(res.Content)
	},
}

var promptsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create a prompt from a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		p, err := s.Prompts.ImportFile(cmd.Context(), args[0], name)
		if err != nil {
			return err
		}
		return printer(cmd).Print(p)
	},
}

var promptsExportCmd = &cobra.Command{
	Use:   "export <name> <file>",
	Short: "Write a stored prompt to a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		p, err := s.Prompts.GetByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := prompts.Export(p, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", p.Name, args[1])
		return nil
	},
}

var promptsUpdateCmd = &cobra.Command{
	Use:   "update <name> <file>",
	Short: "Replace a stored prompt from a local file",
	Long: `Replace a stored prompt's content from a local file.

With --watch the file is re-imported on every change until interrupted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		p, err := s.Prompts.GetByName(ctx, args[0])
		if err != nil {
			return err
		}

		update := func() error {
			updated, err := s.Prompts.UpdateFromFile(ctx, p.ID, args[1])
			if err != nil {
				return err
			}
			return printer(cmd).Print(updated)
		}
		if err := update(); err != nil {
			return err
		}

		if watch, _ := cmd.Flags().GetBool("watch"); !watch {
			return nil
		}
		if cfgManager != nil && cfgManager.ConfigFile() != "" {
			cfgManager.OnChange(s.Reload)
			cfgManager.WatchConfig()
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for changes (Ctrl+C to stop)\n", args[1])
		return watchFile(ctx, args[1], func() {
			if err := update(); err != nil {
				s.Logger.Warn("re-import failed", "file", args[1], "error", err)
			}
		})
	},
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a prompt with its relationships and template associations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		p, err := s.Prompts.GetByName(ctx, args[0])
		if err != nil {
			return err
		}

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm(cmd, fmt.Sprintf("Delete prompt %s (%s)?", p.Name, p.ID))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted")
				return nil
			}
		}
		if err := s.Prompts.Delete(ctx, p.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %s\n", p.Name)
		return nil
	},
}

// composeOptions starts from the configured steps and applies --no-* flags.
func composeOptions(cmd *cobra.Command, s *svcctx.Services) compose.Options {
	opts := s.ComposeOptions()
	if off, _ := cmd.Flags().GetBool("no-relationships"); off {
		opts.IncludeRelationships = false
	}
	if off, _ := cmd.Flags().GetBool("no-queries"); off {
		opts.IncludeQueries = false
	}
	if off, _ := cmd.Flags().GetBool("no-templates"); off {
		opts.IncludeTemplates = false
	}
	return opts
}

func writeReport(path string, res *compose.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := compose.RenderReport(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// confirm asks a yes/no question on stdin. Anything but y/yes declines.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// watchFile calls fn after each write to path until ctx is done. The parent
// directory is watched so editors that replace the file are followed.
func watchFile(ctx context.Context, path string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				fn()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}

func init() {
	promptsListCmd.Flags().String("search", "", "Filter by name substring (case-insensitive)")
	promptsListCmd.Flags().String("status", "", "Filter by status: draft, active, deprecated, archived")

	for _, c := range []*cobra.Command{promptsViewCmd, promptsComposeCmd} {
		c.Flags().Bool("no-relationships", false, "Skip related asset content")
		c.Flags().Bool("no-queries", false, "Skip embedded database queries")
		c.Flags().Bool("no-templates", false, "Skip output template instructions")
	}
	promptsViewCmd.Flags().String("report", "", "Also write a markdown report to this file")

	promptsImportCmd.Flags().String("name", "", "Prompt name (default: from the document or file name)")
	promptsUpdateCmd.Flags().Bool("watch", false, "Re-import on every change to the file")
	promptsDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsViewCmd)
	promptsCmd.AddCommand(promptsComposeCmd)
	promptsCmd.AddCommand(promptsImportCmd)
	promptsCmd.AddCommand(promptsExportCmd)
	promptsCmd.AddCommand(promptsUpdateCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
	rootCmd.AddCommand(promptsCmd)
}
