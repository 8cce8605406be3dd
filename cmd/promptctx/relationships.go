package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptctx/internal/relationships"
)

var relationshipsCmd = &cobra.Command{
	Use:     "relationships",
	Aliases: []string{"rel"},
	Short:   "Inspect and synchronize prompt-to-asset relationships",
}

var relationshipsListCmd = &cobra.Command{
	Use:   "list <prompt>",
	Short: "List a prompt's related assets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		p, err := s.Prompts.GetByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		rels, err := s.Prompts.Relationships(cmd.Context(), p.ID)
		if err != nil {
			return err
		}
		return printer(cmd).Print(rels)
	},
}

var relationshipsSyncCmd = &cobra.Command{
	Use:   "sync <prompt> <desired.yaml>",
	Short: "Make a prompt's relationships match a desired asset set",
	Long: `Synchronize a prompt's relationships with the assets listed in a YAML file.

Stale relationships are deleted, existing ones updated and new ones inserted.
Assets marked external are recorded only in the prompt's metadata.

Example desired.yaml:
  assets:
    - id: docs/guide.md
      type: reference
      context: Style guide
    - id: https://example.com/spec
      external: true`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		p, err := s.Prompts.GetByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ids, settings, err := relationships.LoadDesired(args[1])
		if err != nil {
			return err
		}
		res, err := s.Synchronizer.Synchronize(cmd.Context(), p.ID, ids, settings)
		if err != nil {
			return err
		}
		return printer(cmd).Print(res)
	},
}

func init() {
	relationshipsCmd.AddCommand(relationshipsListCmd)
	relationshipsCmd.AddCommand(relationshipsSyncCmd)
	rootCmd.AddCommand(relationshipsCmd)
}
