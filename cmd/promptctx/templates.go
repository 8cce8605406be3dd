package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptctx/internal/templates"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage output templates",
	Long: `Output templates describe the JSON structure a prompt's response must follow.

A definition maps field names to descriptors:
  {
    "summary": {"description": "One paragraph", "required": true, "type": "string"},
    "tags": {"description": "Keywords", "required": false, "type": "array",
             "items": {"description": "tag", "required": true, "type": "string"}}
  }`,
}

var templatesCreateCmd = &cobra.Command{
	Use:   "create <name> <definition.json>",
	Short: "Create an output template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		def, err := readDefinition(args[1])
		if err != nil {
			return err
		}
		desc, _ := cmd.Flags().GetString("description")
		t, err := s.Templates.Create(cmd.Context(), args[0], desc, def)
		if err != nil {
			return err
		}
		return printer(cmd).Print(t)
	},
}

var templatesUpdateCmd = &cobra.Command{
	Use:   "update <name> <definition.json>",
	Short: "Replace an output template's definition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		t, err := s.Templates.GetByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		def, err := readDefinition(args[1])
		if err != nil {
			return err
		}
		u := templates.Update{Definition: def}
		if cmd.Flags().Changed("description") {
			desc, _ := cmd.Flags().GetString("description")
			u.Description = &desc
		}
		updated, err := s.Templates.Update(cmd.Context(), t.ID, u)
		if err != nil {
			return err
		}
		return printer(cmd).Print(updated)
	},
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List output templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		ts, err := s.Templates.List(cmd.Context())
		if err != nil {
			return err
		}

		type row struct {
			Name        string   `json:"name" yaml:"name"`
			ID          string   `json:"id" yaml:"id"`
			Description string   `json:"description,omitempty" yaml:"description,omitempty"`
			Fields      []string `json:"fields" yaml:"fields"`
		}
		rows := make([]row, 0, len(ts))
		for _, t := range ts {
			rows = append(rows, row{Name: t.Name, ID: t.ID, Description: t.Description, Fields: t.Definition.Names()})
		}
		return printer(cmd).Print(rows)
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show an output template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		t, err := s.Templates.GetByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printer(cmd).Print(t)
	},
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an output template and its prompt associations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		t, err := s.Templates.GetByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := s.Templates.Delete(cmd.Context(), t.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Deleted template %s\n", t.Name)
		return nil
	},
}

var templatesExampleCmd = &cobra.Command{
	Use:   "example <name>",
	Short: "Print an example object matching a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		t, err := s.Templates.GetByName(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printer(cmd).Print(templates.GenerateExample(t.Definition))
	},
}

var templatesAssociateCmd = &cobra.Command{
	Use:   "associate <prompt> <template>",
	Short: "Attach an output template to a prompt",
	Long: `Attach an output template to a prompt.

Lower priority numbers take precedence when several templates define the
same field. Associating an already attached template updates its priority.`,
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
		t, err := s.Templates.GetByName(ctx, args[1])
		if err != nil {
			return err
		}
		priority, _ := cmd.Flags().GetInt("priority")
		a, err := s.Templates.Associate(ctx, p.ID, t.ID, priority)
		if err != nil {
			return err
		}
		return printer(cmd).Print(a)
	},
}

var templatesDissociateCmd = &cobra.Command{
	Use:   "dissociate <prompt> <template>",
	Short: "Detach an output template from a prompt",
	Args:  cobra.ExactArgs(2),
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
		t, err := s.Templates.GetByName(ctx, args[1])
		if err != nil {
			return err
		}
		if err := s.Templates.Dissociate(ctx, p.ID, t.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Detached %s from %s\n", t.Name, p.Name)
		return nil
	},
}

func readDefinition(path string) (templates.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	return templates.Parse(data)
}

func init() {
	templatesCreateCmd.Flags().String("description", "", "Template description")
	templatesUpdateCmd.Flags().String("description", "", "Template description")
	templatesAssociateCmd.Flags().Int("priority", 0, "Precedence (lower wins)")

	templatesCmd.AddCommand(templatesCreateCmd)
	templatesCmd.AddCommand(templatesUpdateCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	templatesCmd.AddCommand(templatesDeleteCmd)
	templatesCmd.AddCommand(templatesExampleCmd)
	templatesCmd.AddCommand(templatesAssociateCmd)
	templatesCmd.AddCommand(templatesDissociateCmd)
	rootCmd.AddCommand(templatesCmd)
}
