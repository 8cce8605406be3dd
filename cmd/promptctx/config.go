package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/promptctx/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default config file",
	Long:        `Write the default configuration to {home}/config.yaml, or to --config when set.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipServices: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			h, err := getHome()
			if err != nil {
				return err
			}
			if h.ConfigExists() {
				force, _ := cmd.Flags().GetBool("force")
				if !force {
					return fmt.Errorf("config already exists at %s (use --force to overwrite)", h.ConfigPath())
				}
			}
			path = h.ConfigPath()
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := mustServices(cmd)
		if err != nil {
			return err
		}
		return printer(cmd).Print(s.Config)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
