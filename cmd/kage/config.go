package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kage-desktop/kage/internal/config"
	"github.com/kage-desktop/kage/internal/ipc"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the settings file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := settingsPath()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "print",
			Short: "Print the effective settings as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := loadSettings()
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the settings file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, path, err := loadSettings()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
				return nil
			},
		},
		&cobra.Command{
			Use:       "get <key>",
			Short:     "Print one setting",
			Args:      cobra.ExactArgs(1),
			ValidArgs: config.Keys,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadSettings()
				if err != nil {
					return err
				}
				v, err := config.Lookup(cfg, args[0])
				if err != nil {
					return usageError("%v", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		newConfigSetCommand(),
	)
	return cmd
}

func newConfigSetCommand() *cobra.Command {
	var noReload bool
	cmd := &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Change one setting and tell a running daemon to reload",
		Example:   "  kage config set ws_port 23334\n  kage config set model_path ~/models/a/a.model3.json",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadSettings()
			if err != nil {
				return err
			}
			if err := config.SetValue(cfg, args[0], args[1]); err != nil {
				return usageError("%v", err)
			}
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])

			if noReload {
				return nil
			}
			if err := ipc.NewClient().Reload(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "daemon not reloaded: %v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "only write the file")
	return cmd
}
