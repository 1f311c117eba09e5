package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/bluegreen-tools/jenkinsctl/internal/teamenv"
)

const defaultTeamConfig = "ansible/inventories/production/group_vars/all/main.yml"

func newEnvCmd() *cobra.Command {
	var teamConfigPath string

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage team blue-green environments",
	}
	cmd.PersistentFlags().StringVar(&teamConfigPath, "config-file", defaultTeamConfig,
		"Team configuration file (ansible group_vars)")

	updateCmd := &cobra.Command{
		Use:   "update <team> <blue|green>",
		Short: "Switch a team's active environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor := teamenv.NewEditor(teamConfigPath)
			if err := editor.Update(args[0], args[1]); err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"team":        args[0],
				"environment": args[1],
			}).Info("team environment updated")
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show every team's active environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := teamenv.NewEditor(teamConfigPath).Show()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TEAM\tENVIRONMENT\tBLUE-GREEN")
			for _, status := range statuses {
				enabled := "disabled"
				if status.BlueGreenEnabled {
					enabled = "enabled"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", status.Name, status.Environment, enabled)
			}
			return w.Flush()
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <team>",
		Short: "Validate a team's blue-green configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := teamenv.NewEditor(teamConfigPath).Validate(args[0]); err != nil {
				return err
			}
			log.WithField("team", args[0]).Info("team configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(updateCmd, showCmd, validateCmd)
	return cmd
}
