package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/dev.yaml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "huntbot",
		Short: "Automated monster hunting for a desktop MMO client",
		Long: `huntbot watches the targeted entity on screen and drives a fixed set of
workers (detection, healing, attacking, target acquisition, looting and
stuck escape) through injected key presses and clicks.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to configuration file")

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newSchemaCmd(),
		newWatchCmd(),
		newPasswdCmd(),
		newJournalCmd(opts),
	)
	return root
}
