package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cory-johannsen/huntbot/internal/status"
	"github.com/cory-johannsen/huntbot/internal/tui"
)

// passwordEnv supplies the watch password so it stays out of shell history.
const passwordEnv = "HUNTBOT_STATUS_PASSWORD"

func newWatchCmd() *cobra.Command {
	var addr, user string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the live status of a running bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := status.Dial(cmd.Context(), addr, user, os.Getenv(passwordEnv))
			if err != nil {
				return err
			}
			defer client.Close()

			final, err := tea.NewProgram(tui.NewModel(client), tea.WithAltScreen()).Run()
			if err != nil {
				return fmt.Errorf("running status view: %w", err)
			}
			if m, ok := final.(tui.Model); ok && m.Err() != nil {
				return fmt.Errorf("status stream ended: %w", m.Err())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8420", "status listener address")
	cmd.Flags().StringVar(&user, "user", "", "status username; the password is read from "+passwordEnv)
	return cmd
}
