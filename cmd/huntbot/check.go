package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/huntbot/internal/bot/classify"
	"github.com/cory-johannsen/huntbot/internal/bot/escape"
	"github.com/cory-johannsen/huntbot/internal/config"
	"github.com/cory-johannsen/huntbot/internal/scripting"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and the files it references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return checkConfig(cmd, opts.configPath)
		},
	}
}

func checkConfig(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	out := cmd.OutOrStdout()

	mobs, drops := cfg.Detection.Mobs, cfg.Detection.Drops
	if dir := cfg.Detection.TargetsDir; dir != "" {
		lists, err := classify.LoadTargetLists(dir)
		if err != nil {
			return err
		}
		mobs = classify.Merge(mobs, lists.Mobs)
		drops = classify.Merge(drops, lists.Drops)
	}
	if f := cfg.Detection.ReplayFile; f != "" {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("replay file: %w", err)
		}
	}
	hook := "none"
	if s := cfg.Scripting.EscapeScript; s != "" {
		eng, err := scripting.Load(s, cfg.Scripting.InstructionLimit, zap.NewNop())
		if err != nil {
			return err
		}
		if eng.Has(escape.TimeoutHook) {
			hook = escape.TimeoutHook
		}
		eng.Close()
	}

	fmt.Fprintf(out, "%s: ok\n", path)
	fmt.Fprintf(out, "  targets: %d mobs, %d drops\n", len(mobs), len(drops))
	fmt.Fprintf(out, "  escape:  %d points, %d overrides, script hook %s\n", len(cfg.Escape.Points), len(cfg.Escape.Overrides), hook)
	fmt.Fprintf(out, "  skills:  %d in rotation\n", len(cfg.Skills.Rotation))
	if len(mobs) == 0 && len(drops) == 0 {
		fmt.Fprintln(out, "  warning: no target names, every capture classifies as none")
	}
	if len(cfg.Escape.Points) == 0 {
		fmt.Fprintln(out, "  warning: no escape points, stuck escape is disabled")
	}
	return nil
}
