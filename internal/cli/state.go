package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ppiankov/birthplace/internal/state"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show or change the enabled flag and replacement tally",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the enabled flag and replacement tally",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(func(ctx context.Context, h *state.Host) error {
			snap := h.Snapshot(ctx)
			enabled := "disabled"
			if snap.Enabled {
				enabled = "enabled"
			}
			fmt.Printf("Correction:    %s\n", enabled)
			fmt.Printf("Replacements:  %d\n", snap.Tally)
			if snap.Badge != "" {
				fmt.Printf("Badge:         %s\n", snap.Badge)
			}
			return nil
		})
	},
}

var stateEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable correction",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(true)
	},
}

var stateDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable correction (pages already corrected are not reverted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(false)
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the replacement tally to zero",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(func(ctx context.Context, h *state.Host) error {
			if err := h.ResetTally(ctx); err != nil {
				return fmt.Errorf("reset tally: %w", err)
			}
			fmt.Println("✓ Replacement tally reset")
			return nil
		})
	},
}

func setEnabled(enabled bool) error {
	return withHost(func(ctx context.Context, h *state.Host) error {
		if err := h.SetEnabled(ctx, enabled); err != nil {
			return fmt.Errorf("save enabled flag: %w", err)
		}
		if enabled {
			fmt.Println("✓ Correction enabled")
		} else {
			fmt.Println("✓ Correction disabled")
		}
		return nil
	})
}

func withHost(fn func(ctx context.Context, h *state.Host) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.State.Ephemeral {
		fmt.Fprintln(os.Stderr, "State is in memory only (--no-state); changes are not kept")
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	host := openHost(cfg, logger)
	defer func() { _ = host.Close() }()

	return fn(context.Background(), host)
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateEnableCmd, stateDisableCmd, stateResetCmd)
}
