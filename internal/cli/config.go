package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/birthplace/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const banner = "═══════════════════════════════════════════════════════════"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Birthplace configuration",
	Long: `Manage Birthplace configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (BIRTHPLACE_*)
3. Config file (~/.birthplace/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if f := viper.ConfigFileUsed(); f != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", f)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		fmt.Println(banner)
		fmt.Println("  Current Configuration")
		fmt.Println(banner)
		fmt.Println()
		fmt.Println(string(data))
		fmt.Println(banner)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Create ~/.birthplace/config.yaml (or the --config path) populated with every option at its default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("find home directory: %w", err)
			}
			path = filepath.Join(home, ".birthplace", "config.yaml")
		}

		if err := writeDefaultConfig(path); err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", path)
		fmt.Printf("\nTo view the configuration:\n  birthplace config show\n\n")
		return nil
	},
}

func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := `# Birthplace configuration
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (BIRTHPLACE_*, e.g. BIRTHPLACE_STATE_PATH)
#   3. This config file
#   4. Built-in defaults
#
# mappings.file may point at a custom replacement table; leave it unset to
# use the bundled one.

`
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
