package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/birthplace/internal/lookup"
	"github.com/ppiankov/birthplace/internal/model"
	"github.com/ppiankov/birthplace/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// version is overridden at build time with -ldflags "-X ..."
var version = "0.1.0"

var (
	cfgFile      string
	verbose      bool
	mappingsFile string
)

var rootCmd = &cobra.Command{
	Use:   "birthplace",
	Short: "Birthplace - rewrite Soviet-era birthplaces to modern countries",
	Long: `Birthplace rewrites obsolete Soviet-era administrative names in the
birthplace fields of encyclopedia infoboxes to the modern country, and
repoints the links to the modern country's article.

It only touches infobox birthplace regions. Everything else on the page
is left as it was.

Pages can be corrected one at a time, in batches, or live through a local
correcting proxy.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("birthplace v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.birthplace/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&mappingsFile, "mappings", "", "mapping table YAML (default: bundled table)")
	rootCmd.PersistentFlags().Bool("no-state", false, "keep the enabled flag and tally in memory only")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("mappings.file", rootCmd.PersistentFlags().Lookup("mappings"))
	_ = viper.BindPFlag("state.ephemeral", rootCmd.PersistentFlags().Lookup("no-state"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads the config file and BIRTHPLACE_* environment variables
func initConfig() {
	registerDefaults(model.DefaultConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".birthplace"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// state.path -> BIRTHPLACE_STATE_PATH
	viper.SetEnvPrefix("BIRTHPLACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults makes every config key known to viper so environment
// variables are picked up by Unmarshal
func registerDefaults(cfg *model.Config) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	setDefaults("", tree)

	// omitted from the YAML when empty
	for _, key := range []string{"http.http_proxy", "http.https_proxy", "http.no_proxy", "mappings.file"} {
		viper.SetDefault(key, "")
	}
}

func setDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			setDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// loadConfig merges defaults, config file, environment and bound flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// newLogger returns a development logger in verbose mode, a quiet production
// logger otherwise
func newLogger(cfg *model.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Output.Verbose {
		logger, err = zap.NewDevelopment()
	} else {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		zc.Encoding = "console"
		logger, err = zc.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadMatcher builds the matcher from the configured table. The returned
// string names the table's source for reports.
func loadMatcher(cfg *model.Config) (*lookup.Matcher, string, error) {
	table, err := lookup.Resolve(cfg.Mappings.File)
	if err != nil {
		return nil, "", err
	}
	m, err := lookup.Build(table)
	if err != nil {
		return nil, "", fmt.Errorf("build mapping table: %w", err)
	}

	source := "bundled"
	if cfg.Mappings.File != "" {
		source = cfg.Mappings.File
	}
	return m, source, nil
}

// openHost opens the persisted state. An unusable database falls back to
// in-memory state so correction still works.
func openHost(cfg *model.Config, logger *zap.Logger) *state.Host {
	if cfg.State.Ephemeral {
		return state.NewHost(state.NewMemoryStore(), logger)
	}

	store, err := state.OpenSQLite(state.SQLiteConfig{Path: cfg.State.Path})
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ State database unavailable (%v), using in-memory state\n", err)
		return state.NewHost(state.NewMemoryStore(), logger)
	}
	return state.NewHost(store, logger)
}

// sanitizeFilename turns a page subject into a safe file name
func sanitizeFilename(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	)
	s = replacer.Replace(s)
	s = strings.Trim(s, "._")

	if s == "" {
		s = "page"
	}
	if r := []rune(s); len(r) > 100 {
		s = string(r[:100])
	}
	return s
}
