package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/birthplace/internal/pipeline"
	"github.com/ppiankov/birthplace/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local correcting proxy",
	Long: `Serve runs a local proxy in front of a wiki. Article pages requested
under /wiki/ are fetched from the upstream, corrected and served. The
enabled flag and replacement tally are exposed at /api/state and streamed
to websocket clients at /ws.

Example:
  birthplace serve
  birthplace serve --addr 127.0.0.1:9000 --upstream https://de.wikipedia.org`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	serveCmd.Flags().String("upstream", "", "upstream wiki base URL (default from config)")
	serveCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable page cache")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.upstream", serveCmd.Flags().Lookup("upstream"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("no-cache") {
		cfg.Cache.Enabled = !noCache
	}
	if !cfg.Output.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	matcher, source, err := loadMatcher(cfg)
	if err != nil {
		return err
	}

	host := openHost(cfg, logger)
	defer func() { _ = host.Close() }()

	p := pipeline.NewPipeline(cfg, matcher, pipeline.Options{
		Logger:      logger,
		Tally:       host,
		Enabled:     host,
		TableSource: source,
	})

	srv, err := server.New(p, host, server.Options{
		Addr:     cfg.Server.Addr,
		Upstream: cfg.Server.Upstream,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "✓ Proxy for %s on http://%s/wiki/\n", cfg.Server.Upstream, cfg.Server.Addr)
	return srv.Run(ctx)
}
