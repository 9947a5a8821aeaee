package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/imgdex/internal/app"
	"github.com/kailas-cloud/imgdex/internal/config"
	logpkg "github.com/kailas-cloud/imgdex/internal/logger"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	cfgFile    string
	env        string
	outputJSON bool
	verbose    bool
}

// NewRootCmd builds the command tree. Each call returns independent flag state.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "imgdexctl",
		Short: "imgdex indexing and search CLI",
		Long: `imgdexctl drives the imgdex engine directly, without the HTTP server.

Configuration is read from config/<env>.yaml (ENV selects it, default "local")
or from the file given with --config. A .env file in the working directory is
loaded first.

Examples:
  # Register a folder of photos, then index them
  imgdexctl ingest ~/Pictures/trip --objects beach
  imgdexctl run --max 200

  # Hybrid search restricted to a city
  imgdexctl search "sunset over the sea" --place Lisbon --limit 5
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default is config/<env>.yaml)")
	rootCmd.PersistentFlags().StringVar(&g.env, "env", "", "config environment (default $ENV or local)")
	rootCmd.PersistentFlags().BoolVar(&g.outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(
		newIngestCmd(g),
		newRunCmd(g),
		newReconcileCmd(g),
		newSyncCmd(g),
		newSearchCmd(g),
		newStatsCmd(g),
		newDeleteCmd(g),
	)
	return rootCmd
}

// Execute runs the command tree against os.Args. SIGINT and SIGTERM cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (g *globals) loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	if g.cfgFile != "" {
		return config.LoadFile(g.cfgFile)
	}
	env := g.env
	if env == "" {
		env = config.GetEnv()
	}
	return config.Load(env)
}

// withApp loads config, wires the engine and hands it to fn. The engine is closed afterwards.
func (g *globals) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, cfg *config.Config) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout stays parseable.
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	logger, err := logpkg.NewLogger(logpkg.EnvCLI, level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := logpkg.ContextWithLogger(cmd.Context(), logger)
	a, err := app.Build(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("wire engine: %w", err)
	}
	defer a.Close()

	logger.Debug("Engine ready", zap.String("command", cmd.Name()))
	return fn(ctx, a, &cfg)
}

// output writes v as YAML, or as indented JSON with --json.
func (g *globals) output(w io.Writer, v any) error {
	if g.outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
