package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tablestore/internal/config"
	"github.com/roach88/tablestore/internal/engine"
	"github.com/roach88/tablestore/internal/engine/bolt"
	"github.com/roach88/tablestore/internal/engine/sqlite"
	"github.com/roach88/tablestore/internal/logging"
	"github.com/roach88/tablestore/internal/store"
)

// RootOptions holds global flags for all commands, plus the configuration
// and logger resolved from them before any command runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tablestore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tablestore",
		Short: "Versioned key/value tables on SQLite or bbolt",
		Long: `tablestore stores JSON values in named tables of a versioned database.

Tables are created on first use: the database version is bumped and the
table is added inside the upgrade, so callers never manage schema versions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default ./tablestore.yaml if present)")
	pf.String("engine", config.EngineSQLite, "storage engine (sqlite|bolt)")
	pf.String("data-dir", "./data", "directory holding database files")
	pf.String("db", "", "database name (default Store_db)")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-format", logging.FormatConsole, "log format (console|json)")
	pf.Bool("compression", false, "zstd-compress values (bolt engine, new databases only)")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// init validates global flags and resolves configuration and logging.
func (o *RootOptions) init(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up logging", err)
	}

	o.Config = cfg
	o.Logger = logger
	return nil
}

// newEngine builds the configured Engine over dir.
func (o *RootOptions) newEngine(dir string) (engine.Engine, error) {
	switch o.Config.Engine {
	case config.EngineSQLite:
		return sqlite.New(dir), nil
	case config.EngineBolt:
		return bolt.New(dir, bolt.WithCompression(o.Config.Compression)), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", o.Config.Engine)
	}
}

// openStore opens the configured database. The caller must Close it.
func (o *RootOptions) openStore() (*store.Store, error) {
	eng, err := o.newEngine(o.Config.DataDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	st, err := store.New(eng,
		store.WithName(o.Config.Database),
		store.WithLogger(o.Logger),
	)
	if err != nil {
		eng.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	o.Logger.Debug("store opened", "engine", o.Config.Engine, "data_dir", o.Config.DataDir, "db", st.Name())
	return st, nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
