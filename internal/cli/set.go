package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tablestore/internal/value"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	*RootOptions
	StringKey bool
}

// SetResult is the JSON payload of the set command.
type SetResult struct {
	Table string    `json:"table"`
	Key   value.Key `json:"key"`
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set <table> <key> <json>",
		Short: "Store a JSON value under a key",
		Long: `Store a JSON value under a key, replacing any existing value.

The table is created on first use. A JSON null stores nothing.

Examples:
  tablestore set users 1 '{"name":"Ann"}'
  tablestore set settings theme '"dark"'
  tablestore set users 1 '{"name":"Bob"}' --db app --engine bolt`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.StringKey, "string-key", false, "treat the key as a string even if it looks like an integer")

	return cmd
}

func runSet(opts *SetOptions, table, rawKey, rawValue string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	v, err := value.Unmarshal([]byte(rawValue))
	if err != nil {
		msg := fmt.Sprintf("invalid JSON value: %v", err)
		if outErr := f.Error(CodeInvalidArgs, msg, nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "invalid JSON value", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	key := parseKey(rawKey, opts.StringKey)
	if _, err := st.Table(table).SetData(cmd.Context(), key, v, reported[value.Key](opts.RootOptions)); err != nil {
		return f.StorageFailure("set failed", err)
	}

	f.VerboseLog("stored %s at database version %d", keyPath(table, key), st.Version())
	return f.Success(SetResult{Table: table, Key: key}, func(w io.Writer) {
		fmt.Fprintf(w, "stored %s\n", keyPath(table, key))
	})
}
