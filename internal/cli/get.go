package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tablestore/internal/value"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	StringKey bool
}

// GetResult is the JSON payload of the get command.
type GetResult struct {
	Table string      `json:"table"`
	Key   value.Key   `json:"key"`
	Found bool        `json:"found"`
	Value value.Value `json:"value,omitempty"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <table> <key>",
		Short: "Print the value stored under a key",
		Long: `Print the value stored under a key as JSON.

Exits with code 1 when the key is not present.

Examples:
  tablestore get users 1
  tablestore get users 1 --string-key
  tablestore get users 1 --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.StringKey, "string-key", false, "treat the key as a string even if it looks like an integer")

	return cmd
}

func runGet(opts *GetOptions, table, rawKey string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	key := parseKey(rawKey, opts.StringKey)
	v, found, err := st.Table(table).GetData(cmd.Context(), key, reported[value.Value](opts.RootOptions))
	if err != nil {
		return f.StorageFailure("get failed", err)
	}

	result := GetResult{Table: table, Key: key, Found: found, Value: v}
	if !found {
		msg := fmt.Sprintf("%s not found", keyPath(table, key))
		if err := f.Error(CodeNotFound, msg, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	data, err := value.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to render value: %w", err)
	}
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s\n", data)
	})
}
