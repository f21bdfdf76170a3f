package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tablestore/internal/value"
)

// ScanResult is the JSON payload of the scan command.
type ScanResult struct {
	Table  string        `json:"table"`
	Count  int           `json:"count"`
	Values []value.Value `json:"values"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <table>",
		Short: "Print every value of a table in key order",
		Long: `Print every value of a table, one JSON document per line, in ascending
key order (numbers before strings).

Examples:
  tablestore scan users
  tablestore scan users --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(rootOpts, args[0], cmd)
		},
	}
}

func runScan(opts *RootOptions, table string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	values := []value.Value{}
	sc := st.Table(table).GetAllInTurn(cmd.Context(), func(v value.Value) {
		values = append(values, v)
	}, func(err error) {
		opts.Logger.Debug("scan failed", "table", table, "error", err)
	})
	if err := sc.Wait(); err != nil {
		return f.StorageFailure("scan failed", err)
	}

	lines := make([][]byte, len(values))
	for i, v := range values {
		data, err := value.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to render value %d: %w", i, err)
		}
		lines[i] = data
	}

	return f.Success(ScanResult{Table: table, Count: len(values), Values: values}, func(w io.Writer) {
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	})
}
