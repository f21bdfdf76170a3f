package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Show the database version and its tables",
		Long: `Show the stored version of the database and the tables it holds.
Nothing is created: a database that does not exist reports version 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(rootOpts, cmd)
		},
	}
}

func runTables(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := st.Info(cmd.Context())
	if err != nil {
		return f.StorageFailure("failed to read database info", err)
	}

	return f.Success(info, func(w io.Writer) {
		fmt.Fprintf(w, "database: %s\n", info.Name)
		fmt.Fprintf(w, "version:  %d\n", info.Version)
		if len(info.Tables) == 0 {
			fmt.Fprintln(w, "tables:   (none)")
			return
		}
		fmt.Fprintln(w, "tables:")
		for _, name := range info.Tables {
			fmt.Fprintf(w, "  %s\n", name)
		}
	})
}
