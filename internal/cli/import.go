package cli

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tablestore/internal/value"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	StringKeys  bool
	Concurrency int
}

// ImportResult is the JSON payload of the import command.
type ImportResult struct {
	Table    string `json:"table"`
	Imported int64  `json:"imported"`
}

// importRecord is one key/value pair read from an import file.
type importRecord struct {
	Key   value.Key
	Value value.Value
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <table> <file>",
		Short: "Load records from a YAML or JSON file",
		Long: `Load records from a YAML or JSON file into a table.

The file is either a mapping from key to value:

  1: {name: Ann}
  2: {name: Bob}

or a list of records:

  - key: 1
    value: {name: Ann}
  - key: tokyo
    value: {population: 37400068}

Mapping keys that look like integers become integer keys unless
--string-keys is set. Writes run concurrently; each record is stored in
its own transaction.

Examples:
  tablestore import users users.yaml
  tablestore import cities cities.json --concurrency 16`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.StringKeys, "string-keys", false, "treat mapping keys as strings")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 8, "maximum concurrent writes")

	return cmd
}

func runImport(opts *ImportOptions, table, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if opts.Concurrency < 1 {
		return NewExitError(ExitCommandError, "--concurrency must be at least 1")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read import file", err)
	}
	records, err := parseImport(data, opts.StringKeys)
	if err != nil {
		if outErr := f.Error(CodeInvalidArgs, err.Error(), map[string]string{"file": path}); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "invalid import file", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	result := ImportResult{Table: table}
	if len(records) > 0 {
		ctx := cmd.Context()
		tbl := st.Table(table)

		// The first write creates the table if needed, so the concurrent
		// writers that follow never race on the schema upgrade.
		if _, err := tbl.SetData(ctx, records[0].Key, records[0].Value, reported[value.Key](opts.RootOptions)); err != nil {
			return f.StorageFailure("import failed", err)
		}

		var imported atomic.Int64
		imported.Add(1)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for _, rec := range records[1:] {
			g.Go(func() error {
				if _, err := tbl.SetData(gctx, rec.Key, rec.Value, reported[value.Key](opts.RootOptions)); err != nil {
					return err
				}
				imported.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			f.VerboseLog("imported %d of %d records before failing", imported.Load(), len(records))
			return f.StorageFailure("import failed", err)
		}
		result.Imported = imported.Load()
	}

	opts.Logger.Info("import complete", "table", table, "records", result.Imported)
	return f.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "imported %d record(s) into %s\n", result.Imported, table)
	})
}

// parseImport decodes an import document. Duplicate keys are rejected since
// concurrent writes would apply them in no particular order.
func parseImport(data []byte, stringKeys bool) ([]importRecord, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}
	if doc.Kind == 0 {
		return nil, nil // empty file
	}
	root := doc.Content[0]

	var records []importRecord
	switch root.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			keyNode, valNode := root.Content[i], root.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
			}
			v, err := decodeNode(valNode)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", valNode.Line, err)
			}
			records = append(records, importRecord{Key: parseKey(keyNode.Value, stringKeys), Value: v})
		}

	case yaml.SequenceNode:
		for i, item := range root.Content {
			var entry struct {
				Key   any `yaml:"key"`
				Value any `yaml:"value"`
			}
			if err := item.Decode(&entry); err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			kv, err := value.FromAny(entry.Key)
			if err != nil {
				return nil, fmt.Errorf("record %d: key: %w", i, err)
			}
			key, ok := value.AsKey(kv)
			if !ok {
				return nil, fmt.Errorf("record %d: key must be a string or number, got %T", i, kv)
			}
			v, err := value.FromAny(entry.Value)
			if err != nil {
				return nil, fmt.Errorf("record %d: value: %w", i, err)
			}
			records = append(records, importRecord{Key: key, Value: v})
		}

	default:
		return nil, fmt.Errorf("import file must hold a mapping or a list of records")
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		id, err := value.Marshal(rec.Key)
		if err != nil {
			return nil, err
		}
		if seen[string(id)] {
			return nil, fmt.Errorf("duplicate key %s", id)
		}
		seen[string(id)] = true
	}
	return records, nil
}

func decodeNode(n *yaml.Node) (value.Value, error) {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return nil, err
	}
	return value.FromAny(raw)
}
