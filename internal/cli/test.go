package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tablestore/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Engine    string           `json:"engine"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run table-operation scenarios",
		Long: `Run YAML scenarios against the configured engine.

Each scenario runs on a fresh, temporary database. Its trace is compared
with <scenarios-dir>/golden/<file>.golden when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  tablestore test ./scenarios
  tablestore test ./scenarios --engine bolt
  tablestore test ./scenarios --filter "orders*"
  tablestore test ./scenarios --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{
		Engine:    opts.Config.Engine,
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	if len(scenarioFiles) == 0 {
		return f.Success(result, func(w io.Writer) {
			fmt.Fprintln(w, "No scenarios found.")
		})
	}

	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(opts, scenarioFile, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)
		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		if opts.Format != "json" {
			printScenario(cmd.OutOrStdout(), scenResult, opts.Update)
		}
	}

	if result.Failed > 0 {
		msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
		if opts.Format == "json" {
			if err := f.Error(CodeTestFailed, msg, result); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		}
		return NewExitError(ExitFailure, msg)
	}

	return f.Success(result, func(w io.Writer) {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		fmt.Fprintln(w, "✓ All scenarios passed")
	})
}

func printScenario(w io.Writer, r ScenarioResult, updated bool) {
	switch {
	case r.Pass && updated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", r.Name)
	case r.Pass:
		fmt.Fprintf(w, "✓ %s\n", r.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

// findScenarioFiles finds all YAML scenario files in a directory.
// Files under a golden/ subdirectory are skipped.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes a single scenario on a fresh temporary database.
func runScenario(opts *TestOptions, scenarioFile string, cmd *cobra.Command) ScenarioResult {
	failed := func(name string, format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Pass: false, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return failed(filepath.Base(scenarioFile), "failed to load scenario: %v", err)
	}

	dir, err := os.MkdirTemp("", "tablestore-test-*")
	if err != nil {
		return failed(scenario.Name, "failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	eng, err := opts.newEngine(dir)
	if err != nil {
		return failed(scenario.Name, "failed to create engine: %v", err)
	}

	result, err := harness.Run(cmd.Context(), scenario, eng, harness.WithLogger(opts.Logger))
	if err != nil {
		return failed(scenario.Name, "execution failed: %v", err)
	}

	trace, err := harness.MarshalTrace(result.Trace)
	if err != nil {
		return failed(scenario.Name, "failed to marshal trace: %v", err)
	}

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			return failed(scenario.Name, "failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, trace, 0o644); err != nil {
			return failed(scenario.Name, "failed to write golden file: %v", err)
		}
	} else if golden, err := os.ReadFile(goldenPath); err == nil {
		if !bytes.Equal(golden, trace) {
			result.AddError("trace does not match golden file (run with --update to regenerate)")
		}
	} else if !os.IsNotExist(err) {
		return failed(scenario.Name, "failed to read golden file: %v", err)
	}

	return ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}
