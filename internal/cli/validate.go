package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/criterium/internal/schema"
)

// ValidationError is one schema problem reported by validate.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// EntitySummary describes one compiled entity in validate output.
type EntitySummary struct {
	Name      string   `json:"name"`
	Table     string   `json:"table"`
	Key       []string `json:"key"`
	Fields    int      `json:"fields"`
	Relations int      `json:"relations"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Entities []EntitySummary   `json:"entities,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-path>",
		Short: "Validate entity definitions",
		Long: `Validate CUE entity definitions without running any queries.

Compiles the schema, registers every entity, and cross-checks
relationship targets and key metadata. The path may be a directory of
.cue files or a single file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result, err := LoadSchema(schemaPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			// Schema content problems are validation failures; path and
			// load problems are command errors.
			if IsSchemaErrorCode(loadErr.Code) {
				return outputValidationErrors(formatter, []ValidationError{toValidationError(loadErr)})
			}
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, schemaPath)
	for _, e := range result.Entities {
		formatter.VerboseLog("Validated entity: %s (table %s)", e.Name, e.Table)
	}

	return outputValidateSuccess(formatter, result)
}

// toValidationError converts a LoadError to the validate output shape.
func toValidationError(err *LoadError) ValidationError {
	ve := ValidationError{Code: err.Code, Message: err.Message}
	if err.Pos.IsValid() {
		ve.File = err.Pos.Filename()
		ve.Line = err.Pos.Line()
	}
	return ve
}

// summarize builds the per-entity summaries for validate output.
func summarize(entities []schema.Entity) []EntitySummary {
	out := make([]EntitySummary, len(entities))
	for i, e := range entities {
		out[i] = EntitySummary{
			Name:      e.Name,
			Table:     e.Table,
			Key:       e.KeyFields,
			Fields:    len(e.Fields),
			Relations: len(e.Relationships),
		}
	}
	return out
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result *SchemaResult) error {
	summaries := summarize(result.Entities)
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Entities: summaries})
	}

	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d entities)\n", len(summaries))
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "  %s: table %s, key [%s], %d fields, %d relations\n",
			s.Name, s.Table, strings.Join(s.Key, ", "), s.Fields, s.Relations)
	}
	return nil
}

// outputValidateError outputs a command-level error (bad path, no files).
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs schema validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.File != "" {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
