package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/criterium/internal/engine"
	"github.com/roach88/criterium/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database string
}

// ResponseWarning is one planning warning in query output.
type ResponseWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueryResult holds one executed page for query output.
type QueryResult struct {
	Entity   string            `json:"entity"`
	Page     int               `json:"page"`
	Size     int               `json:"size"`
	Total    *int64            `json:"total,omitempty"`
	Pages    *int64            `json:"pages,omitempty"`
	Records  []engine.Record   `json:"records"`
	Warnings []ResponseWarning `json:"warnings,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <schema-path> <request-file>",
		Short: "Execute a request against a SQLite database",
		Long: `Execute a search request against an existing SQLite database.

The schema describes the entities, the request file names the entity to
search plus its filters, sort, page, and fetch paths. The database must
already exist and hold the tables the schema maps to.

Example:
  criterium query --db ./catalog.db ./schema ./requests/books.yaml
  criterium query --db ./catalog.db ./schema ./requests/books.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runQuery(opts *QueryOptions, schemaPath, requestPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Querying never creates the database; a missing path is a typo,
	// not an empty data set.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	cr, err := compileRequest(formatter, schemaPath, requestPath)
	if err != nil {
		return err
	}
	formatter.VerboseLog("plan:\n%s", strings.TrimSuffix(cr.Plan.Describe(), "\n"))

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("opening database: %v", err), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	eng := engine.New(st.DB(), cr.Schema.Registry, engine.WithLogger(logger))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var page *engine.Page
	if cr.Request.WithCount() {
		page, err = eng.FindPage(ctx, cr.Request.Entity, cr.Cond)
	} else {
		page, err = eng.FindPageWithoutCount(ctx, cr.Request.Entity, cr.Cond)
	}
	if err != nil {
		_ = formatter.Error(string(engine.CodeOf(err)), err.Error(), nil)
		return WrapExitError(ExitFailure, "query failed", err)
	}

	return outputQueryResult(formatter, cr.Request.Entity, page)
}

// outputQueryResult writes one executed page in the configured format.
func outputQueryResult(formatter *OutputFormatter, entity string, page *engine.Page) error {
	result := QueryResult{
		Entity:  entity,
		Page:    page.PageNumber,
		Size:    page.PageSize,
		Total:   page.TotalCount,
		Records: page.Content,
	}
	if pages, ok := page.TotalPages(); ok {
		result.Pages = &pages
	}
	for _, w := range page.Warnings {
		result.Warnings = append(result.Warnings, ResponseWarning{Code: w.Code, Message: w.Message})
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	switch {
	case result.Pages != nil:
		fmt.Fprintf(w, "total: %d (pages: %d)\n", *result.Total, *result.Pages)
	case result.Total != nil:
		fmt.Fprintf(w, "total: %d\n", *result.Total)
	default:
		fmt.Fprintf(w, "total: (skipped)\n")
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning %s: %s\n", warn.Code, warn.Message)
	}
	for _, record := range result.Records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		fmt.Fprintf(w, "%s\n", line)
	}
	return nil
}
