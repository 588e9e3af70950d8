package cli

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/spf13/cobra"

	"github.com/roach88/criterium/internal/condition"
	"github.com/roach88/criterium/internal/engine"
	"github.com/roach88/criterium/internal/harness"
	"github.com/roach88/criterium/internal/queryplan"
	"github.com/roach88/criterium/internal/querysql"
)

// QueryText is one rendered SQL statement in explain output.
type QueryText struct {
	Phase string `json:"phase"` // "key", "page", or "count"
	SQL   string `json:"sql"`
	Args  []any  `json:"args,omitempty"`
}

// ExplainResult holds the compiled plan for explain output.
type ExplainResult struct {
	Entity  string      `json:"entity"`
	Plan    string      `json:"plan"`
	Queries []QueryText `json:"queries"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <schema-path> <request-file>",
		Short: "Compile a request and print its plan",
		Long: `Compile a search request into an execution plan without running it.

Prints the resolved key, execution mode, joins, and warnings, plus the
SQL each phase would issue. The load SQL of a two-phase plan depends on
the keys the identifying query returns, so it is not shown.

Example:
  criterium explain ./schema ./requests/books.yaml
  criterium explain ./schema ./requests/books.yaml --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runExplain(opts *RootOptions, schemaPath, requestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cr, err := compileRequest(formatter, schemaPath, requestPath)
	if err != nil {
		return err
	}

	queries, err := renderQueries(cr.Plan)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render SQL", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ExplainResult{
			Entity:  cr.Request.Entity,
			Plan:    cr.Plan.Describe(),
			Queries: queries,
		})
	}

	w := formatter.Writer
	fmt.Fprint(w, cr.Plan.Describe())
	for _, q := range queries {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s sql:\n", q.Phase)
		fmt.Fprintf(w, "  %s\n", q.SQL)
		if len(q.Args) > 0 {
			fmt.Fprintf(w, "  args: %v\n", q.Args)
		}
	}
	return nil
}

// compiledRequest is the shared outcome of loading a schema and a
// request file and compiling the plan.
type compiledRequest struct {
	Schema  *SchemaResult
	Request *harness.Request
	Cond    condition.SearchCondition
	Plan    *queryplan.Plan
}

// compileRequest loads the schema and request file and builds the plan.
// It is shared by explain and query; failures are already written to
// the formatter when the returned error is an ExitError.
func compileRequest(formatter *OutputFormatter, schemaPath, requestPath string) (*compiledRequest, error) {
	schemaResult, err := LoadSchema(schemaPath)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			code := ExitCommandError
			if IsSchemaErrorCode(loadErr.Code) {
				code = ExitFailure
			}
			return nil, NewExitError(code, loadErr.Error())
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	formatter.VerboseLog("Loaded %d entities from %s", len(schemaResult.Entities), schemaPath)

	request, err := harness.LoadRequest(requestPath)
	if err != nil {
		_ = formatter.Error(ErrCodeBadRequest, fmt.Sprintf("loading request: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load request", err)
	}
	cond, err := request.Condition()
	if err != nil {
		_ = formatter.Error(ErrCodeBadRequest, fmt.Sprintf("invalid request: %v", err), nil)
		return nil, WrapExitError(ExitFailure, "invalid request", err)
	}

	// Build never touches the database, so the engine needs no
	// execution surface here.
	eng := engine.New(nil, schemaResult.Registry)
	plan, err := eng.Build(request.Entity, cond)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return nil, WrapExitError(ExitFailure, "failed to build plan", err)
	}

	return &compiledRequest{
		Schema:  schemaResult,
		Request: request,
		Cond:    cond,
		Plan:    plan,
	}, nil
}

// errorCode returns the engine error code, or the generic CLI code when
// the error carries none.
func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return ErrCodeGeneric
}

// renderQueries renders the SQL for each phase the plan would run. Two
// phase plans show the identifying key query, single-phase plans the
// combined page query; both end with the count query.
func renderQueries(plan *queryplan.Plan) ([]QueryText, error) {
	var out []QueryText

	if plan.TwoPhase() {
		keyQ, err := querysql.KeyQuery(plan)
		if err != nil {
			return nil, err
		}
		if err := appendQuery(&out, "key", keyQ); err != nil {
			return nil, err
		}
	} else {
		pageQ, err := querysql.PageQuery(plan)
		if err != nil {
			return nil, err
		}
		if err := appendQuery(&out, "page", pageQ); err != nil {
			return nil, err
		}
	}

	countQ, err := querysql.CountQuery(plan)
	if err != nil {
		return nil, err
	}
	if err := appendQuery(&out, "count", countQ); err != nil {
		return nil, err
	}
	return out, nil
}

func appendQuery(out *[]QueryText, phase string, b sq.SelectBuilder) error {
	sqlText, args, err := b.ToSql()
	if err != nil {
		return err
	}
	*out = append(*out, QueryText{Phase: phase, SQL: sqlText, Args: args})
	return nil
}
