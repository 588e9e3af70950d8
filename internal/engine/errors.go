package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/criterium/internal/key"
	"github.com/roach88/criterium/internal/querysql"
	"github.com/roach88/criterium/internal/schema"
)

// QueryError represents a failure detected while building or executing a
// query. The Code separates caller mistakes (unsupported operator,
// unmapped field) from environmental failures (a load chunk dying
// mid-page), so callers can decide between fixing the condition and
// retrying the request.
type QueryError struct {
	// Code identifies the error category.
	Code QueryErrorCode

	// Message is a human-readable description.
	Message string

	// Entity names the queried root entity.
	Entity string

	// Batch is the failing load-chunk index for BATCH_FAILED, -1
	// otherwise.
	Batch int

	// Err is the underlying cause, if any.
	Err error
}

// QueryErrorCode categorizes query errors.
type QueryErrorCode string

const (
	// ErrCodeSchemaUnresolved indicates metadata resolution failed: an
	// unknown entity, an unmapped path segment, or a primary key no
	// resolver strategy could determine where one is required.
	ErrCodeSchemaUnresolved QueryErrorCode = "SCHEMA_UNRESOLVED"

	// ErrCodeUnsupportedOperator indicates a filter operator with no SQL
	// mapping.
	ErrCodeUnsupportedOperator QueryErrorCode = "UNSUPPORTED_OPERATOR"

	// ErrCodeBatchFailed indicates a load chunk failed; the whole page
	// is aborted, never partially returned.
	ErrCodeBatchFailed QueryErrorCode = "BATCH_FAILED"

	// ErrCodeCompositeKeyUnsupported indicates a composite key predicate
	// cannot be rendered within the dialect's limits.
	ErrCodeCompositeKeyUnsupported QueryErrorCode = "COMPOSITE_KEY_UNSUPPORTED"

	// ErrCodeCursorToMany indicates a cursor request over a condition
	// touching to-many paths, which cursor execution refuses rather
	// than risk duplicated rows.
	ErrCodeCursorToMany QueryErrorCode = "CURSOR_TO_MANY"
)

// Error implements the error interface.
func (e *QueryError) Error() string {
	switch {
	case e.Batch >= 0:
		return fmt.Sprintf("%s: %s (entity=%s, batch=%d)", e.Code, e.Message, e.Entity, e.Batch)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *QueryError) Unwrap() error { return e.Err }

// CodeOf returns the query error code, or "" when the error carries
// none. Uses errors.As to handle wrapped errors.
func CodeOf(err error) QueryErrorCode {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsSchemaError returns true for metadata resolution failures.
func IsSchemaError(err error) bool { return CodeOf(err) == ErrCodeSchemaUnresolved }

// IsOperatorError returns true for unknown-operator failures.
func IsOperatorError(err error) bool { return CodeOf(err) == ErrCodeUnsupportedOperator }

// IsBatchError returns true for aborted load batches.
func IsBatchError(err error) bool { return CodeOf(err) == ErrCodeBatchFailed }

// IsCompositeKeyError returns true for unrenderable composite key
// predicates.
func IsCompositeKeyError(err error) bool { return CodeOf(err) == ErrCodeCompositeKeyUnsupported }

// IsCursorError returns true for cursor requests rejected over to-many
// paths.
func IsCursorError(err error) bool { return CodeOf(err) == ErrCodeCursorToMany }

// classify wraps lower-layer typed errors into coded query errors.
// Errors that are neither schema, operator, nor key-encoding failures
// pass through unchanged.
func classify(entity string, err error) error {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}

	code := QueryErrorCode("")
	switch {
	case schema.IsResolutionError(err):
		code = ErrCodeSchemaUnresolved
	case querysql.IsUnsupportedOperatorError(err):
		code = ErrCodeUnsupportedOperator
	case key.IsUnsupportedError(err):
		code = ErrCodeCompositeKeyUnsupported
	default:
		return err
	}

	return &QueryError{
		Code:    code,
		Message: err.Error(),
		Entity:  entity,
		Batch:   -1,
		Err:     err,
	}
}

// newBatchError marks a failed load chunk. The chunk index is carried
// for diagnostics; the page it belonged to is already gone.
func newBatchError(entity string, batch int, err error) *QueryError {
	return &QueryError{
		Code:    ErrCodeBatchFailed,
		Message: fmt.Sprintf("load chunk failed: %v", err),
		Entity:  entity,
		Batch:   batch,
		Err:     err,
	}
}

// newCursorError rejects cursor execution over to-many paths.
func newCursorError(entity string, paths []string) *QueryError {
	return &QueryError{
		Code:    ErrCodeCursorToMany,
		Message: fmt.Sprintf("cursor execution cannot traverse to-many paths (%s)", strings.Join(paths, ", ")),
		Entity:  entity,
		Batch:   -1,
	}
}
