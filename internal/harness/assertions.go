package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/criterium/internal/engine"
)

// AssertionError is returned when a step expectation fails.
// It includes expected and actual outcomes to help debug the failure.
type AssertionError struct {
	Step     int    // Step index within the scenario
	Type     string // Expectation kind for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "step %d: %s expectation failed\n", e.Step, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every step's expectations against the
// recorded results. Returns one error per failed expectation.
func EvaluateAssertions(scenario *Scenario, result *Result) []error {
	var errs []error
	for i := range scenario.Steps {
		if i >= len(result.Steps) {
			errs = append(errs, fmt.Errorf("step %d: no result recorded", i))
			continue
		}
		errs = append(errs, evaluateStep(i, &scenario.Steps[i].Expect, &result.Steps[i])...)
	}
	return errs
}

// evaluateStep checks one step. The query-count expectation applies to
// both outcomes; the remaining page expectations only apply when no
// error was expected.
func evaluateStep(index int, expect *Expect, sr *StepResult) []error {
	var errs []error
	fail := func(kind, expected, actual string) {
		errs = append(errs, &AssertionError{Step: index, Type: kind, Expected: expected, Actual: actual})
	}

	if expect.Queries != nil && sr.Queries != *expect.Queries {
		fail("queries",
			fmt.Sprintf("%d statements issued", *expect.Queries),
			fmt.Sprintf("%d statements issued", sr.Queries))
	}

	if expect.Error != "" {
		if sr.Err == nil {
			fail("error", fmt.Sprintf("query error %s", expect.Error), "request succeeded")
		} else if code := string(engine.CodeOf(sr.Err)); code != expect.Error {
			fail("error",
				fmt.Sprintf("query error %s", expect.Error),
				fmt.Sprintf("%s: %v", code, sr.Err))
		}
		return errs
	}

	if sr.Err != nil {
		fail("execution", "request to succeed", sr.Err.Error())
		return errs
	}
	page := sr.Page

	if expect.Total != nil {
		switch {
		case page.TotalCount == nil:
			fail("total", fmt.Sprintf("total %d", *expect.Total), "count was skipped")
		case *page.TotalCount != *expect.Total:
			fail("total", fmt.Sprintf("total %d", *expect.Total), fmt.Sprintf("total %d", *page.TotalCount))
		}
	}

	if expect.Warnings != nil {
		want := append([]string(nil), (*expect.Warnings)...)
		got := make([]string, len(page.Warnings))
		for i, w := range page.Warnings {
			got[i] = w.Code
		}
		sort.Strings(want)
		sort.Strings(got)
		if !stringSlicesEqual(want, got) {
			fail("warnings",
				fmt.Sprintf("warning codes [%s]", strings.Join(want, ", ")),
				fmt.Sprintf("warning codes [%s]", strings.Join(got, ", ")))
		}
	}

	if expect.Order != nil {
		errs = append(errs, assertOrder(index, expect.Order, page)...)
	}

	if len(expect.Records) > 0 {
		errs = append(errs, assertRecords(index, expect.Records, page)...)
	}

	return errs
}

// assertOrder pins the page's record order through one field.
func assertOrder(index int, order *OrderExpect, page *engine.Page) []error {
	var errs []error
	fail := func(expected, actual string) {
		errs = append(errs, &AssertionError{Step: index, Type: "order", Expected: expected, Actual: actual})
	}

	if len(page.Content) != len(order.Values) {
		fail(fmt.Sprintf("%d records", len(order.Values)), fmt.Sprintf("%d records", len(page.Content)))
		return errs
	}

	for i, want := range order.Values {
		got, ok := page.Content[i][order.Field]
		if !ok {
			fail(fmt.Sprintf("content[%d].%s = %v", i, order.Field, want),
				fmt.Sprintf("field %q not present", order.Field))
			return errs
		}
		if !equalValue(want, got) {
			fail(fmt.Sprintf("content[%d].%s = %v", i, order.Field, want),
				fmt.Sprintf("content[%d].%s = %v", i, order.Field, got))
			return errs
		}
	}
	return errs
}

// assertRecords matches the expected records positionally against the
// page content. Each entry is a subset match; the page length must
// equal the expected length.
func assertRecords(index int, records []map[string]any, page *engine.Page) []error {
	var errs []error
	fail := func(expected, actual string) {
		errs = append(errs, &AssertionError{Step: index, Type: "records", Expected: expected, Actual: actual})
	}

	if len(page.Content) != len(records) {
		fail(fmt.Sprintf("%d records", len(records)), fmt.Sprintf("%d records", len(page.Content)))
		return errs
	}

	for i, want := range records {
		if msg := matchRecord(want, page.Content[i]); msg != "" {
			fail(fmt.Sprintf("content[%d] to match %v", i, want), msg)
			return errs
		}
	}
	return errs
}

// matchRecord checks expected fields against a record (subset
// semantics - keys absent from expected are ignored). Returns a
// mismatch description, or "" on success.
func matchRecord(expected map[string]any, actual engine.Record) string {
	for field, want := range expected {
		got, ok := actual[field]
		if !ok {
			return fmt.Sprintf("field %q not present", field)
		}
		if msg := matchValue(field, want, got); msg != "" {
			return msg
		}
	}
	return ""
}

// matchValue compares one expected value against the loaded value.
// Expected maps match nested to-one records, expected lists match
// to-many groups (same length, each entry matching a distinct child in
// any order), and scalars compare with type coercion.
func matchValue(field string, want, got any) string {
	switch w := want.(type) {
	case map[string]any:
		child, ok := got.(engine.Record)
		if !ok || child == nil {
			return fmt.Sprintf("field %q = %v, expected a nested record", field, got)
		}
		if msg := matchRecord(w, child); msg != "" {
			return fmt.Sprintf("field %q: %s", field, msg)
		}
		return ""
	case []any:
		children, ok := got.([]engine.Record)
		if !ok {
			return fmt.Sprintf("field %q = %v, expected a record list", field, got)
		}
		if len(children) != len(w) {
			return fmt.Sprintf("field %q has %d records, expected %d", field, len(children), len(w))
		}
		used := make([]bool, len(children))
		for _, entry := range w {
			em, ok := entry.(map[string]any)
			if !ok {
				return fmt.Sprintf("field %q: list entries must be maps", field)
			}
			matched := false
			for ci, child := range children {
				if used[ci] {
					continue
				}
				if matchRecord(em, child) == "" {
					used[ci] = true
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Sprintf("field %q: no record matches %v", field, em)
			}
		}
		return ""
	default:
		if !equalValue(want, got) {
			return fmt.Sprintf("field %q = %v (%T), expected %v (%T)", field, got, got, want, want)
		}
		return ""
	}
}

// equalValue compares an expected YAML value against a loaded database
// value. Handles the type drift between the two worlds: YAML integers
// arrive as int, SQLite integers as int64, and text may scan as bytes.
func equalValue(want, got any) bool {
	if want == nil || got == nil {
		return want == nil && got == nil
	}

	if wi, ok := toInt64(want); ok {
		if gi, ok := toInt64(got); ok {
			return wi == gi
		}
		if gf, ok := toFloat64(got); ok {
			return float64(wi) == gf
		}
		return false
	}
	if wf, ok := toFloat64(want); ok {
		if gf, ok := toFloat64(got); ok {
			return wf == gf
		}
		if gi, ok := toInt64(got); ok {
			return wf == float64(gi)
		}
		return false
	}

	switch w := want.(type) {
	case string:
		switch g := got.(type) {
		case string:
			return w == g
		case []byte:
			return w == string(g)
		}
		return false
	case bool:
		switch g := got.(type) {
		case bool:
			return w == g
		case int64:
			// SQLite stores booleans as integers (0/1)
			return w == (g != 0)
		}
		return false
	}

	return reflect.DeepEqual(want, got)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
