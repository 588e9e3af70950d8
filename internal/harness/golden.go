package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/criterium/internal/engine"
)

// Transcript renders a deterministic text record of a scenario run:
// per step, the plan description followed by the returned page. Records
// serialize as JSON, which sorts map keys and keeps the output stable
// across runs.
func Transcript(scenario *Scenario, result *Result) ([]byte, error) {
	var buf bytes.Buffer
	for i, sr := range result.Steps {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "=== step %d: %s ===\n", i, sr.Entity)
		if sr.Plan != "" {
			// Describe output is newline-terminated already.
			buf.WriteString(sr.Plan)
		}
		if sr.Err != nil {
			fmt.Fprintf(&buf, "error: %s\n", engine.CodeOf(sr.Err))
		} else if sr.Page != nil {
			if err := writePage(&buf, sr.Page); err != nil {
				return nil, err
			}
		}
		fmt.Fprintf(&buf, "queries: %d\n", sr.Queries)
	}
	return buf.Bytes(), nil
}

func writePage(buf *bytes.Buffer, page *engine.Page) error {
	if page.TotalCount != nil {
		fmt.Fprintf(buf, "total: %d\n", *page.TotalCount)
	} else {
		buf.WriteString("total: (skipped)\n")
	}
	for i, record := range page.Content {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal content[%d]: %w", i, err)
		}
		fmt.Fprintf(buf, "content[%d]: %s\n", i, data)
	}
	return nil
}

// RunWithGolden executes a scenario, checks its expectations, and
// compares the transcript against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error when the scenario cannot run or an expectation
// fails; transcript drift fails the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		return fmt.Errorf("scenario %s failed: %v", scenario.Name, result.Errors)
	}

	transcript, err := Transcript(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, transcript)

	return nil
}
