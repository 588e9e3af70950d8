package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or
// underscore. Scenario row data is seeded with identifiers interpolated
// into SQL, so everything outside this pattern is rejected up front.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Scenario defines one conformance scenario: an entity schema, seed
// rows, and a sequence of search requests with expected pages.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file when the scenario runs under RunWithGolden.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema lists paths to CUE entity files to compile and register.
	// Paths are relative to the scenario file location unless a base
	// path is supplied at load time.
	Schema []string `yaml:"schema"`

	// Rows holds seed data keyed by table name. Tables are created from
	// the compiled schema before seeding.
	Rows map[string][]map[string]any `yaml:"rows,omitempty"`

	// Steps are the requests to execute, in order, each with its
	// expectations. Every step runs against the same seeded database.
	Steps []Step `yaml:"steps"`
}

// Step is one request paired with its expectations.
type Step struct {
	Request Request `yaml:"request"`
	Expect  Expect  `yaml:"expect"`
}

// Expect specifies the expected outcome of a step. Absent fields are
// not checked; a present field is always enforced, so an empty warnings
// list asserts that no warning was raised.
type Expect struct {
	// Total is the expected distinct total count.
	Total *int64 `yaml:"total,omitempty"`

	// Queries is the expected number of SQL statements the engine
	// issued for this step. Two-phase requests issue three (key, load,
	// count), single-phase two, and an empty identify phase collapses
	// to one because both the load and the count are skipped.
	Queries *int `yaml:"queries,omitempty"`

	// Warnings is the expected set of warning codes on the page.
	Warnings *[]string `yaml:"warnings,omitempty"`

	// Order asserts the page order through one field: content[i][field]
	// must equal values[i], and the page length must equal len(values).
	Order *OrderExpect `yaml:"order,omitempty"`

	// Records asserts the full page content positionally. Each entry is
	// a subset match against the record at the same index, and the page
	// length must equal len(records). Nested maps match loaded to-one
	// records, nested lists match to-many groups.
	Records []map[string]any `yaml:"records,omitempty"`

	// Error is the expected query error code (e.g. SCHEMA_UNRESOLVED).
	// When set, the step must fail and no page expectation may be set.
	Error string `yaml:"error,omitempty"`
}

// OrderExpect pins the order of a page through one field's values.
type OrderExpect struct {
	Field  string `yaml:"field"`
	Values []any  `yaml:"values"`
}

// LoadScenario reads and parses a scenario YAML file, resolving schema
// paths relative to the scenario's own directory. Returns an error if
// the file doesn't exist, is malformed, contains unknown fields
// (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema paths relative to the provided base path. This is
// how the CLI test runner points scenarios at a shared schema
// directory.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like
	// "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve schema paths relative to base path BEFORE validation
	for i, schemaPath := range scenario.Schema {
		if !filepath.IsAbs(schemaPath) && basePath != "" {
			scenario.Schema[i] = filepath.Join(basePath, schemaPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Schema) == 0 {
		return fmt.Errorf("schema list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	// Validate schema paths exist
	for _, schemaPath := range s.Schema {
		if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", schemaPath)
		}
	}

	// Validate seed identifiers; table and column names are
	// interpolated into SQL
	for table, rows := range s.Rows {
		if !validIdentifier.MatchString(table) {
			return fmt.Errorf("rows: invalid table name %q: must match pattern %s", table, validIdentifier.String())
		}
		for i, row := range rows {
			for column := range row {
				if !validIdentifier.MatchString(column) {
					return fmt.Errorf("rows.%s[%d]: invalid column name %q: must match pattern %s",
						table, i, column, validIdentifier.String())
				}
			}
		}
	}

	// Validate steps
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates one step's request and expectations.
func validateStep(index int, step *Step) error {
	if err := validateRequest(&step.Request); err != nil {
		return fmt.Errorf("steps[%d].request: %w", index, err)
	}

	e := &step.Expect
	if e.Queries != nil && *e.Queries < 0 {
		return fmt.Errorf("steps[%d].expect: queries must be non-negative", index)
	}
	if e.Order != nil {
		if e.Order.Field == "" {
			return fmt.Errorf("steps[%d].expect.order: field is required", index)
		}
		if len(e.Order.Values) == 0 {
			return fmt.Errorf("steps[%d].expect.order: values list is required and must be non-empty", index)
		}
	}
	if e.Error != "" {
		if e.Total != nil || e.Order != nil || len(e.Records) > 0 || e.Warnings != nil {
			return fmt.Errorf("steps[%d].expect: error cannot be combined with page expectations", index)
		}
	}
	return nil
}
