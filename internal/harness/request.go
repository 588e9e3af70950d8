package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/criterium/internal/condition"
)

// Request is the file form of one search request: the entity to query
// plus the condition to compile against it. The same structure appears
// standalone in CLI request files and embedded in scenario steps.
//
// YAML example:
//
//	entity: book
//	page: 0
//	size: 10
//	sort:
//	  - field: published_at
//	    ascending: false
//	filters:
//	  - field: author.name
//	    op: eq
//	    value: Woolf
//	fetch: [reviews]
//
// JSON request files parse through the same decoder; JSON is valid YAML.
type Request struct {
	// Entity names the root entity type to search.
	Entity string `yaml:"entity" json:"entity"`

	// Filters is the ordered filter tree. Entries combine left to
	// right; each entry's logic tag relates it to everything before it.
	Filters []FilterSpec `yaml:"filters,omitempty" json:"filters,omitempty"`

	// Sort lists ordering criteria in precedence order.
	Sort []SortSpec `yaml:"sort,omitempty" json:"sort,omitempty"`

	// Page is the zero-based page number.
	Page int `yaml:"page,omitempty" json:"page,omitempty"`

	// Size is the page size. Zero means the engine default.
	Size int `yaml:"size,omitempty" json:"size,omitempty"`

	// Fetch lists relationship paths to eager-load. To-many paths are
	// only loaded when named here.
	Fetch []string `yaml:"fetch,omitempty" json:"fetch,omitempty"`

	// Count controls whether the total is computed. Nil means true.
	Count *bool `yaml:"count,omitempty" json:"count,omitempty"`
}

// FilterSpec is one node of a request's filter tree.
//
// A leaf sets field and op, with the operand in value (single) or
// values (list operators like in and between). A group nests child
// specs under group and must not set field or op. The logic tag ("and"
// or "or", default "and") relates the node to the running predicate.
type FilterSpec struct {
	Field  string       `yaml:"field,omitempty" json:"field,omitempty"`
	Op     string       `yaml:"op,omitempty" json:"op,omitempty"`
	Value  any          `yaml:"value,omitempty" json:"value,omitempty"`
	Values []any        `yaml:"values,omitempty" json:"values,omitempty"`
	Logic  string       `yaml:"logic,omitempty" json:"logic,omitempty"`
	Group  []FilterSpec `yaml:"group,omitempty" json:"group,omitempty"`
}

// SortSpec is one ordering criterion. Ascending defaults to true when
// omitted.
type SortSpec struct {
	Field     string `yaml:"field" json:"field"`
	Ascending *bool  `yaml:"ascending,omitempty" json:"ascending,omitempty"`
}

// WithCount reports whether the request wants a total count.
func (r *Request) WithCount() bool {
	return r.Count == nil || *r.Count
}

// Condition builds the engine condition described by the request.
// Structural problems (a group that also sets a field, both value and
// values on one leaf, an unknown logic tag) are reported here; operator
// and field resolution stay with the engine, which reports them as
// typed query errors.
func (r *Request) Condition() (condition.SearchCondition, error) {
	cond := condition.New()

	size := r.Size
	if size <= 0 {
		size = condition.DefaultSize
	}
	cond = cond.WithPage(r.Page, size)

	for i := range r.Filters {
		node, err := r.Filters[i].node()
		if err != nil {
			return condition.SearchCondition{}, fmt.Errorf("filters[%d]: %w", i, err)
		}
		cond = cond.WithNode(node)
	}

	if len(r.Sort) > 0 {
		sort := make(condition.Sort, len(r.Sort))
		for i, s := range r.Sort {
			ascending := s.Ascending == nil || *s.Ascending
			sort[i] = condition.Order{Field: s.Field, Ascending: ascending}
		}
		cond = cond.WithSort(sort)
	}

	if len(r.Fetch) > 0 {
		cond = cond.Fetch(r.Fetch...)
	}
	return cond, nil
}

// node converts one spec into a condition node.
func (f *FilterSpec) node() (condition.Node, error) {
	logic, err := parseLogic(f.Logic)
	if err != nil {
		return nil, err
	}

	if len(f.Group) > 0 {
		if f.Field != "" || f.Op != "" {
			return nil, fmt.Errorf("group cannot also set field or op")
		}
		nodes := make([]condition.Node, 0, len(f.Group))
		for i := range f.Group {
			child, err := f.Group[i].node()
			if err != nil {
				return nil, fmt.Errorf("group[%d]: %w", i, err)
			}
			nodes = append(nodes, child)
		}
		return condition.Group{Nodes: nodes, Logic: logic}, nil
	}

	if f.Field == "" {
		return nil, fmt.Errorf("filter requires a field or a group")
	}
	if f.Op == "" {
		return nil, fmt.Errorf("filter on %q requires an op", f.Field)
	}

	values := f.Values
	if f.Value != nil {
		if len(values) > 0 {
			return nil, fmt.Errorf("filter on %q sets both value and values", f.Field)
		}
		values = []any{f.Value}
	}

	return condition.Filter{
		Field:    f.Field,
		Operator: condition.Operator(f.Op),
		Values:   values,
		Logic:    logic,
	}, nil
}

// parseLogic maps a request logic tag to the condition form. The empty
// tag means AND.
func parseLogic(s string) (condition.Logic, error) {
	switch strings.ToLower(s) {
	case "", "and":
		return condition.LogicAnd, nil
	case "or":
		return condition.LogicOr, nil
	default:
		return "", fmt.Errorf("unknown logic %q: must be \"and\" or \"or\"", s)
	}
}

// LoadRequest reads and parses a standalone request file (YAML or
// JSON). Returns an error for unreadable files, unknown fields (typos),
// or structurally invalid requests.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	return ParseRequest(data)
}

// ParseRequest parses request bytes with strict field validation.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// validateRequest checks required fields and filter structure.
func validateRequest(r *Request) error {
	if r.Entity == "" {
		return fmt.Errorf("entity is required")
	}
	if r.Page < 0 {
		return fmt.Errorf("page must be non-negative")
	}
	if r.Size < 0 {
		return fmt.Errorf("size must be non-negative")
	}
	for i, s := range r.Sort {
		if s.Field == "" {
			return fmt.Errorf("sort[%d]: field is required", i)
		}
	}
	for i, f := range r.Fetch {
		if f == "" {
			return fmt.Errorf("fetch[%d]: path must not be empty", i)
		}
	}

	// Building the condition exercises the filter-tree structure checks.
	if _, err := r.Condition(); err != nil {
		return err
	}
	return nil
}
