package engine

import "github.com/roach88/criterium/internal/queryplan"

// Record is one loaded entity: column values under their field names,
// loaded to-one relations as nested Records (nil when the row has none),
// and to-many relations as []Record slices under the relation name.
type Record map[string]any

// Page is one result page.
type Page struct {
	Content []Record

	// TotalCount is the distinct total matching the filter, nil when
	// counting was skipped (WithoutCount variants).
	TotalCount *int64

	PageNumber int
	PageSize   int

	// Warnings carries non-fatal planning observations, like a sort
	// that could not be stabilized.
	Warnings []queryplan.Warning
}

// TotalPages derives the page count from TotalCount; ok is false when
// counting was skipped.
func (p *Page) TotalPages() (int64, bool) {
	if p.TotalCount == nil || p.PageSize <= 0 {
		return 0, false
	}
	total := *p.TotalCount
	pages := total / int64(p.PageSize)
	if total%int64(p.PageSize) != 0 {
		pages++
	}
	return pages, true
}

// HasWarning reports whether the page carries a warning with the code.
func (p *Page) HasWarning(code string) bool {
	for _, w := range p.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
