package sir

import "github.com/banjoc/banjoc/internal/report"

// Ident is a source-position-tagged identifier, e.g. a function or
// variable name as it appeared in source.
type Ident struct {
	Name string
	Span report.Span
}

// String implements fmt.Stringer.
func (i Ident) String() string { return i.Name }
