// Package report collects compiler diagnostics across a compilation run.
//
// Stages never call panic or os.Exit for a recoverable condition (see
// "Exception-style control" in the design notes); instead they append a
// Diagnostic to a Manager and carry on, so that sibling
// declarations keep being analyzed after a single failure.
package report

import (
	"fmt"
	"strings"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// Span is a source position range. File/Line/Col are 1-based; external
// collaborators (the lexer/parser) are the source of truth for these.
type Span struct {
	File      string
	Line, Col int
	EndLine   int
	EndCol    int
}

// String implements fmt.Stringer.
func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// Diagnostic is a single reported error, warning, or note.
type Diagnostic struct {
	Severity Severity
	Span     Span
	Message  string
	// Secondary is an optional second span, e.g. the location of a prior
	// conflicting definition in a redefinition diagnostic.
	Secondary     *Span
	SecondaryText string
}

// String implements fmt.Stringer. Rendering with carets/coloring is left
// to the external report-renderer collaborator; this is a plain fallback
// used by tests and logging.
func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s: %s", d.Span, d.Severity, d.Message)
	if d.Secondary != nil {
		fmt.Fprintf(&b, "\n  %s: %s", *d.Secondary, d.SecondaryText)
	}
	return b.String()
}

// Manager accumulates diagnostics for the duration of a compilation run.
// A Manager is single-owner; it is never shared across goroutines (see
// "Shared state" in the concurrency model).
type Manager struct {
	diagnostics []Diagnostic
	fatal       bool
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends a diagnostic. Errors mark the Manager as fatal; warnings
// and notes do not.
func (m *Manager) Add(d Diagnostic) {
	m.diagnostics = append(m.diagnostics, d)
	if d.Severity == SeverityError {
		m.fatal = true
	}
}

// Errorf is a convenience wrapper around Add for SeverityError.
func (m *Manager) Errorf(span Span, format string, args ...any) {
	m.Add(Diagnostic{Severity: SeverityError, Span: span, Message: fmt.Sprintf(format, args...)})
}

// ErrorfSecondary is Errorf with a secondary span attached.
func (m *Manager) ErrorfSecondary(span Span, secondary Span, secondaryText string, format string, args ...any) {
	m.Add(Diagnostic{
		Severity: SeverityError, Span: span, Message: fmt.Sprintf(format, args...),
		Secondary: &secondary, SecondaryText: secondaryText,
	})
}

// Fatal returns true if any SeverityError diagnostic has been reported.
// Per spec: "if any report is fatal, the compiler exits before backend
// stages" — callers check this between phases.
func (m *Manager) Fatal() bool {
	return m.fatal
}

// Diagnostics returns all accumulated diagnostics in report order.
func (m *Manager) Diagnostics() []Diagnostic {
	return m.diagnostics
}

// Reset clears the Manager for reuse across an independent compilation
// run (e.g. a JIT reload, which rebuilds the SIR unit from scratch).
func (m *Manager) Reset() {
	m.diagnostics = m.diagnostics[:0]
	m.fatal = false
}
