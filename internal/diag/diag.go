// Package diag collects structured diagnostics emitted during parsing.
//
// The parsing core has no ambient logger; every stage appends to a Sink that
// is returned alongside the parse result, so callers (and tests) can inspect
// exactly what the heuristics decided and why.
package diag

import "fmt"

// Severity classifies a diagnostic entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Entry is a single diagnostic record.
type Entry struct {
	Stage    string   `json:"stage"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Sink accumulates diagnostic entries in emission order.
// The zero value is ready to use. Not safe for concurrent use; parsing is a
// single-pass synchronous transformation and shares nothing.
type Sink struct {
	entries []Entry
}

// Infof records an informational entry for the given stage.
func (s *Sink) Infof(stage, format string, args ...any) {
	s.append(stage, SeverityInfo, format, args...)
}

// Warnf records a warning entry for the given stage.
func (s *Sink) Warnf(stage, format string, args ...any) {
	s.append(stage, SeverityWarning, format, args...)
}

// Errorf records an error entry for the given stage.
func (s *Sink) Errorf(stage, format string, args ...any) {
	s.append(stage, SeverityError, format, args...)
}

func (s *Sink) append(stage string, sev Severity, format string, args ...any) {
	s.entries = append(s.entries, Entry{
		Stage:    stage,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Entries returns a copy of the recorded entries in emission order.
func (s *Sink) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Warnings returns only the warning-severity entries.
func (s *Sink) Warnings() []Entry {
	var out []Entry
	for _, e := range s.entries {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}

// HasWarnings reports whether any warning or error entries were recorded.
func (s *Sink) HasWarnings() bool {
	for _, e := range s.entries {
		if e.Severity != SeverityInfo {
			return true
		}
	}
	return false
}
