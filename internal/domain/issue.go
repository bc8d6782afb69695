package domain

import "errors"

// Shared sentinel errors. Wrapped with fmt.Errorf("%w", ...) at call sites.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrRuleNotValid = errors.New("rule has blocking validation issues")
)

// Severity classifies a validation issue.
type Severity string

const (
	// SeverityBlocking prevents a rule from going live.
	SeverityBlocking Severity = "blocking"

	// SeverityWarning is surfaced to the operator but never blocks.
	SeverityWarning Severity = "warning"
)

// ValidationIssue describes one problem with a rule configuration. Issues
// are plain data so an editing surface can display all of them at once
// instead of stopping at the first.
type ValidationIssue struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

// HasBlocking reports whether any issue in the list is blocking.
func HasBlocking(issues []ValidationIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}
