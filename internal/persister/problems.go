package persister

import (
	"fmt"
	"strings"
)

// Problems aggregates the errors and warnings raised by one persister
// operation. Operations never stop at the first issue: a reindex that
// hits three malformed filenames reports all three and keeps indexing.
//
// A nil *Problems means the operation completed cleanly. A non-nil
// result with only warnings still indicates success; HasErrors reports
// whether the operation actually failed.
type Problems struct {
	errors   []error
	warnings []error
}

// AddError records a failure. Returns the receiver, allocating it when
// called on nil, so call sites can chain onto a nil Problems.
func (p *Problems) AddError(err error) *Problems {
	if p == nil {
		p = &Problems{}
	}
	p.errors = append(p.errors, err)
	return p
}

// AddWarning records a non-fatal issue.
func (p *Problems) AddWarning(err error) *Problems {
	if p == nil {
		p = &Problems{}
	}
	p.warnings = append(p.warnings, err)
	return p
}

// Absorb merges another operation's problems into this one.
func (p *Problems) Absorb(other *Problems) *Problems {
	if other == nil {
		return p
	}
	if p == nil {
		p = &Problems{}
	}
	p.errors = append(p.errors, other.errors...)
	p.warnings = append(p.warnings, other.warnings...)
	return p
}

// HasErrors reports whether the operation failed.
func (p *Problems) HasErrors() bool {
	return p != nil && len(p.errors) > 0
}

// HasWarnings reports whether any non-fatal issues were recorded.
func (p *Problems) HasWarnings() bool {
	return p != nil && len(p.warnings) > 0
}

// Errors returns the recorded failures.
func (p *Problems) Errors() []error {
	if p == nil {
		return nil
	}
	return p.errors
}

// Warnings returns the recorded non-fatal issues.
func (p *Problems) Warnings() []error {
	if p == nil {
		return nil
	}
	return p.warnings
}

// ErrorOrNil returns the Problems as an error when the operation
// failed, nil otherwise. Warnings alone never produce an error.
func (p *Problems) ErrorOrNil() error {
	if p.HasErrors() {
		return p
	}
	return nil
}

// Error implements the error interface, summarising all recorded
// errors and warnings.
func (p *Problems) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("persister problems: %d error(s), %d warning(s)", len(p.errors), len(p.warnings)))
	for _, err := range p.errors {
		b.WriteString("; error: ")
		b.WriteString(err.Error())
	}
	for _, err := range p.warnings {
		b.WriteString("; warning: ")
		b.WriteString(err.Error())
	}
	return b.String()
}
