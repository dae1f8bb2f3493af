// Package policy runs the organization's schema lint policy against an
// incoming schema via the external policy service.
package policy

import (
	"context"
)

// Severity of a policy finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is a single policy finding.
type Issue struct {
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
}

// Selector scopes a policy run to its organization, project, and target.
type Selector struct {
	OrganizationID string `json:"organization_id"`
	ProjectID      string `json:"project_id"`
	TargetID       string `json:"target_id"`
}

// Status of a policy stage run.
type Status int

const (
	StatusSkipped Status = iota
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Check is the policy stage outcome.
type Check struct {
	Status   Status  `json:"status"`
	Warnings []Issue `json:"warnings,omitempty"`
	Errors   []Issue `json:"errors,omitempty"`
}

// Checker evaluates the schema policy. Implementations call the external
// policy service; a nil response means no policy is configured.
type Checker interface {
	CheckPolicy(ctx context.Context, selector Selector, modifiedSDL, composedSDL string) (*Check, error)
}

// Gate wraps a Checker with the skip rule: without a composed SDL there is
// nothing for the policy to lint (composition already failed upstream).
type Gate struct {
	checker Checker
}

// NewGate creates a policy gate. checker may be nil to disable policy runs.
func NewGate(checker Checker) *Gate {
	return &Gate{checker: checker}
}

// Check runs the policy over the incoming schema.
func (g *Gate) Check(ctx context.Context, selector Selector, modifiedSDL, composedSDL string) (*Check, error) {
	if g.checker == nil || composedSDL == "" {
		return &Check{Status: StatusSkipped}, nil
	}

	result, err := g.checker.CheckPolicy(ctx, selector, modifiedSDL, composedSDL)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &Check{Status: StatusSkipped}, nil
	}
	return result, nil
}
