// Package models implements the check and publish decision flows, one
// composition strategy per project type behind a single orchestration path.
package models

import (
	"github.com/wudi/registry/internal/inspect"
	"github.com/wudi/registry/internal/policy"
	"github.com/wudi/registry/internal/schema"
	"github.com/wudi/registry/internal/versions"
)

// ProjectType selects the composition backend for a project.
type ProjectType int

const (
	ProjectSingle ProjectType = iota
	ProjectFederation
	ProjectStitching
)

func (t ProjectType) String() string {
	switch t {
	case ProjectSingle:
		return "single"
	case ProjectFederation:
		return "federation"
	case ProjectStitching:
		return "stitching"
	default:
		return "unknown"
	}
}

// IsComposite reports whether projects of this type hold schemas for more
// than one service.
func (t ProjectType) IsComposite() bool {
	return t == ProjectFederation || t == ProjectStitching
}

// Project carries the per-project settings that steer a check or publish.
type Project struct {
	ID   string      `json:"id"`
	Type ProjectType `json:"type"`
	// LegacyModel keeps the project on the old registry flow: no policy
	// stage, and publishes gated by the combined eligibility rule instead
	// of always recording the version.
	LegacyModel bool `json:"legacy_model"`
	// NativeComposition runs federation composition in-process instead of
	// delegating to the external composition service.
	NativeComposition bool `json:"native_composition,omitempty"`
}

// Organization carries the org-level flags a model consults.
type Organization struct {
	ID string `json:"id"`
	// CompareToPreviousComposableVersion diffs against the most recent
	// composable version instead of the most recent version of any state.
	CompareToPreviousComposableVersion bool `json:"compare_to_previous_composable_version"`
}

// Target identifies the schema target a submission lands on.
type Target struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CheckRequest is the input to Registry.Check.
type CheckRequest struct {
	Input        schema.Input
	Selector     policy.Selector
	Project      Project
	Organization Organization

	// Version is the latest version of any state; ComposableVersion the
	// latest version that composed successfully. Either may be nil.
	Version           *versions.SchemaVersion
	ComposableVersion *versions.SchemaVersion

	BaseSchema    string
	ContractNames []string

	ApprovedChanges map[string]inspect.Change
	Conditional     *inspect.ConditionalBreakingChangeConfig
}

// PublishRequest is the input to Registry.Publish.
type PublishRequest struct {
	Input        schema.Input
	Target       Target
	Project      Project
	Organization Organization

	Version           *versions.SchemaVersion
	ComposableVersion *versions.SchemaVersion

	BaseSchema    string
	ContractNames []string

	Conditional *inspect.ConditionalBreakingChangeConfig

	// Force publishes over composition errors or breaking changes.
	Force bool
	// AcceptBreakingChanges publishes over breaking changes only.
	AcceptBreakingChanges bool
}
