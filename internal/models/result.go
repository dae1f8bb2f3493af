package models

import (
	"github.com/wudi/registry/internal/composition"
	"github.com/wudi/registry/internal/inspect"
	"github.com/wudi/registry/internal/policy"
	"github.com/wudi/registry/internal/schema"
)

// CheckConclusion tags the variant of a CheckResult.
type CheckConclusion int

const (
	CheckSkip CheckConclusion = iota
	CheckFailure
	CheckSuccess
)

func (c CheckConclusion) String() string {
	switch c {
	case CheckSkip:
		return "skip"
	case CheckFailure:
		return "failure"
	case CheckSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// CheckResult is the outcome of a check. Exactly one state field matching
// the conclusion is populated; Skip carries none.
type CheckResult struct {
	Conclusion CheckConclusion    `json:"conclusion"`
	Failure    *CheckFailureState `json:"failure,omitempty"`
	Success    *CheckSuccessState `json:"success,omitempty"`
}

// CheckFailureState aggregates every failing axis of a check. The axes are
// independent; any subset may be present.
type CheckFailureState struct {
	CompositionErrors []composition.Error        `json:"composition_errors,omitempty"`
	ErrorsBySource    composition.ErrorsBySource `json:"errors_by_source,omitempty"`
	BreakingChanges   []inspect.Change           `json:"breaking_changes,omitempty"`
	SafeChanges       []inspect.Change           `json:"safe_changes,omitempty"`
	PolicyErrors      []policy.Issue             `json:"policy_errors,omitempty"`
	PolicyWarnings    []policy.Issue             `json:"policy_warnings,omitempty"`
	DiffFailure       string                     `json:"diff_failure,omitempty"`
	ComposedSDL       string                     `json:"composed_sdl,omitempty"`
}

// CheckSuccessState is the state of a passing check.
type CheckSuccessState struct {
	Initial         bool                     `json:"initial"`
	Changes         []inspect.Change         `json:"changes,omitempty"`
	PolicyWarnings  []policy.Issue           `json:"policy_warnings,omitempty"`
	ComposedSDL     string                   `json:"composed_sdl,omitempty"`
	SupergraphSDL   string                   `json:"supergraph_sdl,omitempty"`
	CoordinatesDiff *inspect.CoordinatesDiff `json:"coordinates_diff,omitempty"`
}

// PublishConclusion tags the variant of a PublishResult.
type PublishConclusion int

const (
	PublishReject PublishConclusion = iota
	PublishIgnore
	PublishAccept
)

func (c PublishConclusion) String() string {
	switch c {
	case PublishReject:
		return "reject"
	case PublishIgnore:
		return "ignore"
	case PublishAccept:
		return "publish"
	default:
		return "unknown"
	}
}

// ReasonCode is a machine-readable rejection or ignore reason.
type ReasonCode string

const (
	ReasonMissingServiceName     ReasonCode = "MISSING_SERVICE_NAME"
	ReasonMissingServiceURL      ReasonCode = "MISSING_SERVICE_URL"
	ReasonCompositionFailure     ReasonCode = "COMPOSITION_FAILURE"
	ReasonBreakingChanges        ReasonCode = "BREAKING_CHANGES"
	ReasonMetadataParsingFailure ReasonCode = "METADATA_PARSING_FAILURE"
	ReasonNoChanges              ReasonCode = "NO_CHANGES"
)

// Rejection is one failing axis of a rejected publish.
type Rejection struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
	// Details carries the axis-specific payload for rendering.
	CompositionErrors []composition.Error `json:"composition_errors,omitempty"`
	BreakingChanges   []inspect.Change    `json:"breaking_changes,omitempty"`
}

// PublishResult is the outcome of a publish. Reject carries one Rejection
// per failing axis; Ignore carries the single ignore reason; Publish carries
// the state storage persists as the new version.
type PublishResult struct {
	Conclusion PublishConclusion `json:"conclusion"`
	Rejections []Rejection       `json:"rejections,omitempty"`
	Ignored    *IgnoredState     `json:"ignored,omitempty"`
	Publish    *PublishState     `json:"publish,omitempty"`
}

// IgnoredState explains a no-op publish.
type IgnoredState struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
}

// PublishState is everything storage needs to record the new version.
type PublishState struct {
	Composable        bool                     `json:"composable"`
	Initial           bool                     `json:"initial"`
	Messages          []string                 `json:"messages,omitempty"`
	Changes           []inspect.Change         `json:"changes,omitempty"`
	SafeChanges       []inspect.Change         `json:"safe_changes,omitempty"`
	BreakingChanges   []inspect.Change         `json:"breaking_changes,omitempty"`
	ComposedSDL       string                   `json:"composed_sdl,omitempty"`
	SupergraphSDL     string                   `json:"supergraph_sdl,omitempty"`
	Schemas           []schema.Input           `json:"schemas"`
	ContractNames     []string                 `json:"contract_names,omitempty"`
	CoordinatesDiff   *inspect.CoordinatesDiff `json:"coordinates_diff,omitempty"`
	CompositionErrors []composition.Error      `json:"composition_errors,omitempty"`
}

func skipCheck() *CheckResult {
	return &CheckResult{Conclusion: CheckSkip}
}

func ignorePublish() *PublishResult {
	return &PublishResult{
		Conclusion: PublishIgnore,
		Ignored: &IgnoredState{
			Code:    ReasonNoChanges,
			Message: "No changes to publish",
		},
	}
}

func rejectPublish(rejections ...Rejection) *PublishResult {
	return &PublishResult{Conclusion: PublishReject, Rejections: rejections}
}
