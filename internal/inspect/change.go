// Package inspect computes the structural diff between two schema versions
// and decides which changes are breaking, factoring in historical usage and
// active app deployments.
package inspect

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/wudi/registry/internal/appdeploy"
	"github.com/wudi/registry/internal/usage"
)

// Criticality is the static classification of a change, independent of traffic.
type Criticality int

const (
	Safe Criticality = iota
	Dangerous
	Breaking
)

func (c Criticality) String() string {
	switch c {
	case Safe:
		return "SAFE"
	case Dangerous:
		return "DANGEROUS"
	case Breaking:
		return "BREAKING"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders criticality as its name.
func (c Criticality) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses a criticality name.
func (c *Criticality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "SAFE":
		*c = Safe
	case "DANGEROUS":
		*c = Dangerous
	case "BREAKING":
		*c = Breaking
	default:
		return fmt.Errorf("unknown criticality %q", s)
	}
	return nil
}

// Change type identifiers produced by the structural inspector.
const (
	TypeRemoved              = "TYPE_REMOVED"
	TypeAdded                = "TYPE_ADDED"
	TypeKindChanged          = "TYPE_KIND_CHANGED"
	FieldRemoved             = "FIELD_REMOVED"
	FieldAdded               = "FIELD_ADDED"
	FieldTypeChanged         = "FIELD_TYPE_CHANGED"
	FieldArgumentRemoved     = "FIELD_ARGUMENT_REMOVED"
	FieldArgumentAdded       = "FIELD_ARGUMENT_ADDED"
	FieldArgumentTypeChanged = "FIELD_ARGUMENT_TYPE_CHANGED"
	InputFieldRemoved        = "INPUT_FIELD_REMOVED"
	InputFieldAdded          = "INPUT_FIELD_ADDED"
	InputFieldTypeChanged    = "INPUT_FIELD_TYPE_CHANGED"
	EnumValueRemoved         = "ENUM_VALUE_REMOVED"
	EnumValueAdded           = "ENUM_VALUE_ADDED"
	UnionMemberRemoved       = "UNION_MEMBER_REMOVED"
	UnionMemberAdded         = "UNION_MEMBER_ADDED"
	ObjectInterfaceRemoved   = "OBJECT_TYPE_INTERFACE_REMOVED"
	ObjectInterfaceAdded     = "OBJECT_TYPE_INTERFACE_ADDED"
	DirectiveRemoved         = "DIRECTIVE_REMOVED"
	ServiceURLChanged        = "REGISTRY_SERVICE_URL_CHANGED"
)

// ApprovalMetadata records who approved a breaking change and when.
type ApprovalMetadata struct {
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	Context    string    `json:"context,omitempty"`
}

// Change is a single structural difference between two schema versions.
// Values are immutable once produced; the usage and app-deployment passes
// build replacement values instead of mutating in place.
type Change struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Criticality Criticality `json:"criticality"`
	Message     string      `json:"message"`
	Path        string      `json:"path"`

	// BreakingChangeCoordinate is the schema coordinate whose usage decides
	// whether this breaking change is safe. For argument changes this is the
	// parent field, because usage reports attribute argument usage only when
	// the argument is present in the operation.
	BreakingChangeCoordinate string `json:"breaking_change_coordinate,omitempty"`

	// NullabilityNarrowing marks the nullable-to-required argument or input
	// field shape that is eligible for the exact-usage widening exception.
	NullabilityNarrowing bool `json:"nullability_narrowing,omitempty"`

	IsSafeBasedOnUsage     bool                 `json:"is_safe_based_on_usage,omitempty"`
	Usage                  *usage.Statistics    `json:"usage_statistics,omitempty"`
	AffectedAppDeployments []appdeploy.Affected `json:"affected_app_deployments,omitempty"`
	Approval               *ApprovalMetadata    `json:"approval,omitempty"`
}

// newChange builds a change with a stable id derived from its identity
// fields, so approvals recorded against an earlier check still match.
func newChange(changeType, path, message string, criticality Criticality) Change {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s", changeType, path)
	return Change{
		ID:          hex.EncodeToString(h.Sum(nil)),
		Type:        changeType,
		Criticality: criticality,
		Message:     message,
		Path:        path,
	}
}

// isFailing reports whether the change lands in the breaking partition.
func (c Change) isFailing(failOnDangerous bool) bool {
	if c.IsSafeBasedOnUsage {
		return false
	}
	if c.Criticality == Breaking {
		return true
	}
	return failOnDangerous && c.Criticality == Dangerous
}
