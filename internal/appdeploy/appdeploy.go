// Package appdeploy exposes active app deployments — named, versioned
// persisted-operation bundles — for breaking-change impact analysis.
package appdeploy

import "context"

// Deployment identifies one deployed persisted-operations bundle.
type Deployment struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Operation is a persisted operation within a deployment that references an
// affected schema coordinate.
type Operation struct {
	Hash string `json:"hash"`
	Name string `json:"name,omitempty"`
}

// Affected is the read-only projection of one active deployment impacted by
// a set of schema coordinates.
type Affected struct {
	Deployment                     Deployment             `json:"app_deployment"`
	AffectedOperationsByCoordinate map[string][]Operation `json:"affected_operations_by_coordinate"`
	CountByCoordinate              map[string]uint64      `json:"count_by_coordinate"`
	TotalOperationsByCoordinate    map[string]uint64      `json:"total_operations_by_coordinate"`
}

// ImpactsCoordinate reports whether the deployment references the coordinate.
func (a Affected) ImpactsCoordinate(coordinate string) bool {
	ops, ok := a.AffectedOperationsByCoordinate[coordinate]
	return ok && len(ops) > 0
}

// Result is the batched lookup outcome.
type Result struct {
	Deployments      []Affected `json:"deployments"`
	TotalDeployments int        `json:"total_deployments"`
}

// Lookup fetches active deployments affected by any of the given schema
// coordinates. Implementations batch: one call covers the whole set.
type Lookup interface {
	AffectedByCoordinates(ctx context.Context, coordinates []string, firstDeployments, firstOperations int) (*Result, error)
}
