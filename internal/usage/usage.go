// Package usage exposes the time-series usage store consumed by the
// conditional breaking-change logic.
package usage

import (
	"context"
	"time"
)

// Period is the time window usage counts are computed over.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Condition scopes a usage query to targets, a period, and client exclusions.
type Condition struct {
	TargetIDs       []string `json:"target_ids"`
	ExcludedClients []string `json:"excluded_clients,omitempty"`
	Period          Period   `json:"period"`
}

// OperationSample is one operation observed calling a coordinate.
type OperationSample struct {
	Name  string `json:"name"`
	Hash  string `json:"hash"`
	Count uint64 `json:"count"`
}

// ClientSample is one client observed calling a coordinate.
type ClientSample struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

// Statistics is the per-change usage snapshot attached for observability.
type Statistics struct {
	TotalRequestCount uint64            `json:"total_request_count"`
	TopOperations     []OperationSample `json:"top_operations,omitempty"`
	TopClients        []ClientSample    `json:"top_clients,omitempty"`
}

// Store answers usage questions about schema coordinates. Implementations
// query an external time-series store; errors are transport failures and
// propagate to the caller.
type Store interface {
	// CountCoordinate returns the total request count for a schema coordinate
	// within the condition's period, excluding the configured clients.
	CountCoordinate(ctx context.Context, cond Condition, coordinate string) (uint64, error)

	// TopOperationsForCoordinate returns the most frequent operations using a
	// coordinate, capped at limit.
	TopOperationsForCoordinate(ctx context.Context, cond Condition, coordinate string, limit int) ([]OperationSample, error)

	// TopClientsForCoordinate returns the most frequent clients using a
	// coordinate, capped at limit.
	TopClientsForCoordinate(ctx context.Context, cond Condition, coordinate string, limit int) ([]ClientSample, error)
}
