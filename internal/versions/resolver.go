// Package versions resolves the composed SDL of historical schema versions,
// recomposing on demand for versions that predate persisted artifacts.
package versions

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wudi/registry/internal/composition"
	"github.com/wudi/registry/internal/metrics"
	"github.com/wudi/registry/internal/schema"
)

// SchemaVersion is a read-only snapshot of one published version. Newer
// versions carry persisted artifacts; older ones only carry their schema
// inputs and must be recomposed on demand.
type SchemaVersion struct {
	ID                string              `json:"id"`
	Schemas           []schema.Input      `json:"schemas"`
	ContractNames     []string            `json:"contract_names,omitempty"`
	IsComposable      bool                `json:"is_composable"`
	HasPersistedSDL   bool                `json:"has_persisted_sdl"`
	CompositeSDL      string              `json:"composite_sdl,omitempty"`
	SupergraphSDL     string              `json:"supergraph_sdl,omitempty"`
	CompositionErrors []composition.Error `json:"composition_errors,omitempty"`
}

// Resolver memoizes on-demand recomposition per version id for the lifetime
// of the process. Versions are immutable once composed, so the cache needs
// no invalidation; concurrent callers for the same id share one in-flight
// composition.
type Resolver struct {
	orchestrator composition.Orchestrator
	opts         composition.Options
	logger       *zap.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*composition.Result
}

// NewResolver creates a resolver backed by the given orchestrator.
func NewResolver(orchestrator composition.Orchestrator, opts composition.Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		orchestrator: orchestrator,
		opts:         opts,
		logger:       logger,
		cache:        make(map[string]*composition.Result),
	}
}

// ResolveSDL returns the composed SDL of a version, or "" when none exists.
// A nil version and a known-broken version both resolve to "": there is
// nothing useful to diff against.
func (r *Resolver) ResolveSDL(ctx context.Context, v *SchemaVersion) (string, error) {
	if v == nil {
		return "", nil
	}
	if v.HasPersistedSDL {
		return v.CompositeSDL, nil
	}
	if !v.IsComposable {
		return "", nil
	}

	result, err := r.resolve(ctx, v)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return result.SDL, nil
}

// ResolveSupergraph returns the version's supergraph SDL, or "" when none
// exists.
func (r *Resolver) ResolveSupergraph(ctx context.Context, v *SchemaVersion) (string, error) {
	if v == nil {
		return "", nil
	}
	if v.HasPersistedSDL {
		return v.SupergraphSDL, nil
	}
	if !v.IsComposable {
		return "", nil
	}

	result, err := r.resolve(ctx, v)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return result.SupergraphSDL, nil
}

// ResolveCompositionErrors returns the version's composition errors,
// recomposing when they were never persisted.
func (r *Resolver) ResolveCompositionErrors(ctx context.Context, v *SchemaVersion) ([]composition.Error, error) {
	if v == nil {
		return nil, nil
	}
	if v.HasPersistedSDL {
		return v.CompositionErrors, nil
	}

	result, err := r.resolve(ctx, v)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.Errors, nil
}

func (r *Resolver) resolve(ctx context.Context, v *SchemaVersion) (*composition.Result, error) {
	r.mu.RLock()
	cached, ok := r.cache[v.ID]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	result, err, _ := r.group.Do(v.ID, func() (any, error) {
		if len(v.Schemas) == 0 {
			return (*composition.Result)(nil), nil
		}

		r.logger.Debug("recomposing historical version", zap.String("version", v.ID))
		metrics.RecordVersionRecompose()
		composed, err := r.orchestrator.ComposeAndValidate(ctx, v.Schemas, r.opts)
		if err != nil {
			return nil, fmt.Errorf("recompose version %s: %w", v.ID, err)
		}

		r.mu.Lock()
		r.cache[v.ID] = composed
		r.mu.Unlock()
		return composed, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*composition.Result), nil
}
