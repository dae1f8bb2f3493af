package inspect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	"github.com/wudi/registry/internal/appdeploy"
	"github.com/wudi/registry/internal/config"
	"github.com/wudi/registry/internal/schema"
	"github.com/wudi/registry/internal/usage"
)

// Status is the structural outcome of a diff run.
type Status int

const (
	StatusCompleted Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ConditionalBreakingChangeConfig enables usage-based downgrading of breaking
// changes. When absent, every statically breaking change stays breaking.
type ConditionalBreakingChangeConfig struct {
	Period                     usage.Period
	RequestCountThreshold      uint64
	TargetIDs                  []string
	ExcludedClientNames        []string
	ExcludedAppDeploymentNames []string
}

// DiffOptions tune one diff run.
type DiffOptions struct {
	Conditional             *ConditionalBreakingChangeConfig
	ApprovedChanges         map[string]Change
	FailOnDangerousChange   bool
	FilterFederationChanges bool
	FilterNestedChanges     bool
	// URLChangesBefore/After enable service URL change synthesis for
	// composite projects.
	URLChangesBefore []schema.Input
	URLChangesAfter  []schema.Input
}

// Result is the outcome of one diff run. Failure is structural: breaking
// changes set StatusFailed, they are not Go errors.
type Result struct {
	Status          Status           `json:"status"`
	Breaking        []Change         `json:"breaking,omitempty"`
	Safe            []Change         `json:"safe,omitempty"`
	CoordinatesDiff *CoordinatesDiff `json:"coordinates_diff,omitempty"`
	CompareFailure  string           `json:"compare_failure,omitempty"`
}

// All returns the union of breaking and safe changes ordered by path.
// Computed on demand so it can never drift from its sources.
func (r *Result) All() []Change {
	all := make([]Change, 0, len(r.Breaking)+len(r.Safe))
	all = append(all, r.Breaking...)
	all = append(all, r.Safe...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Path < all[j].Path
	})
	return all
}

// Engine runs the diff stage: structural inspection, conditional
// breaking-change downgrade, and app-deployment impact override.
type Engine struct {
	inspector   Inspector
	usage       usage.Store      // nil disables the usage pass
	deployments appdeploy.Lookup // nil disables the app-deployment pass
	schemaCache *lru.LRU[uint64, *ast.Schema]
	topLimit    int
	logger      *zap.Logger
}

// NewEngine creates a diff engine. usageStore and deployments may be nil.
func NewEngine(cfg config.ChecksConfig, inspector Inspector, usageStore usage.Store, deployments appdeploy.Lookup, logger *zap.Logger) *Engine {
	if inspector == nil {
		inspector = NewStructuralInspector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	size := cfg.SchemaCacheSize
	if size <= 0 {
		size = 256
	}
	topLimit := cfg.TopOperationsLimit
	if topLimit <= 0 {
		topLimit = 10
	}

	return &Engine{
		inspector:   inspector,
		usage:       usageStore,
		deployments: deployments,
		schemaCache: lru.NewLRU[uint64, *ast.Schema](size, nil, cfg.SchemaCacheTTL),
		topLimit:    topLimit,
		logger:      logger,
	}
}

// Diff compares the previous composed SDL with the incoming one.
//
// A missing incoming SDL skips the stage (composition already failed
// upstream). A missing or unparsable existing SDL produces a partial,
// coordinates-only result for the incoming schema. Collaborator failures
// (usage store, app-deployment lookup) are returned as errors.
func (e *Engine) Diff(ctx context.Context, existingSDL, incomingSDL string, opts DiffOptions) (*Result, error) {
	if incomingSDL == "" {
		e.logger.Debug("skipping diff, no incoming sdl")
		return &Result{Status: StatusSkipped}, nil
	}

	incoming, err := e.parseSchema(incomingSDL)
	if err != nil {
		return &Result{
			Status:         StatusFailed,
			CompareFailure: fmt.Sprintf("failed to compare schemas: %s", err),
		}, nil
	}

	var existing *ast.Schema
	if existingSDL != "" {
		existing, err = e.parseSchema(existingSDL)
		if err != nil {
			e.logger.Debug("existing version does not parse, falling back to coordinates-only diff", zap.Error(err))
			existing = nil
		}
	}

	if existing == nil {
		return &Result{
			Status:          StatusCompleted,
			CoordinatesDiff: DiffCoordinates(nil, incoming),
		}, nil
	}

	changes := e.inspector.Diff(existing, incoming)

	if opts.FilterNestedChanges {
		changes = filterNested(changes)
	}
	if opts.FilterFederationChanges {
		changes = filterFederation(changes)
	}

	if len(opts.URLChangesAfter) > 0 {
		changes = append(changes, DetectURLChanges(opts.URLChangesBefore, opts.URLChangesAfter)...)
	}

	if opts.Conditional != nil && e.usage != nil {
		changes, err = e.usagePass(ctx, changes, opts.Conditional)
		if err != nil {
			return nil, fmt.Errorf("usage pass: %w", err)
		}
	}

	// The app-deployment override must run after the usage pass: it wins
	// over usage-based safety.
	if e.deployments != nil {
		changes, err = e.deploymentPass(ctx, changes, opts)
		if err != nil {
			return nil, fmt.Errorf("app deployment pass: %w", err)
		}
	}

	result := &Result{
		CoordinatesDiff: DiffCoordinates(existing, incoming),
	}

	unapprovedBreaking := 0
	for _, c := range changes {
		if !c.isFailing(opts.FailOnDangerousChange) {
			result.Safe = append(result.Safe, c)
			continue
		}

		if approved, ok := opts.ApprovedChanges[c.ID]; ok {
			// Keep the previously approved record (who, when) but carry the
			// freshly computed usage statistics.
			approved.Usage = c.Usage
			approved.IsSafeBasedOnUsage = c.IsSafeBasedOnUsage
			approved.AffectedAppDeployments = c.AffectedAppDeployments
			result.Breaking = append(result.Breaking, approved)
			continue
		}

		unapprovedBreaking++
		result.Breaking = append(result.Breaking, c)
	}

	if unapprovedBreaking > 0 {
		result.Status = StatusFailed
	} else {
		result.Status = StatusCompleted
	}

	return result, nil
}

// usagePass rebuilds breaking changes with a usage-based safety verdict and
// attaches top operations/clients for observability.
func (e *Engine) usagePass(ctx context.Context, changes []Change, cfg *ConditionalBreakingChangeConfig) ([]Change, error) {
	cond := usage.Condition{
		TargetIDs: cfg.TargetIDs,
		Period:    cfg.Period,
	}
	cond.ExcludedClients = append(cond.ExcludedClients, cfg.ExcludedClientNames...)
	cond.ExcludedClients = append(cond.ExcludedClients, cfg.ExcludedAppDeploymentNames...)

	threshold := cfg.RequestCountThreshold
	if threshold < 1 {
		threshold = 1
	}

	out := make([]Change, len(changes))
	for i, c := range changes {
		if c.Criticality != Breaking || c.BreakingChangeCoordinate == "" {
			out[i] = c
			continue
		}

		total, err := e.usage.CountCoordinate(ctx, cond, c.BreakingChangeCoordinate)
		if err != nil {
			return nil, fmt.Errorf("count coordinate %q: %w", c.BreakingChangeCoordinate, err)
		}

		safe := total < threshold

		if c.NullabilityNarrowing {
			// If every request that uses the coordinate already supplies the
			// value, requiring it breaks nobody. This check only ever makes
			// a change safer.
			base, err := e.usage.CountCoordinate(ctx, cond, c.Path)
			if err != nil {
				return nil, fmt.Errorf("count coordinate %q: %w", c.Path, err)
			}
			withValue, err := e.usage.CountCoordinate(ctx, cond, c.Path+"!")
			if err != nil {
				return nil, fmt.Errorf("count coordinate %q: %w", c.Path+"!", err)
			}
			if withValue >= base {
				safe = true
			}
		}

		stats := &usage.Statistics{TotalRequestCount: total}
		stats.TopOperations, err = e.usage.TopOperationsForCoordinate(ctx, cond, c.BreakingChangeCoordinate, e.topLimit)
		if err != nil {
			return nil, fmt.Errorf("top operations for %q: %w", c.BreakingChangeCoordinate, err)
		}
		stats.TopClients, err = e.usage.TopClientsForCoordinate(ctx, cond, c.BreakingChangeCoordinate, e.topLimit)
		if err != nil {
			return nil, fmt.Errorf("top clients for %q: %w", c.BreakingChangeCoordinate, err)
		}

		next := c
		next.IsSafeBasedOnUsage = safe
		next.Usage = stats
		out[i] = next
	}

	return out, nil
}

// deploymentPass forces breaking changes that hit an active app deployment
// back to unsafe, regardless of the usage verdict. One batched lookup covers
// every coordinate.
func (e *Engine) deploymentPass(ctx context.Context, changes []Change, opts DiffOptions) ([]Change, error) {
	coordSet := make(map[string]struct{})
	for _, c := range changes {
		if c.Criticality == Breaking && c.BreakingChangeCoordinate != "" {
			coordSet[c.BreakingChangeCoordinate] = struct{}{}
		}
	}
	if len(coordSet) == 0 {
		return changes, nil
	}

	coordinates := make([]string, 0, len(coordSet))
	for c := range coordSet {
		coordinates = append(coordinates, c)
	}
	sort.Strings(coordinates)

	lookup, err := e.deployments.AffectedByCoordinates(ctx, coordinates, 20, e.topLimit)
	if err != nil {
		return nil, err
	}
	if lookup == nil || len(lookup.Deployments) == 0 {
		return changes, nil
	}

	excluded := make(map[string]struct{})
	if opts.Conditional != nil {
		for _, name := range opts.Conditional.ExcludedAppDeploymentNames {
			excluded[name] = struct{}{}
		}
	}

	out := make([]Change, len(changes))
	for i, c := range changes {
		if c.Criticality != Breaking || c.BreakingChangeCoordinate == "" {
			out[i] = c
			continue
		}

		var affected []appdeploy.Affected
		for _, d := range lookup.Deployments {
			if _, skip := excluded[d.Deployment.Name]; skip {
				continue
			}
			if d.ImpactsCoordinate(c.BreakingChangeCoordinate) {
				affected = append(affected, d)
			}
		}

		if len(affected) == 0 {
			out[i] = c
			continue
		}

		next := c
		next.IsSafeBasedOnUsage = false
		next.AffectedAppDeployments = affected
		out[i] = next
	}

	return out, nil
}

// Coordinates computes the coordinate delta between two composed SDLs,
// independent of a full diff run. An empty or unparsable side counts as an
// empty coordinate set.
func (e *Engine) Coordinates(baseSDL, incomingSDL string) *CoordinatesDiff {
	var base, incoming *ast.Schema
	if baseSDL != "" {
		base, _ = e.parseSchema(baseSDL)
	}
	if incomingSDL != "" {
		incoming, _ = e.parseSchema(incomingSDL)
	}
	return DiffCoordinates(base, incoming)
}

func (e *Engine) parseSchema(sdl string) (*ast.Schema, error) {
	key := xxhash.Sum64String(sdl)
	if cached, ok := e.schemaCache.Get(key); ok {
		return cached, nil
	}

	parsed, err := gqlparser.LoadSchema(&ast.Source{Name: "schema", Input: sdl})
	if err != nil {
		return nil, err
	}

	e.schemaCache.Add(key, parsed)
	return parsed, nil
}

// filterNested drops changes nested under a removal that already covers
// them, so a removed type does not also report every removed field.
func filterNested(changes []Change) []Change {
	removedPrefixes := make([]string, 0, 4)
	for _, c := range changes {
		if c.Type == TypeRemoved || c.Type == FieldRemoved {
			removedPrefixes = append(removedPrefixes, c.Path+".")
		}
	}
	if len(removedPrefixes) == 0 {
		return changes
	}

	out := changes[:0]
	for _, c := range changes {
		nested := false
		for _, prefix := range removedPrefixes {
			if strings.HasPrefix(c.Path, prefix) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, c)
		}
	}
	return out
}

// federationMachineryTypes are artifacts of federation composition, not
// user-facing schema surface.
var federationMachineryTypes = map[string]bool{
	"_Any":      true,
	"_Entity":   true,
	"_Service":  true,
	"_FieldSet": true,
	"FieldSet":  true,
}

var federationMachineryPrefixes = []string{
	"join__",
	"link__",
	"core__",
	"federation__",
	"@join__",
	"@link",
	"@core",
}

func filterFederation(changes []Change) []Change {
	out := changes[:0]
	for _, c := range changes {
		root := c.Path
		if i := strings.IndexByte(root, '.'); i >= 0 {
			root = root[:i]
		}
		if federationMachineryTypes[root] {
			continue
		}
		skip := false
		for _, prefix := range federationMachineryPrefixes {
			if strings.HasPrefix(root, prefix) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}
