package models

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/registry/internal/composition"
	"github.com/wudi/registry/internal/config"
	"github.com/wudi/registry/internal/inspect"
	"github.com/wudi/registry/internal/metrics"
	"github.com/wudi/registry/internal/policy"
	"github.com/wudi/registry/internal/schema"
	"github.com/wudi/registry/internal/versions"
)

// Orchestrators supplies one composition backend per project type.
type Orchestrators struct {
	Single     composition.Orchestrator
	Federation composition.Orchestrator
	Stitching  composition.Orchestrator
}

type strategy struct {
	orchestrator composition.Orchestrator
	resolver     *versions.Resolver
	opts         composition.Options
}

// Registry runs the check and publish decision flows. All expected domain
// outcomes come back as result variants; returned errors are collaborator or
// invariant failures the caller must surface.
type Registry struct {
	checks config.ChecksConfig
	diff   *inspect.Engine
	policy *policy.Gate

	strategies map[ProjectType]*strategy
	logger     *zap.Logger
}

// NewRegistry wires the decision flows. The policy gate may wrap a nil
// checker when no policy service is configured.
func NewRegistry(cfg *config.Config, diff *inspect.Engine, gate *policy.Gate, orchestrators Orchestrators, logger *zap.Logger) (*Registry, error) {
	if diff == nil {
		return nil, fmt.Errorf("diff engine is required")
	}
	if orchestrators.Single == nil || orchestrators.Federation == nil || orchestrators.Stitching == nil {
		return nil, fmt.Errorf("an orchestrator per project type is required")
	}
	if gate == nil {
		gate = policy.NewGate(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	federationOpts := composition.Options{Native: cfg.Composition.NativeFederation}
	strategies := map[ProjectType]*strategy{
		ProjectSingle: {
			orchestrator: orchestrators.Single,
			resolver:     versions.NewResolver(orchestrators.Single, composition.Options{}, logger),
		},
		ProjectFederation: {
			orchestrator: orchestrators.Federation,
			resolver:     versions.NewResolver(orchestrators.Federation, federationOpts, logger),
			opts:         federationOpts,
		},
		ProjectStitching: {
			orchestrator: orchestrators.Stitching,
			resolver:     versions.NewResolver(orchestrators.Stitching, composition.Options{}, logger),
		},
	}

	return &Registry{
		checks:     cfg.Checks,
		diff:       diff,
		policy:     gate,
		strategies: strategies,
		logger:     logger,
	}, nil
}

// Check runs a dry-run validation of a schema submission.
func (r *Registry) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	result, err := r.check(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.RecordCheck(req.Project.Type.String(), result.Conclusion.String())
	r.logger.Info("schema check",
		zap.String("project", req.Project.ID),
		zap.String("type", req.Project.Type.String()),
		zap.String("conclusion", result.Conclusion.String()))
	return result, nil
}

func (r *Registry) check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	strat, err := r.strategyFor(req.Project)
	if err != nil {
		return nil, err
	}

	schemas, _ := r.incomingSchemas(req.Project, req.Version, req.Input)

	checksumBase := r.checksumVersion(req.Project, req.Organization, req.Version, req.ComposableVersion)
	sum := schema.Checksum(existingSchemas(checksumBase), schema.VersionedSchemas{
		Schemas:       schemas,
		ContractNames: req.ContractNames,
	})
	if sum == schema.ChecksumUnchanged {
		return skipCheck(), nil
	}
	initial := req.Version == nil

	composed, previousSDL, err := r.composeAndResolve(ctx, strat, req.Project, schemas, req.BaseSchema, r.compareVersion(req.Organization, req.Version, req.ComposableVersion))
	if err != nil {
		return nil, err
	}

	// Diff and policy both only need the composed SDL; run them together.
	var (
		diffRes  *inspect.Result
		polCheck *policy.Check
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var diffErr error
		diffRes, diffErr = r.runDiff(gctx, previousSDL, composed.SDL, inspect.DiffOptions{
			Conditional:             req.Conditional,
			ApprovedChanges:         r.approvedChanges(req.Project, req.ApprovedChanges),
			FailOnDangerousChange:   r.checks.FailOnDangerousChange,
			FilterFederationChanges: req.Project.Type == ProjectFederation,
			FilterNestedChanges:     r.checks.FilterNestedChanges,
		})
		return diffErr
	})
	g.Go(func() error {
		if req.Project.LegacyModel {
			polCheck = &policy.Check{Status: policy.StatusSkipped}
			return nil
		}
		var polErr error
		polCheck, polErr = r.policy.Check(gctx, req.Selector, req.Input.SDL, composed.SDL)
		if polErr != nil {
			return fmt.Errorf("policy check: %w", polErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	compositionFailed := composed.Failed
	diffFailed := diffRes.Status == inspect.StatusFailed
	policyFailed := polCheck.Status == policy.StatusFailed

	if compositionFailed || diffFailed || policyFailed {
		failure := &CheckFailureState{
			PolicyWarnings: polCheck.Warnings,
			ComposedSDL:    composed.SDL,
		}
		if compositionFailed {
			failure.CompositionErrors = composed.Errors
			failure.ErrorsBySource = composed.ErrorsBySource
		}
		if diffFailed {
			failure.BreakingChanges = diffRes.Breaking
			failure.SafeChanges = diffRes.Safe
			failure.DiffFailure = diffRes.CompareFailure
		}
		if policyFailed {
			failure.PolicyErrors = polCheck.Errors
		}
		return &CheckResult{Conclusion: CheckFailure, Failure: failure}, nil
	}

	return &CheckResult{
		Conclusion: CheckSuccess,
		Success: &CheckSuccessState{
			Initial:         initial,
			Changes:         diffRes.All(),
			PolicyWarnings:  polCheck.Warnings,
			ComposedSDL:     composed.SDL,
			SupergraphSDL:   composed.SupergraphSDL,
			CoordinatesDiff: diffRes.CoordinatesDiff,
		},
	}, nil
}

// Publish decides whether a submission becomes the new version.
func (r *Registry) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	result, err := r.publish(ctx, req)
	if err != nil {
		return nil, err
	}
	metrics.RecordPublish(req.Project.Type.String(), result.Conclusion.String())
	r.logger.Info("schema publish",
		zap.String("project", req.Project.ID),
		zap.String("target", req.Target.ID),
		zap.String("type", req.Project.Type.String()),
		zap.String("conclusion", result.Conclusion.String()))
	return result, nil
}

func (r *Registry) publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	strat, err := r.strategyFor(req.Project)
	if err != nil {
		return nil, err
	}

	if req.Project.Type.IsComposite() {
		var rejections []Rejection
		if rej := serviceNameRejection(req.Input); rej != nil {
			rejections = append(rejections, *rej)
		}
		if req.Project.Type == ProjectFederation {
			if rej := serviceURLRejection(req.Input); rej != nil {
				rejections = append(rejections, *rej)
			}
		}
		if len(rejections) > 0 {
			return rejectPublish(rejections...), nil
		}
	}

	schemas, existingService := r.incomingSchemas(req.Project, req.Version, req.Input)

	checksumBase := r.checksumVersion(req.Project, req.Organization, req.Version, req.ComposableVersion)
	sum := schema.Checksum(existingSchemas(checksumBase), schema.VersionedSchemas{
		Schemas:       schemas,
		ContractNames: req.ContractNames,
	})
	if sum == schema.ChecksumUnchanged {
		return ignorePublish(), nil
	}
	initial := req.Version == nil

	// Federation metadata rides on the supergraph, not on subgraph
	// submissions; skip the stage there.
	meta := metadataCheck{Valid: true}
	if req.Project.Type != ProjectFederation {
		meta = checkMetadata(existingService, req.Input)
	}
	if !meta.Valid {
		return rejectPublish(metadataRejection()), nil
	}

	priorSchemas := versionSchemas(req.Version)
	compareTo := r.compareVersion(req.Organization, req.Version, req.ComposableVersion)

	composed, previousSDL, err := r.composeAndResolve(ctx, strat, req.Project, schemas, req.BaseSchema, compareTo)
	if err != nil {
		return nil, err
	}

	if !req.Project.LegacyModel && req.Project.Type == ProjectSingle {
		return r.concludeModernSingle(ctx, req, composed, previousSDL, meta, initial, schemas)
	}

	diffRes, err := r.runDiff(ctx, previousSDL, composed.SDL, inspect.DiffOptions{
		Conditional:             req.Conditional,
		FailOnDangerousChange:   r.checks.FailOnDangerousChange,
		FilterFederationChanges: req.Project.Type == ProjectFederation,
		FilterNestedChanges:     r.checks.FilterNestedChanges,
		URLChangesBefore:        priorSchemas,
		URLChangesAfter:         schemas,
	})
	if err != nil {
		return nil, err
	}

	hasCompositionErrors := composed.Failed
	breaking := diffRes.Breaking
	if req.AcceptBreakingChanges {
		breaking = nil
	}
	hasBreakingChanges := len(breaking) > 0
	hasNewURL, urlMessage := urlChange(existingService, req.Input)
	hasNewMetadata := meta.Modified
	hasErrors := hasCompositionErrors || hasBreakingChanges

	publishable := !hasErrors ||
		hasNewURL ||
		hasNewMetadata ||
		(hasErrors && req.Force) ||
		(hasBreakingChanges && req.AcceptBreakingChanges)

	if !publishable {
		var rejections []Rejection
		if hasCompositionErrors {
			rejections = append(rejections, Rejection{
				Code:              ReasonCompositionFailure,
				Message:           "Schema composition failed",
				CompositionErrors: composed.Errors,
			})
		}
		if hasBreakingChanges {
			rejections = append(rejections, Rejection{
				Code:            ReasonBreakingChanges,
				Message:         "Schema contains breaking changes",
				BreakingChanges: breaking,
			})
		}
		return rejectPublish(rejections...), nil
	}

	coordinates := diffRes.CoordinatesDiff
	if req.Project.Type.IsComposite() {
		// Coordinate bookkeeping always tracks the last composable
		// state, even when the diff above ran against a broken latest
		// version.
		composableSDL, err := strat.resolver.ResolveSDL(ctx, req.ComposableVersion)
		if err != nil {
			return nil, fmt.Errorf("resolve composable version sdl: %w", err)
		}
		coordinates = r.diff.Coordinates(composableSDL, composed.SDL)
	}

	var messages []string
	if hasNewURL {
		messages = append(messages, urlMessage)
	}
	if hasNewMetadata {
		messages = append(messages, fmt.Sprintf("[%s] Metadata has been updated", serviceLabel(req.Input)))
	}

	return &PublishResult{
		Conclusion: PublishAccept,
		Publish: &PublishState{
			Composable:        !hasErrors,
			Initial:           initial,
			Messages:          messages,
			Changes:           diffRes.All(),
			SafeChanges:       diffRes.Safe,
			BreakingChanges:   breaking,
			ComposedSDL:       composed.SDL,
			SupergraphSDL:     composed.SupergraphSDL,
			Schemas:           schemas,
			ContractNames:     req.ContractNames,
			CoordinatesDiff:   coordinates,
			CompositionErrors: composed.Errors,
		},
	}, nil
}

// concludeModernSingle finishes a publish on the modern single-schema flow:
// publishes always record a version, composable or not, except for outright
// invalid SDL when the organization still compares against the latest
// version of any state.
func (r *Registry) concludeModernSingle(ctx context.Context, req PublishRequest, composed *composition.Check, previousSDL string, meta metadataCheck, initial bool, schemas []schema.Input) (*PublishResult, error) {
	if !req.Organization.CompareToPreviousComposableVersion && len(composed.ErrorsBySource.GraphQL) > 0 {
		return rejectPublish(Rejection{
			Code:              ReasonCompositionFailure,
			Message:           "Schema does not parse or validate",
			CompositionErrors: composed.ErrorsBySource.GraphQL,
		}), nil
	}

	diffRes, err := r.runDiff(ctx, previousSDL, composed.SDL, inspect.DiffOptions{
		Conditional:           req.Conditional,
		FailOnDangerousChange: r.checks.FailOnDangerousChange,
		FilterNestedChanges:   r.checks.FilterNestedChanges,
	})
	if err != nil {
		return nil, err
	}

	var messages []string
	if meta.Modified {
		messages = append(messages, "Metadata has been updated")
	}

	return &PublishResult{
		Conclusion: PublishAccept,
		Publish: &PublishState{
			Composable:        !composed.Failed,
			Initial:           initial,
			Messages:          messages,
			Changes:           diffRes.All(),
			SafeChanges:       diffRes.Safe,
			BreakingChanges:   diffRes.Breaking,
			ComposedSDL:       composed.SDL,
			SupergraphSDL:     composed.SupergraphSDL,
			Schemas:           schemas,
			ContractNames:     req.ContractNames,
			CoordinatesDiff:   diffRes.CoordinatesDiff,
			CompositionErrors: composed.Errors,
		},
	}, nil
}

// composeAndResolve runs composition of the incoming schema set and the
// resolution of the comparison version's SDL together.
func (r *Registry) composeAndResolve(ctx context.Context, strat *strategy, project Project, schemas []schema.Input, baseSchema string, compareTo *versions.SchemaVersion) (*composition.Check, string, error) {
	var (
		composed    *composition.Check
		previousSDL string
	)

	opts := strat.opts
	if project.NativeComposition {
		opts.Native = true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		var composeErr error
		composed, composeErr = composition.Compose(gctx, strat.orchestrator, schemas, baseSchema, opts)
		metrics.ObserveComposition(project.Type.String(), time.Since(start))
		if composeErr != nil {
			return fmt.Errorf("compose incoming schemas: %w", composeErr)
		}
		return nil
	})
	g.Go(func() error {
		var resolveErr error
		previousSDL, resolveErr = strat.resolver.ResolveSDL(gctx, compareTo)
		if resolveErr != nil {
			return fmt.Errorf("resolve previous version: %w", resolveErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	return composed, previousSDL, nil
}

func (r *Registry) runDiff(ctx context.Context, previousSDL, incomingSDL string, opts inspect.DiffOptions) (*inspect.Result, error) {
	start := time.Now()
	result, err := r.diff.Diff(ctx, previousSDL, incomingSDL, opts)
	metrics.ObserveDiff(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("diff schemas: %w", err)
	}
	return result, nil
}

// incomingSchemas builds the full schema set a submission produces: single
// projects replace their only schema, composite ones swap the matching
// service into the previous version's set.
func (r *Registry) incomingSchemas(project Project, version *versions.SchemaVersion, input schema.Input) ([]schema.Input, *schema.Input) {
	if !project.Type.IsComposite() {
		var existing *schema.Input
		if prior := versionSchemas(version); len(prior) > 0 {
			prev := prior[0]
			existing = &prev
		}
		return []schema.Input{input}, existing
	}
	return schema.SwapServices(versionSchemas(version), input)
}

func (r *Registry) strategyFor(project Project) (*strategy, error) {
	strat, ok := r.strategies[project.Type]
	if !ok {
		return nil, fmt.Errorf("unknown project type %d", project.Type)
	}
	return strat, nil
}

// compareVersion picks the version a submission is diffed against.
func (r *Registry) compareVersion(org Organization, latest, latestComposable *versions.SchemaVersion) *versions.SchemaVersion {
	if org.CompareToPreviousComposableVersion {
		return latestComposable
	}
	return latest
}

// checksumVersion picks the version a submission's checksum is computed
// against. The modern single flow dedupes against the same version it diffs
// against; every other flow dedupes against the latest version of any state.
func (r *Registry) checksumVersion(project Project, org Organization, latest, latestComposable *versions.SchemaVersion) *versions.SchemaVersion {
	if project.Type == ProjectSingle && !project.LegacyModel {
		return r.compareVersion(org, latest, latestComposable)
	}
	return latest
}

// approvedChanges only apply on the modern flow; approvals did not exist on
// the legacy registry.
func (r *Registry) approvedChanges(project Project, approved map[string]inspect.Change) map[string]inspect.Change {
	if project.LegacyModel {
		return nil
	}
	return approved
}

func existingSchemas(version *versions.SchemaVersion) *schema.VersionedSchemas {
	if version == nil {
		return nil
	}
	return &schema.VersionedSchemas{
		Schemas:       version.Schemas,
		ContractNames: version.ContractNames,
	}
}

func versionSchemas(version *versions.SchemaVersion) []schema.Input {
	if version == nil {
		return nil
	}
	return version.Schemas
}

func serviceLabel(in schema.Input) string {
	if in.ServiceName != "" {
		return in.ServiceName
	}
	return in.ID
}
