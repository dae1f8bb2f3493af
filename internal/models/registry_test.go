package models

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wudi/registry/internal/composition"
	"github.com/wudi/registry/internal/config"
	"github.com/wudi/registry/internal/inspect"
	"github.com/wudi/registry/internal/policy"
	"github.com/wudi/registry/internal/schema"
	"github.com/wudi/registry/internal/usage"
	"github.com/wudi/registry/internal/versions"
)

const (
	previousSDL = "type Query {\n  a: String\n  b: Int\n}\n"
	removedBSDL = "type Query {\n  a: String\n}\n"
)

type fakeUsageStore struct {
	counts map[string]uint64
}

func (f *fakeUsageStore) CountCoordinate(_ context.Context, _ usage.Condition, coordinate string) (uint64, error) {
	return f.counts[coordinate], nil
}

func (f *fakeUsageStore) TopOperationsForCoordinate(_ context.Context, _ usage.Condition, _ string, _ int) ([]usage.OperationSample, error) {
	return nil, nil
}

func (f *fakeUsageStore) TopClientsForCoordinate(_ context.Context, _ usage.Condition, _ string, _ int) ([]usage.ClientSample, error) {
	return nil, nil
}

type countingChecker struct {
	result *policy.Check
	calls  int
}

func (c *countingChecker) CheckPolicy(_ context.Context, _ policy.Selector, _, _ string) (*policy.Check, error) {
	c.calls++
	return c.result, nil
}

type countingOrchestrator struct {
	inner composition.Orchestrator
	calls int64
}

func (o *countingOrchestrator) ComposeAndValidate(ctx context.Context, schemas []schema.Input, opts composition.Options) (*composition.Result, error) {
	atomic.AddInt64(&o.calls, 1)
	return o.inner.ComposeAndValidate(ctx, schemas, opts)
}

func newTestRegistry(t *testing.T, store usage.Store, checker policy.Checker) *Registry {
	t.Helper()
	return newTestRegistryWith(t, store, checker, Orchestrators{
		Single:     composition.NewSingleOrchestrator(),
		Federation: composition.NewStitchingOrchestrator(),
		Stitching:  composition.NewStitchingOrchestrator(),
	})
}

func newTestRegistryWith(t *testing.T, store usage.Store, checker policy.Checker, orchestrators Orchestrators) *Registry {
	t.Helper()
	cfg := config.DefaultConfig()
	engine := inspect.NewEngine(cfg.Checks, nil, store, nil, nil)
	registry, err := NewRegistry(cfg, engine, policy.NewGate(checker), orchestrators, nil)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	return registry
}

// composedSDL runs the single orchestrator so previous versions carry the
// same printed form the diff stage will see for the incoming schema.
func composedSDL(t *testing.T, sdl string) string {
	t.Helper()
	result, err := composition.NewSingleOrchestrator().ComposeAndValidate(context.Background(), []schema.Input{{SDL: sdl}}, composition.Options{})
	if err != nil || len(result.Errors) > 0 {
		t.Fatalf("failed to compose fixture: %v %v", err, result)
	}
	return result.SDL
}

func singleVersion(t *testing.T, sdl string) *versions.SchemaVersion {
	t.Helper()
	return &versions.SchemaVersion{
		ID:              "v1",
		Schemas:         []schema.Input{{ID: "s1", SDL: sdl}},
		IsComposable:    true,
		HasPersistedSDL: true,
		CompositeSDL:    composedSDL(t, sdl),
	}
}

func testConditional(threshold uint64) *inspect.ConditionalBreakingChangeConfig {
	return &inspect.ConditionalBreakingChangeConfig{
		Period: usage.Period{
			From: time.Now().Add(-7 * 24 * time.Hour),
			To:   time.Now(),
		},
		RequestCountThreshold: threshold,
		TargetIDs:             []string{"target-1"},
	}
}

func TestCheck_UnchangedSkips(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Check(context.Background(), CheckRequest{
		Input:   schema.Input{ID: "s2", SDL: previousSDL},
		Project: Project{ID: "p1", Type: ProjectSingle},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckSkip {
		t.Errorf("expected skip, got %s", result.Conclusion)
	}
}

func TestCheck_InitialSubmissionSucceeds(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Check(context.Background(), CheckRequest{
		Input:   schema.Input{ID: "s1", SDL: previousSDL},
		Project: Project{ID: "p1", Type: ProjectSingle},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if !result.Success.Initial {
		t.Error("expected initial flag for first submission")
	}
	if result.Success.ComposedSDL == "" {
		t.Error("expected composed SDL in success state")
	}
	if result.Success.CoordinatesDiff == nil || len(result.Success.CoordinatesDiff.Added) == 0 {
		t.Errorf("expected newly introduced coordinates, got %+v", result.Success.CoordinatesDiff)
	}
}

func TestCheck_CompositionFailure(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Check(context.Background(), CheckRequest{
		Input:   schema.Input{ID: "s1", SDL: "type Query { user: MissingType }"},
		Project: Project{ID: "p1", Type: ProjectSingle},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckFailure {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(result.Failure.CompositionErrors) == 0 {
		t.Error("expected composition errors")
	}
	if len(result.Failure.ErrorsBySource.GraphQL) == 0 {
		t.Error("expected errors tagged with the graphql source")
	}
}

func TestCheck_BreakingChangeFails(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Check(context.Background(), CheckRequest{
		Input:   schema.Input{ID: "s1", SDL: removedBSDL},
		Project: Project{ID: "p1", Type: ProjectSingle},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckFailure {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(result.Failure.BreakingChanges) != 1 {
		t.Errorf("expected one breaking change, got %+v", result.Failure.BreakingChanges)
	}
}

func TestCheck_UsageDowngradeTurnsBreakingIntoSuccess(t *testing.T) {
	store := &fakeUsageStore{counts: map[string]uint64{"Query.b": 5}}
	r := newTestRegistry(t, store, nil)

	result, err := r.Check(context.Background(), CheckRequest{
		Input:       schema.Input{ID: "s1", SDL: removedBSDL},
		Project:     Project{ID: "p1", Type: ProjectSingle},
		Version:     singleVersion(t, previousSDL),
		Conditional: testConditional(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckSuccess {
		t.Fatalf("expected success after downgrade, got %+v", result)
	}
}

func TestCheck_PolicyFailure(t *testing.T) {
	checker := &countingChecker{result: &policy.Check{
		Status: policy.StatusFailed,
		Errors: []policy.Issue{{RuleID: "require-description", Message: "missing description", Severity: policy.SeverityError}},
	}}
	r := newTestRegistry(t, nil, checker)

	result, err := r.Check(context.Background(), CheckRequest{
		Input:   schema.Input{ID: "s1", SDL: previousSDL + "type Extra {\n  id: ID\n}\n"},
		Project: Project{ID: "p1", Type: ProjectSingle},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckFailure {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(result.Failure.PolicyErrors) != 1 {
		t.Errorf("expected policy errors, got %+v", result.Failure)
	}
}

func TestCheck_LegacyModelSkipsPolicy(t *testing.T) {
	checker := &countingChecker{result: &policy.Check{Status: policy.StatusFailed}}
	r := newTestRegistry(t, nil, checker)

	result, err := r.Check(context.Background(), CheckRequest{
		Input:   schema.Input{ID: "s1", SDL: previousSDL + "type Extra {\n  id: ID\n}\n"},
		Project: Project{ID: "p1", Type: ProjectSingle, LegacyModel: true},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if checker.calls != 0 {
		t.Errorf("legacy checks must not run policy, got %d calls", checker.calls)
	}
}

func TestCheck_ApprovedBreakingChangePasses(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	req := CheckRequest{
		Input:   schema.Input{ID: "s1", SDL: removedBSDL},
		Project: Project{ID: "p1", Type: ProjectSingle},
		Version: singleVersion(t, previousSDL),
	}

	first, err := r.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Conclusion != CheckFailure || len(first.Failure.BreakingChanges) != 1 {
		t.Fatalf("expected one breaking change, got %+v", first)
	}

	approved := first.Failure.BreakingChanges[0]
	approved.Approval = &inspect.ApprovalMetadata{ApprovedBy: "alice", ApprovedAt: time.Now()}
	req.ApprovedChanges = map[string]inspect.Change{approved.ID: approved}

	second, err := r.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Conclusion != CheckSuccess {
		t.Fatalf("expected success with approval, got %+v", second)
	}

	var found bool
	for _, c := range second.Success.Changes {
		if c.Approval != nil && c.Approval.ApprovedBy == "alice" {
			found = true
		}
	}
	if !found {
		t.Error("expected the approved record carried into the success state")
	}
}

func TestPublish_UnchangedIgnored(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s2", SDL: previousSDL},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectSingle, LegacyModel: true},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishIgnore {
		t.Fatalf("expected ignore, got %+v", result)
	}
	if result.Ignored.Code != ReasonNoChanges {
		t.Errorf("expected NO_CHANGES, got %s", result.Ignored.Code)
	}
}

func TestPublish_InitialVersion(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: previousSDL},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectSingle, LegacyModel: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("expected publish, got %+v", result)
	}
	if !result.Publish.Initial || !result.Publish.Composable {
		t.Errorf("expected initial composable version, got %+v", result.Publish)
	}
	if len(result.Publish.Schemas) != 1 {
		t.Errorf("expected the new schema set for storage, got %+v", result.Publish.Schemas)
	}
}

func TestPublish_FederationMissingServiceURLRejectsBeforeComposition(t *testing.T) {
	federation := &countingOrchestrator{inner: composition.NewStitchingOrchestrator()}
	r := newTestRegistryWith(t, nil, nil, Orchestrators{
		Single:     composition.NewSingleOrchestrator(),
		Federation: federation,
		Stitching:  composition.NewStitchingOrchestrator(),
	})

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: previousSDL, ServiceName: "users"},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectFederation, LegacyModel: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishReject {
		t.Fatalf("expected reject, got %+v", result)
	}
	if len(result.Rejections) != 1 || result.Rejections[0].Code != ReasonMissingServiceURL {
		t.Errorf("expected MISSING_SERVICE_URL, got %+v", result.Rejections)
	}
	if atomic.LoadInt64(&federation.calls) != 0 {
		t.Errorf("composition must not run for a rejected preflight, got %d calls", federation.calls)
	}
}

func TestPublish_CompositeMissingNameAndURLReportsBoth(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: previousSDL},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectFederation, LegacyModel: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishReject || len(result.Rejections) != 2 {
		t.Fatalf("expected both preflight rejections, got %+v", result)
	}
	codes := map[ReasonCode]bool{}
	for _, rej := range result.Rejections {
		codes[rej.Code] = true
	}
	if !codes[ReasonMissingServiceName] || !codes[ReasonMissingServiceURL] {
		t.Errorf("expected name and url reasons, got %+v", result.Rejections)
	}
}

func TestPublish_BreakingChangesRejectedUnlessForced(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	base := PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: removedBSDL},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectSingle, LegacyModel: true},
		Version: singleVersion(t, previousSDL),
	}

	rejected, err := r.Publish(context.Background(), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Conclusion != PublishReject {
		t.Fatalf("expected reject, got %+v", rejected)
	}
	if len(rejected.Rejections) != 1 || rejected.Rejections[0].Code != ReasonBreakingChanges {
		t.Fatalf("expected BREAKING_CHANGES, got %+v", rejected.Rejections)
	}
	if len(rejected.Rejections[0].BreakingChanges) == 0 {
		t.Error("expected the breaking changes attached to the rejection")
	}

	forced := base
	forced.Force = true
	result, err := r.Publish(context.Background(), forced)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Errorf("forced publish must proceed over breaking changes, got %+v", result)
	}

	accepted := base
	accepted.AcceptBreakingChanges = true
	result, err = r.Publish(context.Background(), accepted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Errorf("accepted breaking changes must publish, got %+v", result)
	}
}

func TestPublish_UsageDowngradeMakesBreakingPublishable(t *testing.T) {
	store := &fakeUsageStore{counts: map[string]uint64{"Query.b": 5}}
	r := newTestRegistry(t, store, nil)

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:       schema.Input{ID: "s1", SDL: removedBSDL},
		Target:      Target{ID: "t1"},
		Project:     Project{ID: "p1", Type: ProjectSingle, LegacyModel: true},
		Version:     singleVersion(t, previousSDL),
		Conditional: testConditional(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("expected publish after downgrade, got %+v", result)
	}
	if !result.Publish.Composable {
		t.Error("expected composable publish state")
	}
}

func TestPublish_MetadataParseFailureShortCircuits(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: removedBSDL, MetadataJSON: "{not json"},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectSingle, LegacyModel: true},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishReject {
		t.Fatalf("expected reject, got %+v", result)
	}
	if len(result.Rejections) != 1 || result.Rejections[0].Code != ReasonMetadataParsingFailure {
		t.Errorf("metadata failure must be the only reported reason, got %+v", result.Rejections)
	}
}

func TestPublish_ModernSingleInvalidSDL(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	base := PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: "type Query { user: MissingType }"},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectSingle},
		Version: singleVersion(t, previousSDL),
	}

	// Comparing against the latest version of any state: invalid SDL is a
	// hard reject.
	rejected, err := r.Publish(context.Background(), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Conclusion != PublishReject {
		t.Fatalf("expected reject, got %+v", rejected)
	}
	if rejected.Rejections[0].Code != ReasonCompositionFailure {
		t.Errorf("expected COMPOSITION_FAILURE, got %+v", rejected.Rejections)
	}

	// Comparing against the previous composable version: the submission is
	// recorded as a non-composable version instead.
	relaxed := base
	relaxed.Organization = Organization{ID: "o1", CompareToPreviousComposableVersion: true}
	relaxed.ComposableVersion = base.Version
	result, err := r.Publish(context.Background(), relaxed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("expected publish, got %+v", result)
	}
	if result.Publish.Composable {
		t.Error("expected a non-composable publish state")
	}
	if len(result.Publish.CompositionErrors) == 0 {
		t.Error("expected composition errors recorded on the version")
	}
}

func TestPublish_ModernSingleNeverRejectsOnBreakingChanges(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: removedBSDL},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectSingle},
		Version: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("modern publishes record breaking versions, got %+v", result)
	}
	if len(result.Publish.BreakingChanges) != 1 {
		t.Errorf("expected the breaking change recorded, got %+v", result.Publish)
	}
}

func TestPublish_CompositeServiceURLChangePublishesOverBreaking(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	previous := &versions.SchemaVersion{
		ID: "v1",
		Schemas: []schema.Input{
			{ServiceName: "users", ServiceURL: "http://users:4000", SDL: previousSDL},
		},
		IsComposable:    true,
		HasPersistedSDL: true,
		CompositeSDL:    composedSDL(t, previousSDL),
	}

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: removedBSDL, ServiceName: "users", ServiceURL: "http://users:5000"},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectStitching, LegacyModel: true},
		Version: previous,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("a new service url must publish over breaking changes, got %+v", result)
	}

	var urlNotice bool
	for _, m := range result.Publish.Messages {
		if strings.Contains(m, "New service url") {
			urlNotice = true
		}
	}
	if !urlNotice {
		t.Errorf("expected a url change notice, got %+v", result.Publish.Messages)
	}
	if result.Publish.Composable {
		t.Error("a url change admits the version but must not mark it composable")
	}
	if result.Publish.CoordinatesDiff == nil {
		t.Error("expected a coordinates diff on composite publish")
	}
}

func TestPublish_ForcedPublishOverBreakingIsNotComposable(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	base := PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: removedBSDL},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectSingle, LegacyModel: true},
		Version: singleVersion(t, previousSDL),
	}

	forced := base
	forced.Force = true
	result, err := r.Publish(context.Background(), forced)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("expected forced publish, got %+v", result)
	}
	if result.Publish.Composable {
		t.Error("forcing past breaking changes must record a non-composable version")
	}
	if len(result.Publish.BreakingChanges) != 1 {
		t.Errorf("expected the breaking change recorded, got %+v", result.Publish.BreakingChanges)
	}

	accepted := base
	accepted.AcceptBreakingChanges = true
	result, err = r.Publish(context.Background(), accepted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("expected accepted publish, got %+v", result)
	}
	if !result.Publish.Composable {
		t.Error("accepted breaking changes leave the version composable")
	}
	if len(result.Publish.BreakingChanges) != 0 {
		t.Errorf("accepted breaking changes are not recorded against the version, got %+v", result.Publish.BreakingChanges)
	}
}

func TestPublish_FederationInvalidServiceURLRejected(t *testing.T) {
	federation := &countingOrchestrator{inner: composition.NewStitchingOrchestrator()}
	r := newTestRegistryWith(t, nil, nil, Orchestrators{
		Single:     composition.NewSingleOrchestrator(),
		Federation: federation,
		Stitching:  composition.NewStitchingOrchestrator(),
	})

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:   schema.Input{ID: "s1", SDL: previousSDL, ServiceName: "users", ServiceURL: "users-internal"},
		Target:  Target{ID: "t1"},
		Project: Project{ID: "p1", Type: ProjectFederation, LegacyModel: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishReject {
		t.Fatalf("expected reject, got %+v", result)
	}
	if len(result.Rejections) != 1 || result.Rejections[0].Code != ReasonMissingServiceURL {
		t.Fatalf("expected MISSING_SERVICE_URL, got %+v", result.Rejections)
	}
	if result.Rejections[0].Message != "Invalid service URL provided" {
		t.Errorf("expected the invalid-url message, got %q", result.Rejections[0].Message)
	}
	if atomic.LoadInt64(&federation.calls) != 0 {
		t.Errorf("composition must not run for a rejected preflight, got %d calls", federation.calls)
	}
}

func TestPublish_ModernSingleResubmitOfComposableVersionIgnored(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	broken := &versions.SchemaVersion{
		ID:           "v2",
		Schemas:      []schema.Input{{ID: "s2", SDL: "type Query { user: MissingType }"}},
		IsComposable: false,
	}

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:             schema.Input{ID: "s3", SDL: previousSDL},
		Target:            Target{ID: "t1"},
		Organization:      Organization{ID: "o1", CompareToPreviousComposableVersion: true},
		Project:           Project{ID: "p1", Type: ProjectSingle},
		Version:           broken,
		ComposableVersion: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishIgnore {
		t.Fatalf("resubmitting the compared version's schema must be ignored, got %+v", result)
	}
	if result.Ignored.Code != ReasonNoChanges {
		t.Errorf("expected NO_CHANGES, got %s", result.Ignored.Code)
	}
}

func TestCheck_ModernSingleResubmitOfComposableVersionSkips(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	broken := &versions.SchemaVersion{
		ID:           "v2",
		Schemas:      []schema.Input{{ID: "s2", SDL: "type Query { user: MissingType }"}},
		IsComposable: false,
	}

	result, err := r.Check(context.Background(), CheckRequest{
		Input:             schema.Input{ID: "s3", SDL: previousSDL},
		Organization:      Organization{ID: "o1", CompareToPreviousComposableVersion: true},
		Project:           Project{ID: "p1", Type: ProjectSingle},
		Version:           broken,
		ComposableVersion: singleVersion(t, previousSDL),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != CheckSkip {
		t.Fatalf("resubmitting the compared version's schema must skip, got %+v", result)
	}
}

func TestPublish_CompositeCoordinatesTrackComposableVersion(t *testing.T) {
	r := newTestRegistry(t, nil, nil)

	addedCSDL := "type Query {\n  a: String\n  b: Int\n  c: Boolean\n}\n"

	latest := &versions.SchemaVersion{
		ID: "v2",
		Schemas: []schema.Input{
			{ServiceName: "users", ServiceURL: "http://users:4000", SDL: previousSDL},
		},
		IsComposable:    false,
		HasPersistedSDL: true,
		CompositeSDL:    composedSDL(t, previousSDL),
	}
	composable := &versions.SchemaVersion{
		ID: "v1",
		Schemas: []schema.Input{
			{ServiceName: "users", ServiceURL: "http://users:4000", SDL: removedBSDL},
		},
		IsComposable:    true,
		HasPersistedSDL: true,
		CompositeSDL:    composedSDL(t, removedBSDL),
	}

	result, err := r.Publish(context.Background(), PublishRequest{
		Input:             schema.Input{ID: "s1", SDL: addedCSDL, ServiceName: "users", ServiceURL: "http://users:4000"},
		Target:            Target{ID: "t1"},
		Project:           Project{ID: "p1", Type: ProjectStitching, LegacyModel: true},
		Version:           latest,
		ComposableVersion: composable,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conclusion != PublishAccept {
		t.Fatalf("expected publish, got %+v", result)
	}

	// The diff ran against the latest version, but coordinate bookkeeping
	// must report everything new since the last composable state.
	added := map[string]bool{}
	for _, c := range result.Publish.CoordinatesDiff.Added {
		added[c] = true
	}
	if !added["Query.b"] || !added["Query.c"] {
		t.Errorf("expected coordinates added since the composable version, got %+v", result.Publish.CoordinatesDiff)
	}
}
