package authorization

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/pkg/cache/memorycache"
)

type mockPrincipalResolver struct {
	current    *entities.Principal
	principals map[string]*entities.Principal
	err        error
}

func (m *mockPrincipalResolver) Current(ctx context.Context) (*entities.Principal, error) {
	return m.current, m.err
}

func (m *mockPrincipalResolver) Resolve(ctx context.Context, id string) (*entities.Principal, error) {
	if m.err != nil {
		return nil, m.err
	}
	if principal, ok := m.principals[id]; ok {
		return principal, nil
	}
	return &entities.Principal{ID: id}, nil
}

type mockOracle struct {
	granted  map[string]bool // permission name -> granted
	err      error
	calls    int
	lastName string
}

func (m *mockOracle) IsGrantedGlobally(ctx context.Context, principalID string, permissionName string) (bool, error) {
	m.calls++
	m.lastName = permissionName
	if m.err != nil {
		return false, m.err
	}
	return m.granted[permissionName], nil
}

// recordingAudit captures decision traces for assertions
type recordingAudit struct {
	mu     sync.Mutex
	traces []*Trace
}

func (r *recordingAudit) Decision(trace *Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, trace)
}

func (r *recordingAudit) last() *Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.traces) == 0 {
		return nil
	}
	return r.traces[len(r.traces)-1]
}

type engineFixture struct {
	engine     *Engine
	catalogues *mockCatalogueRepository
	templates  *mockTemplateRepository
	oracle     *mockOracle
	audit      *recordingAudit
}

func newEngineFixture(catalogues map[string]*entities.Catalogue, templates []*entities.Template) *engineFixture {
	catalogueRepo := &mockCatalogueRepository{catalogues: catalogues}
	templateRepo := &mockTemplateRepository{templates: templates}
	oracle := &mockOracle{}
	resolver := NewRuleSetResolver(NewConditionEvaluator(nil))

	principals := &mockPrincipalResolver{
		principals: map[string]*entities.Principal{
			"user-1": {ID: "user-1", Roles: []string{"editor"}},
		},
	}

	engine := NewEngine(catalogueRepo, templateRepo, principals, oracle, resolver)
	audit := &recordingAudit{}
	engine.SetAuditLogger(audit)

	return &engineFixture{
		engine:     engine,
		catalogues: catalogueRepo,
		templates:  templateRepo,
		oracle:     oracle,
		audit:      audit,
	}
}

func TestEngine_LocalAllow(t *testing.T) {
	catalogue := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected local role rule to allow")
	}
	if trace := f.audit.last(); trace.Layer != LayerLocal || trace.Verdict != VerdictAllow {
		t.Errorf("expected local/allow trace, got %s/%s", trace.Layer, trace.Verdict)
	}
}

func TestEngine_LocalDenyWins(t *testing.T) {
	catalogue := &entities.Catalogue{
		ID: "cat-1",
		Rules: []*entities.PermissionRule{
			allowRule(entities.SubjectUser, "user-1", entities.ActionView),
			denyRule(entities.SubjectRole, "editor", entities.ActionView),
		},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected deny to win over allow")
	}
	if trace := f.audit.last(); trace.Layer != LayerLocal || trace.Verdict != VerdictDeny {
		t.Errorf("expected local/deny trace, got %s/%s", trace.Layer, trace.Verdict)
	}
}

func TestEngine_DefaultDeny(t *testing.T) {
	catalogue := &entities.Catalogue{ID: "cat-1"}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected default deny with no rules anywhere")
	}
	if trace := f.audit.last(); trace.Layer != LayerDefault {
		t.Errorf("expected default layer, got %s", trace.Layer)
	}
}

func TestEngine_OracleShortCircuit(t *testing.T) {
	// The catalogue denies, but the coarse oracle grants globally
	catalogue := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{denyRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)
	f.oracle.granted = map[string]bool{"documents.view": true}

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected oracle grant to short-circuit the local deny")
	}
	if trace := f.audit.last(); trace.Layer != LayerOracle {
		t.Errorf("expected oracle layer, got %s", trace.Layer)
	}
	if f.oracle.lastName != "documents.view" {
		t.Errorf("expected oracle consulted with documents.view, got %q", f.oracle.lastName)
	}
}

func TestEngine_OracleFailureFallsThrough(t *testing.T) {
	catalogue := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)
	f.oracle.err = errors.New("iam unavailable")

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected oracle failure to fall through to the local allow")
	}
	if trace := f.audit.last(); trace.Layer != LayerLocal {
		t.Errorf("expected local layer, got %s", trace.Layer)
	}
}

func TestEngine_NilCatalogue(t *testing.T) {
	f := newEngineFixture(nil, nil)

	if _, err := f.engine.CheckPermission(context.Background(), nil, entities.ActionView, "user-1"); err == nil {
		t.Error("expected error for nil catalogue")
	}
}

func TestEngine_InvalidAction(t *testing.T) {
	catalogue := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionAll)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.Action("frobnicate"), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected unknown action to be denied")
	}
}

func TestEngine_UnauthenticatedDenied(t *testing.T) {
	catalogue := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)

	// Empty principal id resolves via Current, which has no principal here
	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected unauthenticated request to be denied")
	}
	if f.oracle.calls != 0 {
		t.Error("oracle must not be consulted without a principal")
	}
}

func TestEngine_CurrentPrincipal(t *testing.T) {
	catalogue := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)
	f.engine.principals = &mockPrincipalResolver{
		current: &entities.Principal{ID: "user-1", Roles: []string{"editor"}},
	}

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected the current principal's role rule to allow")
	}
}

func TestEngine_InheritanceThroughWalker(t *testing.T) {
	parent := &entities.Catalogue{
		ID:    "parent",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionEdit)},
	}
	child := &entities.Catalogue{ID: "child", ParentID: strPtr("parent")}
	f := newEngineFixture(map[string]*entities.Catalogue{"parent": parent, "child": child}, nil)

	allowed, err := f.engine.CheckPermission(context.Background(), child, entities.ActionEdit, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected parent rule to allow through inheritance")
	}
	if trace := f.audit.last(); trace.Layer != LayerResourceChain {
		t.Errorf("expected resource_chain layer, got %s", trace.Layer)
	}
}

func TestEngine_LocalInheritFallsThrough(t *testing.T) {
	parent := &entities.Catalogue{
		ID:    "parent",
		Rules: []*entities.PermissionRule{denyRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	child := &entities.Catalogue{
		ID:       "child",
		ParentID: strPtr("parent"),
		Rules:    []*entities.PermissionRule{inheritRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"parent": parent, "child": child}, nil)

	allowed, err := f.engine.CheckPermission(context.Background(), child, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected explicit inherit to defer to the denying parent")
	}
	if trace := f.audit.last(); trace.Layer != LayerResourceChain || trace.Verdict != VerdictInherit {
		t.Errorf("expected resource_chain/inherit trace, got %s/%s", trace.Layer, trace.Verdict)
	}
}

func TestEngine_DecisionCaching(t *testing.T) {
	catalogue := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{denyRule(entities.SubjectRole, "editor", entities.ActionView)},
	}

	catalogueRepo := &mockCatalogueRepository{catalogues: map[string]*entities.Catalogue{"cat-1": catalogue}}
	templateRepo := &mockTemplateRepository{}
	oracle := &mockOracle{}
	resolver := NewRuleSetResolver(NewConditionEvaluator(nil))
	principals := &mockPrincipalResolver{
		principals: map[string]*entities.Principal{
			"user-1": {ID: "user-1", Roles: []string{"editor"}},
		},
	}

	c, err := memorycache.New(&memorycache.Config{
		MaxSizeBytes:  1024 * 1024,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer c.Close()

	engine := NewEngineWithCache(catalogueRepo, templateRepo, principals, oracle, resolver, c, time.Minute)
	audit := &recordingAudit{}
	engine.SetAuditLogger(audit)

	// First check computes and caches the denial
	allowed, err := engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected deny")
	}

	// Second check replays the cached denial
	allowed, err = engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected cached deny")
	}
	if trace := audit.last(); trace.Layer != LayerCache {
		t.Errorf("expected cache layer on second check, got %s", trace.Layer)
	}
	if oracle.calls != 1 {
		t.Errorf("expected oracle consulted once, got %d", oracle.calls)
	}
}

func TestEngine_ActionNamerOverride(t *testing.T) {
	catalogue := &entities.Catalogue{ID: "cat-1"}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": catalogue}, nil)
	f.engine.SetActionNamer(NewActionNamer(map[string]string{"view": "records.read"}))
	f.oracle.granted = map[string]bool{"records.read": true}

	allowed, err := f.engine.CheckPermission(context.Background(), catalogue, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected grant under the overridden permission name")
	}
}

func TestEngine_Batch(t *testing.T) {
	allowedCat := &entities.Catalogue{
		ID:    "cat-allow",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	deniedCat := &entities.Catalogue{
		ID:    "cat-deny",
		Rules: []*entities.PermissionRule{denyRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	emptyCat := &entities.Catalogue{ID: "cat-empty"}

	f := newEngineFixture(map[string]*entities.Catalogue{
		"cat-allow": allowedCat, "cat-deny": deniedCat, "cat-empty": emptyCat,
	}, nil)

	results, err := f.engine.CheckPermissionBatch(
		context.Background(),
		[]*entities.Catalogue{allowedCat, deniedCat, emptyCat, nil},
		entities.ActionView,
		"user-1",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results["cat-allow"] {
		t.Error("expected cat-allow to be allowed")
	}
	if results["cat-deny"] {
		t.Error("expected cat-deny to be denied")
	}
	if results["cat-empty"] {
		t.Error("expected cat-empty to default deny")
	}
	if f.oracle.calls != 1 {
		t.Errorf("expected oracle consulted once for the whole batch, got %d", f.oracle.calls)
	}
}

func TestEngine_BatchOracleGrantCoversAll(t *testing.T) {
	deniedCat := &entities.Catalogue{
		ID:    "cat-deny",
		Rules: []*entities.PermissionRule{denyRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	otherCat := &entities.Catalogue{ID: "cat-other"}

	f := newEngineFixture(map[string]*entities.Catalogue{
		"cat-deny": deniedCat, "cat-other": otherCat,
	}, nil)
	f.oracle.granted = map[string]bool{"documents.view": true}

	results, err := f.engine.CheckPermissionBatch(
		context.Background(),
		[]*entities.Catalogue{deniedCat, otherCat},
		entities.ActionView,
		"user-1",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for id, allowed := range results {
		if !allowed {
			t.Errorf("expected oracle grant to cover %s", id)
		}
	}
	for _, trace := range f.audit.traces {
		if trace.Layer != LayerOracle {
			t.Errorf("expected every trace at the oracle layer, got %s", trace.Layer)
		}
	}
}

func TestEngine_BatchUnauthenticated(t *testing.T) {
	cat := &entities.Catalogue{
		ID:    "cat-1",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
	}
	f := newEngineFixture(map[string]*entities.Catalogue{"cat-1": cat}, nil)

	results, err := f.engine.CheckPermissionBatch(context.Background(), []*entities.Catalogue{cat}, entities.ActionView, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results["cat-1"] {
		t.Error("expected unauthenticated batch to deny everything")
	}
}

func TestEngine_BatchParallelismBound(t *testing.T) {
	catalogues := make([]*entities.Catalogue, 0, 50)
	byID := make(map[string]*entities.Catalogue, 50)
	for i := 0; i < 50; i++ {
		id := "cat-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		c := &entities.Catalogue{
			ID:    id,
			Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
		}
		catalogues = append(catalogues, c)
		byID[id] = c
	}

	f := newEngineFixture(byID, nil)
	f.engine.SetBatchParallelism(4)

	results, err := f.engine.CheckPermissionBatch(context.Background(), catalogues, entities.ActionView, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 50 {
		t.Fatalf("expected 50 results, got %d", len(results))
	}
	for id, allowed := range results {
		if !allowed {
			t.Errorf("expected %s to be allowed", id)
		}
	}
}

func TestEngine_BatchFailureIsolation(t *testing.T) {
	// One catalogue's parent lookup fails; the others still resolve
	brokenChild := &entities.Catalogue{ID: "broken", ParentID: strPtr("missing-store")}
	healthy := &entities.Catalogue{
		ID:    "healthy",
		Rules: []*entities.PermissionRule{allowRule(entities.SubjectRole, "editor", entities.ActionView)},
	}

	catalogueRepo := &mockCatalogueRepository{
		catalogues: map[string]*entities.Catalogue{"broken": brokenChild, "healthy": healthy},
		errs:       map[string]error{"missing-store": errors.New("connection refused")},
	}
	templateRepo := &mockTemplateRepository{}
	resolver := NewRuleSetResolver(NewConditionEvaluator(nil))
	principals := &mockPrincipalResolver{
		principals: map[string]*entities.Principal{
			"user-1": {ID: "user-1", Roles: []string{"editor"}},
		},
	}
	engine := NewEngine(catalogueRepo, templateRepo, principals, &mockOracle{}, resolver)

	results, err := engine.CheckPermissionBatch(
		context.Background(),
		[]*entities.Catalogue{brokenChild, healthy},
		entities.ActionView,
		"user-1",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results["broken"] {
		t.Error("expected the broken catalogue to resolve to deny")
	}
	if !results["healthy"] {
		t.Error("expected the healthy catalogue to still be allowed")
	}
}
