package authorization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/internal/repositories"
	"github.com/mizutama/torii/pkg/cache"
)

const (
	// DefaultBatchParallelism bounds concurrent evaluations in a batch check
	DefaultBatchParallelism = 8
)

// EngineInterface defines the interface for permission decisions
type EngineInterface interface {
	CheckPermission(ctx context.Context, catalogue *entities.Catalogue, action entities.Action, principalID string) (bool, error)
	CheckPermissionBatch(ctx context.Context, catalogues []*entities.Catalogue, action entities.Action, principalID string) (map[string]bool, error)
}

// Engine is the permission decision facade. Per check it consults, in order:
// the external coarse-grained oracle (grant short-circuits everything), the
// catalogue's own rules, the resource-parent chain, the template chain, and
// finally the default deny.
//
// The engine is stateless between calls: every check reads whatever it needs
// and discards it, and the only externally observable outcome is a boolean.
type Engine struct {
	principals  PrincipalResolver
	oracle      CoarseOracle
	namer       *ActionNamer
	resolver    *RuleSetResolver
	walker      *Walker
	audit       AuditLogger
	cache       cache.Cache // optional cache for decisions
	cacheTTL    time.Duration
	parallelism int
	now         func() time.Time
}

// NewEngine creates a new Engine without caching
func NewEngine(
	catalogues repositories.CatalogueRepository,
	templates repositories.TemplateRepository,
	principals PrincipalResolver,
	oracle CoarseOracle,
	resolver *RuleSetResolver,
) *Engine {
	if oracle == nil {
		oracle = DenyAllOracle{}
	}
	return &Engine{
		principals:  principals,
		oracle:      oracle,
		namer:       NewActionNamer(nil),
		resolver:    resolver,
		walker:      NewWalker(catalogues, templates, resolver),
		audit:       NopAuditLogger{},
		parallelism: DefaultBatchParallelism,
		now:         time.Now,
	}
}

// NewEngineWithCache creates a new Engine with decision caching enabled
func NewEngineWithCache(
	catalogues repositories.CatalogueRepository,
	templates repositories.TemplateRepository,
	principals PrincipalResolver,
	oracle CoarseOracle,
	resolver *RuleSetResolver,
	c cache.Cache,
	cacheTTL time.Duration,
) *Engine {
	e := NewEngine(catalogues, templates, principals, oracle, resolver)
	e.cache = c
	e.cacheTTL = cacheTTL
	return e
}

// Walker returns the engine's inheritance walker, so callers can attach
// cycle and store-error hooks or adjust the depth limit.
func (e *Engine) Walker() *Walker {
	return e.walker
}

// SetAuditLogger sets the audit channel for decision traces
func (e *Engine) SetAuditLogger(audit AuditLogger) {
	if audit != nil {
		e.audit = audit
	}
}

// SetActionNamer overrides the action -> coarse permission name table
func (e *Engine) SetActionNamer(namer *ActionNamer) {
	if namer != nil {
		e.namer = namer
	}
}

// SetBatchParallelism bounds concurrent evaluations in batch checks
func (e *Engine) SetBatchParallelism(n int) {
	if n > 0 {
		e.parallelism = n
	}
}

// CheckPermission decides whether the principal may perform the action on
// the catalogue. The returned error signals a caller bug (nil catalogue),
// never a policy outcome: all data-driven failures resolve to false.
func (e *Engine) CheckPermission(ctx context.Context, catalogue *entities.Catalogue, action entities.Action, principalID string) (bool, error) {
	if catalogue == nil {
		return false, fmt.Errorf("catalogue is required")
	}

	now := e.now()

	principal := e.resolvePrincipal(ctx, principalID)
	if principal == nil || principal.ID == "" {
		e.trace(catalogue, action, "", false, LayerDefault, VerdictNoMatch, now)
		return false, nil
	}

	if !action.IsValid() {
		e.trace(catalogue, action, principal.ID, false, LayerDefault, VerdictNoMatch, now)
		return false, nil
	}

	cacheKey := ""
	if e.cache != nil {
		cacheKey = e.generateCacheKey(catalogue.ID, action, principal)
		if allowed, found := e.cache.Get(ctx, cacheKey); found {
			e.trace(catalogue, action, principal.ID, allowed, LayerCache, VerdictNoMatch, now)
			return allowed, nil
		}
	}

	// Coarse-grained grant short-circuits all local evaluation
	if e.oracleGrants(ctx, principal.ID, action) {
		e.storeDecision(ctx, cacheKey, true)
		e.trace(catalogue, action, principal.ID, true, LayerOracle, VerdictNoMatch, now)
		return true, nil
	}

	allowed, layer, verdict := e.evaluate(ctx, catalogue, action, principal, now)
	e.storeDecision(ctx, cacheKey, allowed)
	e.trace(catalogue, action, principal.ID, allowed, layer, verdict, now)
	return allowed, nil
}

// CheckPermissionBatch decides the action for every catalogue in the batch.
// The oracle is consulted once: a global grant applies to the whole batch
// with no per-catalogue rule evaluation. Individual failures resolve that
// catalogue to false without aborting the others.
func (e *Engine) CheckPermissionBatch(ctx context.Context, catalogues []*entities.Catalogue, action entities.Action, principalID string) (map[string]bool, error) {
	results := make(map[string]bool, len(catalogues))

	now := e.now()

	principal := e.resolvePrincipal(ctx, principalID)
	unauthenticated := principal == nil || principal.ID == ""

	if unauthenticated || !action.IsValid() {
		for _, catalogue := range catalogues {
			if catalogue != nil {
				results[catalogue.ID] = false
			}
		}
		return results, nil
	}

	if e.oracleGrants(ctx, principal.ID, action) {
		for _, catalogue := range catalogues {
			if catalogue != nil {
				results[catalogue.ID] = true
				e.trace(catalogue, action, principal.ID, true, LayerOracle, VerdictNoMatch, now)
			}
		}
		return results, nil
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.parallelism)

	for _, catalogue := range catalogues {
		if catalogue == nil {
			continue
		}
		catalogue := catalogue
		group.Go(func() error {
			allowed, layer, verdict := e.evaluate(groupCtx, catalogue, action, principal, now)
			e.trace(catalogue, action, principal.ID, allowed, layer, verdict, now)

			mu.Lock()
			results[catalogue.ID] = allowed
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors: a failed evaluation is a false entry
	_ = group.Wait()

	return results, nil
}

// evaluate runs local rules and, when inconclusive, the inheritance walker
func (e *Engine) evaluate(
	ctx context.Context,
	catalogue *entities.Catalogue,
	action entities.Action,
	principal *entities.Principal,
	now time.Time,
) (bool, DecisionLayer, Verdict) {
	evalCtx := entities.NewEvaluationContext(principal, catalogue)

	verdict := e.resolver.ResolveLocal(catalogue.Rules, action, principal, evalCtx, now)
	switch verdict {
	case VerdictAllow:
		return true, LayerLocal, verdict
	case VerdictDeny:
		return false, LayerLocal, verdict
	}

	allowed, layer := e.walker.ResolveInherited(ctx, catalogue, action, principal, evalCtx, now)
	return allowed, layer, verdict
}

// resolvePrincipal resolves the explicit principal id, or the current
// principal when none is given. Returns nil when unresolved.
func (e *Engine) resolvePrincipal(ctx context.Context, principalID string) *entities.Principal {
	if e.principals == nil {
		return nil
	}
	var (
		principal *entities.Principal
		err       error
	)
	if principalID == "" {
		principal, err = e.principals.Current(ctx)
	} else {
		principal, err = e.principals.Resolve(ctx, principalID)
	}
	if err != nil {
		return nil
	}
	return principal
}

// oracleGrants consults the coarse oracle; failures count as "not granted"
func (e *Engine) oracleGrants(ctx context.Context, principalID string, action entities.Action) bool {
	granted, err := e.oracle.IsGrantedGlobally(ctx, principalID, e.namer.Name(action))
	if err != nil {
		return false
	}
	return granted
}

// generateCacheKey generates a cache key for one decision
func (e *Engine) generateCacheKey(catalogueID string, action entities.Action, principal *entities.Principal) string {
	roles := make([]string, len(principal.Roles))
	copy(roles, principal.Roles)
	sort.Strings(roles)

	keyData := fmt.Sprintf("%s:%s:%s:%s",
		catalogueID,
		action,
		principal.ID,
		strings.Join(roles, ","),
	)
	// Hash the key to keep it short
	hash := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(hash[:])
}

func (e *Engine) storeDecision(ctx context.Context, cacheKey string, allowed bool) {
	if e.cache == nil || cacheKey == "" {
		return
	}
	_ = e.cache.Set(ctx, cacheKey, allowed, e.cacheTTL)
}

func (e *Engine) trace(catalogue *entities.Catalogue, action entities.Action, principalID string, allowed bool, layer DecisionLayer, verdict Verdict, at time.Time) {
	e.audit.Decision(&Trace{
		PrincipalID: principalID,
		CatalogueID: catalogue.ID,
		Action:      action,
		Allowed:     allowed,
		Layer:       layer,
		Verdict:     verdict,
		At:          at,
	})
}
