package authorization

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mizutama/torii/internal/entities"
	"github.com/mizutama/torii/internal/repositories"
)

const (
	// DefaultMaxDepth is the maximum number of ancestors walked per chain
	DefaultMaxDepth = 100

	chainResource = "resource"
	chainTemplate = "template"
)

// chainVerdict is the outcome of walking one inheritance chain
type chainVerdict int

const (
	chainExhausted chainVerdict = iota // no effective Allow or Deny found
	chainAllow
	chainDeny
)

// Walker climbs the two inheritance chains of a catalogue: its structural
// ancestry (parent catalogues) and its provenance ancestry (the template it
// was instantiated from, plus that template's ancestors). The two chains are
// deliberately independent passes: a catalogue's position in the tree and
// its template lineage are unrelated graphs, and either may grant access.
//
// Every lookup failure, absence, cycle, or depth overrun simply exhausts the
// chain being walked; the walker never propagates an error.
type Walker struct {
	catalogues repositories.CatalogueRepository
	templates  repositories.TemplateRepository
	resolver   *RuleSetResolver
	maxDepth   int

	// OnCycle is invoked when a chain revisits an id (optional)
	OnCycle func(chain string, id string)
	// OnStoreError is invoked on a transient store failure, as opposed to
	// ordinary absence (optional)
	OnStoreError func(chain string, err error)
}

// NewWalker creates a new Walker
func NewWalker(
	catalogues repositories.CatalogueRepository,
	templates repositories.TemplateRepository,
	resolver *RuleSetResolver,
) *Walker {
	return &Walker{
		catalogues: catalogues,
		templates:  templates,
		resolver:   resolver,
		maxDepth:   DefaultMaxDepth,
	}
}

// SetMaxDepth overrides the per-chain depth limit
func (w *Walker) SetMaxDepth(depth int) {
	if depth > 0 {
		w.maxDepth = depth
	}
}

// ResolveInherited resolves the request through both inheritance chains and
// returns the final decision together with the layer that produced it.
//
// The resource-parent chain is walked first. A Deny found there stops that
// chain but does not veto the template chain: the template pass still runs
// and may independently allow. This mirrors the long-standing behavior of
// the catalogue service and is flagged for product review rather than
// unified into one deny-dominant pass.
func (w *Walker) ResolveInherited(
	ctx context.Context,
	catalogue *entities.Catalogue,
	action entities.Action,
	principal *entities.Principal,
	evalCtx *entities.EvaluationContext,
	now time.Time,
) (bool, DecisionLayer) {
	resourceVerdict := w.walkResourceChain(ctx, catalogue, action, principal, evalCtx, now)
	if resourceVerdict == chainAllow {
		return true, LayerResourceChain
	}

	if catalogue.HasTemplate() {
		switch w.walkTemplateChain(ctx, catalogue, action, principal, evalCtx, now) {
		case chainAllow:
			return true, LayerTemplateChain
		case chainDeny:
			return false, LayerTemplateChain
		}
	}

	if resourceVerdict == chainDeny {
		return false, LayerResourceChain
	}
	return false, LayerDefault
}

// walkResourceChain climbs the catalogue's parent chain
func (w *Walker) walkResourceChain(
	ctx context.Context,
	catalogue *entities.Catalogue,
	action entities.Action,
	principal *entities.Principal,
	evalCtx *entities.EvaluationContext,
	now time.Time,
) chainVerdict {
	visited := map[string]struct{}{catalogue.ID: {}}
	current := catalogue

	for depth := 0; depth < w.maxDepth; depth++ {
		if current.ParentID == nil {
			return chainExhausted
		}
		parentID := *current.ParentID
		if _, seen := visited[parentID]; seen {
			w.cycle(chainResource, parentID)
			return chainExhausted
		}

		parent, err := w.catalogues.GetByID(ctx, parentID)
		if err != nil {
			w.lookupFailed(chainResource, err)
			return chainExhausted
		}
		visited[parentID] = struct{}{}

		switch w.resolver.ResolveLocal(parent.Rules, action, principal, evalCtx, now) {
		case VerdictDeny:
			return chainDeny
		case VerdictAllow:
			return chainAllow
		}
		// Inherit or NoMatch: keep climbing. Absence of rules at one level
		// is not a decision.
		current = parent
	}

	log.Printf("resource chain for catalogue %s exceeded max depth %d", catalogue.ID, w.maxDepth)
	return chainExhausted
}

// walkTemplateChain evaluates the catalogue's template and climbs the
// template's ancestor chain
func (w *Walker) walkTemplateChain(
	ctx context.Context,
	catalogue *entities.Catalogue,
	action entities.Action,
	principal *entities.Principal,
	evalCtx *entities.EvaluationContext,
	now time.Time,
) chainVerdict {
	current, err := w.fetchTemplate(ctx, *catalogue.TemplateID, catalogue.TemplateVersion)
	if err != nil {
		w.lookupFailed(chainTemplate, err)
		return chainExhausted
	}

	visited := map[string]struct{}{current.ID: {}}

	for depth := 0; depth < w.maxDepth; depth++ {
		switch w.resolver.ResolveLocal(current.Rules, action, principal, evalCtx, now) {
		case VerdictDeny:
			return chainDeny
		case VerdictAllow:
			return chainAllow
		}

		if current.ParentID == nil {
			return chainExhausted
		}
		parentID := *current.ParentID
		if _, seen := visited[parentID]; seen {
			w.cycle(chainTemplate, parentID)
			return chainExhausted
		}

		parent, err := w.templates.GetParent(ctx, current)
		if err != nil {
			w.lookupFailed(chainTemplate, err)
			return chainExhausted
		}
		visited[parent.ID] = struct{}{}
		current = parent
	}

	log.Printf("template chain for catalogue %s exceeded max depth %d", catalogue.ID, w.maxDepth)
	return chainExhausted
}

// fetchTemplate fetches a template by pinned version, or the latest when the
// version is not pinned
func (w *Walker) fetchTemplate(ctx context.Context, id string, version *int) (*entities.Template, error) {
	if version != nil {
		return w.templates.GetByVersion(ctx, id, *version)
	}
	return w.templates.GetLatest(ctx, id)
}

func (w *Walker) cycle(chain, id string) {
	log.Printf("cycle detected in %s chain at id %s", chain, id)
	if w.OnCycle != nil {
		w.OnCycle(chain, id)
	}
}

// lookupFailed terminates a chain on any lookup error. Genuine absence is
// silent; transient store failures are logged and reported so operators can
// tell the two apart.
func (w *Walker) lookupFailed(chain string, err error) {
	if errors.Is(err, repositories.ErrNotFound) {
		return
	}
	log.Printf("store error while walking %s chain: %v", chain, err)
	if w.OnStoreError != nil {
		w.OnStoreError(chain, err)
	}
}
