package authorization

import (
	"log"
	"time"

	"github.com/mizutama/torii/internal/entities"
)

// DecisionLayer identifies which evaluation layer produced a decision
type DecisionLayer string

const (
	// LayerOracle - the external coarse-grained check granted
	LayerOracle DecisionLayer = "oracle"
	// LayerLocal - the catalogue's own rules decided
	LayerLocal DecisionLayer = "local"
	// LayerResourceChain - an ancestor catalogue's rules decided
	LayerResourceChain DecisionLayer = "resource_chain"
	// LayerTemplateChain - the template lineage decided
	LayerTemplateChain DecisionLayer = "template_chain"
	// LayerDefault - nothing matched anywhere; default deny
	LayerDefault DecisionLayer = "default"
	// LayerCache - a previously computed decision was replayed
	LayerCache DecisionLayer = "cache"
)

// Trace records one permission decision for the audit channel. Traces are an
// observed side effect: callers only ever see the boolean, the trace carries
// the internal reason.
type Trace struct {
	PrincipalID string
	CatalogueID string
	Action      entities.Action
	Allowed     bool
	Layer       DecisionLayer
	Verdict     Verdict // local verdict that led here, when applicable
	At          time.Time
}

// AuditLogger receives one trace per decision
type AuditLogger interface {
	Decision(trace *Trace)
}

// LogAuditLogger writes traces to the standard logger
type LogAuditLogger struct{}

func (LogAuditLogger) Decision(trace *Trace) {
	log.Printf("decision principal=%s catalogue=%s action=%s allowed=%t layer=%s",
		trace.PrincipalID, trace.CatalogueID, trace.Action, trace.Allowed, trace.Layer)
}

// NopAuditLogger discards traces
type NopAuditLogger struct{}

func (NopAuditLogger) Decision(trace *Trace) {}
