// Package memorycontext implements the World Memory Context read-only
// projection (spec.md §4.G): a bounded, line-protocol-addressable view
// over the Execution Store's chronicle/history query surface plus
// town/faction summaries, used by callers that want recent narrative
// context without replaying the whole world document.
package memorycontext

import (
	"fmt"

	"github.com/anthropics/worldengine/internal/execution"
	"github.com/anthropics/worldengine/internal/worldstate"
)

const (
	requestSchemaVersion  = "world-memory-request.v1"
	contextSchemaVersion  = "world-memory-context.v1"
	contextSchemaVersionN = 1
)

// Request is the world-memory-request.v1 payload.
type Request struct {
	Type  string `json:"type"`
	Scope Scope  `json:"scope"`
}

// Scope names the query's town/faction filters and the caller's
// requested bounds, each clamped to the module's hard ceiling.
type Scope struct {
	TownID         string `json:"townId,omitempty"`
	FactionID      string `json:"factionId,omitempty"`
	ChronicleLimit int    `json:"chronicleLimit,omitempty"`
	HistoryLimit   int    `json:"historyLimit,omitempty"`
	Search         string `json:"search,omitempty"`
}

// Context is the world-memory-context.v1 response.
type Context struct {
	Type            string                          `json:"type"`
	SchemaVersion   int                             `json:"schemaVersion"`
	Scope           Scope                           `json:"scope"`
	RecentChronicle []*worldstate.ChronicleRecord   `json:"recentChronicle"`
	RecentHistory   []*worldstate.ExecutionReceipt  `json:"recentHistory"`
	TownSummary     *execution.TownHistorySummary   `json:"townSummary,omitempty"`
	FactionSummary  *execution.FactionHistorySummary `json:"factionSummary,omitempty"`
}

// Resolver answers a Request against an Execution Store.
type Resolver struct {
	store execution.Store
}

// NewResolver builds a Resolver backed by store.
func NewResolver(store execution.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve clamps the request's scope to the module's ceilings and
// assembles the canonical response (spec.md §4.G).
func (r *Resolver) Resolve(req Request) (*Context, error) {
	scope := req.Scope
	if scope.ChronicleLimit <= 0 || scope.ChronicleLimit > worldstate.MaxContextChronicleRecords {
		scope.ChronicleLimit = worldstate.MaxContextChronicleRecords
	}
	if scope.HistoryLimit <= 0 || scope.HistoryLimit > worldstate.MaxContextHistoryRecords {
		scope.HistoryLimit = worldstate.MaxContextHistoryRecords
	}

	chronicle, err := r.store.ListChronicleRecords(scope.TownID, scope.FactionID, scope.Search, scope.ChronicleLimit)
	if err != nil {
		return nil, fmt.Errorf("list chronicle records: %w", err)
	}
	history, err := r.store.ListHistoryRecords(scope.TownID, scope.FactionID, scope.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}

	ctx := &Context{
		Type:            contextSchemaVersion,
		SchemaVersion:   contextSchemaVersionN,
		Scope:           scope,
		RecentChronicle: chronicle,
		RecentHistory:   history,
	}

	if scope.TownID != "" {
		summary, err := r.store.GetTownHistorySummary(scope.TownID)
		if err != nil {
			return nil, fmt.Errorf("town history summary: %w", err)
		}
		ctx.TownSummary = &summary
	}
	if scope.FactionID != "" {
		summary, err := r.store.GetFactionHistorySummary(scope.FactionID)
		if err != nil {
			return nil, fmt.Errorf("faction history summary: %w", err)
		}
		ctx.FactionSummary = &summary
	}

	return ctx, nil
}

// IsRequest reports whether the parsed payload names the world memory
// request schema, mirroring execution.ParseHandoffLine's role in the
// line protocol's request-type dispatch (spec.md §6).
func IsRequest(schemaType string) bool {
	return schemaType == requestSchemaVersion
}
