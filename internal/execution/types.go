// Package execution implements the Execution Store (spec.md §4.E) and
// Execution Adapter (spec.md §4.F): durable receipts/pending markers,
// projected chronicle/history query surfaces, and the handoff state
// machine that mediates externally proposed mutations against the World
// Store via the God Command Service.
package execution

import "github.com/anthropics/worldengine/internal/worldstate"

// Handoff is the caller-submitted execution-handoff.v1 payload (spec.md
// §4.F).
type Handoff struct {
	SchemaVersion         string                 `json:"schemaVersion"`
	HandoffID             string                 `json:"handoffId"`
	ProposalID            string                 `json:"proposalId"`
	IdempotencyKey        string                 `json:"idempotencyKey"`
	SnapshotHash          string                 `json:"snapshotHash"`
	DecisionEpoch         int                    `json:"decisionEpoch"`
	Advisory              bool                   `json:"advisory,omitempty"`
	Proposal              map[string]interface{} `json:"proposal,omitempty"`
	ProposalType          string                 `json:"proposalType"`
	ActorID               string                 `json:"actorId,omitempty"`
	TownID                string                 `json:"townId,omitempty"`
	Command               string                 `json:"command"`
	ExecutionRequirements ExecutionRequirements  `json:"executionRequirements"`
}

// ExecutionRequirements names the freshness/precondition gate a handoff
// must pass (spec.md §4.F).
type ExecutionRequirements struct {
	ExpectedSnapshotHash  string         `json:"expectedSnapshotHash"`
	ExpectedDecisionEpoch int            `json:"expectedDecisionEpoch"`
	Preconditions         []Precondition `json:"preconditions"`
}

// Precondition is one enumerated pure predicate over the projected world
// (spec.md §4.F): {project_exists{targetId}, mission_absent,
// side_quest_exists{targetId}, salvage_focus_supported{expected}, …}.
type Precondition struct {
	Kind     string `json:"kind"`
	TargetID string `json:"targetId,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// Evaluation records the adapter's classification trail for a canonical
// result (spec.md §4.F).
type Evaluation struct {
	Preconditions []PreconditionResult `json:"preconditions"`
	StaleCheck    StaleCheck           `json:"staleCheck"`
	DuplicateCheck DuplicateCheck      `json:"duplicateCheck"`
}

// PreconditionResult is one evaluated precondition outcome.
type PreconditionResult struct {
	Kind   string `json:"kind"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// StaleCheck records the freshness comparison.
type StaleCheck struct {
	Stale              bool   `json:"stale"`
	ActualSnapshotHash string `json:"actualSnapshotHash"`
	ActualDecisionEpoch int   `json:"actualDecisionEpoch"`
}

// DuplicateCheck records the duplicate-detection outcome.
type DuplicateCheck struct {
	Duplicate   bool   `json:"duplicate"`
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// WorldStateView is the post-execution snapshot summary embedded in a
// canonical result.
type WorldStateView struct {
	PostExecutionSnapshotHash  string `json:"postExecutionSnapshotHash"`
	PostExecutionDecisionEpoch int    `json:"postExecutionDecisionEpoch"`
}

// Result is the canonical execution-result.v1 (spec.md §4.F).
type Result struct {
	Type              string          `json:"type"`
	SchemaVersion     int             `json:"schemaVersion"`
	ExecutionID       string          `json:"executionId"`
	ResultID          string          `json:"resultId"`
	HandoffID         string          `json:"handoffId"`
	ProposalID        string          `json:"proposalId"`
	IdempotencyKey    string          `json:"idempotencyKey"`
	SnapshotHash      string          `json:"snapshotHash"`
	DecisionEpoch     int             `json:"decisionEpoch"`
	ActorID           string          `json:"actorId,omitempty"`
	TownID            string          `json:"townId,omitempty"`
	ProposalType      string          `json:"proposalType"`
	Command           string          `json:"command"`
	AuthorityCommands []string        `json:"authorityCommands"`
	Status            string          `json:"status"`
	Accepted          bool            `json:"accepted"`
	Executed          bool            `json:"executed"`
	ReasonCode        string          `json:"reasonCode"`
	Evaluation        Evaluation      `json:"evaluation"`
	WorldState        WorldStateView  `json:"worldState"`
}

// Status/reason code constants (spec.md §4.F, §7).
const (
	StatusExecuted  = "executed"
	StatusRejected  = "rejected"
	StatusStale     = "stale"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"

	ReasonExecuted                    = "EXECUTED"
	ReasonStaleDecisionEpoch          = "STALE_DECISION_EPOCH"
	ReasonStaleSnapshot               = "STALE_SNAPSHOT"
	ReasonDuplicateHandoff            = "DUPLICATE_HANDOFF"
	ReasonInterruptedExecutionRecover = "INTERRUPTED_EXECUTION_RECOVERY"
	ReasonExecutionFailed             = "EXECUTION_FAILED"
	ReasonAdvisoryRejected            = "ADVISORY_NOT_SUPPORTED"
	ReasonPreconditionFailed          = "PRECONDITION_FAILED"
)

// Store is the Execution Store contract shared by both backends (spec.md
// §4.E).
type Store interface {
	StagePendingExecution(pending *worldstate.PendingExecution) error
	RecordResult(result *worldstate.ExecutionReceipt) error
	FindReceipt(handoffID, idempotencyKey string) (*worldstate.ExecutionReceipt, error)
	FindPendingExecution(handoffID, idempotencyKey string) (*worldstate.PendingExecution, error)
	ListPendingExecutions() ([]*worldstate.PendingExecution, error)
	ListChronicleRecords(townID, factionID, search string, limit int) ([]*worldstate.ChronicleRecord, error)
	ListHistoryRecords(townID, factionID string, limit int) ([]*worldstate.ExecutionReceipt, error)
	GetTownHistorySummary(townID string) (TownHistorySummary, error)
	GetFactionHistorySummary(factionID string) (FactionHistorySummary, error)
	SyncWorldMemory(doc *worldstate.Document) error
}

// TownHistorySummary and FactionHistorySummary back the World Memory
// Context's summaries field (spec.md §4.G).
type TownHistorySummary struct {
	HistoryCount      int            `json:"historyCount"`
	ChronicleCount    int            `json:"chronicleCount"`
	ExecutionCounts   ExecutionCounts `json:"executionCounts"`
	ActiveProjectCount int           `json:"activeProjectCount"`
	Hope              int            `json:"hope"`
	Dread             int            `json:"dread"`
}

// FactionHistorySummary is the faction-scoped analogue.
type FactionHistorySummary struct {
	HistoryCount    int            `json:"historyCount"`
	ChronicleCount  int            `json:"chronicleCount"`
	ExecutionCounts ExecutionCounts `json:"executionCounts"`
}

// ExecutionCounts tallies terminal statuses (spec.md §4.G).
type ExecutionCounts struct {
	Executed  int `json:"executed"`
	Rejected  int `json:"rejected"`
	Stale     int `json:"stale"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}
