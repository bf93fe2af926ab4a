package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anthropics/worldengine/internal/commands"
	"github.com/anthropics/worldengine/internal/worldstate"
)

// supportedSalvageFocuses is the closed set the salvage_focus_supported
// precondition checks against; free-form focuses outside this set are
// accepted by `salvage start` but cannot back a handoff precondition.
var supportedSalvageFocuses = map[string]bool{
	"scrap": true, "relics": true, "medicine": true, "fuel": true,
}

// authorityCommandTranslations expands a proposalType into its ordered
// authority command list when the handoff's own `command` field needs
// fan-out (spec.md §4.F authority command translation).
var authorityCommandTranslations = map[string]func(h *Handoff) []string{
	"MAYOR_ACCEPT_MISSION": func(h *Handoff) []string {
		return []string{"mayor talk " + h.TownID, "mayor accept " + h.TownID}
	},
}

// Adapter mediates externally proposed mutations against the World
// Store via the God Command Service, implementing the handoff state
// machine of spec.md §4.F. Grounded on pkg/state/rollback.go's
// checkpoint/recovery shape for pending-marker crash safety and
// pkg/tools/registry.go's dispatch-then-finalize idiom for applying a
// multi-step command list.
type Adapter struct {
	worldStore *worldstate.Store
	execStore  Store
	log        *zap.Logger

	// beforeTerminalReceiptPersist is a test hook invoked after all
	// authority commands commit but before the terminal receipt is
	// written, letting tests inject a crash (spec.md §4.F crash safety).
	beforeTerminalReceiptPersist func() error
}

// NewAdapter wires a World Store and an Execution Store backend into a
// handoff executor.
func NewAdapter(worldStore *worldstate.Store, execStore Store, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{worldStore: worldStore, execStore: execStore, log: log}
}

// SetBeforeTerminalReceiptPersist installs the crash-injection test
// hook. Passing nil clears it.
func (a *Adapter) SetBeforeTerminalReceiptPersist(hook func() error) {
	a.beforeTerminalReceiptPersist = hook
}

// ExecuteHandoff runs a handoff through received → duplicate-check →
// precondition-check → stale-check → staged → applying → finalizing →
// terminal (spec.md §4.F).
func (a *Adapter) ExecuteHandoff(h *Handoff) (*Result, error) {
	if h.Advisory {
		return a.terminal(h, StatusRejected, ReasonAdvisoryRejected, Evaluation{}, nil, nil), nil
	}

	if prior, err := a.execStore.FindReceipt(h.HandoffID, h.IdempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to check for duplicate receipt: %w", err)
	} else if prior != nil {
		eval := Evaluation{DuplicateCheck: DuplicateCheck{Duplicate: true, DuplicateOf: prior.ExecutionID}}
		return a.terminal(h, StatusDuplicate, ReasonDuplicateHandoff, eval, nil, nil), nil
	}

	doc, err := a.worldStore.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to read world snapshot: %w", err)
	}
	beforeProjection, snapshotHash, decisionEpoch := worldstate.Project(doc)

	preconditionResults := a.evaluatePreconditions(doc, h.ExecutionRequirements.Preconditions)
	for _, pr := range preconditionResults {
		if !pr.Passed {
			eval := Evaluation{Preconditions: preconditionResults}
			return a.terminal(h, StatusRejected, ReasonPreconditionFailed, eval, &snapshotHash, decisionEpoch), nil
		}
	}

	expectedEpoch := h.ExecutionRequirements.ExpectedDecisionEpoch
	if expectedEpoch == 0 {
		expectedEpoch = h.DecisionEpoch
	}
	expectedHash := h.ExecutionRequirements.ExpectedSnapshotHash
	if expectedHash == "" {
		expectedHash = h.SnapshotHash
	}
	staleCheck := StaleCheck{ActualSnapshotHash: snapshotHash}
	if decisionEpoch != nil {
		staleCheck.ActualDecisionEpoch = *decisionEpoch
	}
	if decisionEpoch == nil || *decisionEpoch != expectedEpoch {
		staleCheck.Stale = true
		eval := Evaluation{Preconditions: preconditionResults, StaleCheck: staleCheck}
		return a.terminal(h, StatusStale, ReasonStaleDecisionEpoch, eval, &snapshotHash, decisionEpoch), nil
	}
	if snapshotHash != expectedHash {
		staleCheck.Stale = true
		eval := Evaluation{Preconditions: preconditionResults, StaleCheck: staleCheck}
		return a.terminal(h, StatusStale, ReasonStaleSnapshot, eval, &snapshotHash, decisionEpoch), nil
	}

	authorityCommands := a.authorityCommandsFor(h)
	pending := &worldstate.PendingExecution{
		HandoffID: h.HandoffID, IdempotencyKey: h.IdempotencyKey, ProposalType: h.ProposalType,
		ActorID: h.ActorID, TownID: h.TownID, AuthorityCommands: authorityCommands,
		CompletedCommandCount: 0, StagedAt: time.Now().Unix(),
	}
	if err := a.execStore.StagePendingExecution(pending); err != nil {
		return nil, fmt.Errorf("failed to stage pending execution: %w", err)
	}

	for i, cmd := range authorityCommands {
		derivedEventID := fmt.Sprintf("%s:cmd:%d", h.HandoffID, i)
		tr, err := a.worldStore.Transact(func(doc *worldstate.Document) (interface{}, error) {
			return commands.Dispatch(doc, cmd)
		}, worldstate.TransactOptions{EventID: derivedEventID})
		if err != nil {
			return nil, fmt.Errorf("failed to apply authority command %q: %w", cmd, err)
		}
		applied := tr.Skipped
		if !tr.Skipped {
			if res, ok := tr.Result.(commands.Result); ok {
				applied = res.Applied
			}
		} else {
			applied = true
		}
		if !applied {
			eval := Evaluation{Preconditions: preconditionResults, StaleCheck: staleCheck}
			afterDoc, _ := a.worldStore.GetSnapshot()
			afterProjection, afterHash, afterEpoch := worldstate.Project(afterDoc)
			receipt := a.buildReceipt(h, StatusFailed, ReasonExecutionFailed, authorityCommands, afterHash, afterEpoch, false, false)
			receipt.Payload = diffPayload(beforeProjection, afterProjection)
			if err := a.execStore.RecordResult(receipt); err != nil {
				return nil, fmt.Errorf("failed to record failed receipt: %w", err)
			}
			if afterDoc != nil {
				if err := a.execStore.SyncWorldMemory(afterDoc); err != nil {
					a.log.Warn("failed to sync world memory after failed execution", zap.Error(err))
				}
			}
			return a.resultFromReceipt(receipt, eval), nil
		}

		pending.CompletedCommandCount = i + 1
		if err := a.execStore.StagePendingExecution(pending); err != nil {
			return nil, fmt.Errorf("failed to update pending execution: %w", err)
		}
	}

	if a.beforeTerminalReceiptPersist != nil {
		if err := a.beforeTerminalReceiptPersist(); err != nil {
			return nil, err
		}
	}

	afterDoc, err := a.worldStore.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to read post-execution snapshot: %w", err)
	}
	afterProjection, afterHash, afterEpoch := worldstate.Project(afterDoc)

	receipt := a.buildReceipt(h, StatusExecuted, ReasonExecuted, authorityCommands, afterHash, afterEpoch, true, true)
	receipt.Payload = diffPayload(beforeProjection, afterProjection)
	if err := a.execStore.RecordResult(receipt); err != nil {
		return nil, fmt.Errorf("failed to record execution receipt: %w", err)
	}
	if err := a.execStore.SyncWorldMemory(afterDoc); err != nil {
		a.log.Warn("failed to sync world memory after execution", zap.Error(err))
	}

	eval := Evaluation{Preconditions: preconditionResults, StaleCheck: staleCheck}
	return a.resultFromReceipt(receipt, eval), nil
}

// RecoverInterruptedExecutions walks pending markers left by a crash
// between an authority command commit and the terminal receipt write,
// classifying each as failed/INTERRUPTED_EXECUTION_RECOVERY and
// clearing the marker (spec.md §4.F crash safety).
func (a *Adapter) RecoverInterruptedExecutions() ([]*Result, error) {
	pending, err := a.execStore.ListPendingExecutions()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending executions: %w", err)
	}
	var results []*Result
	for _, p := range pending {
		doc, err := a.worldStore.GetSnapshot()
		if err != nil {
			return nil, fmt.Errorf("failed to read world snapshot during recovery: %w", err)
		}
		_, hash, epoch := worldstate.Project(doc)
		epochVal := 0
		if epoch != nil {
			epochVal = *epoch
		}
		receipt := &worldstate.ExecutionReceipt{
			ExecutionID: newExecutionID(), HandoffID: p.HandoffID, IdempotencyKey: p.IdempotencyKey,
			ProposalType: p.ProposalType, ActorID: p.ActorID, TownID: p.TownID,
			AuthorityCommands: p.AuthorityCommands, Status: StatusFailed, Accepted: false, Executed: false,
			ReasonCode: ReasonInterruptedExecutionRecover, SnapshotHash: hash, DecisionEpoch: epochVal,
			PostExecutionSnapshotHash: hash, PostExecutionDecisionEpoch: epochVal, At: time.Now().Unix(),
		}
		receipt.ResultID = receipt.ExecutionID
		if err := a.execStore.RecordResult(receipt); err != nil {
			return nil, fmt.Errorf("failed to record recovery receipt: %w", err)
		}
		if err := a.execStore.SyncWorldMemory(doc); err != nil {
			a.log.Warn("failed to sync world memory during recovery", zap.Error(err))
		}
		results = append(results, a.resultFromReceipt(receipt, Evaluation{}))
	}
	return results, nil
}

func (a *Adapter) authorityCommandsFor(h *Handoff) []string {
	if translate, ok := authorityCommandTranslations[h.ProposalType]; ok {
		return translate(h)
	}
	return []string{h.Command}
}

func (a *Adapter) evaluatePreconditions(doc *worldstate.Document, preconditions []Precondition) []PreconditionResult {
	results := make([]PreconditionResult, 0, len(preconditions))
	for _, p := range preconditions {
		results = append(results, evaluatePrecondition(doc, p))
	}
	return results
}

func evaluatePrecondition(doc *worldstate.Document, p Precondition) PreconditionResult {
	switch p.Kind {
	case "project_exists":
		for _, proj := range doc.World.Projects {
			if proj.ID == p.TargetID {
				return PreconditionResult{Kind: p.Kind, Passed: true}
			}
		}
		return PreconditionResult{Kind: p.Kind, Passed: false, Reason: "no project with id " + p.TargetID}
	case "mission_absent":
		town := p.TargetID
		if town != "" {
			if t, ok := doc.World.Towns[town]; ok && t.ActiveMajorMissionID != "" {
				return PreconditionResult{Kind: p.Kind, Passed: false, Reason: "town " + town + " has an active major mission"}
			}
		}
		return PreconditionResult{Kind: p.Kind, Passed: true}
	case "side_quest_exists":
		for _, q := range doc.World.Quests {
			if q.ID == p.TargetID {
				return PreconditionResult{Kind: p.Kind, Passed: true}
			}
		}
		return PreconditionResult{Kind: p.Kind, Passed: false, Reason: "no quest with id " + p.TargetID}
	case "salvage_focus_supported":
		if supportedSalvageFocuses[p.Expected] {
			return PreconditionResult{Kind: p.Kind, Passed: true}
		}
		return PreconditionResult{Kind: p.Kind, Passed: false, Reason: "unsupported salvage focus " + p.Expected}
	default:
		return PreconditionResult{Kind: p.Kind, Passed: false, Reason: "unrecognized precondition kind " + p.Kind}
	}
}

func (a *Adapter) buildReceipt(h *Handoff, status, reasonCode string, authorityCommands []string, postHash string, postEpoch *int, accepted, executed bool) *worldstate.ExecutionReceipt {
	epochVal := 0
	if postEpoch != nil {
		epochVal = *postEpoch
	}
	id := newExecutionID()
	return &worldstate.ExecutionReceipt{
		ExecutionID: id, ResultID: id, HandoffID: h.HandoffID, ProposalID: h.ProposalID,
		IdempotencyKey: h.IdempotencyKey, SnapshotHash: h.SnapshotHash, DecisionEpoch: h.DecisionEpoch,
		ActorID: h.ActorID, TownID: h.TownID, ProposalType: h.ProposalType, Command: h.Command,
		AuthorityCommands: authorityCommands, Status: status, Accepted: accepted, Executed: executed,
		ReasonCode: reasonCode, PostExecutionSnapshotHash: postHash, PostExecutionDecisionEpoch: epochVal,
		At: time.Now().Unix(),
	}
}

func (a *Adapter) resultFromReceipt(r *worldstate.ExecutionReceipt, eval Evaluation) *Result {
	return &Result{
		Type: "execution-result.v1", SchemaVersion: 1, ExecutionID: r.ExecutionID, ResultID: r.ResultID,
		HandoffID: r.HandoffID, ProposalID: r.ProposalID, IdempotencyKey: r.IdempotencyKey,
		SnapshotHash: r.SnapshotHash, DecisionEpoch: r.DecisionEpoch, ActorID: r.ActorID, TownID: r.TownID,
		ProposalType: r.ProposalType, Command: r.Command, AuthorityCommands: r.AuthorityCommands,
		Status: r.Status, Accepted: r.Accepted, Executed: r.Executed, ReasonCode: r.ReasonCode,
		Evaluation: eval,
		WorldState: WorldStateView{
			PostExecutionSnapshotHash: r.PostExecutionSnapshotHash, PostExecutionDecisionEpoch: r.PostExecutionDecisionEpoch,
		},
	}
}

// terminal builds a non-persisted classification result (rejected,
// stale, duplicate): these do not mutate the world or write a receipt,
// per spec.md §4.F's "No mutation" rule for those three outcomes.
func (a *Adapter) terminal(h *Handoff, status, reasonCode string, eval Evaluation, snapshotHash *string, decisionEpoch *int) *Result {
	hash := h.SnapshotHash
	if snapshotHash != nil {
		hash = *snapshotHash
	}
	epoch := h.DecisionEpoch
	if decisionEpoch != nil {
		epoch = *decisionEpoch
	}
	id := newExecutionID()
	return &Result{
		Type: "execution-result.v1", SchemaVersion: 1, ExecutionID: id, ResultID: id,
		HandoffID: h.HandoffID, ProposalID: h.ProposalID, IdempotencyKey: h.IdempotencyKey,
		SnapshotHash: h.SnapshotHash, DecisionEpoch: h.DecisionEpoch, ActorID: h.ActorID, TownID: h.TownID,
		ProposalType: h.ProposalType, Command: h.Command, AuthorityCommands: a.authorityCommandsFor(h),
		Status: status, Accepted: false, Executed: false, ReasonCode: reasonCode, Evaluation: eval,
		WorldState: WorldStateView{PostExecutionSnapshotHash: hash, PostExecutionDecisionEpoch: epoch},
	}
}

// newExecutionID formats a random execution/result id as spec.md §4.F
// requires: "result_<64 hex>".
func newExecutionID() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return "result_" + hex.EncodeToString(sum[:])
}

// diffPayload computes an RFC 7386 JSON merge patch from the pre- to
// post-execution projection, carried on the receipt's payload; a failure to diff (non-JSON-comparable values)
// degrades to an empty payload rather than failing the execution.
func diffPayload(before, after worldstate.Snapshot) map[string]interface{} {
	beforeJSON, err1 := json.Marshal(before)
	afterJSON, err2 := json.Marshal(after)
	if err1 != nil || err2 != nil {
		return nil
	}
	patch, err := jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
	if err != nil {
		return nil
	}
	var patchMap map[string]interface{}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil
	}
	return map[string]interface{}{"diff": patchMap}
}
