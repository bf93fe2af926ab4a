package execution

import (
	"sort"
	"strings"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// DocStore persists receipts/pending markers within the world document
// under world.execution.{history,pending}, sharing the World Store's
// transaction discipline so receipts and authority mutations commit
// atomically (spec.md §4.E document backend). Grounded on
// pkg/state/rollback.go's checkpoint-list-with-bound idiom for the
// pending/history arrays.
type DocStore struct {
	store *worldstate.Store
}

// NewDocStore wraps an existing worldstate.Store as an Execution Store.
func NewDocStore(store *worldstate.Store) *DocStore {
	return &DocStore{store: store}
}

func (d *DocStore) StagePendingExecution(pending *worldstate.PendingExecution) error {
	_, err := d.store.Transact(func(doc *worldstate.Document) (interface{}, error) {
		for i, p := range doc.World.Execution.Pending {
			if p.HandoffID == pending.HandoffID && p.IdempotencyKey == pending.IdempotencyKey {
				doc.World.Execution.Pending[i] = pending
				return nil, nil
			}
		}
		doc.World.Execution.Pending = append(doc.World.Execution.Pending, pending)
		return nil, nil
	}, worldstate.TransactOptions{})
	return err
}

func (d *DocStore) RecordResult(receipt *worldstate.ExecutionReceipt) error {
	_, err := d.store.Transact(func(doc *worldstate.Document) (interface{}, error) {
		doc.World.Execution.History = append(doc.World.Execution.History, receipt)
		kept := doc.World.Execution.Pending[:0:0]
		for _, p := range doc.World.Execution.Pending {
			if p.HandoffID == receipt.HandoffID && p.IdempotencyKey == receipt.IdempotencyKey {
				continue
			}
			kept = append(kept, p)
		}
		doc.World.Execution.Pending = kept
		return nil, nil
	}, worldstate.TransactOptions{})
	return err
}

func (d *DocStore) FindReceipt(handoffID, idempotencyKey string) (*worldstate.ExecutionReceipt, error) {
	doc, err := d.store.GetSnapshot()
	if err != nil {
		return nil, err
	}
	for _, r := range doc.World.Execution.History {
		if r.HandoffID == handoffID && r.IdempotencyKey == idempotencyKey {
			return r, nil
		}
	}
	return nil, nil
}

func (d *DocStore) FindPendingExecution(handoffID, idempotencyKey string) (*worldstate.PendingExecution, error) {
	doc, err := d.store.GetSnapshot()
	if err != nil {
		return nil, err
	}
	for _, p := range doc.World.Execution.Pending {
		if p.HandoffID == handoffID && p.IdempotencyKey == idempotencyKey {
			return p, nil
		}
	}
	return nil, nil
}

func (d *DocStore) ListPendingExecutions() ([]*worldstate.PendingExecution, error) {
	doc, err := d.store.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return doc.World.Execution.Pending, nil
}

// ListChronicleRecords returns records matching townID/factionID/search,
// sorted (at DESC, recordId DESC) and bounded by limit (spec.md §4.E).
func (d *DocStore) ListChronicleRecords(townID, factionID, search string, limit int) ([]*worldstate.ChronicleRecord, error) {
	doc, err := d.store.GetSnapshot()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > worldstate.MaxContextChronicleRecords {
		limit = worldstate.MaxContextChronicleRecords
	}
	filtered := make([]*worldstate.ChronicleRecord, 0, len(doc.World.Chronicle))
	for _, r := range doc.World.Chronicle {
		if townID != "" && r.TownID != townID {
			continue
		}
		if factionID != "" && r.FactionID != factionID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.Msg), strings.ToLower(search)) {
			continue
		}
		filtered = append(filtered, r)
	}
	sortChronicleDesc(filtered)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func sortChronicleDesc(records []*worldstate.ChronicleRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].At != records[j].At {
			return records[i].At > records[j].At
		}
		return records[i].RecordID > records[j].RecordID
	})
}

// ListHistoryRecords returns execution receipts matching townID, sorted
// (at DESC, executionId DESC) and bounded by limit (spec.md §4.E).
func (d *DocStore) ListHistoryRecords(townID, factionID string, limit int) ([]*worldstate.ExecutionReceipt, error) {
	doc, err := d.store.GetSnapshot()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > worldstate.MaxContextHistoryRecords {
		limit = worldstate.MaxContextHistoryRecords
	}
	filtered := make([]*worldstate.ExecutionReceipt, 0, len(doc.World.Execution.History))
	for _, r := range doc.World.Execution.History {
		if townID != "" && r.TownID != townID {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].At != filtered[j].At {
			return filtered[i].At > filtered[j].At
		}
		return filtered[i].ExecutionID > filtered[j].ExecutionID
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (d *DocStore) GetTownHistorySummary(townID string) (TownHistorySummary, error) {
	doc, err := d.store.GetSnapshot()
	if err != nil {
		return TownHistorySummary{}, err
	}
	summary := TownHistorySummary{}
	for _, r := range doc.World.Execution.History {
		if r.TownID != townID {
			continue
		}
		summary.HistoryCount++
		tallyExecutionCount(&summary.ExecutionCounts, r.Status)
	}
	for _, r := range doc.World.Chronicle {
		if r.TownID == townID {
			summary.ChronicleCount++
		}
	}
	for _, p := range doc.World.Projects {
		if p.Town == townID && p.Status == "active" {
			summary.ActiveProjectCount++
		}
	}
	if t, ok := doc.World.Towns[townID]; ok {
		summary.Hope = t.Hope
		summary.Dread = t.Dread
	}
	return summary, nil
}

func (d *DocStore) GetFactionHistorySummary(factionID string) (FactionHistorySummary, error) {
	doc, err := d.store.GetSnapshot()
	if err != nil {
		return FactionHistorySummary{}, err
	}
	summary := FactionHistorySummary{}
	for _, r := range doc.World.Execution.History {
		if r.TownID != "" {
			continue
		}
		summary.HistoryCount++
		tallyExecutionCount(&summary.ExecutionCounts, r.Status)
	}
	for _, r := range doc.World.Chronicle {
		if r.FactionID == factionID {
			summary.ChronicleCount++
		}
	}
	return summary, nil
}

func tallyExecutionCount(counts *ExecutionCounts, status string) {
	switch status {
	case StatusExecuted:
		counts.Executed++
	case StatusRejected:
		counts.Rejected++
	case StatusStale:
		counts.Stale++
	case StatusDuplicate:
		counts.Duplicate++
	case StatusFailed:
		counts.Failed++
	}
}

// SyncWorldMemory is a no-op for the document backend: the chronicle
// lives in the same document as the execution view, so there is nothing
// to refresh (spec.md §4.E: "SQLite backend only").
func (d *DocStore) SyncWorldMemory(doc *worldstate.Document) error {
	return nil
}
