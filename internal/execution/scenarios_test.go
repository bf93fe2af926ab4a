package execution

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthropics/worldengine/internal/commands"
	"github.com/anthropics/worldengine/internal/worldstate"
)

var errCrash = errors.New("injected crash")

// backendKinds is every Execution Store backend under test; each
// scenario runs against both the document-backed and relational stores
// (spec.md §4.E requires both to agree).
var backendKinds = []string{"doc", "sqlite"}

// newBackendPair builds a fresh world store and the named Execution
// Store backend bound to it.
func newBackendPair(t *testing.T, kind string) (*worldstate.Store, Store) {
	t.Helper()
	dir := t.TempDir()
	ws := worldstate.NewStore(filepath.Join(dir, "world.json"), nil)

	switch kind {
	case "doc":
		return ws, NewDocStore(ws)
	case "sqlite":
		sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "execution.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqliteStore.Close() })
		return ws, sqliteStore
	default:
		t.Fatalf("unknown backend kind %q", kind)
		return nil, nil
	}
}

func seedTown(t *testing.T, ws *worldstate.Store, town string) {
	t.Helper()
	_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
		doc.World.Towns[town] = &worldstate.Town{Name: town}
		return nil, nil
	}, worldstate.TransactOptions{})
	require.NoError(t, err)
}

func TestHandoffExecution(t *testing.T) {
	for _, name := range backendKinds {
		t.Run(name, func(t *testing.T) {
			ws, execStore := newBackendPair(t, name)
			seedTown(t, ws, "alpha")

			_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
				return commands.Dispatch(doc, "project start alpha lantern_line")
			}, worldstate.TransactOptions{EventID: "op-seed"})
			require.NoError(t, err)

			doc, err := ws.GetSnapshot()
			require.NoError(t, err)
			projectID := doc.World.Projects[0].ID
			_, snapshotHash, decisionEpoch := worldstate.Project(doc)

			adapter := NewAdapter(ws, execStore, nil)
			handoff := &Handoff{
				SchemaVersion: "execution-handoff.v1", HandoffID: "h-1", ProposalID: "p-1",
				IdempotencyKey: "idem-1", SnapshotHash: snapshotHash, DecisionEpoch: *decisionEpoch,
				ProposalType: "PROJECT_ADVANCE", Command: "project advance alpha " + projectID,
				ExecutionRequirements: ExecutionRequirements{
					Preconditions: []Precondition{{Kind: "project_exists", TargetID: projectID}},
				},
			}

			result, err := adapter.ExecuteHandoff(handoff)
			require.NoError(t, err)
			require.Equal(t, StatusExecuted, result.Status)
			require.Equal(t, ReasonExecuted, result.ReasonCode)
			require.Equal(t, []string{"project advance alpha " + projectID}, result.AuthorityCommands)

			doc, err = ws.GetSnapshot()
			require.NoError(t, err)
			require.Equal(t, 2, doc.World.Projects[0].Stage)
		})
	}
}

func TestStaleEpochRejected(t *testing.T) {
	for _, name := range backendKinds {
		t.Run(name, func(t *testing.T) {
			ws, execStore := newBackendPair(t, name)
			seedTown(t, ws, "alpha")
			_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
				return commands.Dispatch(doc, "project start alpha lantern_line")
			}, worldstate.TransactOptions{EventID: "op-seed"})
			require.NoError(t, err)

			doc, err := ws.GetSnapshot()
			require.NoError(t, err)
			projectID := doc.World.Projects[0].ID
			_, snapshotHash, decisionEpoch := worldstate.Project(doc)

			adapter := NewAdapter(ws, execStore, nil)
			handoff := &Handoff{
				SchemaVersion: "execution-handoff.v1", HandoffID: "h-2", ProposalID: "p-2",
				IdempotencyKey: "idem-2", SnapshotHash: snapshotHash, DecisionEpoch: *decisionEpoch + 1,
				ProposalType: "PROJECT_ADVANCE", Command: "project advance alpha " + projectID,
				ExecutionRequirements: ExecutionRequirements{
					Preconditions: []Precondition{{Kind: "project_exists", TargetID: projectID}},
				},
			}

			result, err := adapter.ExecuteHandoff(handoff)
			require.NoError(t, err)
			require.Equal(t, StatusStale, result.Status)
			require.Equal(t, ReasonStaleDecisionEpoch, result.ReasonCode)

			after, err := ws.GetSnapshot()
			require.NoError(t, err)
			require.Equal(t, 1, after.World.Projects[0].Stage)
		})
	}
}

func TestDuplicateAcrossRestart(t *testing.T) {
	for _, name := range backendKinds {
		t.Run(name, func(t *testing.T) {
			ws, execStore := newBackendPair(t, name)
			seedTown(t, ws, "alpha")
			_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
				return commands.Dispatch(doc, "project start alpha lantern_line")
			}, worldstate.TransactOptions{EventID: "op-seed"})
			require.NoError(t, err)

			doc, err := ws.GetSnapshot()
			require.NoError(t, err)
			projectID := doc.World.Projects[0].ID
			_, snapshotHash, decisionEpoch := worldstate.Project(doc)

			adapter := NewAdapter(ws, execStore, nil)
			handoff := &Handoff{
				SchemaVersion: "execution-handoff.v1", HandoffID: "h-3", ProposalID: "p-3",
				IdempotencyKey: "idem-3", SnapshotHash: snapshotHash, DecisionEpoch: *decisionEpoch,
				ProposalType: "PROJECT_ADVANCE", Command: "project advance alpha " + projectID,
				ExecutionRequirements: ExecutionRequirements{
					Preconditions: []Precondition{{Kind: "project_exists", TargetID: projectID}},
				},
			}

			first, err := adapter.ExecuteHandoff(handoff)
			require.NoError(t, err)
			require.Equal(t, StatusExecuted, first.Status)

			// Simulate a restart: a fresh Adapter over the same stores.
			restarted := NewAdapter(ws, execStore, nil)
			second, err := restarted.ExecuteHandoff(handoff)
			require.NoError(t, err)
			require.Equal(t, StatusDuplicate, second.Status)
			require.Equal(t, ReasonDuplicateHandoff, second.ReasonCode)
			require.Equal(t, first.ExecutionID, second.Evaluation.DuplicateCheck.DuplicateOf)
		})
	}
}

func TestCrashMidExecutionRecovers(t *testing.T) {
	for _, name := range backendKinds {
		t.Run(name, func(t *testing.T) {
			ws, execStore := newBackendPair(t, name)
			seedTown(t, ws, "alpha")
			_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
				return commands.Dispatch(doc, "project start alpha lantern_line")
			}, worldstate.TransactOptions{EventID: "op-seed"})
			require.NoError(t, err)

			doc, err := ws.GetSnapshot()
			require.NoError(t, err)
			projectID := doc.World.Projects[0].ID
			_, snapshotHash, decisionEpoch := worldstate.Project(doc)

			adapter := NewAdapter(ws, execStore, nil)
			adapter.SetBeforeTerminalReceiptPersist(func() error {
				return errCrash
			})
			handoff := &Handoff{
				SchemaVersion: "execution-handoff.v1", HandoffID: "h-4", ProposalID: "p-4",
				IdempotencyKey: "idem-4", SnapshotHash: snapshotHash, DecisionEpoch: *decisionEpoch,
				ProposalType: "PROJECT_ADVANCE", Command: "project advance alpha " + projectID,
				ExecutionRequirements: ExecutionRequirements{
					Preconditions: []Precondition{{Kind: "project_exists", TargetID: projectID}},
				},
			}

			_, err = adapter.ExecuteHandoff(handoff)
			require.ErrorIs(t, err, errCrash)

			after, err := ws.GetSnapshot()
			require.NoError(t, err)
			require.Equal(t, 2, after.World.Projects[0].Stage)

			pending, err := execStore.ListPendingExecutions()
			require.NoError(t, err)
			require.Len(t, pending, 1)
			require.Equal(t, 1, pending[0].CompletedCommandCount)

			recovered := NewAdapter(ws, execStore, nil)
			results, err := recovered.RecoverInterruptedExecutions()
			require.NoError(t, err)
			require.Len(t, results, 1)
			require.Equal(t, ReasonInterruptedExecutionRecover, results[0].ReasonCode)
			require.False(t, results[0].Executed)

			pending, err = execStore.ListPendingExecutions()
			require.NoError(t, err)
			require.Len(t, pending, 0)

			receipt, err := execStore.FindReceipt("h-4", "idem-4")
			require.NoError(t, err)
			require.NotNil(t, receipt)
		})
	}
}

func TestFeedCapsAndIntegrity(t *testing.T) {
	dir := t.TempDir()
	ws := worldstate.NewStore(filepath.Join(dir, "world.json"), nil)
	seedTown(t, ws, "alpha")

	for i := 0; i < 265; i++ {
		opID := strconv.Itoa(i)
		_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
			return commands.Dispatch(doc, "mark add cap_"+opID+" 0 64 0 town:alpha")
		}, worldstate.TransactOptions{EventID: opID})
		require.NoError(t, err)
	}

	doc, err := ws.GetSnapshot()
	require.NoError(t, err)
	require.Len(t, doc.World.Markers, 265)
	require.Len(t, doc.World.Chronicle, worldstate.MaxChronicleRecords)
	require.Len(t, doc.World.News, worldstate.MaxNewsRecords)
	require.Equal(t, "marker cap_264 placed", doc.World.Chronicle[len(doc.World.Chronicle)-1].Msg)

	report, err := ws.ValidateMemoryIntegrity()
	require.NoError(t, err)
	require.True(t, report.OK, report.Issues)
}
