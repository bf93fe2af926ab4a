package worldstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "world.json")
	return NewStore(path, nil), path
}

func TestTransactPersistsAtomically(t *testing.T) {
	store, path := newTestStore(t)

	_, err := store.Transact(func(doc *Document) (interface{}, error) {
		doc.Agents["rin"] = &Agent{Profile: AgentProfile{Mood: "content"}}
		return nil, nil
	}, TransactOptions{})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "rin")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
	require.NoFileExists(t, path+".lock")
}

func TestTransactEventIDDedup(t *testing.T) {
	store, _ := newTestStore(t)

	calls := 0
	mutator := func(doc *Document) (interface{}, error) {
		calls++
		doc.World.Economy.Ledger["rin"] += 10
		return nil, nil
	}

	res1, err := store.Transact(mutator, TransactOptions{EventID: "mint:op-1"})
	require.NoError(t, err)
	require.False(t, res1.Skipped)

	res2, err := store.Transact(mutator, TransactOptions{EventID: "mint:op-1"})
	require.NoError(t, err)
	require.True(t, res2.Skipped)
	require.Equal(t, 1, calls)

	doc, err := store.GetSnapshot()
	require.NoError(t, err)
	require.Equal(t, 10, doc.World.Economy.Ledger["rin"])
}

func TestTransactCrashLeavesNoLockOrTempFile(t *testing.T) {
	store, path := newTestStore(t)

	_, err := store.Transact(func(doc *Document) (interface{}, error) {
		doc.Agents["rin"] = &Agent{}
		return nil, nil
	}, TransactOptions{})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = store.Transact(func(doc *Document) (interface{}, error) {
		doc.Agents["oak"] = &Agent{}
		return nil, nil
	}, TransactOptions{SimulateCrash: true})
	require.ErrorIs(t, err, ErrSimulatedCrash)

	rawAfter, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, raw, rawAfter)
	require.NoFileExists(t, path+".lock")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
}

func TestTransactMutatorErrorLeavesSnapshotUntouched(t *testing.T) {
	store, path := newTestStore(t)

	_, err := store.Transact(func(doc *Document) (interface{}, error) {
		doc.Agents["rin"] = &Agent{}
		return nil, nil
	}, TransactOptions{})
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = store.Transact(func(doc *Document) (interface{}, error) {
		return nil, ErrInvalidInput
	}, TransactOptions{})
	require.ErrorIs(t, err, ErrInvalidInput)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestValidateMemoryIntegrityReportsViolations(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Transact(func(doc *Document) (interface{}, error) {
		doc.World.Towns["riverbend"] = &Town{Name: "Riverbend", ActiveMajorMissionID: "m1"}
		doc.World.MajorMissions = append(doc.World.MajorMissions,
			&MajorMission{ID: "m1", Town: "riverbend", Status: "active"},
			&MajorMission{ID: "m2", Town: "riverbend", Status: "active"},
		)
		return nil, nil
	}, TransactOptions{})
	require.NoError(t, err)

	report, err := store.ValidateMemoryIntegrity()
	require.NoError(t, err)
	require.False(t, report.OK)
	require.NotEmpty(t, report.Issues)
}
