package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// runSeededScenario replays the same fixed command sequence against a
// fresh store, seeding a decision fixture the sequence then consults via
// `decision show`/`decision choose`. Every id the sequence needs
// (offer/rumor/side quest) is captured from the document as it runs, so
// the same literal sequence can be replayed against an independently
// constructed store and still reach the same commands.
func runSeededScenario(t *testing.T, storeDir string) (*worldstate.Store, string) {
	t.Helper()
	ws := worldstate.NewStore(filepath.Join(storeDir, "world.json"), nil)

	_, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
		doc.World.Towns["alpha"] = &worldstate.Town{Name: "Alpha"}
		doc.World.Decisions = append(doc.World.Decisions, &worldstate.Decision{
			ID: "dec-alpha-1", Town: "alpha", Prompt: "the well runs low",
			Options: []*worldstate.DecisionOption{
				{Key: "ration", Label: "ration the well", Effects: worldstate.DecisionEffect{
					MoodDeltas: map[string]int{"alpha": 2},
				}},
				{Key: "dig", Label: "dig a second well", Effects: worldstate.DecisionEffect{
					ThreatDelta: 1,
				}},
			},
		})
		return nil, nil
	}, worldstate.TransactOptions{})
	require.NoError(t, err)

	step := func(op, command string) Result {
		tr, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
			return Dispatch(doc, command)
		}, worldstate.TransactOptions{EventID: op})
		require.NoError(t, err)
		require.False(t, tr.Skipped, "command %q should not be skipped on first application", command)
		res, _ := tr.Result.(Result)
		return res
	}

	step("op-1", "mark add alpha_hall 0 64 0 town:alpha")
	step("op-2", "market add bazaar alpha_hall")
	step("op-3", "mint Mara 25")
	step("op-4", "mint Eli 25")
	res := step("op-5", "offer add bazaar Mara sell 2 5")
	require.True(t, res.Applied)

	doc, err := ws.GetSnapshot()
	require.NoError(t, err)
	offerID := doc.World.Markets["bazaar"].Offers[0].OfferID

	res = step("op-6", "trade bazaar "+offerID+" Eli 1")
	require.True(t, res.Applied)

	step("op-7", "event seed 777")
	step("op-8", "event draw alpha")
	step("op-9", "decision show dec-alpha-1")
	res = step("op-10", "decision choose dec-alpha-1 ration")
	require.True(t, res.Applied)

	res = step("op-11", "rumor spawn alpha supernatural 2 mist_shapes 2")
	require.True(t, res.Applied)

	doc, err = ws.GetSnapshot()
	require.NoError(t, err)
	rumorID := doc.World.Rumors[len(doc.World.Rumors)-1].ID

	res = step("op-12", "rumor quest "+rumorID)
	require.True(t, res.Applied)

	doc, err = ws.GetSnapshot()
	require.NoError(t, err)
	sideQuestID := doc.World.Rumors[len(doc.World.Rumors)-1].SideQuest
	require.NotEmpty(t, sideQuestID)

	res = step("op-13", "quest accept Mara "+sideQuestID)
	require.True(t, res.Applied)
	res = step("op-14", "quest visit "+sideQuestID)
	require.True(t, res.Applied)

	// Replaying an already-processed operationId must be a no-op.
	tr, err := ws.Transact(func(doc *worldstate.Document) (interface{}, error) {
		return Dispatch(doc, "quest visit "+sideQuestID)
	}, worldstate.TransactOptions{EventID: "op-14"})
	require.NoError(t, err)
	require.True(t, tr.Skipped)

	return ws, sideQuestID
}

func TestDeterministicSeededScenarioMatchesAcrossIndependentStores(t *testing.T) {
	wsA, _ := runSeededScenario(t, t.TempDir())
	wsB, _ := runSeededScenario(t, t.TempDir())

	docA, err := wsA.GetSnapshot()
	require.NoError(t, err)
	docB, err := wsB.GetSnapshot()
	require.NoError(t, err)

	_, hashA, _ := worldstate.Project(docA)
	_, hashB, _ := worldstate.Project(docB)
	require.Equal(t, hashA, hashB, "two independently seeded stores replaying the same command sequence must produce identical projection hashes")

	require.Equal(t, docA.World.Economy.Ledger["Mara"], docB.World.Economy.Ledger["Mara"])
	require.Equal(t, docA.World.Economy.Ledger["Eli"], docB.World.Economy.Ledger["Eli"])
}

func TestDeterministicSeededScenarioReplayIsNoOp(t *testing.T) {
	ws, sideQuestID := runSeededScenario(t, t.TempDir())

	doc, err := ws.GetSnapshot()
	require.NoError(t, err)

	// trade bought 1 of the 2-unit sell offer, leaving 1 active.
	require.Equal(t, 1, doc.World.Markets["bazaar"].Offers[0].Amount)
	require.True(t, doc.World.Markets["bazaar"].Offers[0].Active)

	// Mara minted 25, +5 from the trade proceeds, +25 from the side
	// quest reward (15 + severity*5 with severity=2).
	require.Equal(t, 55, doc.World.Economy.Ledger["Mara"])
	require.Equal(t, 20, doc.World.Economy.Ledger["Eli"])

	quest := findQuest(doc, sideQuestID)
	require.NotNil(t, quest)
	require.Equal(t, "completed", quest.Status)
}
