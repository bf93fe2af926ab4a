package commands

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthropics/worldengine/internal/worldstate"
)

func newTestDoc() *worldstate.Document {
	doc := worldstate.NewDocument()
	doc.World.Towns["alpha"] = &worldstate.Town{Name: "Alpha"}
	return doc
}

func TestMarkAddOverwritesOnReplayWithDistinctEventID(t *testing.T) {
	doc := newTestDoc()
	res, err := Dispatch(doc, "mark add alpha_hall 0 64 0 town:alpha")
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Len(t, doc.World.Markers, 1)

	_, err = Dispatch(doc, "mark add alpha_hall 1 1 1 town:alpha")
	require.NoError(t, err)
	require.Len(t, doc.World.Markers, 1)
	require.Equal(t, 1.0, doc.World.Markers[0].X)
}

func TestMintAndTransfer(t *testing.T) {
	doc := newTestDoc()
	_, err := Dispatch(doc, "mint Mara 25")
	require.NoError(t, err)
	_, err = Dispatch(doc, "mint Eli 25")
	require.NoError(t, err)
	require.Equal(t, 25, doc.World.Economy.Ledger["Mara"])

	res, err := Dispatch(doc, "transfer Mara Eli 10")
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, 15, doc.World.Economy.Ledger["Mara"])
	require.Equal(t, 35, doc.World.Economy.Ledger["Eli"])
}

func TestTransferInsufficientBalanceRejected(t *testing.T) {
	doc := newTestDoc()
	res, err := Dispatch(doc, "transfer Mara Eli 10")
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, 0, doc.World.Economy.Ledger["Mara"])
}

func TestEndToEndMarketTradeScenario(t *testing.T) {
	doc := newTestDoc()
	_, err := Dispatch(doc, "mark add alpha_hall 0 64 0 town:alpha")
	require.NoError(t, err)
	_, err = Dispatch(doc, "market add bazaar alpha_hall")
	require.NoError(t, err)
	_, err = Dispatch(doc, "mint Mara 25")
	require.NoError(t, err)
	_, err = Dispatch(doc, "mint Eli 25")
	require.NoError(t, err)
	res, err := Dispatch(doc, "offer add bazaar Mara sell 2 5")
	require.NoError(t, err)
	require.True(t, res.Applied)

	offerID := doc.World.Markets["bazaar"].Offers[0].OfferID
	res, err = Dispatch(doc, "trade bazaar "+offerID+" Eli 1")
	require.NoError(t, err)
	require.True(t, res.Applied)

	require.Equal(t, 30, doc.World.Economy.Ledger["Mara"])
	require.Equal(t, 20, doc.World.Economy.Ledger["Eli"])
	require.Equal(t, 1, doc.World.Markets["bazaar"].Offers[0].Amount)
	require.True(t, doc.World.Markets["bazaar"].Offers[0].Active)
}

func TestQuestLifecycle(t *testing.T) {
	doc := newTestDoc()
	_, err := Dispatch(doc, "quest offer visit_town alpha 20")
	require.NoError(t, err)
	questID := doc.World.Quests[0].ID

	_, err = Dispatch(doc, "quest accept Mara "+questID)
	require.NoError(t, err)
	require.Equal(t, "accepted", doc.World.Quests[0].Status)

	res, err := Dispatch(doc, "quest visit "+questID)
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, "completed", doc.World.Quests[0].Status)
	require.Equal(t, 20, doc.World.Economy.Ledger["Mara"])
}

func TestRepAddGrantsTitleOnce(t *testing.T) {
	doc := newTestDoc()
	doc.Agents["Mara"] = &worldstate.Agent{}

	_, err := Dispatch(doc, "rep add Mara silver_hand 5")
	require.NoError(t, err)
	require.Contains(t, doc.Agents["Mara"].Profile.Titles, "Pact Friend")

	_, err = Dispatch(doc, "rep add Mara silver_hand 1")
	require.NoError(t, err)
	count := 0
	for _, t2 := range doc.Agents["Mara"].Profile.Titles {
		if t2 == "Pact Friend" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestMajorMissionLifecycle(t *testing.T) {
	doc := newTestDoc()
	_, err := Dispatch(doc, "mayor talk alpha")
	require.NoError(t, err)
	require.Len(t, doc.World.MajorMissions, 1)
	missionID := doc.World.MajorMissions[0].ID

	_, err = Dispatch(doc, "mayor accept alpha")
	require.NoError(t, err)
	require.Equal(t, "active", doc.World.MajorMissions[0].Status)
	require.Equal(t, missionID, doc.World.Towns["alpha"].ActiveMajorMissionID)

	_, err = Dispatch(doc, "mission complete "+missionID)
	require.NoError(t, err)
	require.Equal(t, "complete", doc.World.MajorMissions[0].Status)
	require.Equal(t, "", doc.World.Towns["alpha"].ActiveMajorMissionID)
}

func TestUnknownCommandFamilyRejected(t *testing.T) {
	doc := newTestDoc()
	res, err := Dispatch(doc, "nonsense verb")
	require.NoError(t, err)
	require.False(t, res.Applied)
}
