package worldstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeIdempotent(t *testing.T) {
	doc := NewDocument()
	doc.World.Economy.Ledger["rin"] = -5
	doc.World.Nether.Modifiers.Threat = 50
	doc.World.Towns["riverbend"] = &Town{Name: "Riverbend", Tags: []string{"b", "a", "a"}}
	doc.World.Actors["riverbend:mayor"] = &Actor{ActorID: "riverbend:mayor", TownID: "riverbend", Role: "mayor"}

	once := Sanitize(doc)
	data1, err := json.Marshal(once)
	require.NoError(t, err)

	twice := Sanitize(once)
	data2, err := json.Marshal(twice)
	require.NoError(t, err)

	require.JSONEq(t, string(data1), string(data2))
}

func TestSanitizeDropsNegativeLedgerEntries(t *testing.T) {
	doc := NewDocument()
	doc.World.Economy.Ledger["rin"] = -5
	doc.World.Economy.Ledger["oak"] = 10
	Sanitize(doc)

	_, hasRin := doc.World.Economy.Ledger["rin"]
	require.False(t, hasRin)
	require.Equal(t, 10, doc.World.Economy.Ledger["oak"])
}

func TestSanitizeDefaultsCurrency(t *testing.T) {
	doc := NewDocument()
	doc.World.Economy.Currency = ""
	Sanitize(doc)
	require.Equal(t, DefaultCurrency, doc.World.Economy.Currency)
}

func TestSanitizeClampsNetherModifiers(t *testing.T) {
	doc := NewDocument()
	doc.World.Nether.Modifiers = NetherModifiers{LongNight: 50, Omen: -50, Scarcity: 9, Threat: -9}
	Sanitize(doc)
	require.Equal(t, NetherModifierClamp, doc.World.Nether.Modifiers.LongNight)
	require.Equal(t, -NetherModifierClamp, doc.World.Nether.Modifiers.Omen)
}

func TestSanitizeDropsOffersWithNonPositiveAmountOrPrice(t *testing.T) {
	doc := NewDocument()
	doc.World.Markets["bazaar"] = &Market{
		Name: "bazaar",
		Offers: []*Offer{
			{OfferID: "o1", Amount: 5, Price: 10},
			{OfferID: "o2", Amount: 0, Price: 10},
			{OfferID: "o3", Amount: 5, Price: 0},
			{OfferID: "", Amount: 5, Price: 5},
			{OfferID: "o1", Amount: 2, Price: 2},
		},
	}
	Sanitize(doc)
	offers := doc.World.Markets["bazaar"].Offers
	require.Len(t, offers, 1)
	require.Equal(t, "o1", offers[0].OfferID)
}

func TestSanitizeSynthesizesActorNames(t *testing.T) {
	doc := NewDocument()
	doc.World.Towns["riverbend"] = &Town{Name: "Riverbend"}
	Sanitize(doc)

	var mayor *Actor
	for _, a := range doc.World.Actors {
		if a.TownID == "riverbend" && a.Role == "mayor" {
			mayor = a
		}
	}
	require.NotNil(t, mayor)
	require.Equal(t, "Mayor of Riverbend", mayor.Name)
}

func TestSanitizeCollapsesMultipleActiveMajorMissions(t *testing.T) {
	doc := NewDocument()
	doc.World.Towns["riverbend"] = &Town{Name: "Riverbend", ActiveMajorMissionID: "m1"}
	doc.World.MajorMissions = []*MajorMission{
		{ID: "m1", Town: "riverbend", Status: "active"},
		{ID: "m2", Town: "riverbend", Status: "active"},
	}
	Sanitize(doc)

	byID := map[string]string{}
	for _, m := range doc.World.MajorMissions {
		byID[m.ID] = m.Status
	}
	require.Equal(t, "active", byID["m1"])
	require.Equal(t, "briefed", byID["m2"])
}

func TestSanitizeBoundsChronicleAndNews(t *testing.T) {
	doc := NewDocument()
	for i := 0; i < 250; i++ {
		doc.World.Chronicle = append(doc.World.Chronicle, &ChronicleRecord{RecordID: "r"})
		doc.World.News = append(doc.World.News, &NewsRecord{RecordID: "n"})
	}
	Sanitize(doc)
	require.Len(t, doc.World.Chronicle, MaxChronicleRecords)
	require.Len(t, doc.World.News, MaxNewsRecords)
}
