package worldstate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProjectHashStableAcrossInsertionOrder(t *testing.T) {
	a := NewDocument()
	a.World.Towns["riverbend"] = &Town{Name: "Riverbend", Tags: []string{"river", "port"}}
	a.World.Towns["oakmere"] = &Town{Name: "Oakmere", Tags: []string{"forest"}}

	b := NewDocument()
	b.World.Towns["oakmere"] = &Town{Name: "Oakmere", Tags: []string{"forest"}}
	b.World.Towns["riverbend"] = &Town{Name: "Riverbend", Tags: []string{"river", "port"}}

	_, hashA, epochA := Project(a)
	_, hashB, epochB := Project(b)

	require.Equal(t, hashA, hashB)
	require.Equal(t, *epochA, *epochB)
}

func TestProjectDropsNarrativeFields(t *testing.T) {
	doc := NewDocument()
	doc.World.Chronicle = []*ChronicleRecord{{RecordID: "r1", Msg: "hello"}}
	_, hashWith, _ := Project(doc)

	doc.World.Chronicle = nil
	_, hashWithout, _ := Project(doc)

	require.Equal(t, hashWith, hashWithout)
}

func TestProjectSortsMarketOffersByOfferID(t *testing.T) {
	doc := NewDocument()
	doc.World.Markets["bazaar"] = &Market{
		Name: "bazaar",
		Offers: []*Offer{
			{OfferID: "z-offer", Amount: 1, Price: 1},
			{OfferID: "a-offer", Amount: 1, Price: 1},
		},
	}
	snapshot, _, _ := Project(doc)
	markets := snapshot["markets"].(map[string]interface{})
	bazaar := markets["bazaar"].(map[string]interface{})
	offers := bazaar["offers"].([]interface{})
	require.Len(t, offers, 2)
	first := offers[0].(map[string]interface{})
	require.Equal(t, "a-offer", first["offer_id"])
}

func TestProjectDecisionEpochIsClockDay(t *testing.T) {
	doc := NewDocument()
	doc.World.Clock.Day = 7
	_, _, epoch := Project(doc)
	require.NotNil(t, epoch)
	require.Equal(t, 7, *epoch)
}

func TestProjectNonFiniteNumberMapsToNull(t *testing.T) {
	require.Equal(t, "null", encodeNumber(posInf()))
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
