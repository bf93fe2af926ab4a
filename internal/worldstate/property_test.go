//go:build property

package worldstate

import (
	"testing"

	"pgregory.net/rapid"
)

// Property-based tests for the sanitizer and projection invariants. Run
// separately via:
//
//	go test -tags=property ./internal/worldstate -run TestProperty

func TestPropertySanitizeIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := NewDocument()

		numTowns := rapid.IntRange(0, 6).Draw(t, "numTowns")
		for i := 0; i < numTowns; i++ {
			id := rapid.StringMatching(`[a-z]{3,8}`).Draw(t, "townID")
			doc.World.Towns[id] = &Town{
				Name:  id,
				Hope:  rapid.IntRange(-50, 200).Draw(t, "hope"),
				Dread: rapid.IntRange(-50, 200).Draw(t, "dread"),
			}
		}

		numOffers := rapid.IntRange(0, 10).Draw(t, "numOffers")
		offers := make([]*Offer, 0, numOffers)
		for i := 0; i < numOffers; i++ {
			offers = append(offers, &Offer{
				OfferID: rapid.StringMatching(`[a-z0-9]{1,8}`).Draw(t, "offerID"),
				Amount:  rapid.IntRange(-5, 20).Draw(t, "amount"),
				Price:   rapid.IntRange(-5, 20).Draw(t, "price"),
			})
		}
		doc.World.Markets["bazaar"] = &Market{Name: "bazaar", Offers: offers}

		once := Sanitize(doc)
		snapshotOnce, hashOnce, _ := Project(once)
		twice := Sanitize(once)
		snapshotTwice, hashTwice, _ := Project(twice)

		if hashOnce != hashTwice {
			t.Fatalf("sanitize not idempotent under projection: %v vs %v", snapshotOnce, snapshotTwice)
		}

		for _, o := range once.World.Markets["bazaar"].Offers {
			if o.Amount <= 0 || o.Price <= 0 {
				t.Fatalf("sanitize left non-positive offer: %+v", o)
			}
		}
		for _, tw := range once.World.Towns {
			if tw.Hope < 0 || tw.Hope > 100 || tw.Dread < 0 || tw.Dread > 100 {
				t.Fatalf("sanitize left out-of-range town mood: %+v", tw)
			}
		}
	})
}

func TestPropertyProjectHashIgnoresInsertionOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z]{3,6}`), func(s string) string { return s }).Draw(t, "ids")

		a := NewDocument()
		b := NewDocument()
		for _, id := range ids {
			a.World.Towns[id] = &Town{Name: id}
		}
		for i := len(ids) - 1; i >= 0; i-- {
			b.World.Towns[ids[i]] = &Town{Name: ids[i]}
		}

		_, hashA, _ := Project(a)
		_, hashB, _ := Project(b)
		if hashA != hashB {
			t.Fatalf("hash depends on map insertion order: %s vs %s", hashA, hashB)
		}
	})
}
