package commands

import (
	"strconv"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleMarket implements `market add/remove <name> [<marker>]` (spec.md
// §4.D Markets & offers).
func handleMarket(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("market requires a subcommand")
	}
	switch args[0] {
	case "add":
		return marketAdd(doc, args[1:])
	case "remove":
		return marketRemove(doc, args[1:])
	default:
		return rejected("unknown market subcommand")
	}
}

func marketAdd(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("market add requires <name> [<marker>]")
	}
	name := args[0]
	marker := ""
	if len(args) >= 2 {
		marker = args[1]
		if !markerExists(doc, marker) {
			return rejected("unknown marker " + marker)
		}
	}
	if doc.World.Markets == nil {
		doc.World.Markets = map[string]*worldstate.Market{}
	}
	if _, exists := doc.World.Markets[name]; exists {
		return rejected("market " + name + " already exists")
	}
	doc.World.Markets[name] = &worldstate.Market{Name: name, Marker: marker}
	return Result{Applied: true, OutputLines: []string{"market " + name + " created"}}, nil
}

func marketRemove(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("market remove requires <name>")
	}
	name := args[0]
	if _, exists := doc.World.Markets[name]; !exists {
		return rejected("unknown market " + name)
	}
	delete(doc.World.Markets, name)
	return Result{Applied: true, OutputLines: []string{"market " + name + " removed"}}, nil
}

// handleOffer implements `offer add <market> <owner> <side> <amount>
// <price>` and `offer cancel <market> <offer_id>` (spec.md §4.D Markets
// & offers).
func handleOffer(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("offer requires a subcommand")
	}
	switch args[0] {
	case "add":
		return offerAdd(doc, args[1:])
	case "cancel":
		return offerCancel(doc, args[1:])
	default:
		return rejected("unknown offer subcommand")
	}
}

func offerAdd(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 5 {
		return rejected("offer add requires <market> <owner> <side> <amount> <price>")
	}
	marketName, owner, side := args[0], args[1], args[2]
	market, ok := doc.World.Markets[marketName]
	if !ok {
		return rejected("unknown market " + marketName)
	}
	if side != "buy" && side != "sell" {
		return rejected("offer side must be buy or sell")
	}
	amount, errA := strconv.Atoi(args[3])
	price, errP := strconv.Atoi(args[4])
	if errA != nil || errP != nil || amount <= 0 || price <= 0 {
		return rejected("offer add requires positive integer amount and price")
	}
	offerID := doc.NextID("offer")
	market.Offers = append(market.Offers, &worldstate.Offer{
		OfferID: offerID, Owner: owner, Side: side, Amount: amount, Price: price, Active: true,
	})
	return Result{Applied: true, OutputLines: []string{"offer " + offerID + " placed in " + marketName}}, nil
}

func offerCancel(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("offer cancel requires <market> <offer_id>")
	}
	marketName, offerID := args[0], args[1]
	market, ok := doc.World.Markets[marketName]
	if !ok {
		return rejected("unknown market " + marketName)
	}
	for _, o := range market.Offers {
		if o.OfferID == offerID {
			if !o.Active {
				return Result{Applied: false, OutputLines: []string{"offer already inactive"}}, nil
			}
			o.Active = false
			return Result{Applied: true, OutputLines: []string{"offer " + offerID + " cancelled"}}, nil
		}
	}
	return rejected("unknown offer " + offerID)
}

// handleTrade implements `trade <market> <offer_id> <buyer> <qty>`
// (spec.md §4.D Markets & offers): atomically deducts buyer, credits
// seller, decrements offer amount; if amount reaches 0, sets
// active=false. Buyer-side progress updates trade_n quests owned by the
// buyer.
func handleTrade(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 4 {
		return rejected("trade requires <market> <offer_id> <buyer> <qty>")
	}
	marketName, offerID, buyer := args[0], args[1], args[2]
	qty, err := strconv.Atoi(args[3])
	if err != nil || qty <= 0 {
		return rejected("trade requires a positive integer quantity")
	}
	market, ok := doc.World.Markets[marketName]
	if !ok {
		return rejected("unknown market " + marketName)
	}
	var offer *worldstate.Offer
	for _, o := range market.Offers {
		if o.OfferID == offerID {
			offer = o
			break
		}
	}
	if offer == nil {
		return rejected("unknown offer " + offerID)
	}
	if !offer.Active {
		return rejected("offer " + offerID + " is not active")
	}
	if offer.Side != "sell" {
		return rejected("trade only supported against sell offers")
	}
	if qty > offer.Amount {
		return rejected("trade quantity exceeds offer amount")
	}
	cost := qty * offer.Price
	if doc.World.Economy.Ledger[buyer] < cost {
		return rejected(buyer + " has insufficient balance")
	}

	doc.World.Economy.Ledger[buyer] -= cost
	doc.World.Economy.Ledger[offer.Owner] += cost
	offer.Amount -= qty
	if offer.Amount == 0 {
		offer.Active = false
	}

	for _, q := range doc.World.Quests {
		if q.Type == "trade_n" && q.Owner == buyer && q.Status == "in_progress" {
			q.Progress += qty
			if q.Target > 0 && q.Progress >= q.Target {
				q.Status = "completed"
				doc.World.Economy.Ledger[buyer] += q.Reward
			}
		}
	}

	return Result{Applied: true, OutputLines: []string{"traded " + args[3] + " units of offer " + offerID}}, nil
}
