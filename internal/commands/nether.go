package commands

import (
	"sort"
	"strconv"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleNether implements `nether tick <days>` (spec.md §4.D Nether
// tick): advances a seeded card deck cursor, applying bounded ledger
// entries to all towns. Deterministic for equal seeds+state; ledger
// truncated to 120.
func handleNether(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("nether requires a subcommand")
	}
	switch args[0] {
	case "tick":
		return netherTick(doc, args[1:])
	default:
		return rejected("unknown nether subcommand")
	}
}

func netherTick(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("nether tick requires <days>")
	}
	days, err := strconv.Atoi(args[0])
	if err != nil || days <= 0 {
		return rejected("nether tick requires a positive integer day count")
	}

	towns := make([]string, 0, len(doc.World.Towns))
	for id := range doc.World.Towns {
		towns = append(towns, id)
	}
	sort.Strings(towns)

	n := &doc.World.Nether
	for i := 0; i < days; i++ {
		n.DeckState.Cursor++
		for _, townID := range towns {
			delta := netherDeltaForCursor(n.DeckState.Seed, n.DeckState.Cursor)
			applyNetherDelta(doc, townID, delta)
			n.EventLedger = append(n.EventLedger, &worldstate.NetherLedgerEntry{
				Day: doc.World.Clock.Day, Town: townID, Delta: delta,
			})
		}
		if len(n.EventLedger) > worldstate.MaxNetherLedgerLen {
			n.EventLedger = n.EventLedger[len(n.EventLedger)-worldstate.MaxNetherLedgerLen:]
		}
		n.LastTickDay = doc.World.Clock.Day
	}
	return Result{Applied: true, OutputLines: []string{"nether ticked " + args[0] + " day(s)"}}, nil
}

func netherDeltaForCursor(seed int64, cursor int) map[string]int {
	h := deterministicHash("nether", cursor) ^ uint64(seed)
	return map[string]int{
		"longNight": int(h%5) - 2,
		"omen":      int((h/5)%5) - 2,
	}
}

func applyNetherDelta(doc *worldstate.Document, townID string, delta map[string]int) {
	n := &doc.World.Nether
	n.Modifiers.LongNight = clampToNetherBound(n.Modifiers.LongNight + delta["longNight"])
	n.Modifiers.Omen = clampToNetherBound(n.Modifiers.Omen + delta["omen"])

	if doc.World.Moods.ByTown == nil {
		doc.World.Moods.ByTown = map[string]worldstate.TownMood{}
	}
	m := doc.World.Moods.ByTown[townID]
	m.Fear = clamp0to100(m.Fear + delta["longNight"])
	doc.World.Moods.ByTown[townID] = m
}

func clampToNetherBound(v int) int {
	if v < -worldstate.NetherModifierClamp {
		return -worldstate.NetherModifierClamp
	}
	if v > worldstate.NetherModifierClamp {
		return worldstate.NetherModifierClamp
	}
	return v
}
