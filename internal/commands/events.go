package commands

import (
	"strconv"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleEvent implements `event seed <n>`, `event draw <town>`, `event
// clear <id>` (spec.md §4.D Events). Draw applies deterministic mood
// mods and is idempotent by eventId (enforced by the Store's
// processedEventIds check before this handler runs).
func handleEvent(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("event requires a subcommand")
	}
	switch args[0] {
	case "seed":
		return eventSeed(doc, args[1:])
	case "draw":
		return eventDraw(doc, args[1:])
	case "clear":
		return eventClear(doc, args[1:])
	default:
		return rejected("unknown event subcommand")
	}
}

func eventSeed(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("event seed requires <n>")
	}
	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return rejected("event seed requires an integer")
	}
	doc.World.Events.Seed = n
	doc.World.Events.Index = 0
	return Result{Applied: true, OutputLines: []string{"event deck seeded"}}, nil
}

func eventDraw(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("event draw requires <town>")
	}
	town := args[0]
	if _, ok := doc.World.Towns[town]; !ok {
		return rejected("unknown town " + town)
	}
	eventType := deterministicEventType(doc.World.Events.Seed, doc.World.Events.Index)
	mods := deckModsForType(eventType)
	id := deterministicEventID(doc.World.Events.Seed, doc.World.Events.Index)

	doc.World.Events.Active = append(doc.World.Events.Active, &worldstate.WorldEvent{
		ID: id, Type: eventType, Town: town,
		StartsDay: doc.World.Clock.Day, EndsDay: doc.World.Clock.Day + 2, Mods: mods,
	})
	applyMoodMods(doc, town, mods)
	doc.World.Events.Index++
	return Result{Applied: true, OutputLines: []string{"drew " + eventType + " for " + town}}, nil
}

func eventClear(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("event clear requires <id>")
	}
	id := args[0]
	kept := doc.World.Events.Active[:0:0]
	found := false
	for _, e := range doc.World.Events.Active {
		if e.ID == id {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return rejected("unknown event " + id)
	}
	doc.World.Events.Active = kept
	return Result{Applied: true, OutputLines: []string{"event " + id + " cleared"}}, nil
}

func deterministicEventID(seed int64, index int) string {
	return deterministicEventIDPrefix + itoa64(seed) + ":" + itoa(index)
}

const deterministicEventIDPrefix = "evt:"

func itoa64(v int64) string {
	return strconv.FormatInt(v, 10)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
