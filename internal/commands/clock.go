package commands

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"time"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleClock implements `clock advance <n>` (spec.md §4.D Clock): flips
// day/night per tick, increments day on day->night boundary, draws one
// event per night boundary, expires rumors, applies mood-threshold
// narration, and emits contracts on days 2/4/6.
func handleClock(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("clock requires a subcommand")
	}
	switch args[0] {
	case "advance":
		return clockAdvance(doc, args[1:])
	default:
		return rejected("unknown clock subcommand")
	}
}

func clockAdvance(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("clock advance requires <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return rejected("clock advance requires a positive integer tick count")
	}

	var lines []string
	for i := 0; i < n; i++ {
		advanceOneTick(doc, &lines)
	}
	return Result{Applied: true, OutputLines: lines}, nil
}

func advanceOneTick(doc *worldstate.Document, lines *[]string) {
	c := &doc.World.Clock
	if c.Phase == "day" {
		c.Phase = "night"
		c.Day++
	} else {
		c.Phase = "day"
	}

	if c.Phase == "night" {
		drawOneSeededEvent(doc, lines)
	}

	expireRumors(doc, lines)
	applyMoodThresholdNarration(doc, lines)

	if c.Phase == "day" {
		emitDailyContracts(doc, c.Day, lines)
	}
}

// drawOneSeededEvent draws exactly one event from the seeded deck
// (cursor = events.index), applying mods to the town's moods/threat,
// then increments events.index (spec.md §4.D Clock, §8 boundary
// behavior).
func drawOneSeededEvent(doc *worldstate.Document, lines *[]string) {
	if len(doc.World.Towns) == 0 {
		return
	}
	town := deterministicTownChoice(doc, doc.World.Events.Seed, doc.World.Events.Index)
	if town == "" {
		return
	}
	eventType := deterministicEventType(doc.World.Events.Seed, doc.World.Events.Index)
	mods := deckModsForType(eventType)

	id := doc.NextID("evt")
	doc.World.Events.Active = append(doc.World.Events.Active, &worldstate.WorldEvent{
		ID: id, Type: eventType, Town: town,
		StartsDay: doc.World.Clock.Day, EndsDay: doc.World.Clock.Day + 2, Mods: mods,
	})
	applyMoodMods(doc, town, mods)
	doc.World.Events.Index++
	*lines = append(*lines, "event "+eventType+" drawn for "+town)
}

func deckModsForType(eventType string) map[string]int {
	switch eventType {
	case "unrest_spark":
		return map[string]int{"unrest": 5, "threat": 3}
	case "good_harvest":
		return map[string]int{"prosperity": 5, "fear": -2}
	case "bandit_raid":
		return map[string]int{"fear": 6, "threat": 8}
	default:
		return map[string]int{}
	}
}

func applyMoodMods(doc *worldstate.Document, town string, mods map[string]int) {
	if doc.World.Moods.ByTown == nil {
		doc.World.Moods.ByTown = map[string]worldstate.TownMood{}
	}
	m := doc.World.Moods.ByTown[town]
	m.Fear = clamp0to100(m.Fear + mods["fear"])
	m.Unrest = clamp0to100(m.Unrest + mods["unrest"])
	m.Prosperity = clamp0to100(m.Prosperity + mods["prosperity"])
	doc.World.Moods.ByTown[town] = m

	if doc.World.Threat.ByTown == nil {
		doc.World.Threat.ByTown = map[string]int{}
	}
	doc.World.Threat.ByTown[town] = clamp0to100(doc.World.Threat.ByTown[town] + mods["threat"])
}

func clamp0to100(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// expireRumors marks unresolved rumors whose expires_day < clock.day as
// resolved and reports each one in the output lines.
func expireRumors(doc *worldstate.Document, lines *[]string) {
	for _, r := range doc.World.Rumors {
		if !r.Resolved && r.ExpiresDay < doc.World.Clock.Day {
			r.Resolved = true
			*lines = append(*lines, "rumor "+r.ID+" expired")
		}
	}
}

// applyMoodThresholdNarration appends an output line for each town whose
// fear or unrest is at or above 80.
func applyMoodThresholdNarration(doc *worldstate.Document, lines *[]string) {
	for town, m := range doc.World.Moods.ByTown {
		if m.Fear >= 80 {
			*lines = append(*lines, town+" is gripped by fear")
		}
		if m.Unrest >= 80 {
			*lines = append(*lines, town+" teeters on unrest")
		}
	}
}

// emitDailyContracts emits 1-2 offered contracts per town on days 2/4/6,
// deterministic from (townId, day) (spec.md §4.D Clock).
func emitDailyContracts(doc *worldstate.Document, day int, lines *[]string) {
	if day != 2 && day != 4 && day != 6 {
		return
	}
	townIDs := make([]string, 0, len(doc.World.Towns))
	for townID := range doc.World.Towns {
		townIDs = append(townIDs, townID)
	}
	sort.Strings(townIDs)
	for _, townID := range townIDs {
		town := doc.World.Towns[townID]
		count := 1 + int(deterministicHash(townID, day)%2)
		for i := 0; i < count; i++ {
			id := doc.NextID("quest")
			doc.World.Quests = append(doc.World.Quests, &worldstate.Quest{
				ID: id, Type: "trade_n", Town: townID, Status: "offered",
				Reward: 10 + (i * 5), OfferedAt: time.Now().UTC().Format(time.RFC3339),
				Target: 1, Role: "townsfolk",
			})
			town.CrierQueue = appendCrierQueue(town.CrierQueue, "new contract in "+town.Name)
		}
	}
}

func appendCrierQueue(queue []string, line string) []string {
	queue = append(queue, line)
	if len(queue) > worldstate.MaxCrierQueueLen {
		queue = queue[len(queue)-worldstate.MaxCrierQueueLen:]
	}
	return queue
}

func deterministicTownChoice(doc *worldstate.Document, seed int64, index int) string {
	names := make([]string, 0, len(doc.World.Towns))
	for id := range doc.World.Towns {
		names = append(names, id)
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	idx := int(deterministicHash(fmt.Sprintf("%d:%d", seed, index), 0) % uint64(len(names)))
	return names[idx]
}

func deterministicEventType(seed int64, index int) string {
	types := []string{"unrest_spark", "good_harvest", "bandit_raid"}
	idx := int(deterministicHash(fmt.Sprintf("type:%d:%d", seed, index), 0) % uint64(len(types)))
	return types[idx]
}

func deterministicHash(key string, salt int) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", key, salt)))
	return h.Sum64()
}
