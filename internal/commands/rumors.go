package commands

import (
	"strconv"
	"time"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleRumor implements spawn/resolve/clear/quest (spec.md §4.D
// Rumors). Spawning creates a side-quest-eligible rumor_task via `rumor
// quest <id>`, binding the side quest's rumor_id.
func handleRumor(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("rumor requires a subcommand")
	}
	switch args[0] {
	case "spawn":
		return rumorSpawn(doc, args[1:])
	case "resolve":
		return rumorResolve(doc, args[1:])
	case "clear":
		return rumorClear(doc, args[1:])
	case "quest":
		return rumorQuest(doc, args[1:])
	default:
		return rejected("unknown rumor subcommand")
	}
}

func rumorSpawn(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 4 {
		return rejected("rumor spawn requires <town> <kind> <severity> <subject> [duration]")
	}
	town, kind := args[0], args[1]
	if _, ok := doc.World.Towns[town]; !ok {
		return rejected("unknown town " + town)
	}
	severity, err := strconv.Atoi(args[2])
	if err != nil {
		return rejected("rumor severity must be an integer")
	}
	subject := args[3]
	duration := 3
	if len(args) >= 5 {
		duration, _ = strconv.Atoi(args[4])
	}
	id := doc.NextID("rumor")
	doc.World.Rumors = append(doc.World.Rumors, &worldstate.Rumor{
		ID: id, Town: town, Kind: kind, Severity: severity, Subject: subject,
		ExpiresDay: doc.World.Clock.Day + duration,
	})
	return Result{Applied: true, OutputLines: []string{"rumor " + id + " spawned in " + town}}, nil
}

func findRumor(doc *worldstate.Document, id string) *worldstate.Rumor {
	for _, r := range doc.World.Rumors {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func rumorResolve(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("rumor resolve requires <id>")
	}
	r := findRumor(doc, args[0])
	if r == nil {
		return rejected("unknown rumor " + args[0])
	}
	if r.Resolved {
		return Result{Applied: false, OutputLines: []string{"rumor already resolved"}}, nil
	}
	r.Resolved = true
	return Result{Applied: true, OutputLines: []string{"rumor " + args[0] + " resolved"}}, nil
}

func rumorClear(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("rumor clear requires <id>")
	}
	kept := doc.World.Rumors[:0:0]
	found := false
	for _, r := range doc.World.Rumors {
		if r.ID == args[0] {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return rejected("unknown rumor " + args[0])
	}
	doc.World.Rumors = kept
	return Result{Applied: true, OutputLines: []string{"rumor " + args[0] + " cleared"}}, nil
}

// rumorQuest binds a side quest to a rumor, creating a rumor_task quest
// (spec.md §4.D Rumors).
func rumorQuest(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("rumor quest requires <rumor_id>")
	}
	r := findRumor(doc, args[0])
	if r == nil {
		return rejected("unknown rumor " + args[0])
	}
	if r.SideQuest != "" {
		return Result{Applied: false, OutputLines: []string{"rumor already has a side quest"}}, nil
	}
	id := doc.NextID("quest")
	doc.World.Quests = append(doc.World.Quests, &worldstate.Quest{
		ID: id, Type: "rumor_task", Town: r.Town, Status: "offered",
		Reward: 15 + r.Severity*5, OfferedAt: time.Now().UTC().Format(time.RFC3339), RumorID: r.ID,
	})
	r.SideQuest = id
	return Result{Applied: true, OutputLines: []string{"side quest " + id + " bound to rumor " + args[0]}}, nil
}
