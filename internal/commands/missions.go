package commands

import (
	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleMayor implements `mayor talk <town>` (creates a briefed mission,
// enqueues mission_available on the crier queue) and `mayor accept
// <town>` (promotes briefed to active, at most one active per town)
// (spec.md §4.D Major missions).
func handleMayor(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("mayor requires a subcommand")
	}
	switch args[0] {
	case "talk":
		return mayorTalk(doc, args[1:])
	case "accept":
		return mayorAccept(doc, args[1:])
	default:
		return rejected("unknown mayor subcommand")
	}
}

func mayorTalk(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("mayor talk requires <town>")
	}
	townID := args[0]
	town, ok := doc.World.Towns[townID]
	if !ok {
		return rejected("unknown town " + townID)
	}
	for _, m := range doc.World.MajorMissions {
		if m.Town == townID && m.Status == "briefed" {
			return Result{Applied: false, OutputLines: []string{"mission already briefed for " + townID}}, nil
		}
	}
	id := doc.NextID("mission")
	doc.World.MajorMissions = append(doc.World.MajorMissions, &worldstate.MajorMission{
		ID: id, Town: townID, Status: "briefed", Phase: 0,
	})
	town.CrierQueue = appendCrierQueue(town.CrierQueue, "mission_available")
	return Result{Applied: true, OutputLines: []string{"mission " + id + " briefed for " + townID}}, nil
}

func mayorAccept(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("mayor accept requires <town>")
	}
	townID := args[0]
	town, ok := doc.World.Towns[townID]
	if !ok {
		return rejected("unknown town " + townID)
	}
	for _, m := range doc.World.MajorMissions {
		if m.Town == townID && m.Status == "active" {
			return rejected("town " + townID + " already has an active mission")
		}
	}
	var briefed *worldstate.MajorMission
	for _, m := range doc.World.MajorMissions {
		if m.Town == townID && m.Status == "briefed" {
			briefed = m
			break
		}
	}
	if briefed == nil {
		return rejected("no briefed mission for " + townID)
	}
	briefed.Status = "active"
	briefed.Phase = 1
	town.ActiveMajorMissionID = briefed.ID
	return Result{Applied: true, OutputLines: []string{"mission " + briefed.ID + " active for " + townID}}, nil
}

// handleMission implements `mission advance <id>`, `mission complete
// <id>`, `mission fail <id>` (spec.md §4.D Major missions).
func handleMission(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("mission requires a subcommand")
	}
	switch args[0] {
	case "advance":
		return missionAdvance(doc, args[1:])
	case "complete":
		return missionTerminate(doc, args[1:], "complete")
	case "fail":
		return missionTerminate(doc, args[1:], "fail")
	default:
		return rejected("unknown mission subcommand")
	}
}

func findMission(doc *worldstate.Document, id string) *worldstate.MajorMission {
	for _, m := range doc.World.MajorMissions {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func missionAdvance(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("mission advance requires <id>")
	}
	m := findMission(doc, args[0])
	if m == nil {
		return rejected("unknown mission " + args[0])
	}
	if m.Status != "active" {
		return rejected("mission " + args[0] + " is not active")
	}
	m.Phase++
	return Result{Applied: true, OutputLines: []string{"mission " + args[0] + " advanced to phase " + itoa(m.Phase)}}, nil
}

// missionTerminate moves a mission to a terminal state, sets the town's
// cooldown until clock.day+3, and adjusts town hope/dread by fixed
// deltas (spec.md §4.D Major missions).
func missionTerminate(doc *worldstate.Document, args []string, verb string) (Result, error) {
	if len(args) < 1 {
		return rejected("mission " + verb + " requires <id>")
	}
	m := findMission(doc, args[0])
	if m == nil {
		return rejected("unknown mission " + args[0])
	}
	if m.Status != "active" {
		return rejected("mission " + args[0] + " is not active")
	}
	town, ok := doc.World.Towns[m.Town]
	if !ok {
		return rejected("unknown town " + m.Town)
	}

	if verb == "complete" {
		m.Status = "complete"
		town.Hope = clamp0to100(town.Hope + 15)
		town.Dread = clamp0to100(town.Dread - 5)
	} else {
		m.Status = "failed"
		town.Hope = clamp0to100(town.Hope - 10)
		town.Dread = clamp0to100(town.Dread + 15)
	}
	town.ActiveMajorMissionID = ""
	town.MajorMissionCooldownUntil = doc.World.Clock.Day + 3
	return Result{Applied: true, OutputLines: []string{"mission " + args[0] + " " + verb + "d"}}, nil
}
