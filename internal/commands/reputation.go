package commands

import (
	"strconv"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleRep implements `rep add <agent> <faction> <n>` (spec.md §4.D
// Reputation & titles): threshold-crossing triggers automatic title
// grants, emitted exactly once even across replays (idempotency is
// guaranteed by the Store's eventId dedup upstream of this handler; the
// title-presence check below is the additional in-clone guard against a
// single transaction granting the same title twice).
func handleRep(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("rep requires a subcommand")
	}
	switch args[0] {
	case "add":
		return repAdd(doc, args[1:])
	default:
		return rejected("unknown rep subcommand")
	}
}

func repAdd(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 3 {
		return rejected("rep add requires <agent> <faction> <n>")
	}
	agentName, faction := args[0], args[1]
	agent, ok := doc.Agents[agentName]
	if !ok {
		return rejected("unknown agent " + agentName)
	}
	n, err := strconv.Atoi(args[2])
	if err != nil {
		return rejected("rep add requires an integer delta")
	}
	if agent.Profile.Rep == nil {
		agent.Profile.Rep = map[string]int{}
	}
	agent.Profile.Rep[faction] += n

	lines := []string{agentName + " rep with " + faction + " now " + strconv.Itoa(agent.Profile.Rep[faction])}
	grantTitleIfThresholdCrossed(agent, "Pact Friend", agent.Profile.Rep[faction] >= 5, &lines)
	grantTitleIfThresholdCrossed(agent, "Wanderer", countCompletedRumorSideQuests(doc, agentName) >= 3, &lines)

	return Result{Applied: true, OutputLines: lines}, nil
}

func grantTitleIfThresholdCrossed(agent *worldstate.Agent, title string, crossed bool, lines *[]string) {
	if !crossed {
		return
	}
	for _, t := range agent.Profile.Titles {
		if t == title {
			return
		}
	}
	agent.Profile.Titles = append(agent.Profile.Titles, title)
	*lines = append(*lines, "title granted: "+title)
}

func countCompletedRumorSideQuests(doc *worldstate.Document, agentName string) int {
	count := 0
	for _, q := range doc.World.Quests {
		if q.Type == "rumor_task" && q.Owner == agentName && q.Status == "completed" {
			count++
		}
	}
	return count
}
