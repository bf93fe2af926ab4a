package commands

import (
	"strconv"
	"time"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleQuest implements the quest state machine {offered -> accepted ->
// in_progress -> completed|cancelled} (spec.md §4.D Quests).
func handleQuest(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("quest requires a subcommand")
	}
	switch args[0] {
	case "offer":
		return questOffer(doc, args[1:])
	case "accept":
		return questAccept(doc, args[1:])
	case "complete":
		return questComplete(doc, args[1:])
	case "cancel":
		return questCancel(doc, args[1:])
	case "visit":
		return questVisit(doc, args[1:])
	default:
		return rejected("unknown quest subcommand")
	}
}

func findQuest(doc *worldstate.Document, id string) *worldstate.Quest {
	for _, q := range doc.World.Quests {
		if q.ID == id {
			return q
		}
	}
	return nil
}

func questOffer(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 3 {
		return rejected("quest offer requires <type> <town> <reward> [target]")
	}
	qType, town := args[0], args[1]
	if !recognizedQuestType(qType) {
		return rejected("unrecognized quest type " + qType)
	}
	if _, ok := doc.World.Towns[town]; !ok {
		return rejected("unknown town " + town)
	}
	reward, err := strconv.Atoi(args[2])
	if err != nil || reward < 0 {
		return rejected("quest reward must be a non-negative integer")
	}
	target := 0
	if len(args) >= 4 {
		target, _ = strconv.Atoi(args[3])
	}
	id := doc.NextID("quest")
	doc.World.Quests = append(doc.World.Quests, &worldstate.Quest{
		ID: id, Type: qType, Town: town, Status: "offered", Reward: reward,
		OfferedAt: time.Now().UTC().Format(time.RFC3339), Target: target,
	})
	return Result{Applied: true, OutputLines: []string{"quest " + id + " offered"}}, nil
}

func recognizedQuestType(t string) bool {
	switch t {
	case "trade_n", "visit_town", "rumor_task":
		return true
	default:
		return false
	}
}

func questAccept(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("quest accept requires <owner> <quest_id>")
	}
	owner, id := args[0], args[1]
	q := findQuest(doc, id)
	if q == nil {
		return rejected("unknown quest " + id)
	}
	if q.Status != "offered" {
		return rejected("quest " + id + " is not offered")
	}
	q.Status = "accepted"
	q.Owner = owner
	if q.Type == "trade_n" {
		q.Status = "in_progress"
	}
	return Result{Applied: true, OutputLines: []string{owner + " accepted quest " + id}}, nil
}

func questComplete(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("quest complete requires <quest_id>")
	}
	q := findQuest(doc, args[0])
	if q == nil {
		return rejected("unknown quest " + args[0])
	}
	if q.Status == "completed" {
		return Result{Applied: false, OutputLines: []string{"quest already completed"}}, nil
	}
	if q.Status != "accepted" && q.Status != "in_progress" {
		return rejected("quest " + args[0] + " is not in a completable state")
	}
	q.Status = "completed"
	if doc.World.Economy.Ledger == nil {
		doc.World.Economy.Ledger = map[string]int{}
	}
	doc.World.Economy.Ledger[q.Owner] += q.Reward
	return Result{Applied: true, OutputLines: []string{"quest " + args[0] + " completed"}}, nil
}

func questCancel(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("quest cancel requires <quest_id>")
	}
	q := findQuest(doc, args[0])
	if q == nil {
		return rejected("unknown quest " + args[0])
	}
	if q.Status == "completed" || q.Status == "cancelled" {
		return Result{Applied: false, OutputLines: []string{"quest already terminal"}}, nil
	}
	q.Status = "cancelled"
	return Result{Applied: true, OutputLines: []string{"quest " + args[0] + " cancelled"}}, nil
}

// questVisit auto-completes a visit_town quest on `quest visit` (spec.md
// §4.D Quests).
func questVisit(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("quest visit requires <quest_id>")
	}
	q := findQuest(doc, args[0])
	if q == nil {
		return rejected("unknown quest " + args[0])
	}
	if q.Status == "completed" {
		return Result{Applied: false, OutputLines: []string{"quest already completed"}}, nil
	}
	if q.Type != "visit_town" && q.Type != "rumor_task" {
		return rejected("quest " + args[0] + " does not auto-complete on visit")
	}
	q.Status = "completed"
	if doc.World.Economy.Ledger == nil {
		doc.World.Economy.Ledger = map[string]int{}
	}
	doc.World.Economy.Ledger[q.Owner] += q.Reward

	if q.Type == "rumor_task" && q.RumorID != "" {
		for _, r := range doc.World.Rumors {
			if r.ID == q.RumorID {
				r.Resolved = true
			}
		}
	}
	return Result{Applied: true, OutputLines: []string{"quest " + args[0] + " visited and completed"}}, nil
}
