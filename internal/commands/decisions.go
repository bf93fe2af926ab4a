package commands

import (
	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleDecision implements list/show/choose (spec.md §4.D Decisions).
// `choose` applies effects exactly once and can spawn at most one rumor
// derived from the decision's spec.
func handleDecision(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("decision requires a subcommand")
	}
	switch args[0] {
	case "list":
		return decisionList(doc)
	case "show":
		return decisionShow(doc, args[1:])
	case "choose":
		return decisionChoose(doc, args[1:])
	default:
		return rejected("unknown decision subcommand")
	}
}

func findDecision(doc *worldstate.Document, id string) *worldstate.Decision {
	for _, d := range doc.World.Decisions {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func decisionList(doc *worldstate.Document) (Result, error) {
	lines := make([]string, 0, len(doc.World.Decisions))
	for _, d := range doc.World.Decisions {
		lines = append(lines, d.ID+": "+d.Prompt)
	}
	return Result{Applied: false, OutputLines: lines}, nil
}

func decisionShow(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("decision show requires <id>")
	}
	d := findDecision(doc, args[0])
	if d == nil {
		return rejected("unknown decision " + args[0])
	}
	lines := []string{d.Prompt}
	for _, o := range d.Options {
		lines = append(lines, o.Key+": "+o.Label)
	}
	return Result{Applied: false, OutputLines: lines}, nil
}

func decisionChoose(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("decision choose requires <id> <option_key>")
	}
	d := findDecision(doc, args[0])
	if d == nil {
		return rejected("unknown decision " + args[0])
	}
	if d.Chosen != "" {
		return Result{Applied: false, OutputLines: []string{"decision already chosen"}}, nil
	}
	var opt *worldstate.DecisionOption
	for _, o := range d.Options {
		if o.Key == args[1] {
			opt = o
			break
		}
	}
	if opt == nil {
		return rejected("unknown decision option " + args[1])
	}

	d.Chosen = opt.Key
	applyDecisionEffects(doc, d, opt.Effects)
	return Result{Applied: true, OutputLines: []string{"decision " + args[0] + " resolved with " + opt.Key}}, nil
}

func applyDecisionEffects(doc *worldstate.Document, d *worldstate.Decision, eff worldstate.DecisionEffect) {
	if doc.World.Moods.ByTown == nil {
		doc.World.Moods.ByTown = map[string]worldstate.TownMood{}
	}
	for town, delta := range eff.MoodDeltas {
		m := doc.World.Moods.ByTown[town]
		m.Fear = clamp0to100(m.Fear + delta)
		doc.World.Moods.ByTown[town] = m
	}
	if eff.ThreatDelta != 0 {
		if doc.World.Threat.ByTown == nil {
			doc.World.Threat.ByTown = map[string]int{}
		}
		doc.World.Threat.ByTown[d.Town] = clamp0to100(doc.World.Threat.ByTown[d.Town] + eff.ThreatDelta)
	}
	for agent, delta := range eff.RepDelta {
		if a, ok := doc.Agents[agent]; ok {
			if a.Profile.Rep == nil {
				a.Profile.Rep = map[string]int{}
			}
			a.Profile.Rep[d.Town] += delta
		}
	}
	if eff.RumorSpawn != nil {
		id := doc.NextID("rumor")
		doc.World.Rumors = append(doc.World.Rumors, &worldstate.Rumor{
			ID: id, Town: d.Town, Kind: eff.RumorSpawn.Kind, Severity: eff.RumorSpawn.Severity,
			Subject: eff.RumorSpawn.Subject, ExpiresDay: doc.World.Clock.Day + eff.RumorSpawn.Duration,
		})
	}
}
