package commands

import "github.com/anthropics/worldengine/internal/worldstate"

var jobRoleWhitelist = map[string]bool{
	"guard":     true,
	"merchant":  true,
	"scout":     true,
	"farmer":    true,
	"artisan":   true,
	"wanderer":  true,
}

// handleJob implements `job set <agent> <role> [<home_marker>]` and
// `job clear <agent>` (spec.md §4.D Jobs).
func handleJob(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("job requires a subcommand")
	}
	switch args[0] {
	case "set":
		return jobSet(doc, args[1:])
	case "clear":
		return jobClear(doc, args[1:])
	default:
		return rejected("unknown job subcommand")
	}
}

func jobSet(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("job set requires <agent> <role> [<home_marker>]")
	}
	agentName, role := args[0], args[1]
	agent, ok := doc.Agents[agentName]
	if !ok {
		return rejected("unknown agent " + agentName)
	}
	if !jobRoleWhitelist[role] {
		return rejected("unrecognized job role " + role)
	}
	if len(args) >= 3 {
		homeMarker := args[2]
		if !markerExists(doc, homeMarker) {
			return rejected("unknown home marker " + homeMarker)
		}
	}
	agent.Profile.Job = role
	return Result{Applied: true, OutputLines: []string{agentName + " is now a " + role}}, nil
}

func jobClear(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("job clear requires <agent>")
	}
	agent, ok := doc.Agents[args[0]]
	if !ok {
		return rejected("unknown agent " + args[0])
	}
	agent.Profile.Job = ""
	return Result{Applied: true, OutputLines: []string{args[0] + " job cleared"}}, nil
}

func markerExists(doc *worldstate.Document, name string) bool {
	for _, m := range doc.World.Markers {
		if m.Name == name {
			return true
		}
	}
	return false
}
