package commands

import (
	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleProject implements `project start/advance/complete/fail`
// (spec.md §4.D Projects & salvage). Start is idempotent and
// dedup-aware: a duplicate type per town while active returns an
// "existing" response.
func handleProject(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("project requires a subcommand")
	}
	switch args[0] {
	case "start":
		return projectStart(doc, args[1:])
	case "advance":
		return projectAdvance(doc, args[1:])
	case "complete":
		return projectTerminate(doc, args[1:], "complete")
	case "fail":
		return projectTerminate(doc, args[1:], "fail")
	default:
		return rejected("unknown project subcommand")
	}
}

func findActiveProject(doc *worldstate.Document, town, projType string) *worldstate.Project {
	for _, p := range doc.World.Projects {
		if p.Town == town && p.Type == projType && p.Status == "active" {
			return p
		}
	}
	return nil
}

func projectStart(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("project start requires <town> <type>")
	}
	town, projType := args[0], args[1]
	if _, ok := doc.World.Towns[town]; !ok {
		return rejected("unknown town " + town)
	}
	if existing := findActiveProject(doc, town, projType); existing != nil {
		return Result{Applied: false, OutputLines: []string{"existing project " + existing.ID}}, nil
	}
	id := doc.NextID("project")
	doc.World.Projects = append(doc.World.Projects, &worldstate.Project{
		ID: id, Town: town, Type: projType, Status: "active", Stage: 1,
	})
	return Result{Applied: true, OutputLines: []string{"project " + id + " started in " + town}}, nil
}

func findProject(doc *worldstate.Document, id string) *worldstate.Project {
	for _, p := range doc.World.Projects {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func projectAdvance(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("project advance requires <town> <id>")
	}
	p := findProject(doc, args[1])
	if p == nil {
		return rejected("unknown project " + args[1])
	}
	if p.Status != "active" {
		return rejected("project " + args[1] + " is not active")
	}
	p.Stage++
	return Result{Applied: true, OutputLines: []string{"project " + args[1] + " advanced to stage " + itoa(p.Stage)}}, nil
}

func projectTerminate(doc *worldstate.Document, args []string, verb string) (Result, error) {
	if len(args) < 1 {
		return rejected("project " + verb + " requires <id>")
	}
	p := findProject(doc, args[0])
	if p == nil {
		return rejected("unknown project " + args[0])
	}
	if p.Status != "active" {
		return rejected("project " + args[0] + " is not active")
	}
	if verb == "complete" {
		p.Status = "complete"
	} else {
		p.Status = "failed"
	}
	return Result{Applied: true, OutputLines: []string{"project " + args[0] + " " + verb + "d"}}, nil
}

// handleSalvage implements `salvage start/advance/complete/fail`
// (spec.md §4.D Projects & salvage), structurally identical to
// projects but keyed on the salvage focus vocabulary.
func handleSalvage(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("salvage requires a subcommand")
	}
	switch args[0] {
	case "start":
		return salvageStart(doc, args[1:])
	case "advance":
		return salvageAdvance(doc, args[1:])
	case "complete":
		return salvageTerminate(doc, args[1:], "complete")
	case "fail":
		return salvageTerminate(doc, args[1:], "fail")
	default:
		return rejected("unknown salvage subcommand")
	}
}

func findActiveSalvage(doc *worldstate.Document, town, focus string) *worldstate.SalvageRun {
	for _, s := range doc.World.SalvageRuns {
		if s.Town == town && s.Focus == focus && s.Status == "active" {
			return s
		}
	}
	return nil
}

func salvageStart(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 2 {
		return rejected("salvage start requires <town> <focus>")
	}
	town, focus := args[0], args[1]
	if _, ok := doc.World.Towns[town]; !ok {
		return rejected("unknown town " + town)
	}
	if existing := findActiveSalvage(doc, town, focus); existing != nil {
		return Result{Applied: false, OutputLines: []string{"existing salvage run " + existing.ID}}, nil
	}
	id := doc.NextID("salvage")
	doc.World.SalvageRuns = append(doc.World.SalvageRuns, &worldstate.SalvageRun{
		ID: id, Town: town, Focus: focus, Status: "active", Stage: 1,
	})
	return Result{Applied: true, OutputLines: []string{"salvage run " + id + " started in " + town}}, nil
}

func findSalvage(doc *worldstate.Document, id string) *worldstate.SalvageRun {
	for _, s := range doc.World.SalvageRuns {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func salvageAdvance(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("salvage advance requires <id>")
	}
	s := findSalvage(doc, args[0])
	if s == nil {
		return rejected("unknown salvage run " + args[0])
	}
	if s.Status != "active" {
		return rejected("salvage run " + args[0] + " is not active")
	}
	s.Stage++
	return Result{Applied: true, OutputLines: []string{"salvage run " + args[0] + " advanced to stage " + itoa(s.Stage)}}, nil
}

func salvageTerminate(doc *worldstate.Document, args []string, verb string) (Result, error) {
	if len(args) < 1 {
		return rejected("salvage " + verb + " requires <id>")
	}
	s := findSalvage(doc, args[0])
	if s == nil {
		return rejected("unknown salvage run " + args[0])
	}
	if s.Status != "active" {
		return rejected("salvage run " + args[0] + " is not active")
	}
	if verb == "complete" {
		s.Status = "complete"
	} else {
		s.Status = "failed"
	}
	return Result{Applied: true, OutputLines: []string{"salvage run " + args[0] + " " + verb + "d"}}, nil
}
