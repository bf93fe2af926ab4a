package commands

import (
	"math"
	"strconv"
	"time"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// handleMark implements `mark add <name> <x> <y> <z> [<tag>]` (spec.md
// §4.D Markers). Duplicate name policy is overwrite: a replay with the
// same eventId is a no-op (handled by the Store's processedEventIds
// check before this function ever runs); distinct eventIds with the same
// name replace fields and refresh created_at.
func handleMark(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 1 {
		return rejected("mark requires a subcommand")
	}
	switch args[0] {
	case "add":
		return markAdd(doc, args[1:])
	default:
		return rejected("unknown mark subcommand")
	}
}

func markAdd(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) < 4 {
		return rejected("mark add requires <name> <x> <y> <z> [<tag>]")
	}
	name := args[0]
	x, errX := strconv.ParseFloat(args[1], 64)
	y, errY := strconv.ParseFloat(args[2], 64)
	z, errZ := strconv.ParseFloat(args[3], 64)
	if errX != nil || errY != nil || errZ != nil {
		return rejected("mark add requires numeric coordinates")
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) || math.IsNaN(z) || math.IsInf(z, 0) {
		return Result{}, ErrInvalidInput
	}
	tag := ""
	if len(args) >= 5 {
		tag = args[4]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	replaced := false
	for _, m := range doc.World.Markers {
		if m.Name == name {
			m.X, m.Y, m.Z, m.Tag, m.CreatedAt = x, y, z, tag, now
			replaced = true
			break
		}
	}
	if !replaced {
		doc.World.Markers = append(doc.World.Markers, &worldstate.Marker{
			Name: name, X: x, Y: y, Z: z, Tag: tag, CreatedAt: now,
		})
	}

	msg := "marker " + name + " placed"
	chronicle := &worldstate.ChronicleRecord{RecordID: name + ":" + now, At: time.Now().UnixMilli(), Type: "mark", Msg: msg}
	appendChronicle(doc, chronicle)
	appendNews(doc, &worldstate.NewsRecord{RecordID: name + ":" + now, At: time.Now().UnixMilli(), Msg: msg})

	return Result{Applied: true, OutputLines: []string{msg}, ChroniclePreview: chronicle}, nil
}
