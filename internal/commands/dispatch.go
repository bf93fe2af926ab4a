// Package commands implements the God Command Service: a flat,
// two-token dispatch table over a closed set of command families, each a
// pure, replay-safe mutator over a working copy of the world document
// (spec.md §4.D). Grounded on pkg/tools/registry.go's map-keyed
// dispatch-table pattern and pkg/core/events/typed_events.go's
// closed-set-of-variants idiom: each family handler receives the
// remaining whitespace-split tokens and parses and validates them itself.
package commands

import (
	"fmt"
	"strings"

	"github.com/anthropics/worldengine/internal/worldstate"
)

// Result is the public contract of applyGodCommand (spec.md §4.D).
type Result struct {
	Applied          bool
	OutputLines      []string
	ChroniclePreview *worldstate.ChronicleRecord
	NewsPreview      *worldstate.NewsRecord
}

func rejected(line string) (Result, error) {
	return Result{Applied: false, OutputLines: []string{line}}, nil
}

// ErrInvalidInput mirrors worldstate.ErrInvalidInput's sentinel contract
// for command-level validation that must throw rather than degrade (spec
// says non-finite coordinates throw INVALID_INPUT without committing).
var ErrInvalidInput = worldstate.ErrInvalidInput

// family is one command family's handler, given the already-tokenized
// remainder of the command line (after the family token). Dedup against
// processedEventIds happens before a family handler ever runs (the
// Store.Transact caller derives the eventId via DeriveCommandEventID), so
// handlers see only commands that are safe to apply.
type family func(doc *worldstate.Document, args []string) (Result, error)

var families map[string]family

func init() {
	families = map[string]family{
		"mark":     handleMark,
		"job":      handleJob,
		"mint":     handleMint,
		"transfer": handleTransfer,
		"market":   handleMarket,
		"offer":    handleOffer,
		"trade":    handleTrade,
		"quest":    handleQuest,
		"clock":    handleClock,
		"event":    handleEvent,
		"rumor":    handleRumor,
		"decision": handleDecision,
		"mayor":    handleMayor,
		"mission":  handleMission,
		"project":  handleProject,
		"salvage":  handleSalvage,
		"rep":      handleRep,
		"nether":   handleNether,
		"help":     handleHelp,
		"describe": handleDescribe,
	}
}

// Dispatch parses command into its family token and routes to the
// matching handler. It is invoked inside a worldstate.Store.Transact
// mutator; doc is the transaction's cloned working document.
func Dispatch(doc *worldstate.Document, command string) (Result, error) {
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return rejected("empty command")
	}
	handler, ok := families[tokens[0]]
	if !ok {
		return rejected(fmt.Sprintf("unknown command family %q", tokens[0]))
	}
	return handler(doc, tokens[1:])
}

// DerivedEventID builds the family-prefixed, operationId-suffixed event
// id used for processedEventIds dedup (spec.md §4.D step 1). fanOut, when
// non-empty, is appended (e.g. ":agent:<name>") for commands whose
// replay-safety is scoped per fan-out target.
func DerivedEventID(family, operationID, fanOut string) string {
	if fanOut == "" {
		return fmt.Sprintf("%s:%s", family, operationID)
	}
	return fmt.Sprintf("%s:%s%s", family, operationID, fanOut)
}

// DeriveCommandEventID computes the Store.Transact dedup eventId for one
// raw command line before it is dispatched: the command's family token
// prefixed onto operationID, plus an ":agent:<name>" fan-out key for
// families whose line unambiguously targets a single named agent (spec.md
// §4.D step 1). This must run before Store.Transact, since Transact checks
// its EventID against processedEventIds before the mutator (and therefore
// Dispatch) ever runs.
func DeriveCommandEventID(command, operationID string) string {
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return DerivedEventID("empty", operationID, "")
	}
	return DerivedEventID(tokens[0], operationID, agentFanOut(tokens))
}

// agentFanOut returns the ":agent:<name>" fan-out key for command lines
// that unambiguously target a single named agent, or "" otherwise.
// transfer names two agents (src and dst) and has no single fan-out
// scope, so it is deliberately excluded.
func agentFanOut(tokens []string) string {
	switch tokens[0] {
	case "mint":
		if len(tokens) >= 2 {
			return ":agent:" + tokens[1]
		}
	case "job", "rep":
		if len(tokens) >= 3 {
			return ":agent:" + tokens[2]
		}
	}
	return ""
}

func appendChronicle(doc *worldstate.Document, rec *worldstate.ChronicleRecord) {
	doc.World.Chronicle = worldstate.AppendChronicle(doc.World.Chronicle, rec)
}

func appendNews(doc *worldstate.Document, rec *worldstate.NewsRecord) {
	doc.World.News = worldstate.AppendNews(doc.World.News, rec)
}

func handleHelp(doc *worldstate.Document, args []string) (Result, error) {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	return Result{Applied: false, OutputLines: []string{"families: " + strings.Join(names, ", ")}}, nil
}

func handleDescribe(doc *worldstate.Document, args []string) (Result, error) {
	if len(args) == 0 {
		return rejected("describe requires a family name")
	}
	if _, ok := families[args[0]]; !ok {
		return rejected(fmt.Sprintf("unknown command family %q", args[0]))
	}
	return Result{Applied: false, OutputLines: []string{fmt.Sprintf("family %q is recognized", args[0])}}, nil
}
