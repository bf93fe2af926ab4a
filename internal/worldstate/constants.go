package worldstate

import "time"

// Bound constants for the world document. Grouped and commented the way
// pkg/state/constants.go groups its defaults in the reference SDK.
const (
	// Container length bounds (spec.md §3 invariant 6).
	MaxChronicleRecords  = 200 // world.chronicle
	MaxNewsRecords       = 200 // world.news
	MaxCrierQueueLen     = 40  // per-town world.towns[*].crierQueue
	MaxRecentImpactsLen  = 30  // per-town world.towns[*].recentImpacts
	MaxNetherLedgerLen   = 120 // world.nether.eventLedger
	MaxProcessedEventIDs = 1000
	MaxTownsfolkQuests   = 24 // per (townId, role=townsfolk)

	// Execution Store read bounds (spec.md §4.E/§4.G).
	MaxContextChronicleRecords = 25
	MaxContextHistoryRecords   = 25

	// Nether modifier clamp bound (spec.md §4.C).
	NetherModifierClamp = 9

	// Lock file retry schedule (spec.md §4.B step 2).
	LockRetryAttempts  = 5
	LockRetryBaseDelay = 15 * time.Millisecond

	// Default currency when economy.currency is absent (spec.md §4.C).
	DefaultCurrency = "emerald"
)
