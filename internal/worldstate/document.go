// Package worldstate owns the authoritative world document: its Go shape,
// its canonical snapshot projection, its load-time sanitizer, and the
// durable, cross-process-locked transactional store that mutates it.
package worldstate

import (
	"strconv"
	"time"
)

// Document is the single aggregate root persisted by the World Store
// (spec.md §3). Everything reachable from a God Command hangs off World.
type Document struct {
	Agents   map[string]*Agent   `json:"agents"`
	Factions map[string]*Faction `json:"factions"`
	World    *World              `json:"world"`

	// Revision and LastCheckpointAt are ambient operational telemetry
	// (SPEC_FULL.md §3.1). They are never part of the authoritative
	// projection (see projection.go). Transact updates them on every
	// commit; nothing else in the module reads them.
	Revision         int64     `json:"revision"`
	LastCheckpointAt time.Time `json:"lastCheckpointAt,omitempty"`

	// IDSeq is a monotonic counter backing NextID. Like Revision, it is
	// ambient bookkeeping, not part of the authoritative projection: two
	// independently-seeded documents fed the same command sequence must
	// mint the same entity ids, which a counter guarantees and
	// math/rand or a real UUID source would not.
	IDSeq int64 `json:"idSeq"`
}

// NextID mints a deterministic, monotonically increasing id scoped to
// kind, so that replaying the same command sequence against two
// independent documents always produces byte-identical entity ids
// (and therefore identical projection hashes).
func (d *Document) NextID(kind string) string {
	d.IDSeq++
	return kind + "-" + strconv.FormatInt(d.IDSeq, 36)
}

// NoteEntry is one entry in an agent's or faction's short/long note
// sequence.
type NoteEntry struct {
	Time string `json:"time"`
	Text string `json:"text"`
}

// ArchiveEntry is one archived {time,text} record.
type ArchiveEntry struct {
	Time string `json:"time"`
	Text string `json:"text"`
}

// Traits holds an agent's fixed personality scalars.
type Traits struct {
	Courage int `json:"courage"`
	Greed   int `json:"greed"`
	Faith   int `json:"faith"`
}

// AgentProfile is the mutable behavioral profile of an agent.
type AgentProfile struct {
	Trust       int            `json:"trust"`
	Mood        string         `json:"mood"`
	Flags       []string       `json:"flags"`
	Job         string         `json:"job,omitempty"`
	WorldIntent string         `json:"world_intent,omitempty"`
	Rep         map[string]int `json:"rep"`
	Traits      Traits         `json:"traits"`
	Titles      []string       `json:"titles"`
}

// Agent is one named agent tracked by the world.
type Agent struct {
	ShortNotes        []NoteEntry    `json:"shortNotes"`
	LongNotes         []NoteEntry    `json:"longNotes"`
	Summary           string         `json:"summary"`
	Archive           []ArchiveEntry `json:"archive"`
	RecentUtterances  []string       `json:"recentUtterances"`
	LastProcessedTime string         `json:"lastProcessedTime,omitempty"`
	Profile           AgentProfile   `json:"profile"`
}

// Faction is one named faction's narrative record.
type Faction struct {
	LongNotes []NoteEntry    `json:"longNotes"`
	Summary   string         `json:"summary"`
	Archive   []ArchiveEntry `json:"archive"`
}

// World is the authoritative simulation state nested under Document.World.
type World struct {
	Player    PlayerState             `json:"player"`
	Rules     RulesState              `json:"rules"`
	WarActive bool                    `json:"warActive"`
	Factions  map[string]*WorldFaction `json:"factions"`
	Clock     ClockState              `json:"clock"`
	Threat    ThreatState             `json:"threat"`
	Moods     MoodsState              `json:"moods"`
	Events    EventsState             `json:"events"`
	Rumors    []*Rumor                `json:"rumors"`
	Decisions []*Decision             `json:"decisions"`
	Markers   []*Marker               `json:"markers"`
	Markets   map[string]*Market      `json:"markets"`
	Economy   EconomyState            `json:"economy"`

	Quests        []*Quest        `json:"quests"`
	MajorMissions []*MajorMission `json:"majorMissions"`
	Projects      []*Project      `json:"projects"`
	SalvageRuns   []*SalvageRun   `json:"salvageRuns"`

	Towns  map[string]*Town  `json:"towns"`
	Actors map[string]*Actor `json:"actors"`

	Nether NetherState `json:"nether"`

	Chronicle []*ChronicleRecord `json:"chronicle"`
	News      []*NewsRecord      `json:"news"`

	ProcessedEventIDs []string      `json:"processedEventIds"`
	Execution         ExecutionView `json:"execution"`
}

// PlayerState tracks the human player's standing.
type PlayerState struct {
	Name       string `json:"name"`
	Alive      bool   `json:"alive"`
	Legitimacy int    `json:"legitimacy"`
}

// RulesState toggles global ruleset switches.
type RulesState struct {
	AllowLethalPolitics bool `json:"allowLethalPolitics"`
}

// WorldFaction is a faction's standing within the simulated world (distinct
// from the narrative Faction record keyed in Document.Factions).
type WorldFaction struct {
	Name              string   `json:"name"`
	Towns             []string `json:"towns"`
	Doctrine          string   `json:"doctrine"`
	Rivals            []string `json:"rivals"`
	HostilityToPlayer int      `json:"hostilityToPlayer"`
	Stability         int      `json:"stability"`
}

// ClockState is the world's day/night/season clock.
type ClockState struct {
	Day       int    `json:"day"`
	Phase     string `json:"phase"` // "day" | "night"
	Season    string `json:"season"`
	UpdatedAt string `json:"updated_at"` // ISO-8601
}

// ThreatState maps townId -> threat level [0,100].
type ThreatState struct {
	ByTown map[string]int `json:"byTown"`
}

// TownMood is a town's mood triple, each clamped to [0,100].
type TownMood struct {
	Fear       int `json:"fear"`
	Unrest     int `json:"unrest"`
	Prosperity int `json:"prosperity"`
}

// MoodsState maps townId -> TownMood.
type MoodsState struct {
	ByTown map[string]TownMood `json:"byTown"`
}

// WorldEvent is one active seeded event affecting a town.
type WorldEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Town      string         `json:"town"`
	StartsDay int            `json:"starts_day"`
	EndsDay   int            `json:"ends_day"`
	Mods      map[string]int `json:"mods"`
}

// EventsState is the seeded event deck's cursor plus active events.
type EventsState struct {
	Seed   int64         `json:"seed"`
	Index  int           `json:"index"`
	Active []*WorldEvent `json:"active"`
}

// Rumor is a spawned rumor, optionally bound to a side quest.
type Rumor struct {
	ID         string `json:"id"`
	Town       string `json:"town"`
	Kind       string `json:"kind"`
	Severity   int    `json:"severity"`
	Subject    string `json:"subject"`
	ExpiresDay int    `json:"expires_day"`
	Resolved   bool   `json:"resolved"`
	SideQuest  string `json:"side_quest_id,omitempty"`
}

// DecisionOption is one selectable option on a decision.
type DecisionOption struct {
	Key     string         `json:"key"`
	Label   string         `json:"label"`
	Effects DecisionEffect `json:"effects"`
}

// DecisionEffect is the bundle of mutations a chosen option applies exactly
// once.
type DecisionEffect struct {
	MoodDeltas  map[string]int `json:"mood_deltas,omitempty"`
	ThreatDelta int            `json:"threat_delta,omitempty"`
	RepDelta    map[string]int `json:"rep_delta,omitempty"`
	RumorSpawn  *RumorSpawnSpec `json:"rumor_spawn,omitempty"`
}

// RumorSpawnSpec describes a rumor a decision effect may spawn.
type RumorSpawnSpec struct {
	Kind     string `json:"kind"`
	Severity int    `json:"severity"`
	Subject  string `json:"subject"`
	Duration int    `json:"duration"`
}

// Decision is a presented decision with options; Chosen records which
// option key was selected, if any.
type Decision struct {
	ID      string            `json:"id"`
	Town    string            `json:"town"`
	Prompt  string            `json:"prompt"`
	Options []*DecisionOption `json:"options"`
	Chosen  string            `json:"chosen,omitempty"`
}

// Marker is a named world-space point of interest.
type Marker struct {
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Tag       string  `json:"tag,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// Offer is one resting buy/sell offer in a market.
type Offer struct {
	OfferID string  `json:"offer_id"`
	Owner   string  `json:"owner"`
	Side    string  `json:"side"` // "buy" | "sell"
	Amount  int     `json:"amount"`
	Price   int     `json:"price"`
	Active  bool    `json:"active"`
}

// Market owns an ordered list of offers, unique by OfferID.
type Market struct {
	Name   string   `json:"name"`
	Marker string   `json:"marker"`
	Offers []*Offer `json:"offers"`
}

// EconomyState is the world's currency ledger.
type EconomyState struct {
	Currency    string         `json:"currency"`
	Ledger      map[string]int `json:"ledger"`
	MintedTotal *int           `json:"minted_total,omitempty"`
}

// Quest is one quest instance in any state-machine stage.
type Quest struct {
	ID         string `json:"id"`
	Type       string `json:"type"` // trade_n | visit_town | rumor_task | ...
	Town       string `json:"town,omitempty"`
	Owner      string `json:"owner,omitempty"`
	Status     string `json:"status"` // offered|accepted|in_progress|completed|cancelled
	Reward     int    `json:"reward"`
	OfferedAt  string `json:"offered_at"`
	Progress   int    `json:"progress,omitempty"`
	Target     int    `json:"target,omitempty"`
	RumorID    string `json:"rumor_id,omitempty"`
	TargetTown string `json:"target_town,omitempty"`
	Role       string `json:"role,omitempty"` // origin role, e.g. townsfolk
}

// MajorMission is one per-town major mission instance.
type MajorMission struct {
	ID     string `json:"id"`
	Town   string `json:"town"`
	Status string `json:"status"` // briefed|active|complete|failed
	Phase  int    `json:"phase"`
}

// Project is a started/advancing/completed town project.
type Project struct {
	ID     string `json:"id"`
	Town   string `json:"town"`
	Type   string `json:"type"`
	Status string `json:"status"` // active|complete|failed
	Stage  int    `json:"stage"`
}

// SalvageRun is a started/advancing/completed salvage operation.
type SalvageRun struct {
	ID     string `json:"id"`
	Town   string `json:"town"`
	Focus  string `json:"focus"`
	Status string `json:"status"`
	Stage  int    `json:"stage"`
}

// Town is one named settlement.
type Town struct {
	Name                      string   `json:"name"`
	Status                    string   `json:"status"`
	Region                    string   `json:"region,omitempty"`
	Tags                      []string `json:"tags"`
	ActiveMajorMissionID      string   `json:"activeMajorMissionId,omitempty"`
	MajorMissionCooldownUntil int      `json:"majorMissionCooldownUntilDay"`
	Hope                      int      `json:"hope"`
	Dread                     int      `json:"dread"`
	CrierQueue                []string `json:"crierQueue"`
	RecentImpacts             []string `json:"recentImpacts"`
}

// Actor is one role-holder in a town.
type Actor struct {
	ActorID string `json:"actorId"`
	TownID  string `json:"townId"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Status  string `json:"status"`
}

// NetherModifiers are the four bounded |v|<=9 nether modifiers.
type NetherModifiers struct {
	LongNight int `json:"longNight"`
	Omen      int `json:"omen"`
	Scarcity  int `json:"scarcity"`
	Threat    int `json:"threat"`
}

// DeckState is a seeded deck's cursor.
type DeckState struct {
	Seed   int64 `json:"seed"`
	Cursor int   `json:"cursor"`
}

// NetherLedgerEntry is one applied nether-tick ledger entry.
type NetherLedgerEntry struct {
	Day   int            `json:"day"`
	Town  string         `json:"town"`
	Delta map[string]int `json:"delta"`
}

// NetherState is the nether deck's modifiers and bounded ledger.
type NetherState struct {
	EventLedger []*NetherLedgerEntry `json:"eventLedger"`
	Modifiers   NetherModifiers      `json:"modifiers"`
	DeckState   DeckState            `json:"deckState"`
	LastTickDay int                  `json:"lastTickDay"`
}

// ChronicleRecord is one narrative chronicle entry.
type ChronicleRecord struct {
	RecordID string `json:"recordId"`
	SourceID string `json:"sourceId,omitempty"`
	TownID   string `json:"townId,omitempty"`
	FactionID string `json:"factionId,omitempty"`
	At       int64  `json:"at"`
	Type     string `json:"type"`
	Msg      string `json:"msg"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

// NewsRecord is one news broadcast entry.
type NewsRecord struct {
	RecordID string `json:"recordId"`
	At       int64  `json:"at"`
	Msg      string `json:"msg"`
}

// ExecutionView is the world document's embedded projection of execution
// history/pending state (spec.md §3, §4.E document backend).
type ExecutionView struct {
	History []*ExecutionReceipt `json:"history"`
	Pending []*PendingExecution `json:"pending"`
}

// ExecutionReceipt is the persisted record of a terminal execution result
// (spec.md §4.F canonical result, persisted form).
type ExecutionReceipt struct {
	ExecutionID                  string                 `json:"executionId"`
	ResultID                     string                 `json:"resultId"`
	HandoffID                    string                 `json:"handoffId"`
	ProposalID                   string                 `json:"proposalId"`
	IdempotencyKey               string                 `json:"idempotencyKey"`
	SnapshotHash                 string                 `json:"snapshotHash"`
	DecisionEpoch                int                    `json:"decisionEpoch"`
	ActorID                      string                 `json:"actorId,omitempty"`
	TownID                       string                 `json:"townId,omitempty"`
	ProposalType                 string                 `json:"proposalType"`
	Command                      string                 `json:"command"`
	AuthorityCommands             []string              `json:"authorityCommands"`
	Status                       string                 `json:"status"`
	Accepted                     bool                   `json:"accepted"`
	Executed                     bool                   `json:"executed"`
	ReasonCode                   string                 `json:"reasonCode"`
	PostExecutionSnapshotHash    string                 `json:"postExecutionSnapshotHash,omitempty"`
	PostExecutionDecisionEpoch   int                    `json:"postExecutionDecisionEpoch,omitempty"`
	Payload                      map[string]interface{} `json:"payload,omitempty"`
	At                           int64                  `json:"at"`
}

// PendingExecution is a staged-but-not-yet-finalized execution marker
// (spec.md §4.F crash-safety contract).
type PendingExecution struct {
	HandoffID             string   `json:"handoffId"`
	IdempotencyKey        string   `json:"idempotencyKey"`
	ProposalType          string   `json:"proposalType"`
	ActorID               string   `json:"actorId,omitempty"`
	TownID                string   `json:"townId,omitempty"`
	AuthorityCommands     []string `json:"authorityCommands"`
	CompletedCommandCount int      `json:"completedCommandCount"`
	StagedAt              int64    `json:"stagedAt"`
}

// NewDocument returns a fresh, empty-but-canonical document (spec.md §3
// lifecycle: "created on first load ... fresh shape if the file is missing
// or unparseable").
func NewDocument() *Document {
	return &Document{
		Agents:   map[string]*Agent{},
		Factions: map[string]*Faction{},
		World: &World{
			Rules:    RulesState{},
			Factions: map[string]*WorldFaction{},
			Clock:    ClockState{Day: 1, Phase: "day", Season: "dawn"},
			Threat:   ThreatState{ByTown: map[string]int{}},
			Moods:    MoodsState{ByTown: map[string]TownMood{}},
			Events:   EventsState{},
			Markets:  map[string]*Market{},
			Economy:  EconomyState{Currency: DefaultCurrency, Ledger: map[string]int{}},
			Towns:    map[string]*Town{},
			Actors:   map[string]*Actor{},
			Nether:   NetherState{},
		},
	}
}
