package worldstate

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sanitize rewrites a possibly hostile/malformed document into canonical
// shape: defaulting missing fields, coercing types, clamping ranges,
// dropping records that lack a required id, and capping container
// lengths (spec.md §4.C). It never panics on malformed input, it
// degrades, mirroring pkg/state/validation.go's and
// pkg/state/security.go's clamp/coerce/drop idioms.
//
// Sanitize is idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(doc *Document) *Document {
	if doc == nil {
		return NewDocument()
	}
	if doc.Agents == nil {
		doc.Agents = map[string]*Agent{}
	}
	if doc.Factions == nil {
		doc.Factions = map[string]*Faction{}
	}
	if doc.World == nil {
		doc.World = NewDocument().World
	}

	sanitizeAgents(doc.Agents)
	sanitizeFactions(doc.Factions)
	sanitizeWorld(doc.World)
	return doc
}

func sanitizeAgents(agents map[string]*Agent) {
	for _, a := range agents {
		if a.Profile.Flags == nil {
			a.Profile.Flags = []string{}
		}
		if a.Profile.Rep == nil {
			a.Profile.Rep = map[string]int{}
		}
		if a.Profile.Titles == nil {
			a.Profile.Titles = []string{}
		}
		if a.Profile.Mood == "" {
			a.Profile.Mood = "neutral"
		}
		a.Profile.Trust = clampInt(a.Profile.Trust, -100, 100)
		if a.ShortNotes == nil {
			a.ShortNotes = []NoteEntry{}
		}
		if a.LongNotes == nil {
			a.LongNotes = []NoteEntry{}
		}
		if a.Archive == nil {
			a.Archive = []ArchiveEntry{}
		}
		if a.RecentUtterances == nil {
			a.RecentUtterances = []string{}
		}
	}
}

func sanitizeFactions(factions map[string]*Faction) {
	for _, f := range factions {
		if f.LongNotes == nil {
			f.LongNotes = []NoteEntry{}
		}
		if f.Archive == nil {
			f.Archive = []ArchiveEntry{}
		}
	}
}

func sanitizeWorld(w *World) {
	if w.Factions == nil {
		w.Factions = map[string]*WorldFaction{}
	}
	for _, f := range w.Factions {
		f.HostilityToPlayer = clampInt(f.HostilityToPlayer, 0, 100)
		f.Stability = clampInt(f.Stability, 0, 100)
		if f.Towns == nil {
			f.Towns = []string{}
		}
		if f.Rivals == nil {
			f.Rivals = []string{}
		}
	}

	w.Player.Legitimacy = clampInt(w.Player.Legitimacy, 0, 100)

	if w.Clock.Day < 1 {
		w.Clock.Day = 1
	}
	if w.Clock.Phase != "day" && w.Clock.Phase != "night" {
		w.Clock.Phase = "day"
	}

	if w.Threat.ByTown == nil {
		w.Threat.ByTown = map[string]int{}
	}
	for k, v := range w.Threat.ByTown {
		w.Threat.ByTown[k] = clampInt(v, 0, 100)
	}

	if w.Moods.ByTown == nil {
		w.Moods.ByTown = map[string]TownMood{}
	}
	for k, m := range w.Moods.ByTown {
		w.Moods.ByTown[k] = TownMood{
			Fear:       clampInt(m.Fear, 0, 100),
			Unrest:     clampInt(m.Unrest, 0, 100),
			Prosperity: clampInt(m.Prosperity, 0, 100),
		}
	}

	if w.Rumors == nil {
		w.Rumors = []*Rumor{}
	}
	if w.Decisions == nil {
		w.Decisions = []*Decision{}
	}
	if w.Markers == nil {
		w.Markers = []*Marker{}
	}

	sanitizeMarkets(w.Markets)
	sanitizeEconomy(&w.Economy)
	sanitizeQuests(&w.Quests)
	sanitizeMajorMissions(w.MajorMissions, w.Towns)
	sanitizeTowns(w.Towns)
	sanitizeActors(w.Actors, w.Towns)
	sanitizeNether(&w.Nether)
	sanitizeChronicleNews(w)

	if len(w.ProcessedEventIDs) > MaxProcessedEventIDs {
		w.ProcessedEventIDs = w.ProcessedEventIDs[len(w.ProcessedEventIDs)-MaxProcessedEventIDs:]
	}
	w.ProcessedEventIDs = dedupTail(w.ProcessedEventIDs, MaxProcessedEventIDs)

	if w.Execution.History == nil {
		w.Execution.History = []*ExecutionReceipt{}
	}
	if w.Execution.Pending == nil {
		w.Execution.Pending = []*PendingExecution{}
	}
}

// dedupTail removes duplicate entries while preserving the last
// contiguous tail semantics required by invariant 1: on encountering a
// repeat, the earlier occurrence is dropped in favor of keeping the list
// as the tail of first-seen-from-the-end order.
func dedupTail(ids []string, max int) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true
		out = append(out, ids[i])
	}
	// out is newest-first; reverse to oldest-first and trim to max.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

func sanitizeMarkets(markets map[string]*Market) {
	for _, mkt := range markets {
		seen := map[string]bool{}
		kept := mkt.Offers[:0:0]
		for _, o := range mkt.Offers {
			if o.OfferID == "" {
				continue
			}
			if seen[o.OfferID] {
				continue
			}
			if o.Amount <= 0 || o.Price <= 0 {
				continue
			}
			seen[o.OfferID] = true
			kept = append(kept, o)
		}
		mkt.Offers = kept
	}
}

func sanitizeEconomy(e *EconomyState) {
	if strings.TrimSpace(e.Currency) == "" {
		e.Currency = DefaultCurrency
	}
	if e.Ledger == nil {
		e.Ledger = map[string]int{}
	}
	for agent, bal := range e.Ledger {
		if bal < 0 {
			delete(e.Ledger, agent)
		}
	}
	if e.MintedTotal != nil && *e.MintedTotal < 0 {
		e.MintedTotal = nil
	}
}

var recognizedQuestTypes = map[string]bool{
	"trade_n":     true,
	"visit_town":  true,
	"rumor_task":  true,
}

func sanitizeQuests(quests *[]*Quest) {
	kept := (*quests)[:0:0]
	for _, q := range *quests {
		if q.ID == "" {
			continue
		}
		if !recognizedQuestTypes[q.Type] {
			continue
		}
		if q.Reward < 0 {
			continue
		}
		if _, err := time.Parse(time.RFC3339, q.OfferedAt); err != nil {
			continue
		}
		kept = append(kept, q)
	}
	*quests = boundTownsfolkQuests(kept)
}

// boundTownsfolkQuests bounds townsfolk-origin quests per (townId,
// role=townsfolk) to the most recent MaxTownsfolkQuests (spec.md §4.C),
// keeping all other quests untouched and preserving relative order.
func boundTownsfolkQuests(quests []*Quest) []*Quest {
	counts := map[string]int{}
	// Walk from the end (most recent) so the kept set is the most recent
	// MaxTownsfolkQuests per town/role bucket.
	keepFromEnd := make([]bool, len(quests))
	for i := len(quests) - 1; i >= 0; i-- {
		q := quests[i]
		if q.Role != "townsfolk" {
			keepFromEnd[i] = true
			continue
		}
		key := q.Town
		if counts[key] < MaxTownsfolkQuests {
			keepFromEnd[i] = true
			counts[key]++
		}
	}
	out := make([]*Quest, 0, len(quests))
	for i, q := range quests {
		if keepFromEnd[i] {
			out = append(out, q)
		}
	}
	return out
}

// sanitizeMajorMissions collapses multiple status=active missions per
// town, keeping the one matching towns[town].activeMajorMissionId and
// demoting the rest to status=briefed (spec.md §4.C).
func sanitizeMajorMissions(missions []*MajorMission, towns map[string]*Town) {
	byTown := map[string][]*MajorMission{}
	for _, m := range missions {
		if m.Status != "active" {
			continue
		}
		byTown[m.Town] = append(byTown[m.Town], m)
	}
	for town, actives := range byTown {
		if len(actives) <= 1 {
			continue
		}
		keepID := ""
		if t, ok := towns[town]; ok {
			keepID = t.ActiveMajorMissionID
		}
		kept := false
		for _, m := range actives {
			if !kept && m.ID == keepID {
				kept = true
				continue
			}
			if !kept && keepID == "" && m == actives[0] {
				kept = true
				continue
			}
			m.Status = "briefed"
		}
	}
}

func sanitizeTowns(towns map[string]*Town) {
	for _, t := range towns {
		t.Hope = clampInt(t.Hope, 0, 100)
		t.Dread = clampInt(t.Dread, 0, 100)
		if t.MajorMissionCooldownUntil < 0 {
			t.MajorMissionCooldownUntil = 0
		}
		if t.Tags == nil {
			t.Tags = []string{}
		}
		t.Tags = sortedUnique(t.Tags)
		if len(t.CrierQueue) > MaxCrierQueueLen {
			t.CrierQueue = t.CrierQueue[len(t.CrierQueue)-MaxCrierQueueLen:]
		}
		if len(t.RecentImpacts) > MaxRecentImpactsLen {
			t.RecentImpacts = t.RecentImpacts[len(t.RecentImpacts)-MaxRecentImpactsLen:]
		}
	}
}

var roleTitles = map[string]string{
	"mayor":      "Mayor",
	"captain":    "Captain",
	"warden":     "Warden",
	"townsfolk":  "Townsfolk",
}

func sanitizeActors(actors map[string]*Actor, towns map[string]*Town) {
	for _, a := range actors {
		if strings.TrimSpace(a.Name) == "" {
			a.Name = synthesizeActorName(a.Role, townName(towns, a.TownID))
		}
	}
	// Materialize the implicit {mayor,captain,warden,townsfolk} set per
	// town with default synthesized names when absent (spec.md §3).
	for townID, t := range towns {
		for _, role := range []string{"mayor", "captain", "warden", "townsfolk"} {
			if hasRoleForTown(actors, townID, role) {
				continue
			}
			id := fmt.Sprintf("%s:%s", townID, role)
			actors[id] = &Actor{
				ActorID: id,
				TownID:  townID,
				Name:    synthesizeActorName(role, t.Name),
				Role:    role,
				Status:  "active",
			}
		}
	}
}

func hasRoleForTown(actors map[string]*Actor, townID, role string) bool {
	for _, a := range actors {
		if a.TownID == townID && a.Role == role {
			return true
		}
	}
	return false
}

func townName(towns map[string]*Town, townID string) string {
	if t, ok := towns[townID]; ok {
		return t.Name
	}
	return townID
}

// synthesizeActorName deterministically derives "<TitleCaseRole> of
// <TownName>" for missing actor names (spec.md §3 invariant 8, §4.C).
func synthesizeActorName(role, town string) string {
	title, ok := roleTitles[role]
	if !ok {
		title = strings.Title(role)
	}
	return fmt.Sprintf("%s of %s", title, town)
}

func sanitizeNether(n *NetherState) {
	if len(n.EventLedger) > MaxNetherLedgerLen {
		n.EventLedger = n.EventLedger[len(n.EventLedger)-MaxNetherLedgerLen:]
	}
	n.Modifiers.LongNight = clampInt(n.Modifiers.LongNight, -NetherModifierClamp, NetherModifierClamp)
	n.Modifiers.Omen = clampInt(n.Modifiers.Omen, -NetherModifierClamp, NetherModifierClamp)
	n.Modifiers.Scarcity = clampInt(n.Modifiers.Scarcity, -NetherModifierClamp, NetherModifierClamp)
	n.Modifiers.Threat = clampInt(n.Modifiers.Threat, -NetherModifierClamp, NetherModifierClamp)

	maxSeen := n.LastTickDay
	for _, e := range n.EventLedger {
		if e.Day > maxSeen {
			maxSeen = e.Day
		}
	}
	n.LastTickDay = maxSeen
}

func sanitizeChronicleNews(w *World) {
	if len(w.Chronicle) > MaxChronicleRecords {
		w.Chronicle = w.Chronicle[len(w.Chronicle)-MaxChronicleRecords:]
	}
	if len(w.News) > MaxNewsRecords {
		w.News = w.News[len(w.News)-MaxNewsRecords:]
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sortedUnique(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
