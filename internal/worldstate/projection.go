package worldstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Snapshot is the canonical, order-independent form of a world document:
// a tree of JSON-marshalable values with every mapping key-sorted and
// every sequence resorted by its defined key (spec.md §4.A).
type Snapshot map[string]interface{}

// Project computes the authoritative snapshot, its SHA-256 fingerprint,
// and the decision epoch for a world document. Pure; no I/O, matching
// pkg/state/delta.go's pure-transform discipline for anything that feeds
// a hash or a diff.
func Project(doc *Document) (snapshot Snapshot, snapshotHash string, decisionEpoch *int) {
	w := doc.World
	if w == nil {
		return Snapshot{}, hashBytes(canonicalEncode(Snapshot{})), nil
	}

	day := w.Clock.Day
	decisionEpoch = &day

	snapshot = Snapshot{
		"player":    canonicalizeValue(w.Player),
		"rules":     canonicalizeValue(w.Rules),
		"warActive": w.WarActive,
		"factions":  canonicalMapByKey(w.Factions),
		"clock":     canonicalizeValue(w.Clock),
		"threat":    canonicalizeValue(w.Threat),
		"moods":     canonicalizeValue(w.Moods),
		"events":    canonicalizeEvents(w.Events),
		"rumors":    canonicalSortedSeq(w.Rumors, func(r *Rumor) string { return r.ID }),
		"decisions": canonicalizeDecisions(w.Decisions),
		"markers":   canonicalizeMarkers(w.Markers),
		"markets":   canonicalizeMarkets(w.Markets),
		"economy":   canonicalizeValue(w.Economy),

		"quests":        canonicalizeQuests(w.Quests),
		"majorMissions": canonicalSortedSeq(w.MajorMissions, func(m *MajorMission) string { return m.ID }),
		"projects":      canonicalSortedSeq(w.Projects, func(p *Project) string { return p.ID }),
		"salvageRuns":   canonicalSortedSeq(w.SalvageRuns, func(s *SalvageRun) string { return s.ID }),

		"towns":  canonicalMapByKey(w.Towns),
		"actors": canonicalMapByKey(w.Actors),

		"nether": canonicalizeValue(w.Nether),

		// chronicle, news, archive, processedEventIds, execution.* are
		// intentionally dropped: narrative/log data, not authoritative
		// facts (spec.md §4.A).
	}

	return snapshot, hashBytes(canonicalEncode(snapshot)), decisionEpoch
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalEncode deterministically encodes a canonicalized tree: objects
// as `{"k1":v1,"k2":v2}` with lexicographically sorted keys, arrays as
// `[a,b,c]` in the order already established by the caller. It never
// relies on encoding/json's map ordering (which is already sorted, but we
// make the contract explicit and independent of that implementation
// detail by pre-sorting into ordered key/value pairs before encoding).
func canonicalEncode(v interface{}) []byte {
	var sb strings.Builder
	encodeCanonical(&sb, v)
	return []byte(sb.String())
}

func encodeCanonical(sb *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case Snapshot:
		encodeCanonicalMap(sb, map[string]interface{}(val))
	case map[string]interface{}:
		encodeCanonicalMap(sb, val)
	case []interface{}:
		sb.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			encodeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case string:
		b, _ := json.Marshal(val)
		sb.Write(b)
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case int:
		fmt.Fprintf(sb, "%d", val)
	case int64:
		fmt.Fprintf(sb, "%d", val)
	case float64:
		sb.WriteString(encodeNumber(val))
	default:
		// Fallback for any value that slipped through canonicalizeValue
		// un-normalized (struct literals etc.), marshal then re-decode
		// so keys still sort and numbers still normalize.
		b, err := json.Marshal(val)
		if err != nil {
			sb.WriteString("null")
			return
		}
		var generic interface{}
		_ = json.Unmarshal(b, &generic)
		encodeCanonical(sb, normalizeGeneric(generic))
	}
}

func encodeCanonicalMap(sb *strings.Builder, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == nil {
			continue // undefined/missing fields are omitted
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		sb.Write(kb)
		sb.WriteByte(':')
		encodeCanonical(sb, m[k])
	}
	sb.WriteByte('}')
}

// normalizeGeneric recursively sorts/normalizes a json.Unmarshal'd
// interface{} tree (map[string]interface{} / []interface{} / float64 /
// string / bool / nil), applying the numeric-normalization rule.
func normalizeGeneric(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = normalizeGeneric(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = normalizeGeneric(e)
		}
		return out
	case float64:
		return normalizeNumber(val)
	case string:
		t := strings.TrimSpace(val)
		return t
	default:
		return val
	}
}

// encodeNumber writes integral values without a fractional part, other
// finite values in %g form, and maps non-finite values to null
// (spec.md §4.A numeric normalization rule).
func encodeNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "null"
	}
	truncated := math.Trunc(f)
	if truncated == f {
		return fmt.Sprintf("%d", int64(truncated))
	}
	return fmt.Sprintf("%g", f)
}

func normalizeNumber(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// canonicalizeValue round-trips a typed struct through JSON so its fields
// become a plain map[string]interface{}/[]interface{} tree, ready for
// canonicalEncode. This is the bridge between Go's typed document and the
// canonical projection's untyped tree.
func canonicalizeValue(v interface{}) interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil
	}
	return normalizeGeneric(generic)
}

// canonicalMapByKey canonicalizes a Go map into a Snapshot sub-tree whose
// keys are already the map keys (mappings are reserialized with sorted
// keys at encode time, so no pre-sort is required here beyond producing a
// plain map).
func canonicalMapByKey[V any](m map[string]V) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = canonicalizeValue(v)
	}
	return out
}

// canonicalSortedSeq canonicalizes a slice of pointers, sorted by the
// given key function, into a []interface{} ready for canonicalEncode.
func canonicalSortedSeq[T any](items []T, key func(T) string) []interface{} {
	cp := make([]T, len(items))
	copy(cp, items)
	sort.Slice(cp, func(i, j int) bool { return key(cp[i]) < key(cp[j]) })
	out := make([]interface{}, len(cp))
	for i, v := range cp {
		out[i] = canonicalizeValue(v)
	}
	return out
}

// canonicalizeEvents sorts active events by (day-zero-padded-6, id) per
// spec.md §4.A.
func canonicalizeEvents(ev EventsState) interface{} {
	cp := make([]*WorldEvent, len(ev.Active))
	copy(cp, ev.Active)
	sort.Slice(cp, func(i, j int) bool {
		return dayPaddedKey(cp[i].StartsDay, cp[i].ID) < dayPaddedKey(cp[j].StartsDay, cp[j].ID)
	})
	active := make([]interface{}, len(cp))
	for i, e := range cp {
		active[i] = canonicalizeValue(e)
	}
	return map[string]interface{}{
		"seed":   ev.Seed,
		"index":  ev.Index,
		"active": active,
	}
}

func dayPaddedKey(day int, id string) string {
	return fmt.Sprintf("%06d:%s", day, id)
}

// canonicalizeDecisions sorts decisions by id, and sorts each decision's
// options by key (spec.md §4.A).
func canonicalizeDecisions(decisions []*Decision) []interface{} {
	cp := make([]*Decision, len(decisions))
	copy(cp, decisions)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
	out := make([]interface{}, len(cp))
	for i, d := range cp {
		opts := make([]*DecisionOption, len(d.Options))
		copy(opts, d.Options)
		sort.Slice(opts, func(a, b int) bool { return opts[a].Key < opts[b].Key })
		m := canonicalizeValue(d).(map[string]interface{})
		sortedOpts := make([]interface{}, len(opts))
		for j, o := range opts {
			sortedOpts[j] = canonicalizeValue(o)
		}
		m["options"] = sortedOpts
		out[i] = m
	}
	return out
}

// canonicalizeMarkers sorts markers by (tag, name, x, y, z) per spec.md
// §4.A. created_at is dropped from the canonical encoding the same way
// chronicle/news are: a creation timestamp is narrative metadata, not an
// authoritative fact, and keeping it in the hash would make the
// projection depend on wall-clock time across independent runs.
func canonicalizeMarkers(markers []*Marker) []interface{} {
	cp := make([]*Marker, len(markers))
	copy(cp, markers)
	sort.Slice(cp, func(i, j int) bool {
		a, b := cp[i], cp[j]
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	out := make([]interface{}, len(cp))
	for i, m := range cp {
		v := canonicalizeValue(m).(map[string]interface{})
		delete(v, "created_at")
		out[i] = v
	}
	return out
}

// canonicalizeQuests sorts quests by id. offered_at is dropped from the
// canonical encoding for the same reason canonicalizeMarkers drops
// created_at.
func canonicalizeQuests(quests []*Quest) []interface{} {
	cp := make([]*Quest, len(quests))
	copy(cp, quests)
	sort.Slice(cp, func(i, j int) bool { return cp[i].ID < cp[j].ID })
	out := make([]interface{}, len(cp))
	for i, q := range cp {
		v := canonicalizeValue(q).(map[string]interface{})
		delete(v, "offered_at")
		out[i] = v
	}
	return out
}

// canonicalizeMarkets sorts each market's offers by offer_id (spec.md
// §4.A); markets themselves are a mapping, sorted at encode time.
func canonicalizeMarkets(markets map[string]*Market) map[string]interface{} {
	out := make(map[string]interface{}, len(markets))
	for name, mkt := range markets {
		offers := make([]*Offer, len(mkt.Offers))
		copy(offers, mkt.Offers)
		sort.Slice(offers, func(i, j int) bool { return offers[i].OfferID < offers[j].OfferID })
		offerList := make([]interface{}, len(offers))
		for i, o := range offers {
			offerList[i] = canonicalizeValue(o)
		}
		out[name] = map[string]interface{}{
			"name":   mkt.Name,
			"marker": mkt.Marker,
			"offers": offerList,
		}
	}
	return out
}
