// Package telemetry provides the append-only interaction event log and the
// per-item mastery aggregates derived from it. It is pure bookkeeping: the
// only arithmetic here is aggregation.
package telemetry

import "sort"

// Event types appended to the log. "turn" carries the full exchange;
// the rest are interaction telemetry from the presentation layer or signals
// derived by the planner/gateway.
const (
	EventTurn          = "turn"
	EventUserInput     = "user_input"
	EventHover         = "hover"
	EventDontKnow      = "click_dont_know"
	EventPracticeAgain = "double_tap_practice_again"
	EventConfidence    = "confidence_report"
	EventRepairMove    = "repair_move"
	EventMissedTarget  = "missed_target"
	EventLookup        = "lookup_timing"
	EventWordsKnown    = "words_known"
)

// Aggregate accumulates mastery counters for one item. Rows persist across
// sessions and only ever accrete.
//
// HoverCount is deliberately the only field a hover event may touch: hovering
// is curiosity, not failure, and must never feed negative-mastery scoring.
type Aggregate struct {
	UserUsed      int `json:"user_used,omitempty"`
	AssistantUsed int `json:"assistant_used,omitempty"`
	UserKnown     int `json:"user_known,omitempty"`
	DontKnow      int `json:"dont_know,omitempty"`
	PracticeAgain int `json:"practice_again,omitempty"`
	MissedTarget  int `json:"missed_target,omitempty"`
	LookupCount   int `json:"lookup_count,omitempty"`
	LookupMSTotal int `json:"lookup_ms_total,omitempty"`
	UsedUnsure    int `json:"used_unsure,omitempty"`
	UsedGuessing  int `json:"used_guessing,omitempty"`
	HoverCount    int `json:"hover_count,omitempty"`
	ConvSuccess   int `json:"conv_success,omitempty"`

	// Confidence histogram from confidence_report events.
	ConfConfident int `json:"conf_confident,omitempty"`
	ConfUnsure    int `json:"conf_unsure,omitempty"`
	ConfGuessing  int `json:"conf_guessing,omitempty"`

	LastTurnSeen int `json:"last_turn_seen,omitempty"`
}

// Exposures is the total number of confirmed uses across both speakers.
func (a *Aggregate) Exposures() int {
	return a.UserUsed + a.AssistantUsed
}

// AvgLookupMS is the mean lookup latency, or 0 with no lookups.
func (a *Aggregate) AvgLookupMS() float64 {
	if a.LookupCount == 0 {
		return 0
	}
	return float64(a.LookupMSTotal) / float64(a.LookupCount)
}

// Cache is the in-memory view of mastery aggregates for the current session,
// keyed by item id. The store mutates it through BumpItem so memory and disk
// stay in sync.
type Cache map[string]*Aggregate

// Get returns the aggregate for id, or a zero aggregate if the item has no
// history. Missing history is never an error: it just means maximal urgency.
func (c Cache) Get(id string) Aggregate {
	if a, ok := c[id]; ok {
		return *a
	}
	return Aggregate{}
}

// IDs returns the cached item ids in sorted order, for deterministic iteration.
func (c Cache) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
