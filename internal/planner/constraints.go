package planner

import "github.com/suda-labs/suda/internal/item"

// TargetType labels why a must-target was issued.
type TargetType string

const (
	TargetVocab       TargetType = "vocab"
	TargetGrammar     TargetType = "grammar"
	TargetCollocation TargetType = "collocation"
	TargetNewWord     TargetType = "new_word"
)

// MustTarget is an item the generated reply is required to use this turn.
type MustTarget struct {
	ID                  item.ID    `json:"id"`
	Type                TargetType `json:"type"`
	SurfaceForms        []string   `json:"surface_forms"`
	Priority            float64    `json:"priority"`
	ScaffoldingRequired bool       `json:"scaffolding_required,omitempty"`
	ExposureStage       int        `json:"exposure_stage,omitempty"`
	Gloss               string     `json:"gloss,omitempty"`
}

// GrammarPattern is a sentence pattern the reply may lean on.
type GrammarPattern struct {
	ID      item.ID `json:"id"`
	Pattern string  `json:"pattern"`
}

// Forbidden holds the hard generation limits for a turn.
type Forbidden struct {
	IntroduceNewVocab bool `json:"introduce_new_vocab"`
	SentenceLengthMax int  `json:"sentence_length_max"`
}

// Constraints is the full vocabulary/grammar budget for one turn.
type Constraints struct {
	MustTarget      []MustTarget     `json:"must_target"`
	AllowedSupport  []string         `json:"allowed_support"`
	AllowedStretch  []string         `json:"allowed_stretch,omitempty"`
	ReinforcedWords []string         `json:"reinforced_words,omitempty"`
	RequireNewVocab bool             `json:"require_new_vocab,omitempty"`
	AllowedGrammar  []GrammarPattern `json:"allowed_grammar"`
	Forbidden       Forbidden        `json:"forbidden"`
}

// TargetIDs returns the issued target ids in order.
func (c Constraints) TargetIDs() []string {
	ids := make([]string, 0, len(c.MustTarget))
	for _, t := range c.MustTarget {
		ids = append(ids, string(t.ID))
	}
	return ids
}
