package telemetry

import (
	"sort"

	"github.com/suda-labs/suda/internal/item"
)

// CardSuggestion is the single new item the wrap may propose for permanent
// addition to the learner's catalog.
type CardSuggestion struct {
	Front string   `json:"front"`
	Back  string   `json:"back"`
	Tags  []string `json:"tags"`
}

// GraduatedWord is a new word that completed the exposure pipeline this
// session, as reported by the planner.
type GraduatedWord struct {
	Lexeme         string `json:"lexeme"`
	Gloss          string `json:"gloss"`
	IntroducedTurn int    `json:"introduced_turn"`
}

// WrapSummary is the deterministic end-of-session summary.
type WrapSummary struct {
	Strengths     []string        `json:"strengths"`
	Reinforce     []string        `json:"reinforce"`
	SuggestedCard *CardSuggestion `json:"suggested_card,omitempty"`
}

// ComputeWrap selects strengths (most used, least missed) and reinforcements
// (highest weakness score), plus at most one suggested card from the
// graduated new words. Pure function of its inputs; no clock, no randomness.
func ComputeWrap(catalog *item.Catalog, cache Cache, graduated []GraduatedWord, strengthsN, reinforceN int) WrapSummary {
	if strengthsN <= 0 {
		strengthsN = 3
	}
	if reinforceN <= 0 {
		reinforceN = 2
	}

	stabilityByLexeme := make(map[string]float64, len(catalog.Items))
	idByLexeme := make(map[string]string, len(catalog.Items))
	for _, it := range catalog.Items {
		lex := it.Lexeme()
		stabilityByLexeme[lex] = it.Stability
		if _, taken := idByLexeme[lex]; !taken {
			idByLexeme[lex] = string(it.ID)
		}
	}
	lexemes := catalog.Lexemes()
	aggFor := func(lex string) Aggregate {
		return cache.Get(idByLexeme[lex])
	}

	weakness := func(lex string) float64 {
		a := aggFor(lex)
		rustiness := 0.0
		if s, ok := stabilityByLexeme[lex]; ok && s > 0 {
			rustiness = 1.0 / (1.0 + s)
		}
		avgLookup := a.AvgLookupMS()
		if avgLookup > 2000 {
			avgLookup = 2000
		}
		return float64(a.PracticeAgain)*2.0 +
			float64(a.DontKnow)*1.5 +
			float64(a.UsedGuessing)*1.0 +
			float64(a.ConfGuessing)*0.5 +
			avgLookup/1000.0*0.5 +
			rustiness*0.5
	}

	strengths := append([]string(nil), lexemes...)
	sort.SliceStable(strengths, func(i, j int) bool {
		ai := aggFor(strengths[i])
		aj := aggFor(strengths[j])
		if ai.UserUsed != aj.UserUsed {
			return ai.UserUsed > aj.UserUsed
		}
		if ai.DontKnow != aj.DontKnow {
			return ai.DontKnow < aj.DontKnow
		}
		return strengths[i] < strengths[j]
	})

	reinforce := append([]string(nil), lexemes...)
	sort.SliceStable(reinforce, func(i, j int) bool {
		wi, wj := weakness(reinforce[i]), weakness(reinforce[j])
		if wi != wj {
			return wi > wj
		}
		return reinforce[i] < reinforce[j]
	})

	if len(strengths) > strengthsN {
		strengths = strengths[:strengthsN]
	}
	if len(reinforce) > reinforceN {
		reinforce = reinforce[:reinforceN]
	}

	wrap := WrapSummary{Strengths: strengths, Reinforce: reinforce}

	// At most one suggestion: earliest graduation wins, lexeme breaks ties.
	if len(graduated) > 0 {
		best := graduated[0]
		for _, g := range graduated[1:] {
			if g.IntroducedTurn < best.IntroducedTurn ||
				(g.IntroducedTurn == best.IntroducedTurn && g.Lexeme < best.Lexeme) {
				best = g
			}
		}
		wrap.SuggestedCard = &CardSuggestion{
			Front: best.Lexeme,
			Back:  best.Gloss,
			Tags:  []string{"conv_reinforced"},
		}
	}

	return wrap
}
