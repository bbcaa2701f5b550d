package gateway

import (
	"sort"
	"strings"

	"github.com/suda-labs/suda/internal/lang"
	"github.com/suda-labs/suda/internal/planner"
	"github.com/suda-labs/suda/internal/provider"
)

// budgetFor collects every token the reply is allowed to contain: target
// surface forms, support, stretch, reinforced words, glue and interjections.
func budgetFor(c planner.Constraints) map[string]bool {
	allowed := make(map[string]bool)
	for _, t := range c.MustTarget {
		for _, sf := range t.SurfaceForms {
			allowed[sf] = true
		}
	}
	for _, lists := range [][]string{
		c.AllowedSupport, c.AllowedStretch, c.ReinforcedWords,
		lang.GlueWords, lang.Interjections,
	} {
		for _, w := range lists {
			allowed[w] = true
		}
	}
	return allowed
}

// ValidateVocabulary checks the reply (and follow-up question) against the
// closed token budget. Particle-suffixed tokens pass when both the stem and
// the particle are individually allowed. Glossed new words pass only when the
// turn permits introduction.
func ValidateVocabulary(resp *provider.Response, c planner.Constraints) error {
	allowed := budgetFor(c)
	if !c.Forbidden.IntroduceNewVocab {
		// Glossed introductions join the budget, so their particle-suffixed
		// forms pass the same stem check as everything else.
		for w := range resp.WordGlosses {
			allowed[w] = true
		}
	}

	var offending []string
	seen := make(map[string]bool)
	for _, text := range []string{resp.AssistantReply, resp.FollowUpQuestion} {
		for _, tok := range lang.Tokenize(text) {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			if tokenAllowed(tok, allowed) {
				continue
			}
			offending = append(offending, tok)
		}
	}
	if len(offending) > 0 {
		sort.Strings(offending)
		return &VocabularyError{Tokens: offending}
	}
	return nil
}

func tokenAllowed(tok string, allowed map[string]bool) bool {
	if allowed[tok] || isDigits(tok) {
		return true
	}
	// Agglutinated particle: strip the longest matching suffix and require
	// that the remaining stem is itself allowed.
	for _, suffix := range longestFirstJosa {
		stem, ok := strings.CutSuffix(tok, suffix)
		if !ok || stem == "" {
			continue
		}
		if allowed[stem] {
			return true
		}
	}
	return false
}

var longestFirstJosa = func() []string {
	out := append([]string(nil), lang.JosaSuffixes...)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
