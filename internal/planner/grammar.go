package planner

import "github.com/suda-labs/suda/internal/item"

// GrammarItem maps lexical triggers to an allowed sentence pattern.
type GrammarItem struct {
	ID       item.ID
	Pattern  string
	Triggers []string
}

// DefaultGrammar are the built-in Korean grammar patterns.
var DefaultGrammar = []GrammarItem{
	{ID: "gram:n1_n2_사이에_있다", Pattern: "N1와 N2 사이에 N3이/가 있어요", Triggers: []string{"사이"}},
	{ID: "gram:~해도_돼요", Pattern: "~해도 돼요", Triggers: []string{"돼요"}},
	{ID: "gram:n1에_있어요", Pattern: "N1에 N2이/가 있어요", Triggers: []string{"있어요"}},
	{ID: "gram:n1에_없어요", Pattern: "N1에 N2이/가 없어요", Triggers: []string{"없어요"}},
	{ID: "gram:n은_어디에_있어요", Pattern: "N은/는 어디에 있어요?", Triggers: []string{"어디"}},
	{ID: "gram:~하면_안_돼요", Pattern: "~하면 안 돼요", Triggers: []string{"안", "돼요"}},
	{ID: "gram:~할까요", Pattern: "~할까요?", Triggers: []string{"할까요"}},
	{ID: "gram:~하고_싶어요", Pattern: "~하고 싶어요", Triggers: []string{"싶어요"}},
}

// selectGrammar deterministically maps the turn's target surface forms to the
// grammar patterns the reply may use.
func selectGrammar(targetForms []string, max int) []GrammarPattern {
	forms := make(map[string]bool, len(targetForms))
	for _, f := range targetForms {
		forms[f] = true
	}

	var out []GrammarPattern
	for _, g := range DefaultGrammar {
		hit := false
		for _, t := range g.Triggers {
			if forms[t] {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		out = append(out, GrammarPattern{ID: g.ID, Pattern: g.Pattern})
		if len(out) >= max {
			break
		}
	}
	return out
}
