package planner

import "github.com/suda-labs/suda/internal/item"

// Collocation is a multi-token expression. It only counts as used when every
// token appears in the reply; partial coverage is no credit.
type Collocation struct {
	ID       item.ID
	Tokens   []string
	Triggers []string
}

// DefaultCollocations are the built-in Korean collocation targets.
var DefaultCollocations = []Collocation{
	{
		ID:       "colloc:사이에_있어요",
		Tokens:   []string{"사이에", "있어요"},
		Triggers: []string{"사이"},
	},
	{
		ID:       "colloc:~해도_돼요",
		Tokens:   []string{"해도", "돼요"},
		Triggers: []string{"돼요"},
	},
	{
		ID:       "colloc:~하면_안_돼요",
		Tokens:   []string{"안", "돼요"},
		Triggers: []string{"안", "돼요"},
	},
	{
		ID:       "colloc:~하고_싶어요",
		Tokens:   []string{"하고", "싶어요"},
		Triggers: []string{"싶어요"},
	},
}

// selectCollocations picks collocation targets triggered by the lexical
// targets already chosen for the turn.
func selectCollocations(lexicalTargets []string, max int) []MustTarget {
	triggered := make(map[string]bool, len(lexicalTargets))
	for _, lex := range lexicalTargets {
		triggered[lex] = true
	}

	var out []MustTarget
	for _, colloc := range DefaultCollocations {
		hit := false
		for _, t := range colloc.Triggers {
			if triggered[t] {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		out = append(out, MustTarget{
			ID:           colloc.ID,
			Type:         TargetCollocation,
			SurfaceForms: append([]string(nil), colloc.Tokens...),
			Priority:     0.9,
		})
		if len(out) >= max {
			break
		}
	}
	return out
}
