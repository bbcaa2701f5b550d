package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/telemetry"
)

// Event is one interaction signal from the presentation layer.
type Event struct {
	Type       string   `json:"type"`
	Lexeme     string   `json:"lexeme,omitempty"`
	DurationMS int      `json:"duration_ms,omitempty"`
	Level      string   `json:"level,omitempty"`
	Lexemes    []string `json:"lexemes,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// LogEvent appends the event and applies its mastery effect. Hover is
// log-plus-counter only: it must never touch a negative-mastery field, so a
// curious learner is not punished for exploring.
func (c *Controller) LogEvent(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusActive {
		return ErrNotActive
	}
	turn := c.state.TurnIndex

	payload := map[string]any{}
	if ev.Lexeme != "" {
		payload["lexeme"] = ev.Lexeme
	}
	if ev.DurationMS > 0 {
		payload["duration_ms"] = ev.DurationMS
	}
	if ev.Level != "" {
		payload["level"] = ev.Level
	}
	if len(ev.Lexemes) > 0 {
		payload["lexemes"] = ev.Lexemes
	}
	if ev.Note != "" {
		payload["note"] = ev.Note
	}

	switch ev.Type {
	case telemetry.EventHover:
		if ev.Lexeme == "" {
			return fmt.Errorf("hover event requires a lexeme")
		}
		if err := c.bumpLexeme(ctx, ev.Lexeme, turn, func(a *telemetry.Aggregate) {
			a.HoverCount++
		}); err != nil {
			return err
		}
	case telemetry.EventDontKnow:
		if ev.Lexeme == "" {
			return fmt.Errorf("dont_know event requires a lexeme")
		}
		if err := c.bumpLexeme(ctx, ev.Lexeme, turn, func(a *telemetry.Aggregate) {
			a.DontKnow++
		}); err != nil {
			return err
		}
	case telemetry.EventPracticeAgain:
		if ev.Lexeme == "" {
			return fmt.Errorf("practice_again event requires a lexeme")
		}
		if err := c.bumpLexeme(ctx, ev.Lexeme, turn, func(a *telemetry.Aggregate) {
			a.PracticeAgain++
		}); err != nil {
			return err
		}
	case telemetry.EventLookup:
		if ev.Lexeme == "" {
			return fmt.Errorf("lookup event requires a lexeme")
		}
		if err := c.bumpLexeme(ctx, ev.Lexeme, turn, func(a *telemetry.Aggregate) {
			a.LookupCount++
			a.LookupMSTotal += ev.DurationMS
		}); err != nil {
			return err
		}
	case telemetry.EventConfidence:
		if ev.Lexeme != "" {
			mutate, err := confidenceMutator(ev.Level)
			if err != nil {
				return err
			}
			if err := c.bumpLexeme(ctx, ev.Lexeme, turn, mutate); err != nil {
				return err
			}
		}
	case telemetry.EventWordsKnown:
		lexemes := append([]string(nil), ev.Lexemes...)
		sort.Strings(lexemes)
		for _, lex := range lexemes {
			if err := c.bumpLexeme(ctx, lex, turn, func(a *telemetry.Aggregate) {
				a.UserKnown++
			}); err != nil {
				return err
			}
		}
	case telemetry.EventUserInput, telemetry.EventRepairMove:
		// Log-only events: no mastery effect.
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	return c.store.LogEvent(ctx, c.id, turn, ev.Type, payload)
}

func confidenceMutator(level string) (func(*telemetry.Aggregate), error) {
	switch level {
	case "confident":
		return func(a *telemetry.Aggregate) { a.ConfConfident++ }, nil
	case "unsure":
		return func(a *telemetry.Aggregate) { a.ConfUnsure++ }, nil
	case "guessing":
		return func(a *telemetry.Aggregate) { a.ConfGuessing++ }, nil
	}
	return nil, fmt.Errorf("unknown confidence level %q", level)
}

// bumpLexeme resolves a lexeme to its catalog item (or a synthetic lexeme id
// for out-of-catalog words) and applies mutate.
func (c *Controller) bumpLexeme(ctx context.Context, lex string, turn int, mutate func(*telemetry.Aggregate)) error {
	id, ok := c.idByLexeme[lex]
	kind := item.KindVocabulary
	if ok {
		kind = c.kindByID[id]
	} else {
		id = item.ID("lexeme:" + lex)
	}
	return c.store.BumpItem(ctx, c.mastery, string(id), string(kind), lex, func(a *telemetry.Aggregate) {
		mutate(a)
		if turn > a.LastTurnSeen {
			a.LastTurnSeen = turn
		}
	})
}

func sortedTokens(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}
