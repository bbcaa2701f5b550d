package gateway

import (
	"fmt"
	"strings"

	"github.com/suda-labs/suda/internal/lang"
	"github.com/suda-labs/suda/internal/planner"
	"github.com/suda-labs/suda/internal/provider"
)

// ContractParams tunes the output-contract checks.
type ContractParams struct {
	MaxCorrections int
	// MaxReplySimilarity is the Jaccard token-set similarity above which a
	// reply counts as a repeat of the previous assistant turn. <= 0 disables
	// the check.
	MaxReplySimilarity float64
	PreviousReply      string
}

// CheckContract enforces the output contract on a structurally valid
// document: sentence length, target-id integrity, the correction cap and the
// repeated-reply guard.
func CheckContract(resp *provider.Response, c planner.Constraints, params ContractParams) error {
	if max := c.Forbidden.SentenceLengthMax; max > 0 {
		for _, sentence := range splitSentences(resp.AssistantReply) {
			if n := len(lang.Tokenize(sentence)); n > max {
				return &ContractError{Reason: fmt.Sprintf("sentence has %d words, limit %d: %q", n, max, sentence)}
			}
		}
	}

	issued := make(map[string]bool, len(c.MustTarget))
	for _, id := range c.TargetIDs() {
		issued[id] = true
	}
	for _, id := range resp.TargetsUsed {
		if !issued[id] {
			return &ContractError{Reason: fmt.Sprintf("targets_used references unissued id %q", id)}
		}
	}

	if params.MaxCorrections >= 0 && resp.MicroFeedback != nil &&
		resp.MicroFeedback.Type == "correction" && params.MaxCorrections == 0 {
		return &ContractError{Reason: "correction issued with corrections disabled"}
	}

	if params.MaxReplySimilarity > 0 && params.PreviousReply != "" {
		sim := jaccard(lang.TokenSet(resp.AssistantReply), lang.TokenSet(params.PreviousReply))
		if sim > params.MaxReplySimilarity {
			return &ContractError{Reason: fmt.Sprintf("reply repeats previous turn (similarity %.2f)", sim)}
		}
	}
	return nil
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
