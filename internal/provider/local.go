package provider

import (
	"context"
	"encoding/json"
	"strings"
)

// Local is the offline provider. It deterministically fabricates a compliant
// turn document from the constraints alone, so sessions work with no network
// and tests stay reproducible.
type Local struct{}

// NewLocal creates the offline provider.
func NewLocal() *Local { return &Local{} }

func (l *Local) Name() string { return "local" }

// The one word Local introduces when a new word is required.
var localNewWord = struct{ lexeme, gloss string }{"주말", "weekend"}

func (l *Local) Generate(ctx context.Context, req *Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var forms []string
	var ids []string
	for _, t := range req.Constraints.MustTarget {
		forms = append(forms, t.SurfaceForms...)
		ids = append(ids, string(t.ID))
	}

	reply := "네, 좋아요."
	if len(forms) > 0 {
		reply = "네, " + strings.Join(forms, " ") + " 좋아요."
	}

	resp := Response{
		AssistantReply:      reply,
		FollowUpQuestion:    "어때요?",
		SuggestedUserIntent: "Answer using the highlighted words.",
		TargetsUsed:         ids,
	}
	if req.Constraints.RequireNewVocab && !req.Constraints.Forbidden.IntroduceNewVocab {
		resp.AssistantReply += " " + localNewWord.lexeme + "에 해요."
		resp.WordGlosses = map[string]string{localNewWord.lexeme: localNewWord.gloss}
	}
	if req.Instructions.ProvideMicroFeedback && req.ConversationState.LastUserTurn != "" {
		resp.MicroFeedback = &MicroFeedback{Type: "encouragement", ContentGlossLang: "Nice, keep going!"}
	}
	return json.Marshal(resp)
}
