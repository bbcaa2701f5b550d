package gateway

import (
	"github.com/suda-labs/suda/internal/planner"
	"github.com/suda-labs/suda/internal/provider"
)

// DefaultSystemRole is the fixed tutor persona.
const DefaultSystemRole = "You are a friendly Korean conversation tutor. " +
	"Keep replies short, natural and encouraging, and follow the vocabulary rules exactly."

// ComposeInput is the per-turn material the session hands to the gateway.
type ComposeInput struct {
	UserText       string
	Confidence     string
	SafeMode       bool
	MaxCorrections int
}

// ComposeRequest builds the outbound provider request. This is the privacy
// boundary: only the conversation summary, the immediately adjacent turns and
// the current constraints cross it. Raw event history, mastery aggregates and
// catalog internals never do.
func ComposeRequest(state *planner.State, plan planner.Plan, in ComposeInput) *provider.Request {
	return &provider.Request{
		SystemRole: DefaultSystemRole,
		ConversationState: provider.ConversationState{
			Summary:            state.Summary,
			LastAssistantTurn:  state.LastAssistantTurn,
			LastUserTurn:       state.LastUserTurn,
			LastSuggestedReply: state.LastSuggestedReply,
		},
		UserInput: provider.UserInput{
			Text:       in.UserText,
			Confidence: in.Confidence,
		},
		Constraints: plan.Constraints,
		Instructions: provider.Instructions{
			Goal:                   "hold a natural conversation that exercises the targets",
			Tone:                   "warm",
			Register:               "polite informal (해요체)",
			ProvideFollowUp:        true,
			ProvideMicroFeedback:   true,
			ProvideSuggestedIntent: true,
			MaxCorrections:         in.MaxCorrections,
			SafeMode:               in.SafeMode,
		},
	}
}
