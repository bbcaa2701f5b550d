// Package provider defines the generation boundary: a structured request in,
// a raw JSON document out. Everything the model sees crosses through Request,
// so the privacy and vocabulary budget of a turn are fully auditable here.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/suda-labs/suda/internal/planner"
)

// ConversationState is the minimal dialogue context forwarded to the model.
// No raw event history and no mastery data ever appear here.
type ConversationState struct {
	Summary            string `json:"summary,omitempty"`
	LastAssistantTurn  string `json:"last_assistant_turn,omitempty"`
	LastUserTurn       string `json:"last_user_turn,omitempty"`
	LastSuggestedReply string `json:"last_suggested_reply,omitempty"`
}

// UserInput is the learner's message for this turn.
type UserInput struct {
	Text       string `json:"text"`
	Confidence string `json:"confidence,omitempty"`
}

// Instructions are the per-turn generation directives.
type Instructions struct {
	Goal                   string  `json:"goal"`
	Tone                   string  `json:"tone,omitempty"`
	Register               string  `json:"register,omitempty"`
	ProvideFollowUp        bool    `json:"provide_follow_up_question"`
	ProvideMicroFeedback   bool    `json:"provide_micro_feedback"`
	ProvideSuggestedIntent bool    `json:"provide_suggested_intent"`
	MaxCorrections         int     `json:"max_corrections"`
	SafeMode               bool    `json:"safe_mode,omitempty"`
	MaxReplySimilarity     float64 `json:"max_reply_similarity,omitempty"`
	Rewrite                string  `json:"rewrite,omitempty"`
}

// Request is the complete generation request for one turn.
type Request struct {
	SystemRole        string              `json:"system_role"`
	ConversationState ConversationState   `json:"conversation_state"`
	UserInput         UserInput           `json:"user_input"`
	Constraints       planner.Constraints `json:"constraints"`
	Instructions      Instructions        `json:"instructions"`
}

// PromptText flattens the request into the deterministic prompt body sent to
// the model. Same request, same bytes.
func (r *Request) PromptText() string {
	var b strings.Builder

	if r.ConversationState.Summary != "" {
		fmt.Fprintf(&b, "Conversation summary: %s\n", r.ConversationState.Summary)
	}
	if r.ConversationState.LastAssistantTurn != "" {
		fmt.Fprintf(&b, "Your previous turn: %s\n", r.ConversationState.LastAssistantTurn)
	}
	if r.ConversationState.LastUserTurn != "" {
		fmt.Fprintf(&b, "Learner's previous turn: %s\n", r.ConversationState.LastUserTurn)
	}

	b.WriteString("\nLearner says: ")
	b.WriteString(r.UserInput.Text)
	b.WriteString("\n")
	if r.UserInput.Confidence != "" {
		fmt.Fprintf(&b, "Learner confidence: %s\n", r.UserInput.Confidence)
	}

	b.WriteString("\nTargets you MUST use naturally in your reply:\n")
	for _, t := range r.Constraints.MustTarget {
		fmt.Fprintf(&b, "- %s (%s", strings.Join(t.SurfaceForms, " "), t.Type)
		if t.Gloss != "" {
			fmt.Fprintf(&b, ", %q", t.Gloss)
		}
		if t.ScaffoldingRequired {
			b.WriteString(", scaffold: use in a clear, supportive context")
		}
		b.WriteString(")\n")
	}

	if len(r.Constraints.ReinforcedWords) > 0 {
		fmt.Fprintf(&b, "\nRecently learned words to weave in when natural: %s\n",
			strings.Join(r.Constraints.ReinforcedWords, ", "))
	}
	if len(r.Constraints.AllowedStretch) > 0 {
		fmt.Fprintf(&b, "\nStretch vocabulary you may also use: %s\n",
			strings.Join(r.Constraints.AllowedStretch, ", "))
	}
	if len(r.Constraints.AllowedSupport) > 0 {
		fmt.Fprintf(&b, "\nSupport vocabulary (the learner knows these): %s\n",
			strings.Join(r.Constraints.AllowedSupport, ", "))
	}
	if len(r.Constraints.AllowedGrammar) > 0 {
		b.WriteString("\nGrammar patterns you may use:\n")
		for _, g := range r.Constraints.AllowedGrammar {
			fmt.Fprintf(&b, "- %s\n", g.Pattern)
		}
	}

	b.WriteString("\nHard rules:\n")
	b.WriteString("- Use ONLY the vocabulary listed above plus basic glue words.\n")
	if r.Constraints.Forbidden.IntroduceNewVocab {
		b.WriteString("- Do NOT introduce any word outside the lists.\n")
	} else if r.Constraints.RequireNewVocab {
		b.WriteString("- Introduce exactly ONE new word beyond the lists, with a gloss in word_glosses.\n")
	} else {
		b.WriteString("- You MAY introduce at most one new word beyond the lists; gloss it in word_glosses.\n")
	}
	if max := r.Constraints.Forbidden.SentenceLengthMax; max > 0 {
		fmt.Fprintf(&b, "- Keep every sentence at most %d words.\n", max)
	}
	if r.Instructions.MaxCorrections > 0 {
		fmt.Fprintf(&b, "- At most %d correction per turn.\n", r.Instructions.MaxCorrections)
	}
	if r.Instructions.Rewrite != "" {
		fmt.Fprintf(&b, "\nYour previous attempt was rejected: %s\nRewrite it within the rules above.\n",
			r.Instructions.Rewrite)
	}

	b.WriteString("\nRespond with a single JSON object with keys: ")
	b.WriteString(`"assistant_reply", "follow_up_question", "micro_feedback", `)
	b.WriteString(`"suggested_user_intent", "targets_used", "unexpected_tokens", "word_glosses".`)
	b.WriteString("\n")
	return b.String()
}

// MicroFeedback is one short correction or encouragement.
type MicroFeedback struct {
	Type              string `json:"type"`
	ContentTargetLang string `json:"content_target_lang,omitempty"`
	ContentGlossLang  string `json:"content_gloss_lang,omitempty"`
}

// Response is the structured turn output the model must produce.
type Response struct {
	AssistantReply      string            `json:"assistant_reply"`
	FollowUpQuestion    string            `json:"follow_up_question,omitempty"`
	MicroFeedback       *MicroFeedback    `json:"micro_feedback,omitempty"`
	SuggestedUserIntent string            `json:"suggested_user_intent,omitempty"`
	TargetsUsed         []string          `json:"targets_used,omitempty"`
	UnexpectedTokens    []string          `json:"unexpected_tokens,omitempty"`
	WordGlosses         map[string]string `json:"word_glosses,omitempty"`
}

// ParseResponse decodes and structurally validates a raw model document.
func ParseResponse(raw json.RawMessage) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(resp.AssistantReply) == "" {
		return nil, fmt.Errorf("response missing assistant_reply")
	}
	if resp.MicroFeedback != nil && resp.MicroFeedback.Type == "" {
		return nil, fmt.Errorf("micro_feedback present without type")
	}
	return &resp, nil
}

// SortedGlossKeys returns word_glosses keys in stable order.
func (r *Response) SortedGlossKeys() []string {
	keys := make([]string, 0, len(r.WordGlosses))
	for k := range r.WordGlosses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Provider generates one raw turn document. Implementations must honor ctx
// cancellation and return transport problems as errors, never as fabricated
// documents.
type Provider interface {
	Generate(ctx context.Context, req *Request) (json.RawMessage, error)
	Name() string
}

// Options selects and configures a provider implementation.
type Options struct {
	Type            string
	Model           string
	APIKey          string
	BaseURL         string
	MaxOutputTokens int
}

// New builds a provider from options. Unknown types are a configuration
// error surfaced before any session starts.
func New(opts Options) (Provider, error) {
	switch opts.Type {
	case "openai":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAI(opts), nil
	case "local", "":
		return NewLocal(), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", opts.Type)
	}
}
