package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suda-labs/suda/internal/planner"
	"github.com/suda-labs/suda/internal/provider"
)

// Policy decides what happens when the rewrite budget runs out with a
// still-violating document.
type Policy string

const (
	// PolicyAnnotate delivers the best effort and marks it annotated.
	PolicyAnnotate Policy = "annotate"
	// PolicyReject fails the turn instead.
	PolicyReject Policy = "reject"
)

// ParsePolicy validates a policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAnnotate, PolicyReject:
		return Policy(s), nil
	case "":
		return PolicyAnnotate, nil
	}
	return "", &SchemaError{Reason: "unknown exhaustion policy " + s}
}

// Gateway drives the generate/validate/rewrite loop for one turn.
type Gateway struct {
	Provider provider.Provider
	// MaxRewrites bounds extra attempts after the first: a turn makes at most
	// MaxRewrites+1 provider invocations.
	MaxRewrites        int
	Policy             Policy
	Timeout            time.Duration
	MaxCorrections     int
	MaxReplySimilarity float64
	Logger             *zap.Logger
}

// Result is the accepted (or annotated) outcome of a turn.
type Result struct {
	Response  *provider.Response
	Raw       json.RawMessage
	Attempts  int
	Annotated bool
	// Violation describes the outstanding problem when Annotated is set.
	Violation string
}

// RunTurn executes the bounded loop. Validation failures consume the rewrite
// budget; transport failures do not retry and return a recoverable
// ProviderError with session state untouched.
func (g *Gateway) RunTurn(ctx context.Context, req *provider.Request) (*Result, error) {
	log := g.Logger
	if log == nil {
		log = zap.NewNop()
	}

	maxAttempts := g.MaxRewrites + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		lastResp      *provider.Response
		lastRaw       json.RawMessage
		lastViolation error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptReq := *req
		if lastViolation != nil {
			attemptReq.Instructions.Rewrite = rewriteDirective(lastViolation)
		}

		raw, err := g.generate(ctx, &attemptReq)
		if err != nil {
			timeout := errors.Is(err, context.DeadlineExceeded)
			log.Warn("provider call failed",
				zap.Int("attempt", attempt),
				zap.Bool("timeout", timeout),
				zap.Error(err))
			return nil, &ProviderError{Err: err, Timeout: timeout}
		}

		resp, err := provider.ParseResponse(raw)
		if err != nil {
			lastViolation = &SchemaError{Reason: err.Error()}
			lastResp, lastRaw = nil, nil
			log.Debug("schema violation", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		lastResp, lastRaw = resp, raw

		if err := g.validate(resp, req.Constraints, req.ConversationState.LastAssistantTurn); err != nil {
			lastViolation = err
			log.Debug("rewrite requested", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		return &Result{Response: resp, Raw: raw, Attempts: attempt}, nil
	}

	if g.Policy == PolicyReject || lastResp == nil {
		return nil, lastViolation
	}
	log.Info("rewrite budget exhausted, annotating",
		zap.Int("attempts", maxAttempts),
		zap.String("violation", lastViolation.Error()))
	return &Result{
		Response:  lastResp,
		Raw:       lastRaw,
		Attempts:  maxAttempts,
		Annotated: true,
		Violation: lastViolation.Error(),
	}, nil
}

func (g *Gateway) generate(ctx context.Context, req *provider.Request) (json.RawMessage, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	return g.Provider.Generate(ctx, req)
}

func (g *Gateway) validate(resp *provider.Response, c planner.Constraints, prevReply string) error {
	if err := ValidateVocabulary(resp, c); err != nil {
		return err
	}
	return CheckContract(resp, c, ContractParams{
		MaxCorrections:     g.MaxCorrections,
		MaxReplySimilarity: g.MaxReplySimilarity,
		PreviousReply:      prevReply,
	})
}

// rewriteDirective turns a violation into the short instruction fed back on
// the next attempt. It replaces any previous directive rather than stacking,
// so prompts stay bounded across rewrites.
func rewriteDirective(err error) string {
	var ve *VocabularyError
	if errors.As(err, &ve) {
		return "these words are outside the allowed vocabulary, remove or replace them: " +
			strings.Join(ve.Tokens, ", ")
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return "the previous output was not a valid JSON document: " + se.Reason
	}
	return err.Error()
}
