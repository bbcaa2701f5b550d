// Package session owns the conversation lifecycle: start, turns, telemetry
// events and the end-of-session wrap. It is the only writer of planner state
// and the mastery store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/suda-labs/suda/internal/config"
	"github.com/suda-labs/suda/internal/gateway"
	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/lang"
	"github.com/suda-labs/suda/internal/planner"
	"github.com/suda-labs/suda/internal/provider"
	"github.com/suda-labs/suda/internal/redact"
	"github.com/suda-labs/suda/internal/telemetry"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	// ErrNotActive is returned for operations on an ended session.
	ErrNotActive = errors.New("session is not active")
	// ErrTurnInFlight rejects a second concurrent turn submission.
	ErrTurnInFlight = errors.New("a turn is already in flight")
)

// Controller drives one conversation session.
type Controller struct {
	id      string
	catalog *item.Catalog
	planner *planner.Planner
	store   *telemetry.SQLiteStore
	gw      *gateway.Gateway
	log     *zap.Logger

	redaction      redact.Level
	safeMode       bool
	maxCorrections int

	idByLexeme   map[string]item.ID
	kindByID     map[item.ID]item.Kind
	knownLexemes map[string]bool

	mu       sync.Mutex
	status   Status
	inFlight bool
	state    *planner.State
	mastery  telemetry.Cache
}

// Options configures session start. Provider overrides the configured
// provider when set (tests use this).
type Options struct {
	Config   *config.Config
	Catalog  *item.Catalog
	Store    *telemetry.SQLiteStore
	TopicID  string
	Logger   *zap.Logger
	Provider provider.Provider
}

// Start validates everything a session depends on and opens it. Any
// configuration problem is reported here, before the first turn, as a
// ConfigurationError.
func Start(ctx context.Context, opts Options) (*Controller, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, &config.ConfigurationError{Reason: "no configuration"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Catalog == nil {
		return nil, &config.ConfigurationError{Reason: "no item catalog"}
	}
	if err := opts.Catalog.Validate(); err != nil {
		return nil, &config.ConfigurationError{Reason: fmt.Sprintf("invalid catalog: %v", err)}
	}
	if opts.Store == nil {
		return nil, &config.ConfigurationError{Reason: "no telemetry store"}
	}

	if opts.TopicID != "" && item.TopicByID(opts.TopicID) == nil {
		return nil, &config.ConfigurationError{Reason: fmt.Sprintf("unknown topic %q", opts.TopicID)}
	}

	redaction := cfg.Redaction
	if redaction == "" {
		redaction = string(redact.LevelMinimal)
	}
	level, err := redact.ParseLevel(redaction)
	if err != nil {
		return nil, &config.ConfigurationError{Reason: err.Error()}
	}
	policy, err := gateway.ParsePolicy(cfg.Gateway.ExhaustionPolicy)
	if err != nil {
		return nil, &config.ConfigurationError{Reason: err.Error()}
	}

	prov := opts.Provider
	if prov == nil {
		prov, err = provider.New(cfg.ProviderOptions())
		if err != nil {
			return nil, &config.ConfigurationError{Reason: err.Error()}
		}
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ids := make([]string, 0, len(opts.Catalog.Items))
	idByLexeme := make(map[string]item.ID, len(opts.Catalog.Items))
	kindByID := make(map[item.ID]item.Kind, len(opts.Catalog.Items))
	known := make(map[string]bool)
	for _, it := range opts.Catalog.Items {
		ids = append(ids, string(it.ID))
		kindByID[it.ID] = it.Kind
		for _, sf := range it.SurfaceForms {
			known[sf] = true
		}
		if lex := it.Lexeme(); lex != "" {
			if _, taken := idByLexeme[lex]; !taken {
				idByLexeme[lex] = it.ID
			}
		}
	}

	mastery, err := opts.Store.LoadMastery(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load mastery: %w", err)
	}

	id, err := opts.Store.StartSession(ctx, opts.Catalog.DeckIDs, opts.TopicID)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	p := planner.New(opts.Catalog, cfg.Planner)
	c := &Controller{
		id:      id,
		catalog: opts.Catalog,
		planner: p,
		store:   opts.Store,
		gw: &gateway.Gateway{
			Provider:           prov,
			MaxRewrites:        cfg.Gateway.MaxRewrites,
			Policy:             policy,
			Timeout:            cfg.ProviderTimeout(),
			MaxCorrections:     cfg.Gateway.MaxCorrections,
			MaxReplySimilarity: cfg.Gateway.MaxReplySimilarity,
			Logger:             log,
		},
		log:            log,
		redaction:      level,
		safeMode:       cfg.Gateway.SafeMode,
		maxCorrections: cfg.Gateway.MaxCorrections,
		idByLexeme:     idByLexeme,
		kindByID:       kindByID,
		knownLexemes:   known,
		status:         StatusActive,
		state:          p.Initialize("", opts.TopicID),
		mastery:        mastery,
	}
	log.Info("session started",
		zap.String("session_id", id),
		zap.Strings("deck_ids", opts.Catalog.DeckIDs),
		zap.String("topic_id", opts.TopicID),
		zap.String("provider", prov.Name()))
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Status returns the lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Turn returns the number of completed turns.
func (c *Controller) Turn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TurnIndex
}

// TurnInput is the learner's message for one turn.
type TurnInput struct {
	Text       string `json:"text"`
	Confidence string `json:"confidence,omitempty"`
}

// TurnOutput is the accepted result of one turn.
type TurnOutput struct {
	Turn          int                `json:"turn"`
	SessionID     string             `json:"session_id"`
	Response      *provider.Response `json:"response"`
	Annotated     bool               `json:"annotated,omitempty"`
	Violation     string             `json:"violation,omitempty"`
	Attempts      int                `json:"attempts"`
	MissedTargets []string           `json:"missed_targets,omitempty"`
	NewWords      []string           `json:"new_words,omitempty"`
}

// SubmitTurn runs one full turn: redact, plan, generate through the gateway,
// then commit. A recoverable provider failure leaves all state untouched so
// the same input may be resubmitted.
func (c *Controller) SubmitTurn(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	c.mu.Lock()
	if c.status != StatusActive {
		c.mu.Unlock()
		return nil, ErrNotActive
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	c.inFlight = true

	redacted := redact.Apply(in.Text, c.redaction)
	plan := c.planner.PlanTurn(c.state, c.mastery)
	req := gateway.ComposeRequest(c.state, plan, gateway.ComposeInput{
		UserText:       redacted.Text,
		Confidence:     in.Confidence,
		SafeMode:       c.safeMode,
		MaxCorrections: c.maxCorrections,
	})
	c.mu.Unlock()

	// The provider call runs unlocked so telemetry events can land while the
	// learner waits.
	res, err := c.gw.RunTurn(ctx, req)

	c.mu.Lock()
	defer func() {
		c.inFlight = false
		c.mu.Unlock()
	}()

	if err != nil {
		// The input is still telemetry even though the turn failed; planner
		// state is untouched so the same text may be resubmitted.
		if logErr := c.store.LogEvent(ctx, c.id, plan.Turn, telemetry.EventUserInput, map[string]any{
			"text":   redacted.Text,
			"failed": true,
		}); logErr != nil {
			c.log.Error("record failed-turn input", zap.Error(logErr))
		}
		if gateway.Recoverable(err) {
			c.log.Warn("turn failed, input may be resubmitted",
				zap.String("session_id", c.id),
				zap.Int("turn", plan.Turn),
				zap.Error(err))
		}
		return nil, err
	}

	missed := c.planner.ObserveTurn(c.state, plan, redacted.Text, res.Response.AssistantReply)
	c.state.LastSuggestedReply = res.Response.SuggestedUserIntent

	before := len(c.state.NewWords)
	c.planner.DiscoverNewWords(c.state, plan, res.Response.AssistantReply, res.Response.WordGlosses, c.knownLexemes)
	var introduced []string
	if len(c.state.NewWords) > before {
		for lex, nw := range c.state.NewWords {
			if nw.IntroducedTurn == plan.Turn {
				introduced = append(introduced, lex)
			}
		}
		sort.Strings(introduced)
	}

	if err := c.recordTurn(ctx, plan, redacted, in.Confidence, res, missed); err != nil {
		c.log.Error("record turn", zap.Error(err))
	}

	out := &TurnOutput{
		Turn:      plan.Turn,
		SessionID: c.id,
		Response:  res.Response,
		Annotated: res.Annotated,
		Violation: res.Violation,
		Attempts:  res.Attempts,
		NewWords:  introduced,
	}
	for _, id := range missed {
		out.MissedTargets = append(out.MissedTargets, string(id))
	}
	return out, nil
}

// TurnResult pairs SubmitTurnAsync's output with its error.
type TurnResult struct {
	Output *TurnOutput
	Err    error
}

// SubmitTurnAsync runs SubmitTurn on a goroutine and delivers the result on
// the returned channel.
func (c *Controller) SubmitTurnAsync(ctx context.Context, in TurnInput) <-chan TurnResult {
	ch := make(chan TurnResult, 1)
	go func() {
		out, err := c.SubmitTurn(ctx, in)
		ch <- TurnResult{Output: out, Err: err}
	}()
	return ch
}

// recordTurn persists the turn event and the mastery bumps derived from it.
func (c *Controller) recordTurn(ctx context.Context, plan planner.Plan, redacted redact.Result, confidence string, res *gateway.Result, missed []item.ID) error {
	turn := plan.Turn

	targetIDs := make(map[item.ID]bool, len(plan.Constraints.MustTarget))
	for _, t := range plan.Constraints.MustTarget {
		targetIDs[t.ID] = true
	}

	userTokens := lang.StemSet(redacted.Text)
	for _, lex := range sortedTokens(userTokens) {
		id, ok := c.idByLexeme[lex]
		if !ok {
			continue
		}
		err := c.store.BumpItem(ctx, c.mastery, string(id), string(c.kindByID[id]), lex, func(a *telemetry.Aggregate) {
			a.UserUsed++
			a.LastTurnSeen = turn
			switch confidence {
			case "unsure":
				a.UsedUnsure++
			case "guessing":
				a.UsedGuessing++
			}
			if targetIDs[id] && confidence != "guessing" {
				a.ConvSuccess++
			}
		})
		if err != nil {
			return err
		}
	}

	assistantTokens := lang.StemSet(res.Response.AssistantReply)
	for _, lex := range sortedTokens(assistantTokens) {
		if userTokens[lex] {
			continue
		}
		id, ok := c.idByLexeme[lex]
		if !ok {
			continue
		}
		err := c.store.BumpItem(ctx, c.mastery, string(id), string(c.kindByID[id]), lex, func(a *telemetry.Aggregate) {
			a.AssistantUsed++
			a.LastTurnSeen = turn
		})
		if err != nil {
			return err
		}
	}

	for _, id := range missed {
		kind, inCatalog := c.kindByID[id]
		if !inCatalog {
			continue
		}
		err := c.store.BumpItem(ctx, c.mastery, string(id), string(kind), string(id), func(a *telemetry.Aggregate) {
			a.MissedTarget++
		})
		if err != nil {
			return err
		}
		if err := c.store.LogEvent(ctx, c.id, turn, telemetry.EventMissedTarget, map[string]any{
			"item_id": string(id),
		}); err != nil {
			return err
		}
	}

	missedIDs := make([]string, 0, len(missed))
	for _, id := range missed {
		missedIDs = append(missedIDs, string(id))
	}
	return c.store.LogEvent(ctx, c.id, turn, telemetry.EventTurn, map[string]any{
		"user_text":       redacted.Text,
		"redacted":        redacted.Redacted,
		"assistant_reply": res.Response.AssistantReply,
		"targets":         plan.Constraints.TargetIDs(),
		"missed":          missedIDs,
		"attempts":        res.Attempts,
		"annotated":       res.Annotated,
	})
}

// End computes the wrap, stamps the session row and closes the session.
func (c *Controller) End(ctx context.Context) (*telemetry.WrapSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusActive {
		return nil, ErrNotActive
	}
	if c.inFlight {
		return nil, ErrTurnInFlight
	}

	wrap := telemetry.ComputeWrap(c.catalog, c.mastery, c.state.Graduated(), 3, 2)
	if err := c.store.EndSession(ctx, c.id, wrap); err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	c.status = StatusEnded
	c.log.Info("session ended",
		zap.String("session_id", c.id),
		zap.Int("turns", c.state.TurnIndex),
		zap.Int("new_words", len(c.state.NewWords)))
	return &wrap, nil
}
