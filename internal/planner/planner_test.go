package planner

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/telemetry"
)

func testCatalog(t *testing.T) *item.Catalog {
	t.Helper()
	return &item.Catalog{
		DeckIDs: []string{"deck-1"},
		Today:   100,
		Items: []item.Item{
			// Stretch band: reviewed a while ago, retrievability in the gap.
			{ID: "lexeme:의자", Kind: item.KindVocabulary, SurfaceForms: []string{"의자"}, Gloss: "chair", Stability: 10, LastReviewDay: 95},
			{ID: "lexeme:책상", Kind: item.KindVocabulary, SurfaceForms: []string{"책상"}, Gloss: "desk", Stability: 10, LastReviewDay: 95},
			{ID: "lexeme:창문", Kind: item.KindVocabulary, SurfaceForms: []string{"창문"}, Gloss: "window", Stability: 10, LastReviewDay: 95},
			// Support band: reviewed today, very stable.
			{ID: "lexeme:물", Kind: item.KindVocabulary, SurfaceForms: []string{"물"}, Gloss: "water", Stability: 200, LastReviewDay: 100},
			{ID: "lexeme:집", Kind: item.KindVocabulary, SurfaceForms: []string{"집"}, Gloss: "house", Stability: 200, LastReviewDay: 100},
			// Cold band: long lapsed.
			{ID: "lexeme:지갑", Kind: item.KindVocabulary, SurfaceForms: []string{"지갑"}, Gloss: "wallet", Stability: 1, LastReviewDay: 10},
		},
	}
}

func newTestPlanner(t *testing.T, mutate func(*Settings)) *Planner {
	t.Helper()
	cfg := DefaultSettings()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(testCatalog(t), cfg)
}

func TestPlanTurnDeterministic(t *testing.T) {
	p := newTestPlanner(t, nil)
	state := p.Initialize("practice", "room_objects")
	mastery := telemetry.Cache{}

	a := p.PlanTurn(state, mastery)
	b := p.PlanTurn(state, mastery)

	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) != string(bj) {
		t.Fatalf("plans differ across identical calls:\n%s\n%s", aj, bj)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("plans differ structurally")
	}
}

func TestPlanTurnExcludesColdItems(t *testing.T) {
	p := newTestPlanner(t, nil)
	state := p.Initialize("", "")

	plan := p.PlanTurn(state, telemetry.Cache{})
	for _, tgt := range plan.Constraints.MustTarget {
		if tgt.ID == "lexeme:지갑" {
			t.Fatal("cold item issued as target")
		}
	}
	for _, lex := range plan.Constraints.AllowedSupport {
		if lex == "지갑" {
			t.Fatal("cold item offered as support")
		}
	}
}

func TestPlanTurnDoesNotMutateState(t *testing.T) {
	p := newTestPlanner(t, nil)
	state := p.Initialize("", "")
	state.TargetsInPlay["lexeme:물"] = 1
	before, _ := json.Marshal(state)

	p.PlanTurn(state, telemetry.Cache{})

	after, _ := json.Marshal(state)
	if string(before) != string(after) {
		t.Fatalf("PlanTurn mutated state:\nbefore %s\nafter  %s", before, after)
	}
}

func TestObserveTurnRecordsCoverageAndSpacing(t *testing.T) {
	p := newTestPlanner(t, nil)
	state := p.Initialize("", "")

	plan := p.PlanTurn(state, telemetry.Cache{})
	if len(plan.Constraints.MustTarget) == 0 {
		t.Fatal("no targets planned")
	}
	first := plan.Constraints.MustTarget[0]

	missed := p.ObserveTurn(state, plan, "네, "+first.SurfaceForms[0]+" 있어요", "좋아요!")
	for _, id := range missed {
		if id == first.ID {
			t.Fatalf("target %s used but reported missed", id)
		}
	}
	if got := state.TargetsInPlay[first.ID]; got != plan.Turn {
		t.Fatalf("TargetsInPlay[%s] = %d, want %d", first.ID, got, plan.Turn)
	}
	if state.Exposures[first.ID] != 1 {
		t.Fatalf("Exposures[%s] = %d, want 1", first.ID, state.Exposures[first.ID])
	}
	if state.TurnIndex != plan.Turn {
		t.Fatalf("TurnIndex = %d, want %d", state.TurnIndex, plan.Turn)
	}

	// The used target sits out the next plan (spacing window).
	next := p.PlanTurn(state, telemetry.Cache{})
	for _, tgt := range next.Constraints.MustTarget {
		if tgt.ID == first.ID {
			t.Fatalf("target %s reissued inside spacing window", tgt.ID)
		}
	}
}

func TestObserveTurnMissedTargetRescheduled(t *testing.T) {
	p := newTestPlanner(t, nil)
	state := p.Initialize("", "")

	plan := p.PlanTurn(state, telemetry.Cache{})
	first := plan.Constraints.MustTarget[0]

	missed := p.ObserveTurn(state, plan, "몰라요", "괜찮아요")
	found := false
	for _, id := range missed {
		if id == first.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("unused target %s not reported missed", first.ID)
	}
	if state.AvoidancePenalty[first.ID] != 1 {
		t.Fatalf("AvoidancePenalty = %d, want 1", state.AvoidancePenalty[first.ID])
	}
	if due := state.ScheduledReuse[first.ID]; due != plan.Turn+1 {
		t.Fatalf("ScheduledReuse = %d, want %d", due, plan.Turn+1)
	}

	// The reschedule overrides spacing and puts it back next turn.
	next := p.PlanTurn(state, telemetry.Cache{})
	reissued := false
	for _, tgt := range next.Constraints.MustTarget {
		if tgt.ID == first.ID {
			reissued = true
		}
	}
	if !reissued {
		t.Fatalf("rescheduled target %s not reissued", first.ID)
	}
}

func TestAvoidancePenaltyRaisesScore(t *testing.T) {
	p := newTestPlanner(t, nil)
	it := testCatalog(t).Items[0]
	base := p.score(it, telemetry.Aggregate{}, 0)
	penalized := p.score(it, telemetry.Aggregate{}, 2)
	if penalized <= base {
		t.Fatalf("penalty did not raise score: %v <= %v", penalized, base)
	}
}

func TestCollocationNeedsAllForms(t *testing.T) {
	tgt := MustTarget{
		ID:           "colloc:사이에_있어요",
		Type:         TargetCollocation,
		SurfaceForms: []string{"사이에", "있어요"},
	}
	partial := map[string]bool{"사이에": true}
	if targetUsed(tgt, partial) {
		t.Fatal("partial collocation coverage counted as used")
	}
	full := map[string]bool{"사이에": true, "있어요": true}
	if !targetUsed(tgt, full) {
		t.Fatal("full collocation coverage not counted")
	}
}

func TestNewWordGating(t *testing.T) {
	p := newTestPlanner(t, func(s *Settings) {
		s.AllowNewWords = true
		s.MaxNewWordsPerSession = 1
		s.ForceNewWordEveryNTurns = 3
	})
	state := p.Initialize("", "")

	plan := p.PlanTurn(state, telemetry.Cache{})
	if !plan.AllowNewVocab {
		t.Fatal("new vocab not allowed with budget open")
	}

	p.DiscoverNewWords(state, plan, "오늘 날씨가 좋아요", map[string]string{"날씨": "weather"}, map[string]bool{})
	if len(state.NewWords) != 1 {
		t.Fatalf("NewWords = %d, want 1", len(state.NewWords))
	}
	nw := state.NewWords["날씨"]
	if nw == nil || nw.Stage != 1 || nw.Gloss != "weather" {
		t.Fatalf("unexpected new-word state: %+v", nw)
	}

	// Budget exhausted and a word still in the pipeline: introduction closed.
	next := p.PlanTurn(state, telemetry.Cache{})
	if next.AllowNewVocab {
		t.Fatal("new vocab allowed past the session cap")
	}
	if !next.Constraints.Forbidden.IntroduceNewVocab {
		t.Fatal("forbidden.introduce_new_vocab not set")
	}
}

func TestNewWordCadenceRequiresIntroduction(t *testing.T) {
	p := newTestPlanner(t, func(s *Settings) {
		s.AllowNewWords = true
		s.ForceNewWordEveryNTurns = 2
	})
	state := p.Initialize("", "")
	state.TurnsSinceNewWord = 1

	plan := p.PlanTurn(state, telemetry.Cache{})
	if !plan.RequireNewVocab {
		t.Fatal("cadence floor reached but new word not required")
	}
}

func TestNewWordGraduatesAfterExposures(t *testing.T) {
	p := newTestPlanner(t, func(s *Settings) { s.AllowNewWords = true })
	state := p.Initialize("", "")
	state.NewWords["날씨"] = &NewWordState{
		Lexeme: "날씨", Gloss: "weather", IntroducedTurn: 1, Stage: 1, ExposureCount: 1, LastSeenTurn: 1,
	}
	state.TurnIndex = 1

	for turn := 2; turn <= 3; turn++ {
		plan := p.PlanTurn(state, telemetry.Cache{})
		if plan.Turn != turn {
			t.Fatalf("plan turn = %d, want %d", plan.Turn, turn)
		}
		p.ObserveTurn(state, plan, "네", "날씨가 좋아요")
	}

	nw := state.NewWords["날씨"]
	if nw.Stage != 4 {
		t.Fatalf("stage = %d after 3 consecutive exposures, want 4", nw.Stage)
	}
	grads := state.Graduated()
	if len(grads) != 1 || grads[0].Lexeme != "날씨" {
		t.Fatalf("graduated = %+v", grads)
	}

	// Graduated words come back as reinforcement vocabulary.
	plan := p.PlanTurn(state, telemetry.Cache{})
	if len(plan.Constraints.ReinforcedWords) != 1 || plan.Constraints.ReinforcedWords[0] != "날씨" {
		t.Fatalf("ReinforcedWords = %v", plan.Constraints.ReinforcedWords)
	}
}

func TestActiveNewWordBecomesTarget(t *testing.T) {
	p := newTestPlanner(t, func(s *Settings) { s.AllowNewWords = true })
	state := p.Initialize("", "")
	state.NewWords["날씨"] = &NewWordState{
		Lexeme: "날씨", Gloss: "weather", IntroducedTurn: 1, Stage: 2, ExposureCount: 2, LastSeenTurn: 1,
	}
	state.TurnIndex = 1

	plan := p.PlanTurn(state, telemetry.Cache{})
	found := false
	for _, tgt := range plan.Constraints.MustTarget {
		if tgt.Type == TargetNewWord && tgt.SurfaceForms[0] == "날씨" {
			found = true
			if !tgt.ScaffoldingRequired {
				t.Fatal("new-word target not scaffolded")
			}
			if tgt.ExposureStage != 2 {
				t.Fatalf("ExposureStage = %d, want 2", tgt.ExposureStage)
			}
		}
	}
	if !found {
		t.Fatal("active new word not issued as target")
	}
}

func TestExposureFloorOverridesSpacing(t *testing.T) {
	p := newTestPlanner(t, func(s *Settings) {
		s.SessionTurnBudget = 5
		s.SpacingWindow = 3
		s.MinExposures = 1
	})
	state := p.Initialize("", "")
	// Issued last turn but never actually used; session is ending.
	state.TurnIndex = 3
	state.TargetsInPlay["lexeme:의자"] = 3

	if p.spacingBlocked(state, "lexeme:의자", 4) {
		t.Fatal("exposure floor did not override spacing near session end")
	}

	state.Exposures["lexeme:의자"] = 1
	if !p.spacingBlocked(state, "lexeme:의자", 4) {
		t.Fatal("spacing not enforced once the exposure floor is met")
	}
}

func TestTelemetryNudgesPrioritizeStrugglingItems(t *testing.T) {
	p := newTestPlanner(t, nil)
	state := p.Initialize("", "")
	mastery := telemetry.Cache{
		"lexeme:창문": {DontKnow: 2, PracticeAgain: 1},
	}

	// Two dont_know signals drop the item a band, so it should come back as
	// a scaffolded (fragile) target rather than a plain stretch one.
	plan := p.PlanTurn(state, mastery)
	for _, tgt := range plan.Constraints.MustTarget {
		if tgt.ID == "lexeme:창문" {
			if !tgt.ScaffoldingRequired {
				t.Fatal("downgraded item issued without scaffolding")
			}
			return
		}
	}
	t.Fatal("struggling item not issued at all")
}
