// Package planner turns the item catalog and mastery aggregates into the
// per-turn vocabulary/grammar budget, and tracks in-session spacing,
// avoidance and new-word state. Planning is deterministic: equal inputs
// always produce equal constraints.
package planner

import (
	"sort"

	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/lang"
	"github.com/suda-labs/suda/internal/telemetry"
)

// NewWordState tracks one word moving through the staged-introduction
// pipeline: 1=comprehension, 2=highlighted, 3=scaffolded, 4=graduated.
type NewWordState struct {
	Lexeme         string `json:"lexeme"`
	Gloss          string `json:"gloss"`
	IntroducedTurn int    `json:"introduced_turn"`
	Stage          int    `json:"stage"`
	ExposureCount  int    `json:"exposure_count"`
	LastSeenTurn   int    `json:"last_seen_turn,omitempty"`
}

// State is the per-session mutable planner state. It is owned by the session
// controller and mutated only through PlanTurn/ObserveTurn.
type State struct {
	Summary            string
	TopicID            string
	LastAssistantTurn  string
	LastUserTurn       string
	LastSuggestedReply string

	// TurnIndex counts completed turns; the turn being planned is TurnIndex+1.
	TurnIndex         int
	TurnsSinceNewWord int

	// TargetsInPlay records the issue turn of each successfully used target,
	// for the spacing window. ScheduledReuse forces missed targets back into
	// play. AvoidancePenalty grows monotonically until the item is used.
	TargetsInPlay    map[item.ID]int
	ScheduledReuse   map[item.ID]int
	AvoidancePenalty map[item.ID]int
	Exposures        map[item.ID]int

	NewWords map[string]*NewWordState
}

// Graduated returns the new words that completed the pipeline, sorted.
func (s *State) Graduated() []telemetry.GraduatedWord {
	var out []telemetry.GraduatedWord
	for _, lex := range sortedNewWordKeys(s.NewWords) {
		nw := s.NewWords[lex]
		if nw.Stage >= 4 {
			out = append(out, telemetry.GraduatedWord{
				Lexeme:         nw.Lexeme,
				Gloss:          nw.Gloss,
				IntroducedTurn: nw.IntroducedTurn,
			})
		}
	}
	return out
}

// Plan is the outcome of planning one turn. Nothing in state changes until
// the turn succeeds and ObserveTurn commits it, so a failed provider call
// leaves the session resumable with the same input.
type Plan struct {
	Turn            int
	Constraints     Constraints
	AllowNewVocab   bool
	RequireNewVocab bool
}

// Planner scores and selects targets against an immutable catalog.
type Planner struct {
	catalog  *item.Catalog
	byID     map[item.ID]item.Item
	settings Settings
}

// New creates a planner over the given catalog.
func New(catalog *item.Catalog, settings Settings) *Planner {
	return &Planner{catalog: catalog, byID: catalog.ByID(), settings: settings}
}

// Initialize builds the initial session state.
func (p *Planner) Initialize(summary, topicID string) *State {
	if topicID != "" {
		if t := item.TopicByID(topicID); t != nil {
			if summary == "" {
				summary = t.Summary
			} else {
				summary += " (" + t.Summary + ")"
			}
		}
	}
	return &State{
		Summary:          summary,
		TopicID:          topicID,
		TargetsInPlay:    make(map[item.ID]int),
		ScheduledReuse:   make(map[item.ID]int),
		AvoidancePenalty: make(map[item.ID]int),
		Exposures:        make(map[item.ID]int),
		NewWords:         make(map[string]*NewWordState),
	}
}

type candidate struct {
	it    item.Item
	band  Band
	score float64
}

// PlanTurn computes the constraints for the next turn. It reads but does not
// mutate state.
func (p *Planner) PlanTurn(state *State, mastery telemetry.Cache) Plan {
	turn := state.TurnIndex + 1
	cfg := p.settings

	bands := make(map[item.ID]Band, len(p.catalog.Items))
	var candidates []candidate
	for _, it := range p.catalog.Items {
		agg := mastery.Get(string(it.ID))
		band := p.bandFor(it, agg)
		bands[it.ID] = band
		if band == BandCold {
			continue
		}
		if p.spacingBlocked(state, it.ID, turn) {
			continue
		}
		candidates = append(candidates, candidate{
			it:    it,
			band:  band,
			score: p.score(it, agg, state.AvoidancePenalty[it.ID]),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].it.ID < candidates[j].it.ID
	})

	byBand := map[Band][]candidate{}
	for _, c := range candidates {
		byBand[c.band] = append(byBand[c.band], c)
	}

	// New-word gating: a hard per-session cap plus a cadence floor that
	// requires one introduction every N turns while budget remains.
	activeNew := p.activeNewWord(state)
	budgetLeft := cfg.MaxNewWordsPerSession - len(state.NewWords)
	allowNew := cfg.AllowNewWords && activeNew == nil && budgetLeft > 0
	cadence := cfg.ForceNewWordEveryNTurns
	if cadence < 1 {
		cadence = 1
	}
	requireNew := allowNew && state.TurnsSinceNewWord >= cadence-1

	budget := cfg.MustTargetCount
	if budget < 1 {
		budget = 1
	}

	var targets []MustTarget
	usedForms := make(map[string]bool)

	addTarget := func(c candidate, priority float64, scaffold bool) bool {
		if len(targets) >= budget {
			return false
		}
		for _, sf := range c.it.SurfaceForms {
			if usedForms[sf] {
				return true
			}
		}
		targets = append(targets, MustTarget{
			ID:                  c.it.ID,
			Type:                targetTypeFor(c.it.Kind),
			SurfaceForms:        append([]string(nil), c.it.SurfaceForms...),
			Priority:            priority,
			ScaffoldingRequired: scaffold,
			Gloss:               c.it.Gloss,
		})
		for _, sf := range c.it.SurfaceForms {
			usedForms[sf] = true
		}
		return true
	}

	// 1) forced reuse first: missed targets rescheduled for this turn.
	dueIDs := make([]item.ID, 0, len(state.ScheduledReuse))
	for id, dueTurn := range state.ScheduledReuse {
		if dueTurn <= turn {
			dueIDs = append(dueIDs, id)
		}
	}
	sort.Slice(dueIDs, func(i, j int) bool { return dueIDs[i] < dueIDs[j] })
	for _, id := range dueIDs {
		it, ok := p.byID[id]
		if !ok || bands[id] == BandCold {
			continue
		}
		scaffold := bands[id] == BandFragile
		agg := mastery.Get(string(id))
		addTarget(candidate{it: it, band: bands[id], score: p.score(it, agg, state.AvoidancePenalty[id])}, 1.0, scaffold)
	}

	// 2) primary targets from the stretch band.
	for _, c := range byBand[BandStretch] {
		if len(targets) >= budget {
			break
		}
		addTarget(c, 1.0, false)
	}

	// 3) at most one fragile target per turn, scaffolded.
	fragileIssued := false
	for _, t := range targets {
		if t.ScaffoldingRequired && t.Type != TargetNewWord {
			fragileIssued = true
		}
	}
	if !fragileIssued {
		for _, c := range byBand[BandFragile] {
			if len(targets) >= budget {
				break
			}
			if addTarget(c, 1.0, true) {
				break
			}
		}
	}

	// 4) a single support word as a last-resort target.
	if len(targets) == 0 {
		for _, c := range byBand[BandSupport] {
			if addTarget(c, 1.0, false) {
				break
			}
		}
	}

	// 5) the active new word is a hard reinforcement constraint.
	if activeNew != nil && !usedForms[activeNew.Lexeme] {
		targets = append(targets, MustTarget{
			ID:                  item.ID("lexeme:" + activeNew.Lexeme),
			Type:                TargetNewWord,
			SurfaceForms:        []string{activeNew.Lexeme},
			Priority:            0.9,
			ScaffoldingRequired: true,
			ExposureStage:       activeNew.Stage,
			Gloss:               activeNew.Gloss,
		})
		usedForms[activeNew.Lexeme] = true
	}

	// 6) triggered collocations, if there is room in the budget.
	var lexicalForms []string
	for _, t := range targets {
		if t.Type == TargetVocab {
			lexicalForms = append(lexicalForms, t.SurfaceForms...)
		}
	}
	for _, colloc := range selectCollocations(lexicalForms, 1) {
		if len(targets) >= cfg.MustTargetCount {
			break
		}
		targets = append(targets, colloc)
		for _, sf := range colloc.SurfaceForms {
			usedForms[sf] = true
		}
	}

	var targetForms []string
	for _, t := range targets {
		targetForms = append(targetForms, t.SurfaceForms...)
	}

	stretchForAI := lexemesExcluding(byBand[BandStretch], usedForms, cfg.AllowedStretchCount)
	supportForAI := lexemesExcluding(byBand[BandSupport], usedForms, cfg.AllowedSupportCount)

	var reinforced []string
	for _, lex := range sortedNewWordKeys(state.NewWords) {
		if state.NewWords[lex].Stage >= 4 {
			reinforced = append(reinforced, lex)
		}
	}

	return Plan{
		Turn:            turn,
		AllowNewVocab:   allowNew,
		RequireNewVocab: requireNew,
		Constraints: Constraints{
			MustTarget:      targets,
			AllowedSupport:  supportForAI,
			AllowedStretch:  stretchForAI,
			ReinforcedWords: reinforced,
			RequireNewVocab: requireNew,
			AllowedGrammar:  selectGrammar(targetForms, 2),
			Forbidden: Forbidden{
				IntroduceNewVocab: !allowNew,
				SentenceLengthMax: cfg.SentenceLengthMax,
			},
		},
	}
}

// ObserveTurn commits an accepted turn: coverage per target, avoidance
// penalties, spacing registration, the new-word pipeline and the turn
// counter. Returns the ids of missed targets.
func (p *Planner) ObserveTurn(state *State, plan Plan, userText, assistantReply string) []item.ID {
	turn := plan.Turn
	// Stemmed sets so particle-suffixed uses ("의자가") still count.
	tokens := lang.StemSet(userText)
	assistantTokens := lang.StemSet(assistantReply)
	for tok := range assistantTokens {
		tokens[tok] = true
	}

	var missed []item.ID
	for _, target := range plan.Constraints.MustTarget {
		if targetUsed(target, tokens) {
			state.Exposures[target.ID]++
			state.TargetsInPlay[target.ID] = turn
			delete(state.ScheduledReuse, target.ID)
			delete(state.AvoidancePenalty, target.ID)
			continue
		}
		missed = append(missed, target.ID)
		state.AvoidancePenalty[target.ID]++
		if target.Type != TargetNewWord {
			// Recycle next turn to fight avoidance.
			if due, ok := state.ScheduledReuse[target.ID]; !ok || turn+1 < due {
				state.ScheduledReuse[target.ID] = turn + 1
			}
		}
	}

	usedActiveNewWord := false
	for _, lex := range sortedNewWordKeys(state.NewWords) {
		nw := state.NewWords[lex]
		if nw.Stage >= 4 || !assistantTokens[lex] {
			continue
		}
		usedActiveNewWord = true
		if nw.LastSeenTurn == 0 || nw.LastSeenTurn == turn-1 {
			if nw.IntroducedTurn != turn {
				nw.ExposureCount++
			}
		} else {
			nw.ExposureCount = 1
		}
		nw.LastSeenTurn = turn
		switch {
		case nw.ExposureCount >= 3:
			nw.Stage = 4
		case nw.ExposureCount == 2:
			nw.Stage = 2
		default:
			nw.Stage = 1
		}
	}
	if usedActiveNewWord {
		state.TurnsSinceNewWord = 0
	} else {
		state.TurnsSinceNewWord++
	}

	state.TurnIndex = turn
	state.LastUserTurn = userText
	state.LastAssistantTurn = assistantReply
	return missed
}

// DiscoverNewWords admits out-of-catalog words the assistant introduced with
// a gloss, up to the per-session budget. known is the catalog lexeme set.
func (p *Planner) DiscoverNewWords(state *State, plan Plan, assistantReply string, glosses map[string]string, known map[string]bool) {
	if !plan.AllowNewVocab {
		return
	}
	budget := p.settings.MaxNewWordsPerSession
	if len(state.NewWords) >= budget {
		return
	}

	// Candidates come from the gloss map, matched against the reply with the
	// same stem rule validation uses, so "날씨가" still introduces "날씨".
	present := lang.StemSet(assistantReply)

	candidates := make([]string, 0, len(glosses))
	for w := range glosses {
		candidates = append(candidates, w)
	}
	sort.Strings(candidates)

	for _, w := range candidates {
		if glosses[w] == "" || !present[w] || known[w] || lang.IsGlue(w) {
			continue
		}
		if _, exists := state.NewWords[w]; exists {
			continue
		}
		state.NewWords[w] = &NewWordState{
			Lexeme:         w,
			Gloss:          glosses[w],
			IntroducedTurn: plan.Turn,
			Stage:          1,
			ExposureCount:  1,
			LastSeenTurn:   plan.Turn,
		}
		if len(state.NewWords) >= budget {
			break
		}
	}
}

// targetUsed applies the coverage rule: a collocation needs every surface
// form present; anything else needs any one form.
func targetUsed(t MustTarget, tokens map[string]bool) bool {
	if t.Type == TargetCollocation {
		for _, sf := range t.SurfaceForms {
			if !tokens[sf] {
				return false
			}
		}
		return true
	}
	for _, sf := range t.SurfaceForms {
		if tokens[sf] {
			return true
		}
	}
	return false
}

func (p *Planner) bandFor(it item.Item, agg telemetry.Aggregate) Band {
	cfg := p.settings
	if it.Stability > 0 && it.LastReviewDay >= 0 && p.catalog.Today > 0 {
		elapsed := float64(p.catalog.Today - it.LastReviewDay)
		decay := it.Decay
		if decay <= 0 {
			decay = DefaultDecay
		}
		r := Retrievability(it.Stability, elapsed, decay)
		return classifyBand(r, agg, cfg.BandColdThreshold, cfg.BandFragileThreshold, cfg.BandStretchThreshold)
	}
	if cfg.TreatUnseenAsSupport {
		return BandSupport
	}
	return BandStretch
}

// spacingBlocked reports whether id must stay out of must_target this turn.
// Forced reschedules and the end-of-session exposure floor override the
// window.
func (p *Planner) spacingBlocked(state *State, id item.ID, turn int) bool {
	issued, ok := state.TargetsInPlay[id]
	if !ok || turn-issued >= p.settings.SpacingWindow {
		return false
	}
	if due, ok := state.ScheduledReuse[id]; ok && due <= turn {
		return false
	}
	if turn > p.settings.SessionTurnBudget-p.settings.SpacingWindow &&
		state.Exposures[id] < p.settings.MinExposures {
		return false
	}
	return true
}

// score is the composite urgency function. Higher is more urgent. The weights
// keep stability/overdue dominant, with telemetry nudges on top.
func (p *Planner) score(it item.Item, agg telemetry.Aggregate, penalty int) float64 {
	rustiness := 0.0
	if it.Stability > 0 {
		rustiness = 1.0 / (1.0 + it.Stability)
	}

	overdue := 0.0
	if it.InReview && it.Interval > 0 && p.catalog.Today > 0 {
		days := float64(p.catalog.Today - it.Due)
		if days > 0 {
			ratio := days / float64(it.Interval)
			if ratio > 2 {
				ratio = 2
			}
			overdue = ratio * 0.2
		}
	}

	difficulty := it.Difficulty / 10.0
	if difficulty < 0 {
		difficulty = 0
	}
	if difficulty > 1 {
		difficulty = 1
	}

	lookups := float64(agg.LookupCount)
	if lookups > 2 {
		lookups = 2
	}
	avgLookup := agg.AvgLookupMS() / 1500.0
	if avgLookup > 2 {
		avgLookup = 2
	}

	return rustiness +
		overdue +
		float64(agg.DontKnow)*0.5 +
		float64(agg.PracticeAgain)*0.25 +
		float64(agg.MissedTarget)*0.2 +
		float64(penalty)*0.2 +
		difficulty*0.1 +
		lookups*0.05 + avgLookup*0.05 +
		float64(agg.UsedGuessing)*0.2 +
		float64(agg.UsedUnsure)*0.1 +
		float64(agg.ConfGuessing)*0.1 +
		float64(agg.ConfUnsure)*0.05
}

func (p *Planner) activeNewWord(state *State) *NewWordState {
	var active []*NewWordState
	for _, lex := range sortedNewWordKeys(state.NewWords) {
		nw := state.NewWords[lex]
		if nw.Stage >= 1 && nw.Stage <= 3 {
			active = append(active, nw)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Stage != active[j].Stage {
			return active[i].Stage < active[j].Stage
		}
		if active[i].IntroducedTurn != active[j].IntroducedTurn {
			return active[i].IntroducedTurn < active[j].IntroducedTurn
		}
		return active[i].Lexeme < active[j].Lexeme
	})
	return active[0]
}

func targetTypeFor(k item.Kind) TargetType {
	switch k {
	case item.KindGrammar:
		return TargetGrammar
	case item.KindCollocation:
		return TargetCollocation
	default:
		return TargetVocab
	}
}

func lexemesExcluding(cands []candidate, exclude map[string]bool, max int) []string {
	var out []string
	for _, c := range cands {
		lex := c.it.Lexeme()
		if lex == "" || exclude[lex] {
			continue
		}
		out = append(out, lex)
		if len(out) >= max {
			break
		}
	}
	return lang.Dedupe(out)
}

func sortedNewWordKeys(m map[string]*NewWordState) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
