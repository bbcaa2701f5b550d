package session

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/suda-labs/suda/internal/config"
	"github.com/suda-labs/suda/internal/gateway"
	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/provider"
	"github.com/suda-labs/suda/internal/telemetry"
)

func testCatalog() *item.Catalog {
	return &item.Catalog{
		DeckIDs: []string{"deck-1"},
		Today:   100,
		Items: []item.Item{
			{ID: "lexeme:의자", Kind: item.KindVocabulary, SurfaceForms: []string{"의자"}, Gloss: "chair", Stability: 10, LastReviewDay: 95},
			{ID: "lexeme:책상", Kind: item.KindVocabulary, SurfaceForms: []string{"책상"}, Gloss: "desk", Stability: 10, LastReviewDay: 95},
			{ID: "lexeme:창문", Kind: item.KindVocabulary, SurfaceForms: []string{"창문"}, Gloss: "window", Stability: 10, LastReviewDay: 95},
		},
	}
}

func testStore(t *testing.T) *telemetry.SQLiteStore {
	t.Helper()
	store, err := telemetry.NewSQLiteStore(filepath.Join(t.TempDir(), "suda.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func startSession(t *testing.T, prov provider.Provider) *Controller {
	t.Helper()
	c, err := Start(context.Background(), Options{
		Config:   testConfig(t),
		Catalog:  testCatalog(),
		Store:    testStore(t),
		TopicID:  "room_objects",
		Provider: prov,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c
}

func TestStartFailsFastOnBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway.ExhaustionPolicy = "shrug"

	_, err := Start(context.Background(), Options{
		Config: cfg, Catalog: testCatalog(), Store: testStore(t),
	})
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestStartRejectsUnknownTopic(t *testing.T) {
	_, err := Start(context.Background(), Options{
		Config: testConfig(t), Catalog: testCatalog(), Store: testStore(t),
		TopicID: "moon_landing",
	})
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestStartRejectsInvalidCatalog(t *testing.T) {
	bad := testCatalog()
	bad.Items[1].ID = bad.Items[0].ID

	_, err := Start(context.Background(), Options{
		Config: testConfig(t), Catalog: bad, Store: testStore(t),
	})
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestSubmitTurnAdvancesSession(t *testing.T) {
	c := startSession(t, provider.NewLocal())

	out, err := c.SubmitTurn(context.Background(), TurnInput{Text: "안녕하세요"})
	if err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	if out.Turn != 1 || out.Response == nil || out.Response.AssistantReply == "" {
		t.Fatalf("out = %+v", out)
	}
	if c.Turn() != 1 {
		t.Fatalf("Turn() = %d, want 1", c.Turn())
	}

	out2, err := c.SubmitTurn(context.Background(), TurnInput{Text: "네, 의자 있어요", Confidence: "confident"})
	if err != nil {
		t.Fatalf("second SubmitTurn: %v", err)
	}
	if out2.Turn != 2 {
		t.Fatalf("second turn = %d, want 2", out2.Turn)
	}
	// The learner used 의자: mastery must record it.
	if got := c.mastery.Get("lexeme:의자"); got.UserUsed != 1 {
		t.Fatalf("UserUsed = %d, want 1", got.UserUsed)
	}
}

func TestProviderFailurePreservesState(t *testing.T) {
	script := &provider.Script{Steps: []provider.ScriptStep{
		{Err: errors.New("connection reset")},
	}}
	c := startSession(t, script)

	_, err := c.SubmitTurn(context.Background(), TurnInput{Text: "안녕하세요"})
	if !gateway.Recoverable(err) {
		t.Fatalf("err = %v, want recoverable", err)
	}
	if c.Turn() != 0 {
		t.Fatalf("turn advanced after provider failure: %d", c.Turn())
	}

	// Resubmission with the same input succeeds against a healthy provider.
	c.gw.Provider = provider.NewLocal()
	out, err := c.SubmitTurn(context.Background(), TurnInput{Text: "안녕하세요"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if out.Turn != 1 {
		t.Fatalf("resubmitted turn = %d, want 1", out.Turn)
	}
}

type blockingProvider struct {
	release chan struct{}
	inner   provider.Provider
}

func (b *blockingProvider) Name() string { return "blocking" }

func (b *blockingProvider) Generate(ctx context.Context, req *provider.Request) (json.RawMessage, error) {
	<-b.release
	return b.inner.Generate(ctx, req)
}

func TestOneTurnInFlight(t *testing.T) {
	block := &blockingProvider{release: make(chan struct{}), inner: provider.NewLocal()}
	c := startSession(t, block)

	ch := c.SubmitTurnAsync(context.Background(), TurnInput{Text: "안녕하세요"})
	for {
		c.mu.Lock()
		busy := c.inFlight
		c.mu.Unlock()
		if busy {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// While the first turn waits on the provider, a second submission and an
	// End are both rejected, but telemetry events still land.
	if _, err := c.SubmitTurn(context.Background(), TurnInput{Text: "두번째"}); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("concurrent SubmitTurn = %v, want ErrTurnInFlight", err)
	}
	if _, err := c.End(context.Background()); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("End during turn = %v, want ErrTurnInFlight", err)
	}
	if err := c.LogEvent(context.Background(), Event{Type: telemetry.EventHover, Lexeme: "의자"}); err != nil {
		t.Fatalf("LogEvent during turn: %v", err)
	}

	close(block.release)
	res := <-ch
	if res.Err != nil {
		t.Fatalf("blocked turn failed: %v", res.Err)
	}
}

func TestHoverOnlyTouchesHoverCount(t *testing.T) {
	c := startSession(t, provider.NewLocal())

	for i := 0; i < 5; i++ {
		if err := c.LogEvent(context.Background(), Event{Type: telemetry.EventHover, Lexeme: "의자"}); err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
	}

	agg := c.mastery.Get("lexeme:의자")
	if agg.HoverCount != 5 {
		t.Fatalf("HoverCount = %d, want 5", agg.HoverCount)
	}
	zeroed := agg
	zeroed.HoverCount = 0
	zeroed.LastTurnSeen = 0
	if zeroed != (telemetry.Aggregate{}) {
		t.Fatalf("hover touched fields beyond HoverCount: %+v", agg)
	}
}

func TestNegativeEventsAccrue(t *testing.T) {
	c := startSession(t, provider.NewLocal())
	ctx := context.Background()

	events := []Event{
		{Type: telemetry.EventDontKnow, Lexeme: "의자"},
		{Type: telemetry.EventPracticeAgain, Lexeme: "의자"},
		{Type: telemetry.EventLookup, Lexeme: "의자", DurationMS: 900},
		{Type: telemetry.EventConfidence, Lexeme: "의자", Level: "guessing"},
		{Type: telemetry.EventWordsKnown, Lexemes: []string{"책상", "창문"}},
	}
	for _, ev := range events {
		if err := c.LogEvent(ctx, ev); err != nil {
			t.Fatalf("LogEvent(%s): %v", ev.Type, err)
		}
	}

	agg := c.mastery.Get("lexeme:의자")
	if agg.DontKnow != 1 || agg.PracticeAgain != 1 || agg.LookupCount != 1 || agg.LookupMSTotal != 900 || agg.ConfGuessing != 1 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if c.mastery.Get("lexeme:책상").UserKnown != 1 {
		t.Fatal("words_known not applied")
	}

	if err := c.LogEvent(ctx, Event{Type: "mystery"}); err == nil {
		t.Fatal("unknown event type accepted")
	}
}

func TestEndProducesWrapOnce(t *testing.T) {
	c := startSession(t, provider.NewLocal())
	ctx := context.Background()

	if _, err := c.SubmitTurn(ctx, TurnInput{Text: "의자 책상 있어요"}); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	wrap, err := c.End(ctx)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if len(wrap.Strengths) == 0 || len(wrap.Reinforce) == 0 {
		t.Fatalf("wrap = %+v", wrap)
	}
	if c.Status() != StatusEnded {
		t.Fatalf("status = %s, want ended", c.Status())
	}

	if _, err := c.End(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second End = %v, want ErrNotActive", err)
	}
	if _, err := c.SubmitTurn(ctx, TurnInput{Text: "네"}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("SubmitTurn after End = %v, want ErrNotActive", err)
	}
	if err := c.LogEvent(ctx, Event{Type: telemetry.EventHover, Lexeme: "의자"}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("LogEvent after End = %v, want ErrNotActive", err)
	}
}

func TestRedactionAppliedBeforeProvider(t *testing.T) {
	script := &provider.Script{Steps: []provider.ScriptStep{
		{Raw: json.RawMessage(`{"assistant_reply":"네, 좋아요"}`)},
	}}
	c := startSession(t, script)

	if _, err := c.SubmitTurn(context.Background(), TurnInput{Text: "제 메일은 kim@example.com 이에요"}); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	sent := script.LastRequest.UserInput.Text
	if sent == "" || sent == "제 메일은 kim@example.com 이에요" {
		t.Fatalf("raw email crossed the provider boundary: %q", sent)
	}
}
