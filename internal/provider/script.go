package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Script replays a fixed sequence of raw documents or errors, one per
// Generate call. It exists for tests that need to count invocations and
// exercise rewrite/failure paths precisely.
type Script struct {
	Steps []ScriptStep
	Calls int
	// LastRequest keeps the most recent request for assertions.
	LastRequest *Request
}

// ScriptStep is one scripted Generate outcome.
type ScriptStep struct {
	Raw json.RawMessage
	Err error
}

func (s *Script) Name() string { return "script" }

func (s *Script) Generate(ctx context.Context, req *Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.LastRequest = req
	if s.Calls >= len(s.Steps) {
		return nil, fmt.Errorf("script exhausted after %d calls", s.Calls)
	}
	step := s.Steps[s.Calls]
	s.Calls++
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Raw, nil
}
