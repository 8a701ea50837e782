// Package aicompletion defines the contract DailyOS uses to invoke the
// AI inference runtime. The runtime itself is out of scope (spec §1):
// the core only ever calls a text-completion callable with a prompt and
// receives a string or structured JSON back.
package aicompletion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Tier selects which model class a call should route to. The enrich
// pipeline (spec §4.3) and inbox processor (spec §4.5) both distinguish
// extraction (cheap, structured) from synthesis (narrative) calls, and
// fall back from extraction to synthesis once on failure.
type Tier string

const (
	// TierExtraction is for short, structured, low-latitude completions:
	// classification, field extraction, routing decisions.
	TierExtraction Tier = "extraction"
	// TierSynthesis is for narrative generation: briefing prose,
	// intelligence summaries, enrichment paragraphs.
	TierSynthesis Tier = "synthesis"
)

// Request is a single completion call.
type Request struct {
	Tier         Tier
	Prompt       string
	SystemPrompt string
	// MaxTokens bounds the response; zero means provider default.
	MaxTokens int
}

// Completer is the callable the core invokes for all AI-augmented work.
// Implementations wrap whatever inference runtime is configured
// (local model server, hosted API, …) — none of that is DailyOS's
// concern.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrUnavailable is returned by a Completer when the requested tier's
// model is not reachable. Callers fall back to the other tier once
// (spec §4.3, §7) rather than failing the workflow outright.
var ErrUnavailable = fmt.Errorf("ai completion: model unavailable")

// CompleteJSON calls Complete and unmarshals the response into out.
// A malformed response is logged and dropped by the caller per spec §7
// ("malformed response: log + drop, write fallback empty payload") —
// this helper only reports the parse error; it is the caller's job to
// decide what the fallback payload looks like.
func CompleteJSON(ctx context.Context, c Completer, req Request, out any) error {
	raw, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("parse completion response: %w", err)
	}
	return nil
}

// WithFallback runs fn at req's tier; if it fails with ErrUnavailable,
// it retries once at the synthesis tier and reports whether a fallback
// occurred so the caller can emit the warning event spec §4.3 requires
// ("extraction-tier failure falls back to synthesis-tier once, and
// emits a warning event").
func WithFallback(ctx context.Context, c Completer, req Request) (result string, usedFallback bool, err error) {
	result, err = c.Complete(ctx, req)
	if err == nil {
		return result, false, nil
	}
	if req.Tier != TierExtraction || !errors.Is(err, ErrUnavailable) {
		return "", false, err
	}
	fallbackReq := req
	fallbackReq.Tier = TierSynthesis
	result, ferr := c.Complete(ctx, fallbackReq)
	if ferr != nil {
		return "", false, fmt.Errorf("extraction failed (%v), synthesis fallback also failed: %w", err, ferr)
	}
	return result, true, nil
}
