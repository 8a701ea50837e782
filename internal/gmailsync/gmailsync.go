// Package gmailsync polls Gmail over IMAP for new messages and
// classifies each by sender domain and subject heuristics into a typed
// EmailSignal (spec §4.3 step 2). The daemon only calls Poll inside the
// configured work hours.
//
// Polling uses high-water-mark diffing ("never report the whole
// mailbox on first run, only ever advance the mark, never decrease
// it"), with the mark kept in internal/store's operational_state table.
package gmailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/oauthtoken"
	"github.com/dailyos/dailyos/internal/store"
)

// pollNamespace is the operational_state namespace for the Gmail UID
// high-water mark.
const pollNamespace = "gmail_poll"

// Envelope is the subset of message metadata classification needs.
type Envelope struct {
	UID     uint32
	Date    time.Time
	From    string
	Subject string
	// BodySnippet is the leading text/plain content (bounded, best
	// effort) — classify also scans it so a flat subject line like
	// "Re: account" doesn't hide timeline/sentiment language sitting
	// in the body.
	BodySnippet string
}

// Fetcher lists messages with UID greater than sinceUID. The real
// implementation (imapfetcher.go) authenticates over IMAP via XOAUTH2
// using an oauthtoken.Provider-issued access token; tests supply a fake.
type Fetcher interface {
	ListSince(ctx context.Context, accessToken string, sinceUID uint32) ([]Envelope, error)
}

// Store is the subset of internal/store.Store gmail sync reads and
// writes through.
type Store interface {
	InsertEmailSignal(sig entity.EmailSignal) (entity.EmailSignal, error)
	DomainEntityHints() (map[string]store.DomainHint, error)
	GetState(namespace, key string) (value string, ok bool, err error)
	SetState(namespace, key, value string) error
}

// Config carries gmail sync's tunables.
type Config struct {
	// Account names the oauthtoken.Provider account key for Gmail.
	Account string
	// StateKey identifies this mailbox's high-water mark within
	// pollNamespace (e.g. "me@company.com:INBOX").
	StateKey string
}

// Syncer runs one poll of gmail sync at a time.
type Syncer struct {
	store   Store
	fetcher Fetcher
	tokens  oauthtoken.Provider
	bus     *events.Bus
	cfg     Config
	log     *slog.Logger
}

// New creates a Syncer.
func New(s Store, fetcher Fetcher, tokens oauthtoken.Provider, bus *events.Bus, cfg Config, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Account == "" {
		cfg.Account = "gmail"
	}
	if cfg.StateKey == "" {
		cfg.StateKey = cfg.Account + ":INBOX"
	}
	return &Syncer{store: s, fetcher: fetcher, tokens: tokens, bus: bus, cfg: cfg, log: log}
}

// Poll fetches and classifies messages newer than the stored
// high-water mark, advancing the mark based on everything fetched
// regardless of classification outcome (spec §4.3 step 2).
func (sy *Syncer) Poll(ctx context.Context, now time.Time) error {
	token, err := sy.tokens.AccessToken(ctx, sy.cfg.Account)
	if err != nil {
		if errors.Is(err, oauthtoken.ErrExpired) {
			sy.bus.Publish(events.Event{
				Timestamp: time.Now().UTC(),
				Source:    events.SourceGmailSync,
				Kind:      events.KindGoogleAuthChanged,
				Data:      map[string]any{"reason": "TokenExpired"},
			})
			return nil
		}
		sy.emitError(fmt.Errorf("access token: %w", err))
		return nil
	}

	storedStr, _, err := sy.store.GetState(pollNamespace, sy.cfg.StateKey)
	if err != nil {
		sy.emitError(fmt.Errorf("load high-water mark: %w", err))
		return nil
	}
	var sinceUID uint32
	if storedStr != "" {
		parsed, err := strconv.ParseUint(storedStr, 10, 32)
		if err != nil {
			sy.log.Warn("gmailsync: corrupt high-water mark, restarting from zero", "stored", storedStr)
		} else {
			sinceUID = uint32(parsed)
		}
	}

	messages, err := sy.fetcher.ListSince(ctx, token, sinceUID)
	if err != nil {
		sy.emitError(fmt.Errorf("list messages: %w", err))
		return nil
	}
	if len(messages) == 0 {
		return nil
	}

	if err := sy.advanceHighWaterMark(sinceUID, messages); err != nil {
		sy.log.Warn("gmailsync: advance high-water mark failed", "error", err)
	}

	hints, err := sy.store.DomainEntityHints()
	if err != nil {
		sy.emitError(fmt.Errorf("domain hints: %w", err))
		return nil
	}

	firstRun := storedStr == ""
	if firstRun {
		// Seeding: record the mark but don't classify the whole mailbox
		// on first contact.
		return nil
	}

	classified := 0
	for _, msg := range messages {
		sig, ok := classify(msg, hints)
		if !ok {
			continue
		}
		if _, err := sy.store.InsertEmailSignal(sig); err != nil {
			sy.log.Warn("gmailsync: insert email signal failed", "uid", msg.UID, "error", err)
			sy.bus.Publish(events.Event{
				Timestamp: time.Now().UTC(),
				Source:    events.SourceGmailSync,
				Kind:      events.KindEmailEnrichmentWarning,
				Data:      map[string]any{"uid": msg.UID, "error": err.Error()},
			})
			continue
		}
		classified++
	}

	sy.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceGmailSync,
		Kind:      events.KindEmailSyncStatus,
		Data:      map[string]any{"fetched": len(messages), "classified": classified},
	})
	return nil
}

func (sy *Syncer) emitError(err error) {
	sy.log.Warn("gmailsync: poll failed", "error", err)
	sy.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceGmailSync,
		Kind:      events.KindEmailError,
		Data:      map[string]any{"error": err.Error()},
	})
}

// advanceHighWaterMark sets the stored mark to the highest UID seen,
// never decreasing it.
func (sy *Syncer) advanceHighWaterMark(current uint32, messages []Envelope) error {
	highest := current
	for _, m := range messages {
		if m.UID > highest {
			highest = m.UID
		}
	}
	if highest <= current {
		return nil
	}
	return sy.store.SetState(pollNamespace, sy.cfg.StateKey, strconv.FormatUint(uint64(highest), 10))
}

// classify assigns an EmailSignalKind from subject/sender heuristics
// (spec §4.3 step 2: "classify by sender domain and heuristics"). ok is
// false when the sender has no resolvable account/project hint — a
// signal with no entity to attach to isn't useful.
func classify(msg Envelope, hints map[string]store.DomainHint) (entity.EmailSignal, bool) {
	domain := senderDomain(msg.From)
	hint, ok := hints[domain]
	if !ok {
		return entity.EmailSignal{}, false
	}

	sig := entity.EmailSignal{
		SenderEmail: extractAddress(msg.From),
		Kind:        entity.SignalRelationship,
		Confidence:  0.6,
		CreatedAt:   msg.Date,
	}
	if hint.EntityType == entity.EntityTypeAccount {
		sig.AccountID = hint.EntityID
	} else if hint.EntityType == entity.EntityTypeProject {
		sig.ProjectID = hint.EntityID
	}

	text := strings.ToLower(msg.Subject + " " + msg.BodySnippet)
	switch {
	case containsAny(text, "upgrade", "renew", "renewal", "expand", "additional licenses", "more seats"):
		sig.Kind = entity.SignalExpansion
		sig.Confidence = 0.75
	case strings.Contains(text, "?"), containsAny(text, "question", "clarif", "how do"):
		sig.Kind = entity.SignalQuestion
		sig.Confidence = 0.65
	case containsAny(text, "deadline", "timeline", "by friday", "by monday", "schedule", "due date"):
		sig.Kind = entity.SignalTimeline
		sig.Confidence = 0.65
	case containsAny(text, "disappointed", "frustrated", "unacceptable", "concerned"):
		sig.Kind = entity.SignalSentiment
		sig.Sentiment = "negative"
		sig.Confidence = 0.7
	case containsAny(text, "great", "thanks", "excited", "love it", "fantastic"):
		sig.Kind = entity.SignalSentiment
		sig.Sentiment = "positive"
		sig.Confidence = 0.6
	case containsAny(text, "feedback", "review", "thoughts on"):
		sig.Kind = entity.SignalFeedback
		sig.Confidence = 0.6
	}

	return sig, true
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// senderDomain extracts the lowercase domain from a From header that
// may be "Name <addr@domain>" or a bare address.
func senderDomain(from string) string {
	addr := extractAddress(from)
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}

// extractAddress pulls the bare email address out of a "Name <addr>"
// formatted From header, or returns from unchanged if it's already bare.
func extractAddress(from string) string {
	start := strings.Index(from, "<")
	end := strings.Index(from, ">")
	if start >= 0 && end > start {
		return strings.TrimSpace(from[start+1 : end])
	}
	return strings.TrimSpace(from)
}
