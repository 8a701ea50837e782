package gmailsync

import (
	"context"
	"testing"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/oauthtoken"
	"github.com/dailyos/dailyos/internal/store"
)

type fakeFetcher struct {
	messages []Envelope
	err      error
}

func (f *fakeFetcher) ListSince(ctx context.Context, accessToken string, sinceUID uint32) ([]Envelope, error) {
	var out []Envelope
	for _, m := range f.messages {
		if m.UID > sinceUID {
			out = append(out, m)
		}
	}
	return out, f.err
}

type fakeStore struct {
	state   map[string]string
	signals []entity.EmailSignal
	hints   map[string]store.DomainHint
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: make(map[string]string), hints: make(map[string]store.DomainHint)}
}

func (f *fakeStore) InsertEmailSignal(sig entity.EmailSignal) (entity.EmailSignal, error) {
	f.signals = append(f.signals, sig)
	return sig, nil
}
func (f *fakeStore) DomainEntityHints() (map[string]store.DomainHint, error) { return f.hints, nil }
func (f *fakeStore) GetState(namespace, key string) (string, bool, error) {
	v, ok := f.state[namespace+"/"+key]
	return v, ok, nil
}
func (f *fakeStore) SetState(namespace, key, value string) error {
	f.state[namespace+"/"+key] = value
	return nil
}

func TestPoll_FirstRunSeedsWithoutClassifying(t *testing.T) {
	s := newFakeStore()
	fetcher := &fakeFetcher{messages: []Envelope{{UID: 5, From: "carl@acme.com", Subject: "Hello"}}}
	sy := New(s, fetcher, oauthtoken.StaticProvider{"gmail": "tok"}, events.New(), Config{}, nil)

	if err := sy.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(s.signals) != 0 {
		t.Errorf("expected no signals on first run, got %d", len(s.signals))
	}
	mark, ok, _ := s.GetState(pollNamespace, "gmail:INBOX")
	if !ok || mark != "5" {
		t.Errorf("high-water mark = %q, ok=%v, want 5", mark, ok)
	}
}

func TestPoll_ClassifiesAgainstKnownDomain(t *testing.T) {
	s := newFakeStore()
	s.state[pollNamespace+"/gmail:INBOX"] = "1"
	s.hints["acme.com"] = store.DomainHint{Domain: "acme.com", EntityID: "acct-1", EntityType: entity.EntityTypeAccount}
	fetcher := &fakeFetcher{messages: []Envelope{
		{UID: 2, From: "Carl <carl@acme.com>", Subject: "Can we upgrade our plan?"},
		{UID: 3, From: "noone@unknown.example", Subject: "hi"},
	}}
	sy := New(s, fetcher, oauthtoken.StaticProvider{"gmail": "tok"}, events.New(), Config{}, nil)

	if err := sy.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(s.signals) != 1 {
		t.Fatalf("signals = %d, want 1 (unknown domain should be skipped)", len(s.signals))
	}
	if s.signals[0].Kind != entity.SignalExpansion {
		t.Errorf("Kind = %q, want expansion", s.signals[0].Kind)
	}
	if s.signals[0].AccountID != "acct-1" {
		t.Errorf("AccountID = %q, want acct-1", s.signals[0].AccountID)
	}

	mark, _, _ := s.GetState(pollNamespace, "gmail:INBOX")
	if mark != "3" {
		t.Errorf("high-water mark = %q, want 3 (advances on all fetched, not just classified)", mark)
	}
}

func TestPoll_TokenExpiredEmitsAuthChanged(t *testing.T) {
	s := newFakeStore()
	sy := New(s, &fakeFetcher{}, oauthtoken.StaticProvider{}, events.New(), Config{}, nil)
	if err := sy.Poll(context.Background(), time.Now()); err != nil {
		t.Fatalf("Poll() error = %v, want nil", err)
	}
}

func TestClassify_SubjectHeuristics(t *testing.T) {
	hints := map[string]store.DomainHint{"acme.com": {EntityID: "acct-1", EntityType: entity.EntityTypeAccount}}

	tests := []struct {
		subject string
		want    entity.EmailSignalKind
	}{
		{"Renewal next quarter", entity.SignalExpansion},
		{"Quick question about pricing?", entity.SignalQuestion},
		{"Deadline for the migration", entity.SignalTimeline},
		{"We are disappointed with the outage", entity.SignalSentiment},
		{"Thanks, this is fantastic work", entity.SignalSentiment},
		{"Feedback on the proposal", entity.SignalFeedback},
		{"Weekly update", entity.SignalRelationship},
	}
	for _, tt := range tests {
		sig, ok := classify(Envelope{From: "x@acme.com", Subject: tt.subject}, hints)
		if !ok {
			t.Fatalf("classify(%q) not ok", tt.subject)
		}
		if sig.Kind != tt.want {
			t.Errorf("classify(%q) = %q, want %q", tt.subject, sig.Kind, tt.want)
		}
	}
}
