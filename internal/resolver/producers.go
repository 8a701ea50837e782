package resolver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/signalbus"
	"github.com/dailyos/dailyos/internal/store"
	"github.com/xrash/smetrics"
)

// producerExplicitAssignment is signal producer #1 (spec §4.2 table):
// the meeting row's legacy account_id column, confidence 0.99. Only
// consulted when the junction gate found nothing (see Resolve).
func producerExplicitAssignment(in Input) []Signal {
	if in.Meeting.AccountID == "" {
		return nil
	}
	return []Signal{{
		EntityID:   in.Meeting.AccountID,
		EntityType: entity.EntityTypeAccount,
		Source:     signalbus.TierCalendar,
		Confidence: 0.99,
	}}
}

// producerJunction is signal producer #2: an explicit meeting_entities
// link, confidence 0.95 per entry. Authoritative over every other
// producer (spec §3, §4.2 junction gate).
func producerJunction(s Store, in Input) ([]Signal, error) {
	links, err := s.MeetingEntityLinks(in.Meeting.ID)
	if err != nil {
		return nil, fmt.Errorf("producerJunction: %w", err)
	}
	signals := make([]Signal, 0, len(links))
	for _, l := range links {
		signals = append(signals, Signal{
			EntityID:   l.ID,
			EntityType: l.EntityType,
			Source:     signalbus.TierJunction,
			Confidence: 0.95,
		})
	}
	return signals, nil
}

// producerAttendeeVote is signal producer #3: look up each attendee's
// person record, tally votes over the entities each is linked to, and
// score confidence as 0.5 + 0.4*(votes/total_attendees), capped at
// 0.90 (spec §4.2 table).
func producerAttendeeVote(s Store, in Input) ([]Signal, error) {
	total := len(in.AttendeeEmails)
	if total == 0 {
		return nil, nil
	}
	votes := make(map[groupKey]int)
	for _, email := range in.AttendeeEmails {
		person, err := s.FindPersonByEmail(email)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("producerAttendeeVote: lookup %s: %w", email, err)
		}
		links, err := s.PersonEntityLinks(person.ID)
		if err != nil {
			return nil, fmt.Errorf("producerAttendeeVote: links for %s: %w", person.ID, err)
		}
		seen := make(map[groupKey]bool)
		for _, l := range links {
			k := groupKey{id: l.ID, et: l.EntityType}
			if seen[k] {
				continue
			}
			seen[k] = true
			votes[k]++
		}
	}

	signals := make([]Signal, 0, len(votes))
	for k, v := range votes {
		confidence := 0.5 + 0.4*(float64(v)/float64(total))
		if confidence > 0.90 {
			confidence = 0.90
		}
		signals = append(signals, Signal{
			EntityID:   k.id,
			EntityType: k.et,
			Source:     signalbus.TierAttendee,
			Confidence: confidence,
		})
	}
	return signals, nil
}

// producerKeywordMatch is signal producer #4: a tiered text match
// between the meeting title and each candidate account/project's name,
// auto-extracted keywords, or a fuzzy Jaro-Winkler token match (spec
// §4.2 table). Candidates are every non-archived account and project;
// for a single-user desktop store this is a small in-memory scan, not a
// DB-side query, matching the "pure function producer" shape.
func producerKeywordMatch(s Store, in Input) ([]Signal, error) {
	title := strings.ToLower(in.Meeting.Title)
	if title == "" {
		return nil, nil
	}
	titleTokens := strings.Fields(title)

	accounts, err := s.ListAccounts(false)
	if err != nil {
		return nil, fmt.Errorf("producerKeywordMatch: list accounts: %w", err)
	}
	projects, err := s.ListProjects(false)
	if err != nil {
		return nil, fmt.Errorf("producerKeywordMatch: list projects: %w", err)
	}

	var signals []Signal
	for _, a := range accounts {
		if sig, ok := keywordSignalFor(title, titleTokens, a.ID, entity.EntityTypeAccount, a.Name, a.Keywords); ok {
			signals = append(signals, sig)
		}
	}
	for _, p := range projects {
		if sig, ok := keywordSignalFor(title, titleTokens, p.ID, entity.EntityTypeProject, p.Name, p.Keywords); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func keywordSignalFor(title string, titleTokens []string, id string, et entity.EntityType, name string, keywords []string) (Signal, bool) {
	lname := strings.ToLower(name)
	if lname != "" && strings.Contains(title, lname) {
		return Signal{EntityID: id, EntityType: et, Source: signalbus.TierKeyword, Confidence: 0.80}, true
	}
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(title, strings.ToLower(kw)) {
			return Signal{EntityID: id, EntityType: et, Source: signalbus.TierKeyword, Confidence: 0.65}, true
		}
	}
	for _, tok := range titleTokens {
		if len(tok) < 3 {
			continue
		}
		if smetrics.JaroWinkler(tok, lname, 0.7, 4) >= 0.85 {
			return Signal{EntityID: id, EntityType: et, Source: signalbus.TierKeyword, Confidence: 0.55}, true
		}
	}
	return Signal{}, false
}

// producerEmbeddingSimilarity is signal producer #5: cosine similarity
// between a meeting-title embedding and each candidate entity's
// name embedding, scored 0.4 + 0.4*similarity when similarity > 0.75
// (spec §4.2 table). Best-effort — any embedder error degrades to "no
// signal" rather than failing the whole cascade, since this producer is
// the weakest-evidence tier.
func producerEmbeddingSimilarity(ctx context.Context, s Store, embedder Embedder, in Input) ([]Signal, error) {
	if in.Meeting.Title == "" {
		return nil, nil
	}
	titleVec, err := embedder.Generate(ctx, in.Meeting.Title)
	if err != nil || len(titleVec) == 0 {
		return nil, nil
	}

	accounts, err := s.ListAccounts(false)
	if err != nil {
		return nil, fmt.Errorf("producerEmbeddingSimilarity: list accounts: %w", err)
	}
	projects, err := s.ListProjects(false)
	if err != nil {
		return nil, fmt.Errorf("producerEmbeddingSimilarity: list projects: %w", err)
	}

	var signals []Signal
	for _, a := range accounts {
		if sig, ok := embeddingSignalFor(ctx, embedder, titleVec, a.ID, entity.EntityTypeAccount, a.Name); ok {
			signals = append(signals, sig)
		}
	}
	for _, p := range projects {
		if sig, ok := embeddingSignalFor(ctx, embedder, titleVec, p.ID, entity.EntityTypeProject, p.Name); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func embeddingSignalFor(ctx context.Context, embedder Embedder, titleVec []float32, id string, et entity.EntityType, name string) (Signal, bool) {
	if name == "" {
		return Signal{}, false
	}
	nameVec, err := embedder.Generate(ctx, name)
	if err != nil || len(nameVec) == 0 {
		return Signal{}, false
	}
	sim := cosineSimilarity(titleVec, nameVec)
	if sim <= 0.75 {
		return Signal{}, false
	}
	return Signal{EntityID: id, EntityType: et, Source: signalbus.TierEmbedding, Confidence: 0.4 + 0.4*sim}, true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
