// Package calendarsync polls Google Calendar for today's events and
// reconciles them into the entity store (spec §4.4): classifying each
// event into a MeetingType, materializing attendees into people,
// detecting cancellations, and reactively seeding a lightweight prep
// for anything that doesn't have one yet.
//
// Follows the same poll-dispatch shape used throughout this codebase's
// task-execution loop, and the "diff against stored state, act only on
// what changed" idiom applied to calendar event ids. The Google API
// client itself (googlecalendar.go) follows the pack's Calendar v3
// wiring pattern (spengrah-PersonalCRM, daviddao-mailbeads manifests).
package calendarsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/dailyos/dailyos/internal/events"
	"github.com/dailyos/dailyos/internal/fileio"
	"github.com/dailyos/dailyos/internal/oauthtoken"
	"github.com/dailyos/dailyos/internal/signalbus"
	"github.com/dailyos/dailyos/internal/store"
)

// Attendee is one invitee on a fetched calendar event.
type Attendee struct {
	Email       string
	DisplayName string
}

// Event is a calendar event as returned by a Fetcher, trimmed to the
// fields classification and materialization need.
type Event struct {
	ID        string
	Title     string
	Start     time.Time
	End       time.Time
	Cancelled bool
	Attendees []Attendee
}

// Fetcher retrieves today's events for an authenticated account. The
// real implementation wraps google.golang.org/api/calendar/v3
// (googlecalendar.go); tests supply a fake.
type Fetcher interface {
	FetchDayEvents(ctx context.Context, accessToken string, day time.Time) ([]Event, error)
}

// Store is the subset of internal/store.Store calendar sync reads and
// writes through.
type Store interface {
	EnsureMeeting(m entity.Meeting) (store.MeetingWriteOutcome, error)
	GetMeeting(id string) (entity.Meeting, error)
	ResetMeetingIntelligence(meetingID string) error
	DiffCancelledMeetings(from, to time.Time, currentEventIDs map[string]bool) ([]string, error)
	SetMeetingEntities(meetingID string, links []entity.MirrorRow) error
	FindPersonByEmail(email string) (entity.Person, error)
	UpsertPerson(p entity.Person) (entity.Person, error)
	AddPersonAlias(personID, email string) error
	RecordAttendance(meetingID, personID string, at time.Time) error
	LinkPersonToEntity(entityID string, entityType entity.EntityType, personID, relation string) error
	SaveAttendeeName(meetingID, email, displayName string) error
	DomainEntityHints() (map[string]store.DomainHint, error)
	ListActionsByStatus(status entity.ActionStatus, accountID string) ([]entity.Action, error)
	RecentCaptures(entityID string, n int) ([]entity.Capture, error)
}

// SignalBus is the durable signal sink (internal/signalbus.Bus
// satisfies this; nil is accepted by the real Bus).
type SignalBus interface {
	Publish(s signalbus.Signal) error
}

// Config carries the tunables spec §4.4 names.
type Config struct {
	// UserDomains are the user's own email domains.
	UserDomains []string
	// PersonalEmailDomains are excluded from domain-sibling resolution.
	PersonalEmailDomains []string
	// MaxAllHandsAttendees: events with more attendees than this are
	// classified all_hands and skip per-attendee materialization.
	MaxAllHandsAttendees int
	// Account names the oauthtoken.Provider account key for Calendar.
	Account string
	// SelfEmail is the user's own address, excluded from attendee
	// materialization.
	SelfEmail string
}

// Syncer runs one poll of calendar sync at a time; Poll is not
// reentrant-safe and is expected to be invoked serially by a timer loop.
type Syncer struct {
	store   Store
	fetcher Fetcher
	tokens  oauthtoken.Provider
	signals SignalBus
	events  *events.Bus
	ws      *fileio.Workspace
	cfg     Config
	log     *slog.Logger
}

// New creates a Syncer.
func New(s Store, fetcher Fetcher, tokens oauthtoken.Provider, signals SignalBus, bus *events.Bus, ws *fileio.Workspace, cfg Config, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxAllHandsAttendees <= 0 {
		cfg.MaxAllHandsAttendees = 50
	}
	if cfg.Account == "" {
		cfg.Account = "calendar"
	}
	return &Syncer{store: s, fetcher: fetcher, tokens: tokens, signals: signals, events: bus, ws: ws, cfg: cfg, log: log}
}

// Poll runs one full cycle of spec §4.4 steps 1-9 for the given day.
func (sy *Syncer) Poll(ctx context.Context, now time.Time) error {
	token, err := sy.tokens.AccessToken(ctx, sy.cfg.Account)
	if err != nil {
		if errors.Is(err, oauthtoken.ErrExpired) {
			sy.events.Publish(events.Event{
				Timestamp: time.Now().UTC(),
				Source:    events.SourceCalendarSync,
				Kind:      events.KindGoogleAuthChanged,
				Data:      map[string]any{"reason": "TokenExpired"},
			})
			return nil
		}
		return fmt.Errorf("calendarsync: access token: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	fetched, err := sy.fetcher.FetchDayEvents(ctx, token, dayStart)
	if err != nil {
		return fmt.Errorf("calendarsync: fetch events: %w", err)
	}

	hints, err := sy.store.DomainEntityHints()
	if err != nil {
		return fmt.Errorf("calendarsync: domain hints: %w", err)
	}

	currentEventIDs := make(map[string]bool, len(fetched))
	changedCount := 0
	newPreps := 0

	for _, ev := range fetched {
		if ev.Cancelled {
			continue
		}
		meetingType := classify(ev, sy.cfg.UserDomains, hints, sy.cfg.MaxAllHandsAttendees)
		meetingID := store.MeetingID(ev.ID, ev.Title, ev.Start, meetingType)
		currentEventIDs[meetingID] = true

		m := entity.Meeting{
			ID:              meetingID,
			CalendarEventID: ev.ID,
			Title:           ev.Title,
			Start:           ev.Start,
			End:             ev.End,
			Type:            meetingType,
			AttendeesCSV:    attendeesCSV(ev.Attendees),
		}
		hint, hasHint := accountHintFor(ev, sy.cfg.UserDomains, hints)
		if hasHint && hint.EntityType == entity.EntityTypeAccount {
			m.AccountID = hint.EntityID
		} else if hasHint && hint.EntityType == entity.EntityTypeProject {
			m.ProjectID = hint.EntityID
		}

		outcome, err := sy.store.EnsureMeeting(m)
		if err != nil {
			sy.log.Warn("calendarsync: ensure meeting failed", "event_id", ev.ID, "error", err)
			continue
		}
		if hasHint {
			if err := sy.store.SetMeetingEntities(meetingID, []entity.MirrorRow{{ID: hint.EntityID, EntityType: hint.EntityType}}); err != nil {
				sy.log.Warn("calendarsync: set meeting entity link failed", "meeting_id", meetingID, "error", err)
			}
		}
		if outcome != store.MeetingUnchanged {
			changedCount++
		}
		if outcome == store.MeetingChanged {
			if err := sy.store.ResetMeetingIntelligence(meetingID); err != nil {
				sy.log.Warn("calendarsync: reset intelligence failed", "meeting_id", meetingID, "error", err)
			}
		}

		for _, a := range ev.Attendees {
			sy.saveAttendeeName(meetingID, a)
		}

		if len(ev.Attendees) <= sy.cfg.MaxAllHandsAttendees {
			sy.materializeAttendees(meetingID, m.AccountID, ev, now)
		}

		if newlyPrepped := sy.reactivePrep(meetingID, outcome, now); newlyPrepped {
			newPreps++
		}
	}

	cancelled, err := sy.store.DiffCancelledMeetings(dayStart, dayEnd, currentEventIDs)
	if err != nil {
		return fmt.Errorf("calendarsync: diff cancelled: %w", err)
	}
	for _, meetingID := range cancelled {
		sy.signals.Publish(signalbus.Signal{
			Kind:       signalbus.KindMeetingCancelled,
			EntityID:   meetingID,
			EntityType: "meeting",
			Source:     signalbus.TierCalendar,
			Confidence: 0.9,
			At:         now,
		})
	}

	sy.events.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceCalendarSync,
		Kind:      events.KindCalendarUpdated,
		Data: map[string]any{
			"events_seen":    len(fetched),
			"changed":        changedCount,
			"cancelled":      len(cancelled),
			"new_preps":      newPreps,
		},
	})
	return nil
}

func (sy *Syncer) saveAttendeeName(meetingID string, a Attendee) {
	if a.DisplayName == "" {
		return
	}
	if err := sy.store.SaveAttendeeName(meetingID, a.Email, a.DisplayName); err != nil {
		sy.log.Warn("calendarsync: save attendee name failed", "meeting_id", meetingID, "email", a.Email, "error", err)
	}
}

// materializeAttendees runs spec §4.4 step 6: resolve or create a
// person for every attendee, skip self, record attendance, and link
// the person to the meeting's account if one was assigned.
func (sy *Syncer) materializeAttendees(meetingID, accountID string, ev Event, now time.Time) {
	for _, a := range ev.Attendees {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if email == "" || sy.isSelf(email) {
			continue
		}

		person, found, err := sy.resolvePerson(email)
		if err != nil {
			sy.log.Warn("calendarsync: resolve person failed", "email", email, "error", err)
			continue
		}
		if !found {
			relationship := entity.RelationshipExternal
			if isInternalDomain(email, sy.cfg.UserDomains) {
				relationship = entity.RelationshipInternal
			}
			person, err = sy.store.UpsertPerson(entity.Person{
				Email:        email,
				Name:         a.DisplayName,
				Relationship: relationship,
				FirstSeen:    now,
				LastSeen:     now,
			})
			if err != nil {
				sy.log.Warn("calendarsync: create person failed", "email", email, "error", err)
				continue
			}
			if err := sy.store.AddPersonAlias(person.ID, email); err != nil {
				sy.log.Warn("calendarsync: seed alias failed", "email", email, "error", err)
			}
			sy.signals.Publish(signalbus.Signal{
				Kind:       signalbus.KindPersonCreated,
				EntityID:   person.ID,
				EntityType: string(entity.EntityTypePerson),
				Source:     signalbus.TierCalendar,
				Confidence: 1.0,
				At:         now,
			})
		}

		if err := sy.store.RecordAttendance(meetingID, person.ID, now); err != nil {
			sy.log.Warn("calendarsync: record attendance failed", "meeting_id", meetingID, "person_id", person.ID, "error", err)
		}
		if accountID != "" {
			if err := sy.store.LinkPersonToEntity(accountID, entity.EntityTypeAccount, person.ID, "associated"); err != nil {
				sy.log.Warn("calendarsync: link attendee to account failed", "person_id", person.ID, "account_id", accountID, "error", err)
			}
		}
	}
}

// resolvePerson looks up a person by primary email, then alias, then
// by trying domain-sibling addresses (spec §4.4 "Domain-sibling alias
// resolution"). found is false only when no match exists anywhere.
func (sy *Syncer) resolvePerson(email string) (entity.Person, bool, error) {
	p, err := sy.store.FindPersonByEmail(email)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return entity.Person{}, false, err
	}

	at := strings.LastIndex(email, "@")
	if at < 0 {
		return entity.Person{}, false, nil
	}
	local, domain := email[:at], email[at+1:]

	hints, err := sy.store.DomainEntityHints()
	if err != nil {
		return entity.Person{}, false, err
	}
	for _, sibling := range siblingDomains(domain, hints, sy.cfg.UserDomains, sy.cfg.PersonalEmailDomains) {
		candidate := local + "@" + sibling
		p, err := sy.store.FindPersonByEmail(candidate)
		if err == nil {
			if aliasErr := sy.store.AddPersonAlias(p.ID, email); aliasErr != nil {
				sy.log.Warn("calendarsync: record sibling alias failed", "person_id", p.ID, "email", email, "error", aliasErr)
			}
			return p, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return entity.Person{}, false, err
		}
	}
	return entity.Person{}, false, nil
}

// siblingDomains collects the domains a newly-seen domain's peers
// might use: other domains owned by the same account/project as
// domain (if any), plus the user's configured domains when domain is
// among them, minus personal-email domains and domain itself.
func siblingDomains(domain string, hints map[string]store.DomainHint, userDomains, personalDomains []string) []string {
	seen := map[string]bool{domain: true}
	var out []string
	add := func(d string) {
		d = strings.ToLower(d)
		if seen[d] || isPersonalDomain(d, personalDomains) {
			return
		}
		seen[d] = true
		out = append(out, d)
	}

	if hint, ok := hints[domain]; ok {
		for d, h := range hints {
			if h.EntityID == hint.EntityID {
				add(d)
			}
		}
	}
	for _, d := range userDomains {
		if strings.EqualFold(d, domain) {
			for _, sibling := range userDomains {
				add(sibling)
			}
			break
		}
	}
	return out
}

func isPersonalDomain(domain string, personalDomains []string) bool {
	for _, d := range personalDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

func isInternalDomain(email string, userDomains []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	for _, d := range userDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// isSelf reports whether email is the user's own address, so the
// organizer/owner doesn't get materialized as one of their own meeting
// attendees (spec §4.4 step 6: "skipping self").
func (sy *Syncer) isSelf(email string) bool {
	return sy.cfg.SelfEmail != "" && strings.EqualFold(email, sy.cfg.SelfEmail)
}

func attendeesCSV(attendees []Attendee) string {
	emails := make([]string, 0, len(attendees))
	for _, a := range attendees {
		emails = append(emails, a.Email)
	}
	return strings.Join(emails, ",")
}

// accountHintFor derives an account/project hint for an event from its
// external attendees' domains (spec §4.4: "Classification produces an
// EntityHint list... hints feed the classifier").
func accountHintFor(ev Event, userDomains []string, hints map[string]store.DomainHint) (store.DomainHint, bool) {
	for _, a := range ev.Attendees {
		if isInternalDomain(a.Email, userDomains) {
			continue
		}
		at := strings.LastIndex(a.Email, "@")
		if at < 0 {
			continue
		}
		domain := strings.ToLower(a.Email[at+1:])
		if hint, ok := hints[domain]; ok {
			return hint, true
		}
	}
	return store.DomainHint{}, false
}

// classify assigns a MeetingType using attendee domains, user domains,
// account hints, and title keywords (spec §4.4 step 3).
func classify(ev Event, userDomains []string, hints map[string]store.DomainHint, maxAllHands int) entity.MeetingType {
	if len(ev.Attendees) > maxAllHands {
		return entity.MeetingAllHands
	}

	title := strings.ToLower(ev.Title)
	var internalCount, externalCount int
	externalDomains := map[string]bool{}
	for _, a := range ev.Attendees {
		if isInternalDomain(a.Email, userDomains) {
			internalCount++
			continue
		}
		externalCount++
		if at := strings.LastIndex(a.Email, "@"); at >= 0 {
			externalDomains[strings.ToLower(a.Email[at+1:])] = true
		}
	}

	if externalCount == 0 {
		switch {
		case len(ev.Attendees) <= 1:
			return entity.MeetingPersonal
		case len(ev.Attendees) == 2:
			return entity.MeetingOneOnOne
		case containsAny(title, "sync", "standup", "stand-up", "team"):
			return entity.MeetingTeamSync
		default:
			return entity.MeetingInternal
		}
	}

	if containsAny(title, "training", "workshop", "onboarding") {
		return entity.MeetingTraining
	}
	if containsAny(title, "qbr", "quarterly business review") {
		return entity.MeetingQBR
	}
	if containsAny(title, "partner", "partnership") {
		return entity.MeetingPartnership
	}
	for domain := range externalDomains {
		if hint, ok := hints[domain]; ok && hint.EntityID != "" {
			return entity.MeetingCustomer
		}
	}
	return entity.MeetingExternal
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// eligibleForPrep mirrors workflow.EligibleMeetingTypes so reactive
// prep generation only covers relationship-relevant meetings.
var eligibleForPrep = map[entity.MeetingType]bool{
	entity.MeetingCustomer:    true,
	entity.MeetingQBR:         true,
	entity.MeetingPartnership: true,
	entity.MeetingExternal:    true,
}

// lightweightPrep is the reactive prep bundle calendar sync seeds when
// a meeting has no prep file yet (spec §4.4 step 7) — a slimmer
// version of workflow.MeetingContext limited to what's already in the
// store, with no AI narrative (that's the Today workflow's job).
type lightweightPrep struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	Meeting        entity.Meeting  `json:"meeting"`
	OpenActions    []entity.Action `json:"open_actions"`
	RecentCaptures []entity.Capture `json:"recent_captures"`
}

// reactivePrep writes a lightweight prep JSON if one doesn't already
// exist for an eligible New/Changed meeting, returning whether it did.
func (sy *Syncer) reactivePrep(meetingID string, outcome store.MeetingWriteOutcome, now time.Time) bool {
	if outcome == store.MeetingUnchanged {
		return false
	}
	m, err := sy.store.GetMeeting(meetingID)
	if err != nil {
		sy.log.Warn("calendarsync: reload meeting for prep failed", "meeting_id", meetingID, "error", err)
		return false
	}
	if !eligibleForPrep[m.Type] {
		return false
	}

	prepPath := sy.ws.PrepPath(meetingID)
	if _, err := fileio.ReadJSON(prepPath, &lightweightPrep{}); err == nil {
		return false // prep already exists
	}

	primary := m.AccountID
	if primary == "" {
		primary = m.ProjectID
	}
	prep := lightweightPrep{GeneratedAt: now, Meeting: m}
	if primary != "" {
		if actions, err := sy.store.ListActionsByStatus(entity.ActionPending, primary); err == nil {
			prep.OpenActions = actions
		}
		if captures, err := sy.store.RecentCaptures(primary, 10); err == nil {
			prep.RecentCaptures = captures
		}
	}

	if err := fileio.WriteJSONAtomic(prepPath, prep); err != nil {
		sy.log.Warn("calendarsync: write reactive prep failed", "meeting_id", meetingID, "error", err)
		return false
	}

	sy.signals.Publish(signalbus.Signal{
		Kind:       signalbus.KindPrepReady,
		EntityID:   meetingID,
		EntityType: "meeting",
		Source:     signalbus.TierCalendar,
		Confidence: 1.0,
		At:         now,
	})
	sy.events.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceCalendarSync,
		Kind:      events.KindPrepReady,
		Data:      map[string]any{"meeting_id": meetingID},
	})
	return true
}
