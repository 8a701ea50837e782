// Package entity defines the typed entity kinds that make up DailyOS's
// store: accounts, projects, people, meetings, actions, and the rest of
// the data model shared between the store, resolver, and workflows.
package entity

import "time"

// Health is a traffic-light account health rating.
type Health string

const (
	HealthRed    Health = "red"
	HealthYellow Health = "yellow"
	HealthGreen  Health = "green"
)

// Relationship classifies a person's association with the user.
type Relationship string

const (
	RelationshipInternal Relationship = "internal"
	RelationshipExternal Relationship = "external"
	RelationshipUnknown  Relationship = "unknown"
)

// EntityType is the discriminator stored in the entities mirror table
// (§3: "a shared entities mirror table ... for every account/project/person").
type EntityType string

const (
	EntityTypeAccount EntityType = "account"
	EntityTypeProject EntityType = "project"
	EntityTypePerson  EntityType = "person"
)

// MirrorRow is a row of the entities bridge table: every typed insert
// upserts a matching row here so polymorphic junctions (meeting_entities,
// entity_people) can join against a single id space.
type MirrorRow struct {
	ID         string
	Name       string
	EntityType EntityType
	// TrackerPath is the workspace-relative path to this entity's
	// markdown directory (Accounts/{name}/, People/{name}/), if any.
	TrackerPath string
	UpdatedAt   time.Time
}

// Account is a commercial or internal customer/organization.
type Account struct {
	ID         string
	Name       string
	Lifecycle  string
	ARR        float64
	Health     Health
	ContractStart *time.Time
	ContractEnd   *time.Time
	// ParentID supports n-level account hierarchy (business units under
	// a parent account); archiving cascades down this chain.
	ParentID   string
	IsInternal bool
	Archived   bool
	Keywords   []string
	KeywordsExtractedAt *time.Time
	UpdatedAt  time.Time
}

// Project is a named initiative, shaped like Account minus commercial fields.
type Project struct {
	ID        string
	Name      string
	Lifecycle string
	ParentID  string
	Archived  bool
	Keywords  []string
	KeywordsExtractedAt *time.Time
	UpdatedAt time.Time
}

// Person is a contact. Email is the lowercase primary address; additional
// known addresses live in the alias table (see Store.ListAliases).
type Person struct {
	ID           string
	Email        string
	Name         string
	Organization string
	Role         string
	Relationship Relationship
	FirstSeen    time.Time
	LastSeen     time.Time
	MeetingCount int
	// LinkedIn/Bio are optional enrichment fields populated by AI synthesis.
	LinkedIn string
	Bio      string
	UpdatedAt time.Time
}

// MeetingType classifies a calendar event for routing/prep purposes.
type MeetingType string

const (
	MeetingCustomer    MeetingType = "customer"
	MeetingQBR         MeetingType = "qbr"
	MeetingPartnership MeetingType = "partnership"
	MeetingInternal    MeetingType = "internal"
	MeetingTeamSync    MeetingType = "team_sync"
	MeetingOneOnOne    MeetingType = "one_on_one"
	MeetingPersonal    MeetingType = "personal"
	MeetingAllHands    MeetingType = "all_hands"
	MeetingExternal    MeetingType = "external"
	MeetingTraining    MeetingType = "training"
)

// IntelligenceState tracks a meeting's lifecycle with respect to
// calendar presence and prep/enrichment.
type IntelligenceState string

const (
	IntelNone     IntelligenceState = "none"
	IntelPartial  IntelligenceState = "partial"
	IntelEnriched IntelligenceState = "enriched"
	IntelArchived IntelligenceState = "archived"
)

// Meeting mirrors a calendar event plus DailyOS-owned intelligence state.
//
// ID derivation (§3): sanitized calendar event id when present, else
// slug(title, start, type). Calendar sync owns row creation and writes
// only idempotent fields; reconcile/executor own prep snapshot,
// transcript, and intelligence fields — upserts from calendar sync must
// COALESCE those columns to avoid clobbering.
type Meeting struct {
	ID               string
	CalendarEventID  string
	Title            string
	Start            time.Time
	End              time.Time
	Type             MeetingType
	AttendeesCSV     string
	AccountID        string
	ProjectID        string
	TranscriptPath   string
	// PrepSnapshot is immutable once PrepFrozenAt is set (conditional
	// update WHERE prep_frozen_at IS NULL).
	PrepSnapshot   string
	PrepSnapshotHash string
	PrepFrozenAt   *time.Time
	AgendaNotes    string
	IntelligenceState IntelligenceState
	IntelligenceQuality string
	LastEnrichedAt *time.Time
	UpdatedAt      time.Time
}

// ActionStatus is the lifecycle state of a work item.
type ActionStatus string

const (
	ActionProposed  ActionStatus = "proposed"
	ActionPending   ActionStatus = "pending"
	ActionWaiting   ActionStatus = "waiting"
	ActionCompleted ActionStatus = "completed"
	ActionArchived  ActionStatus = "archived"
)

// ActionSource names where an action originated, for title-based
// cross-source dedup (§4.3: never overwrite a completed action with
// the same title+account from a different source).
type ActionSource string

const (
	SourceBriefing    ActionSource = "briefing"
	SourcePostMeeting ActionSource = "post_meeting"
	SourceInbox       ActionSource = "inbox"
	SourceTranscript  ActionSource = "transcript"
	SourceImport      ActionSource = "import"
	SourceManual      ActionSource = "manual"
	SourceAIInbox     ActionSource = "ai-inbox"
)

// Action is a work item, optionally tied to an account/project/person.
type Action struct {
	ID            string
	Title         string
	Status        ActionStatus
	AccountID     string
	ProjectID     string
	PersonID      string
	DueDate       *time.Time
	SourceType    ActionSource
	NeedsDecision bool
	RejectedAt    *time.Time
	RejectedReason string
	UpdatedAt     time.Time
}

// CaptureKind enumerates the kinds of post-meeting observation.
type CaptureKind string

const (
	CaptureWin      CaptureKind = "win"
	CaptureRisk     CaptureKind = "risk"
	CaptureDecision CaptureKind = "decision"
)

// Capture is a single post-meeting observation.
type Capture struct {
	ID        string
	MeetingID string
	AccountID string
	ProjectID string
	Kind      CaptureKind
	Text      string
	CreatedAt time.Time
}

// EmailSignalKind is a closed enumeration; unknown kinds are rejected
// and logged at insert time (§3).
type EmailSignalKind string

const (
	SignalExpansion    EmailSignalKind = "expansion"
	SignalQuestion     EmailSignalKind = "question"
	SignalTimeline     EmailSignalKind = "timeline"
	SignalSentiment    EmailSignalKind = "sentiment"
	SignalFeedback     EmailSignalKind = "feedback"
	SignalRelationship EmailSignalKind = "relationship"
)

// ValidEmailSignalKinds lists the closed set accepted at insert.
var ValidEmailSignalKinds = map[EmailSignalKind]bool{
	SignalExpansion:    true,
	SignalQuestion:     true,
	SignalTimeline:     true,
	SignalSentiment:    true,
	SignalFeedback:     true,
	SignalRelationship: true,
}

// EmailSignal is a sender+entity+kind observation extracted from mail.
type EmailSignal struct {
	ID         string
	SenderEmail string
	AccountID  string
	ProjectID  string
	Kind       EmailSignalKind
	Sentiment  string
	Urgency    string
	Confidence float64
	CreatedAt  time.Time
}

// AccountEventKind enumerates append-only account lifecycle events.
type AccountEventKind string

const (
	EventChurn     AccountEventKind = "churn"
	EventRenewal   AccountEventKind = "renewal"
	EventExpansion AccountEventKind = "expansion"
)

// AccountEvent is an append-only lifecycle event. A churn event
// auto-archives the account (§3).
type AccountEvent struct {
	ID        string
	AccountID string
	Kind      AccountEventKind
	Detail    string
	CreatedAt time.Time
}

// ContentFile is an indexed per-entity file with extracted text.
type ContentFile struct {
	ID          string
	EntityID    string
	EntityType  EntityType
	Path        string
	Format      string
	ExtractedText string
	Summary     string
	ExtractedAt time.Time
	UpdatedAt   time.Time
}

// ContentEmbedding is a vector chunk of a ContentFile, used for
// semantic search (cosine similarity over stored embeddings).
type ContentEmbedding struct {
	ID            string
	ContentFileID string
	ChunkIndex    int
	ChunkText     string
	Embedding     []float32
}

// QuillSyncStatus is the transcript-provider sync state (§4.7).
type QuillSyncStatus string

const (
	QuillPending   QuillSyncStatus = "pending"
	QuillPolling   QuillSyncStatus = "polling"
	QuillCompleted QuillSyncStatus = "completed"
	QuillAbandoned QuillSyncStatus = "abandoned"
)

// QuillSyncState is a per-meeting transcript sync state machine row.
type QuillSyncState struct {
	MeetingID       string
	Status          QuillSyncStatus
	Attempts        int
	MaxAttempts     int
	NextAttemptAt   time.Time
	TranscriptPath  string
	QuillMeetingID  string
	MatchConfidence float64
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// ChatSession groups a run of conversational assistant turns.
type ChatSession struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
}

// ChatTurn is one message in a ChatSession transcript.
type ChatTurn struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}
