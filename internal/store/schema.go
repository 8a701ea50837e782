package store

import (
	"database/sql"
	"fmt"
)

// migrations are sequential, forward-only, and idempotent (IF NOT
// EXISTS). Each entry runs once per migrate() call inside one
// transaction; a later migration can assume all earlier ones ran.
var migrations = []string{
	// 1. entities mirror (bridge table, spec §3/§9): every account,
	// project, and person insert upserts a matching row here so
	// polymorphic junctions can join against one id space.
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		tracker_path TEXT,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type)`,

	// 2. accounts
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lifecycle TEXT,
		arr REAL,
		health TEXT,
		contract_start TEXT,
		contract_end TEXT,
		parent_id TEXT,
		is_internal INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		keywords TEXT,
		keywords_extracted_at TEXT,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts(parent_id)`,

	// 3. projects
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		lifecycle TEXT,
		parent_id TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		keywords TEXT,
		keywords_extracted_at TEXT,
		updated_at TEXT NOT NULL
	)`,

	// 4. people + alias table (one person -> many emails, one primary).
	`CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		organization TEXT,
		role TEXT,
		relationship TEXT NOT NULL DEFAULT 'unknown',
		first_seen TEXT,
		last_seen TEXT,
		meeting_count INTEGER NOT NULL DEFAULT 0,
		linkedin TEXT,
		bio TEXT,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS person_aliases (
		person_id TEXT NOT NULL,
		email TEXT NOT NULL,
		is_primary INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (person_id, email)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_person_aliases_email ON person_aliases(email)`,

	// 5. meetings
	`CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		calendar_event_id TEXT,
		title TEXT,
		start TEXT,
		end_time TEXT,
		type TEXT,
		attendees_csv TEXT,
		account_id TEXT,
		project_id TEXT,
		transcript_path TEXT,
		prep_snapshot TEXT,
		prep_snapshot_hash TEXT,
		prep_frozen_at TEXT,
		agenda_notes TEXT,
		intelligence_state TEXT NOT NULL DEFAULT 'none',
		intelligence_quality TEXT,
		last_enriched_at TEXT,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_calendar_event ON meetings(calendar_event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_start ON meetings(start)`,
	`CREATE INDEX IF NOT EXISTS idx_meetings_account ON meetings(account_id)`,

	// 6. junctions: meeting_entities is authoritative over resolver
	// signals (spec §3); entity_people links a person to an
	// account/project as "associated".
	`CREATE TABLE IF NOT EXISTS meeting_entities (
		meeting_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		PRIMARY KEY (meeting_id, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS entity_people (
		entity_id TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		person_id TEXT NOT NULL,
		relation TEXT NOT NULL DEFAULT 'associated',
		PRIMARY KEY (entity_id, person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS meeting_attendance (
		meeting_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		PRIMARY KEY (meeting_id, person_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendee_names (
		meeting_id TEXT NOT NULL,
		email TEXT NOT NULL,
		display_name TEXT,
		PRIMARY KEY (meeting_id, email)
	)`,

	// 7. actions
	`CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'proposed',
		account_id TEXT,
		project_id TEXT,
		person_id TEXT,
		due_date TEXT,
		source_type TEXT,
		needs_decision INTEGER NOT NULL DEFAULT 0,
		rejected_at TEXT,
		rejected_reason TEXT,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_account ON actions(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_status ON actions(status)`,

	// 8. captures
	`CREATE TABLE IF NOT EXISTS captures (
		id TEXT PRIMARY KEY,
		meeting_id TEXT,
		account_id TEXT,
		project_id TEXT,
		kind TEXT NOT NULL,
		text TEXT,
		created_at TEXT NOT NULL
	)`,

	// 9. email signals + account events
	`CREATE TABLE IF NOT EXISTS email_signals (
		id TEXT PRIMARY KEY,
		sender_email TEXT,
		account_id TEXT,
		project_id TEXT,
		kind TEXT NOT NULL,
		sentiment TEXT,
		urgency TEXT,
		confidence REAL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_email_signals_account_created ON email_signals(account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS account_events (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT,
		created_at TEXT NOT NULL
	)`,

	// 10. content index + embeddings
	`CREATE TABLE IF NOT EXISTS content_files (
		id TEXT PRIMARY KEY,
		entity_id TEXT,
		entity_type TEXT,
		path TEXT,
		format TEXT,
		extracted_text TEXT,
		summary TEXT,
		extracted_at TEXT,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS content_embeddings (
		id TEXT PRIMARY KEY,
		content_file_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_text TEXT,
		embedding BLOB
	)`,

	// 11. quill transcript sync state
	`CREATE TABLE IF NOT EXISTS quill_sync_state (
		meeting_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 5,
		next_attempt_at TEXT,
		transcript_path TEXT,
		quill_meeting_id TEXT,
		match_confidence REAL,
		completed_at TEXT,
		created_at TEXT NOT NULL
	)`,

	// 12. chat transcript storage
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS chat_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, created_at)`,

	// 13. operational state (poll high-water marks, quill backoff state),
	// a namespaced key-value table.
	`CREATE TABLE IF NOT EXISTS operational_state (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	)`,

	// 14. scheduler execution records (spec §4.3/§4.6).
	`CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		workflow TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		duration_secs REAL,
		success INTEGER,
		error_message TEXT,
		error_phase TEXT,
		can_retry INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_workflow_started ON executions(workflow, started_at)`,

	// 15. intelligence cache: per-entity assessed quality (§4, "Intelligence cache").
	`CREATE TABLE IF NOT EXISTS intelligence_cache (
		entity_id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		quality TEXT NOT NULL DEFAULT 'none',
		last_enriched_at TEXT,
		risks TEXT,
		stakeholder_insights TEXT,
		updated_at TEXT NOT NULL
	)`,

	// 16. append-only signal bus log (spec §3/§4 "Signal bus"): durable
	// record of every Kind/SourceTier event, backing internal/signalbus's
	// optional Sink so hygiene and the detectors can read history back
	// after a restart instead of only ever seeing in-process broadcasts.
	`CREATE TABLE IF NOT EXISTS signal_bus_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		source_tier TEXT NOT NULL,
		entity_id TEXT,
		entity_type TEXT,
		confidence REAL,
		detail TEXT,
		occurred_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signal_bus_kind_occurred ON signal_bus_events(kind, occurred_at)`,
}

// migrate runs all pending migrations in a single transaction.
// Migration failure is fatal per spec §4.1/§7.
func (s *Store) migrate() error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		for i, stmt := range migrations {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
		}
		return nil
	})
}
