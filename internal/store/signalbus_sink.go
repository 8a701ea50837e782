package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dailyos/dailyos/internal/signalbus"
)

// RecordSignal persists a signalbus.Signal to the append-only
// signal_bus_events log, making Store a valid signalbus.Sink (spec §3
// "Signal bus": "Append-only typed events... with source-tier weights
// and temporal decay"). Durable history lets hygiene and the detectors
// see signals emitted before the current process started.
func (s *Store) RecordSignal(sig signalbus.Signal) error {
	var detail string
	if len(sig.Data) > 0 {
		b, err := json.Marshal(sig.Data)
		if err != nil {
			return err
		}
		detail = string(b)
	}
	at := sig.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO signal_bus_events (kind, source_tier, entity_id, entity_type, confidence, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(sig.Kind), string(sig.Source), nullStr(sig.EntityID), nullStr(sig.EntityType), sig.Confidence, nullStr(detail), at.Format(time.RFC3339))
	return err
}

// RecentSignals returns up to limit most recent signal_bus_events rows
// of the given kind, newest first. Used by hygiene and detector context
// assembly to look back at durable bus history beyond the current
// process's in-memory subscribers.
func (s *Store) RecentSignals(kind signalbus.Kind, limit int) ([]signalbus.Signal, error) {
	rows, err := s.db.Query(`
		SELECT kind, source_tier, entity_id, entity_type, confidence, detail, occurred_at
		FROM signal_bus_events
		WHERE kind = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []signalbus.Signal
	for rows.Next() {
		var sig signalbus.Signal
		var kindStr, sourceStr string
		var entityID, entityType, detail sql.NullString
		var occurredAt string
		if err := rows.Scan(&kindStr, &sourceStr, &entityID, &entityType, &sig.Confidence, &detail, &occurredAt); err != nil {
			return nil, err
		}
		sig.Kind = signalbus.Kind(kindStr)
		sig.Source = signalbus.SourceTier(sourceStr)
		sig.EntityID = entityID.String
		sig.EntityType = entityType.String
		if t, err := time.Parse(time.RFC3339, occurredAt); err == nil {
			sig.At = t
		}
		if detail.String != "" {
			var data map[string]any
			if err := json.Unmarshal([]byte(detail.String), &data); err == nil {
				sig.Data = data
			}
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
