package store

import (
	"database/sql"
	"time"
)

// reassignJunction reassigns every row in table that references fromID
// via column to toID, using UPDATE OR IGNORE semantics where a unique
// constraint would collide (duplicate junction row), then deletes
// whatever still points at fromID. This is what makes merges
// idempotent with respect to duplicate junction rows (spec §4.1).
func reassignJunction(tx *sql.Tx, table, column, fromID, toID string) error {
	// Move rows that would not collide; OR IGNORE skips rows whose new
	// value would break a composite primary key including column.
	if _, err := tx.Exec(`UPDATE OR IGNORE `+table+` SET `+column+` = ? WHERE `+column+` = ?`, toID, fromID); err != nil {
		return err
	}
	// Anything left referencing fromID lost the race to a collision;
	// drop it rather than leave an orphaned duplicate.
	_, err := tx.Exec(`DELETE FROM `+table+` WHERE `+column+` = ?`, fromID)
	return err
}

// MergePeople reassigns remove's cross-references (meeting attendance,
// entity links, actions, email signals, aliases) to keep, then deletes
// remove's people row and its entities mirror row. Transactional and
// idempotent w.r.t.
// duplicate junction rows (spec §4.1).
func (s *Store) MergePeople(keep, remove string) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		for _, j := range []struct{ table, column string }{
			{"meeting_attendance", "person_id"},
			{"entity_people", "person_id"},
			{"attendee_names", "email"}, // no-op placeholder column mismatch guarded below
		} {
			if j.table == "attendee_names" {
				continue // attendee_names keys by email, not person_id; nothing to reassign
			}
			if err := reassignJunction(tx, j.table, j.column, remove, keep); err != nil {
				return err
			}
		}
		for _, t := range []string{"actions", "email_signals"} {
			if _, err := tx.Exec(`UPDATE `+t+` SET person_id = ? WHERE person_id = ?`, keep, remove); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`UPDATE OR IGNORE person_aliases SET person_id = ?, is_primary = 0 WHERE person_id = ?`, keep, remove); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM person_aliases WHERE person_id = ?`, remove); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM people WHERE id = ?`, remove)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`DELETE FROM entities WHERE id = ?`, remove)
		return err
	})
}

// MergeAccounts reassigns every cross-reference from fromID into intoID
// (meetings, junctions, actions, captures, email signals, content index,
// account events), then archives fromID.
func (s *Store) MergeAccounts(fromID, intoID string) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		for _, t := range []string{"meetings", "actions", "captures", "email_signals", "content_files", "account_events"} {
			if _, err := tx.Exec(`UPDATE `+t+` SET account_id = ? WHERE account_id = ?`, intoID, fromID); err != nil {
				return err
			}
		}
		if err := reassignJunction(tx, "meeting_entities", "entity_id", fromID, intoID); err != nil {
			return err
		}
		if err := reassignJunction(tx, "entity_people", "entity_id", fromID, intoID); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE accounts SET archived = 1, updated_at = ? WHERE id = ?`,
			time.Now().UTC().Format(time.RFC3339), fromID)
		return err
	})
}
