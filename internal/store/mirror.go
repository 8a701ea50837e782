package store

import (
	"database/sql"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
)

// upsertMirror writes the entities bridge row for a typed insert/update.
// Every typed upsert must call this inside the same transaction (spec
// §3/§9: "enforce update via a helper invoked from each typed upsert").
func upsertMirror(tx *sql.Tx, id, name string, entityType entity.EntityType, trackerPath string, updatedAt time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO entities (id, name, entity_type, tracker_path, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			entity_type = excluded.entity_type,
			tracker_path = excluded.tracker_path,
			updated_at = excluded.updated_at
	`, id, name, string(entityType), nullStr(trackerPath), updatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetMirror returns the entities bridge row for id, or ErrNotFound.
func (s *Store) GetMirror(id string) (*entity.MirrorRow, error) {
	row := s.db.QueryRow(`SELECT id, name, entity_type, tracker_path, updated_at FROM entities WHERE id = ?`, id)
	var m entity.MirrorRow
	var trackerPath sql.NullString
	var updatedAt string
	var entityType string
	if err := row.Scan(&m.ID, &m.Name, &entityType, &trackerPath, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.EntityType = entity.EntityType(entityType)
	m.TrackerPath = trackerPath.String
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &m, nil
}

// AncestryChain walks parent_id from id upward via a recursive CTE,
// capped at depth 10 to bound runtime on pathological cycles (spec
// §4.1). Returns ids from id (exclusive) to the topmost ancestor.
func (s *Store) AncestryChain(table, id string) ([]string, error) {
	// table is a compile-time-constant caller argument ("accounts" or
	// "projects"), never user input, so direct interpolation is safe here.
	query := `
		WITH RECURSIVE ancestry(id, parent_id, depth) AS (
			SELECT id, parent_id, 0 FROM ` + table + ` WHERE id = ?
			UNION ALL
			SELECT t.id, t.parent_id, a.depth + 1
			FROM ` + table + ` t
			JOIN ancestry a ON t.id = a.parent_id
			WHERE a.depth < 10
		)
		SELECT id FROM ancestry WHERE id != ? ORDER BY depth
	`
	rows, err := s.db.Query(query, id, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var aid string
		if err := rows.Scan(&aid); err != nil {
			return nil, err
		}
		ids = append(ids, aid)
	}
	return ids, rows.Err()
}

// Descendants returns every row in table whose parent_id chain leads
// back to id, capped at depth 10, for account-archive cascades.
func (s *Store) Descendants(table, id string) ([]string, error) {
	query := `
		WITH RECURSIVE descent(id, depth) AS (
			SELECT id, 0 FROM ` + table + ` WHERE parent_id = ?
			UNION ALL
			SELECT t.id, d.depth + 1
			FROM ` + table + ` t
			JOIN descent d ON t.parent_id = d.id
			WHERE d.depth < 10
		)
		SELECT id FROM descent
	`
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, err
		}
		ids = append(ids, did)
	}
	return ids, rows.Err()
}
