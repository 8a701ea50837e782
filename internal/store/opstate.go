package store

import (
	"database/sql"
	"time"
)

// OpState is a namespaced key-value store for lightweight persisted
// state: poll high-water marks, Quill sync backoff bookkeeping, and
// similar values that don't warrant a dedicated table.

// GetState returns the value for (namespace, key), or "" with ok=false
// if absent.
func (s *Store) GetState(namespace, key string) (value string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT value FROM operational_state WHERE namespace = ? AND key = ?`, namespace, key)
	var v sql.NullString
	err = row.Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v.String, true, nil
}

// SetState upserts (namespace, key) -> value.
func (s *Store) SetState(namespace, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO operational_state (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, namespace, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

// DeleteState removes a single (namespace, key) pair.
func (s *Store) DeleteState(namespace, key string) error {
	_, err := s.db.Exec(`DELETE FROM operational_state WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

// ListStateNamespace returns every key/value pair under namespace.
func (s *Store) ListStateNamespace(namespace string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM operational_state WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v.String
	}
	return out, rows.Err()
}
