package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/google/uuid"
)

// UpsertAccount inserts or updates an account by name (case-sensitive
// match on name, since accounts don't have a natural external key the
// way people do via email). An existing account is matched by ID if
// a.ID is set, else by name. Idempotent fields use COALESCE so a
// resolver-driven or calendar-sync-driven partial update never
// clobbers fields the user or enrichment already set.
func (s *Store) UpsertAccount(a entity.Account) (entity.Account, error) {
	if a.ID == "" {
		existing, err := s.findAccountIDByName(a.Name)
		if err != nil && err != ErrNotFound {
			return entity.Account{}, err
		}
		if existing != "" {
			a.ID = existing
		} else {
			id, err := uuid.NewV7()
			if err != nil {
				return entity.Account{}, fmt.Errorf("generate account id: %w", err)
			}
			a.ID = id.String()
		}
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	keywords, err := json.Marshal(a.Keywords)
	if err != nil {
		return entity.Account{}, fmt.Errorf("marshal keywords: %w", err)
	}

	err = s.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO accounts (id, name, lifecycle, arr, health, contract_start, contract_end, parent_id, is_internal, archived, keywords, keywords_extracted_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				lifecycle = COALESCE(NULLIF(excluded.lifecycle, ''), accounts.lifecycle),
				arr = COALESCE(excluded.arr, accounts.arr),
				health = COALESCE(NULLIF(excluded.health, ''), accounts.health),
				contract_start = COALESCE(excluded.contract_start, accounts.contract_start),
				contract_end = COALESCE(excluded.contract_end, accounts.contract_end),
				parent_id = COALESCE(NULLIF(excluded.parent_id, ''), accounts.parent_id),
				is_internal = excluded.is_internal,
				archived = accounts.archived,
				keywords = CASE WHEN excluded.keywords = 'null' OR excluded.keywords = '[]' THEN accounts.keywords ELSE excluded.keywords END,
				keywords_extracted_at = COALESCE(excluded.keywords_extracted_at, accounts.keywords_extracted_at),
				updated_at = excluded.updated_at
		`, a.ID, a.Name, a.Lifecycle, nullFloat(a.ARR), string(a.Health),
			nullTime(a.ContractStart), nullTime(a.ContractEnd), nullStr(a.ParentID),
			boolInt(a.IsInternal), boolInt(a.Archived), string(keywords),
			nullTime(a.KeywordsExtractedAt), a.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		return upsertMirror(tx, a.ID, a.Name, entity.EntityTypeAccount, filepath.Join("Accounts", a.Name), a.UpdatedAt)
	})
	if err != nil {
		return entity.Account{}, err
	}
	return s.GetAccount(a.ID)
}

func (s *Store) findAccountIDByName(name string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM accounts WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// GetAccount returns the account with the given id, or ErrNotFound.
func (s *Store) GetAccount(id string) (entity.Account, error) {
	row := s.db.QueryRow(`
		SELECT id, name, lifecycle, arr, health, contract_start, contract_end, parent_id, is_internal, archived, keywords, keywords_extracted_at, updated_at
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (entity.Account, error) {
	var a entity.Account
	var lifecycle, health, parentID, keywords sql.NullString
	var arr sql.NullFloat64
	var contractStart, contractEnd, keywordsExtractedAt sql.NullTime
	var isInternal, archived int
	var updatedAt string

	err := row.Scan(&a.ID, &a.Name, &lifecycle, &arr, &health, &contractStart, &contractEnd,
		&parentID, &isInternal, &archived, &keywords, &keywordsExtractedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return entity.Account{}, ErrNotFound
	}
	if err != nil {
		return entity.Account{}, err
	}

	a.Lifecycle = lifecycle.String
	a.ARR = arr.Float64
	a.Health = entity.Health(health.String)
	a.ContractStart = timeOrNil(contractStart)
	a.ContractEnd = timeOrNil(contractEnd)
	a.ParentID = parentID.String
	a.IsInternal = isInternal != 0
	a.Archived = archived != 0
	a.KeywordsExtractedAt = timeOrNil(keywordsExtractedAt)
	if keywords.Valid {
		_ = json.Unmarshal([]byte(keywords.String), &a.Keywords)
	}
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return a, nil
}

// ArchiveAccount marks the account and every descendant account
// archived = true (spec §3: "Archiving an account cascades to its
// children"). A churn AccountEvent triggers this same path.
func (s *Store) ArchiveAccount(id string) error {
	descendants, err := s.Descendants("accounts", id)
	if err != nil {
		return fmt.Errorf("compute descendants: %w", err)
	}
	ids := append(descendants, id)

	return s.WithTransaction(func(tx *sql.Tx) error {
		for _, aid := range ids {
			if _, err := tx.Exec(`UPDATE accounts SET archived = 1, updated_at = ? WHERE id = ?`,
				time.Now().UTC().Format(time.RFC3339), aid); err != nil {
				return fmt.Errorf("archive %s: %w", aid, err)
			}
		}
		return nil
	})
}

// ListAccounts returns all non-archived accounts unless includeArchived.
func (s *Store) ListAccounts(includeArchived bool) ([]entity.Account, error) {
	query := `SELECT id, name, lifecycle, arr, health, contract_start, contract_end, parent_id, is_internal, archived, keywords, keywords_extracted_at, updated_at FROM accounts`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Account
	for rows.Next() {
		var a entity.Account
		var lifecycle, health, parentID, keywords sql.NullString
		var arr sql.NullFloat64
		var contractStart, contractEnd, keywordsExtractedAt sql.NullTime
		var isInternal, archived int
		var updatedAt string
		if err := rows.Scan(&a.ID, &a.Name, &lifecycle, &arr, &health, &contractStart, &contractEnd,
			&parentID, &isInternal, &archived, &keywords, &keywordsExtractedAt, &updatedAt); err != nil {
			return nil, err
		}
		a.Lifecycle = lifecycle.String
		a.ARR = arr.Float64
		a.Health = entity.Health(health.String)
		a.ContractStart = timeOrNil(contractStart)
		a.ContractEnd = timeOrNil(contractEnd)
		a.ParentID = parentID.String
		a.IsInternal = isInternal != 0
		a.Archived = archived != 0
		a.KeywordsExtractedAt = timeOrNil(keywordsExtractedAt)
		if keywords.Valid {
			_ = json.Unmarshal([]byte(keywords.String), &a.Keywords)
		}
		a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordAccountEvent appends a lifecycle event; a churn event
// auto-archives the account (spec §3).
func (s *Store) RecordAccountEvent(e entity.AccountEvent) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate event id: %w", err)
		}
		e.ID = id.String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err := s.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO account_events (id, account_id, kind, detail, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, e.ID, e.AccountID, string(e.Kind), e.Detail, e.CreatedAt.Format(time.RFC3339))
		return err
	})
	if err != nil {
		return err
	}

	if e.Kind == entity.EventChurn {
		return s.ArchiveAccount(e.AccountID)
	}
	return nil
}

func nullFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
