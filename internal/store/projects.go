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

// UpsertProject inserts or updates a project, shaped like UpsertAccount
// minus the commercial fields.
func (s *Store) UpsertProject(p entity.Project) (entity.Project, error) {
	if p.ID == "" {
		var existing string
		err := s.db.QueryRow(`SELECT id FROM projects WHERE name = ?`, p.Name).Scan(&existing)
		if err != nil && err != sql.ErrNoRows {
			return entity.Project{}, err
		}
		if existing != "" {
			p.ID = existing
		} else {
			id, err := uuid.NewV7()
			if err != nil {
				return entity.Project{}, fmt.Errorf("generate project id: %w", err)
			}
			p.ID = id.String()
		}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	keywords, err := json.Marshal(p.Keywords)
	if err != nil {
		return entity.Project{}, fmt.Errorf("marshal keywords: %w", err)
	}

	err = s.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO projects (id, name, lifecycle, parent_id, archived, keywords, keywords_extracted_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				lifecycle = COALESCE(NULLIF(excluded.lifecycle, ''), projects.lifecycle),
				parent_id = COALESCE(NULLIF(excluded.parent_id, ''), projects.parent_id),
				archived = projects.archived,
				keywords = CASE WHEN excluded.keywords = 'null' OR excluded.keywords = '[]' THEN projects.keywords ELSE excluded.keywords END,
				keywords_extracted_at = COALESCE(excluded.keywords_extracted_at, projects.keywords_extracted_at),
				updated_at = excluded.updated_at
		`, p.ID, p.Name, p.Lifecycle, nullStr(p.ParentID), boolInt(p.Archived),
			string(keywords), nullTime(p.KeywordsExtractedAt), p.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		return upsertMirror(tx, p.ID, p.Name, entity.EntityTypeProject, filepath.Join("Projects", p.Name), p.UpdatedAt)
	})
	if err != nil {
		return entity.Project{}, err
	}
	return s.GetProject(p.ID)
}

// GetProject returns the project with the given id, or ErrNotFound.
func (s *Store) GetProject(id string) (entity.Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, lifecycle, parent_id, archived, keywords, keywords_extracted_at, updated_at
		FROM projects WHERE id = ?`, id)

	var p entity.Project
	var lifecycle, parentID, keywords sql.NullString
	var keywordsExtractedAt sql.NullTime
	var archived int
	var updatedAt string

	err := row.Scan(&p.ID, &p.Name, &lifecycle, &parentID, &archived, &keywords, &keywordsExtractedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return entity.Project{}, ErrNotFound
	}
	if err != nil {
		return entity.Project{}, err
	}

	p.Lifecycle = lifecycle.String
	p.ParentID = parentID.String
	p.Archived = archived != 0
	p.KeywordsExtractedAt = timeOrNil(keywordsExtractedAt)
	if keywords.Valid {
		_ = json.Unmarshal([]byte(keywords.String), &p.Keywords)
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return p, nil
}

// ListProjects returns all non-archived projects unless includeArchived.
func (s *Store) ListProjects(includeArchived bool) ([]entity.Project, error) {
	query := `SELECT id FROM projects`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]entity.Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProject(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
