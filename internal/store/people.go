package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/google/uuid"
)

// relationshipRank orders relationship states so upserts never
// downgrade internal/external to unknown (spec §3).
var relationshipRank = map[entity.Relationship]int{
	entity.RelationshipUnknown:  0,
	entity.RelationshipInternal: 1,
	entity.RelationshipExternal: 1,
}

// UpsertPerson inserts or updates a person keyed by lowercase primary
// email. A soft match against an existing alias resurrects that
// person rather than creating a duplicate. Relationship never
// downgrades from internal/external to unknown on upsert.
func (s *Store) UpsertPerson(p entity.Person) (entity.Person, error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Email == "" {
		return entity.Person{}, fmt.Errorf("person email is required")
	}

	existingID, err := s.findPersonIDByEmailOrAlias(p.Email)
	if err != nil && err != ErrNotFound {
		return entity.Person{}, err
	}

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = existingID
	}
	if p.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return entity.Person{}, fmt.Errorf("generate person id: %w", err)
		}
		p.ID = id.String()
	}
	if p.FirstSeen.IsZero() {
		p.FirstSeen = now
	}
	if p.LastSeen.IsZero() {
		p.LastSeen = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	err = s.WithTransaction(func(tx *sql.Tx) error {
		var existingRelationship string
		_ = tx.QueryRow(`SELECT relationship FROM people WHERE id = ?`, p.ID).Scan(&existingRelationship)
		rel := p.Relationship
		if relationshipRank[entity.Relationship(existingRelationship)] > relationshipRank[rel] {
			rel = entity.Relationship(existingRelationship)
		}

		_, err := tx.Exec(`
			INSERT INTO people (id, email, name, organization, role, relationship, first_seen, last_seen, meeting_count, linkedin, bio, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				email = excluded.email,
				name = COALESCE(NULLIF(excluded.name, ''), people.name),
				organization = COALESCE(NULLIF(excluded.organization, ''), people.organization),
				role = COALESCE(NULLIF(excluded.role, ''), people.role),
				relationship = excluded.relationship,
				last_seen = excluded.last_seen,
				linkedin = COALESCE(NULLIF(excluded.linkedin, ''), people.linkedin),
				bio = COALESCE(NULLIF(excluded.bio, ''), people.bio),
				updated_at = excluded.updated_at
		`, p.ID, p.Email, p.Name, p.Organization, p.Role, string(rel),
			p.FirstSeen.Format(time.RFC3339), p.LastSeen.Format(time.RFC3339),
			p.MeetingCount, p.LinkedIn, p.Bio, p.UpdatedAt.Format(time.RFC3339))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(`
			INSERT INTO person_aliases (person_id, email, is_primary)
			VALUES (?, ?, 1)
			ON CONFLICT(person_id, email) DO UPDATE SET is_primary = 1
		`, p.ID, p.Email); err != nil {
			return err
		}

		return upsertMirror(tx, p.ID, p.Name, entity.EntityTypePerson, filepath.Join("People", p.Name), p.UpdatedAt)
	})
	if err != nil {
		return entity.Person{}, err
	}
	return s.GetPerson(p.ID)
}

func (s *Store) findPersonIDByEmailOrAlias(email string) (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT person_id FROM person_aliases WHERE email = ?`, email).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// FindPersonByEmail looks up a person by primary email or any known
// alias, case-insensitively.
func (s *Store) FindPersonByEmail(email string) (entity.Person, error) {
	id, err := s.findPersonIDByEmailOrAlias(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return entity.Person{}, err
	}
	return s.GetPerson(id)
}

// AddPersonAlias records email as a non-primary alias of person id,
// used by domain-sibling alias resolution (spec §4.4).
func (s *Store) AddPersonAlias(personID, email string) error {
	_, err := s.db.Exec(`
		INSERT INTO person_aliases (person_id, email, is_primary)
		VALUES (?, ?, 0)
		ON CONFLICT(person_id, email) DO NOTHING
	`, personID, strings.ToLower(strings.TrimSpace(email)))
	return err
}

// ListAliases returns every known email for personID, primary first.
func (s *Store) ListAliases(personID string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT email FROM person_aliases WHERE person_id = ? ORDER BY is_primary DESC, email
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// GetPerson returns the person with the given id, or ErrNotFound.
func (s *Store) GetPerson(id string) (entity.Person, error) {
	row := s.db.QueryRow(`
		SELECT id, email, name, organization, role, relationship, first_seen, last_seen, meeting_count, linkedin, bio, updated_at
		FROM people WHERE id = ?`, id)
	return scanPerson(row)
}

func scanPerson(row *sql.Row) (entity.Person, error) {
	var p entity.Person
	var name, org, role, linkedin, bio sql.NullString
	var relationship string
	var firstSeen, lastSeen, updatedAt string

	err := row.Scan(&p.ID, &p.Email, &name, &org, &role, &relationship, &firstSeen, &lastSeen,
		&p.MeetingCount, &linkedin, &bio, &updatedAt)
	if err == sql.ErrNoRows {
		return entity.Person{}, ErrNotFound
	}
	if err != nil {
		return entity.Person{}, err
	}

	p.Name = name.String
	p.Organization = org.String
	p.Role = role.String
	p.Relationship = entity.Relationship(relationship)
	p.LinkedIn = linkedin.String
	p.Bio = bio.String
	p.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen)
	p.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return p, nil
}

// ListPeople returns every external person — the candidate pool for
// detectors that scan per-person meeting cadence (relationship_drift).
func (s *Store) ListPeople() ([]entity.Person, error) {
	rows, err := s.db.Query(`
		SELECT id, email, name, organization, role, relationship, first_seen, last_seen, meeting_count, linkedin, bio, updated_at
		FROM people WHERE relationship = 'external'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Person
	for rows.Next() {
		var p entity.Person
		var name, org, role, linkedin, bio sql.NullString
		var relationship string
		var firstSeen, lastSeen, updatedAt string
		if err := rows.Scan(&p.ID, &p.Email, &name, &org, &role, &relationship, &firstSeen, &lastSeen,
			&p.MeetingCount, &linkedin, &bio, &updatedAt); err != nil {
			return nil, err
		}
		p.Name = name.String
		p.Organization = org.String
		p.Role = role.String
		p.Relationship = entity.Relationship(relationship)
		p.LinkedIn = linkedin.String
		p.Bio = bio.String
		p.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen)
		p.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordAttendance idempotently records that personID attended
// meetingID. On the first insert for this pair it bumps meeting_count
// and last_seen (spec §4.4 step 6).
func (s *Store) RecordAttendance(meetingID, personID string, at time.Time) error {
	return s.WithTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO meeting_attendance (meeting_id, person_id) VALUES (?, ?)
			ON CONFLICT(meeting_id, person_id) DO NOTHING
		`, meetingID, personID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil // already recorded; not a fresh attendance
		}
		_, err = tx.Exec(`
			UPDATE people SET meeting_count = meeting_count + 1, last_seen = ?, updated_at = ?
			WHERE id = ?
		`, at.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), personID)
		return err
	})
}

// LinkPersonToEntity records relation (default "associated") between
// a person and an account/project via the entity_people junction.
func (s *Store) LinkPersonToEntity(entityID string, entityType entity.EntityType, personID, relation string) error {
	if relation == "" {
		relation = "associated"
	}
	_, err := s.db.Exec(`
		INSERT INTO entity_people (entity_id, entity_type, person_id, relation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_id, person_id) DO UPDATE SET relation = excluded.relation
	`, entityID, string(entityType), personID, relation)
	return err
}

// TeamMembers returns the ids of people linked to entityID.
func (s *Store) TeamMembers(entityID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT person_id FROM entity_people WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PersonEntityLinks returns the accounts/projects personID is linked to
// via the entity_people junction — the reverse of TeamMembers. Used by
// the resolver's attendee-inference producer (spec §4.2 producer 3) to
// count votes over each attendee's linked entities.
func (s *Store) PersonEntityLinks(personID string) ([]entity.MirrorRow, error) {
	rows, err := s.db.Query(`
		SELECT e.id, e.name, e.entity_type, e.tracker_path, e.updated_at
		FROM entity_people ep
		JOIN entities e ON e.id = ep.entity_id
		WHERE ep.person_id = ?
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []entity.MirrorRow
	for rows.Next() {
		var m entity.MirrorRow
		var trackerPath sql.NullString
		var updatedAt string
		if err := rows.Scan(&m.ID, &m.Name, &m.EntityType, &trackerPath, &updatedAt); err != nil {
			return nil, err
		}
		m.TrackerPath = trackerPath.String
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			m.UpdatedAt = t
		}
		links = append(links, m)
	}
	return links, rows.Err()
}

// SaveAttendeeName records a calendar attendee's display name for
// later name-resolution hygiene (spec §4.4 step 4).
func (s *Store) SaveAttendeeName(meetingID, email, displayName string) error {
	_, err := s.db.Exec(`
		INSERT INTO attendee_names (meeting_id, email, display_name) VALUES (?, ?, ?)
		ON CONFLICT(meeting_id, email) DO UPDATE SET display_name = excluded.display_name
	`, meetingID, strings.ToLower(email), displayName)
	return err
}
