package store

import (
	"strings"

	"github.com/dailyos/dailyos/internal/entity"
)

// DomainHint records which account/project a given email domain is
// believed to belong to, and how many linked people back that belief —
// the EntityHint list calendar sync's classifier consults (spec §4.4:
// "hints feed the classifier so, e.g., a meeting with internal +
// customer-X attendees resolves to 'customer' with account=X").
type DomainHint struct {
	Domain     string
	EntityID   string
	EntityType entity.EntityType
	Votes      int
}

// DomainEntityHints derives domain ownership from the people already
// linked to each account/project via entity_people: for every domain
// seen among an entity's external linked people's email addresses, the
// entity with the most such people wins that domain. There is no
// standalone domain column on accounts/projects (keeping the schema
// polymorphic-junction-driven per spec §3's mirror/bridge pattern), so
// this is derived rather than stored.
func (s *Store) DomainEntityHints() (map[string]DomainHint, error) {
	rows, err := s.db.Query(`
		SELECT e.id, e.entity_type, p.email
		FROM entity_people ep
		JOIN entities e ON e.id = ep.entity_id
		JOIN people p ON p.id = ep.person_id
		WHERE e.entity_type IN ('account', 'project') AND p.relationship = 'external'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]map[string]int) // domain -> entityID -> count
	entityTypes := make(map[string]entity.EntityType)

	for rows.Next() {
		var entityID, entityType, email string
		if err := rows.Scan(&entityID, &entityType, &email); err != nil {
			return nil, err
		}
		at := strings.LastIndex(email, "@")
		if at < 0 || at == len(email)-1 {
			continue
		}
		domain := strings.ToLower(email[at+1:])
		if counts[domain] == nil {
			counts[domain] = make(map[string]int)
		}
		counts[domain][entityID]++
		entityTypes[entityID] = entity.EntityType(entityType)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hints := make(map[string]DomainHint, len(counts))
	for domain, byEntity := range counts {
		var bestID string
		var bestCount int
		for id, n := range byEntity {
			if n > bestCount {
				bestID, bestCount = id, n
			}
		}
		hints[domain] = DomainHint{
			Domain:     domain,
			EntityID:   bestID,
			EntityType: entityTypes[bestID],
			Votes:      bestCount,
		}
	}
	return hints, nil
}
