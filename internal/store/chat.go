package store

import (
	"fmt"
	"time"

	"github.com/dailyos/dailyos/internal/entity"
	"github.com/google/uuid"
)

// CreateChatSession starts a new conversational assistant transcript.
func (s *Store) CreateChatSession(now time.Time) (entity.ChatSession, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return entity.ChatSession{}, fmt.Errorf("generate session id: %w", err)
	}
	sess := entity.ChatSession{ID: id.String(), StartedAt: now}
	_, err = s.db.Exec(`INSERT INTO chat_sessions (id, started_at) VALUES (?, ?)`,
		sess.ID, sess.StartedAt.Format(time.RFC3339))
	return sess, err
}

// AppendChatTurn appends one message to a session's transcript.
func (s *Store) AppendChatTurn(sessionID, role, content string, now time.Time) (entity.ChatTurn, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return entity.ChatTurn{}, fmt.Errorf("generate turn id: %w", err)
	}
	turn := entity.ChatTurn{ID: id.String(), SessionID: sessionID, Role: role, Content: content, CreatedAt: now}
	_, err = s.db.Exec(`
		INSERT INTO chat_turns (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)
	`, turn.ID, turn.SessionID, turn.Role, turn.Content, turn.CreatedAt.Format(time.RFC3339))
	return turn, err
}

// GetChatTurns returns a session's transcript in chronological order.
func (s *Store) GetChatTurns(sessionID string) ([]entity.ChatTurn, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, created_at FROM chat_turns
		WHERE session_id = ? ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.ChatTurn
	for rows.Next() {
		var t entity.ChatTurn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}
