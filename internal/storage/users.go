package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

// UpsertUser creates the user on first contact and refreshes username and last_seen after.
func (s *SQLiteStore) UpsertUser(ctx context.Context, id int64, username string) (domain.User, error) {
	now := s.now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, language, first_seen, last_seen)
VALUES (?, ?, 'en', ?, ?)
ON CONFLICT(id) DO UPDATE SET
  username = excluded.username,
  last_seen = excluded.last_seen
`, id, username, now, now); err != nil {
		return domain.User{}, fmt.Errorf("upsert user %d: %w", id, err)
	}
	u, _, err := s.GetUser(ctx, id)
	return u, err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (domain.User, bool, error) {
	var u domain.User
	var first, last string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, language, role, first_seen, last_seen FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Language, &u.Role, &first, &last)
	if err == sql.ErrNoRows {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	u.FirstSeen, _ = time.Parse(time.RFC3339, first)
	u.LastSeen, _ = time.Parse(time.RFC3339, last)
	return u, true, nil
}

func (s *SQLiteStore) SetUserLanguage(ctx context.Context, id int64, lang string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET language = ? WHERE id = ?`, lang, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

// SetUserRole grants role to the user, creating the user when it has not written yet. An
// empty username keeps the stored one.
func (s *SQLiteStore) SetUserRole(ctx context.Context, id int64, username, role string) (domain.User, error) {
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}
	now := s.now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, language, role, first_seen, last_seen)
VALUES (?, ?, 'en', ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  role = excluded.role,
  username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END
`, id, username, role, now, now); err != nil {
		return domain.User{}, fmt.Errorf("set role of user %d: %w", id, err)
	}
	u, _, err := s.GetUser(ctx, id)
	return u, err
}

// RecordEvent stores one incoming interaction and returns it with its generated id.
func (s *SQLiteStore) RecordEvent(ctx context.Context, userID int64, typ, content string) (domain.Event, error) {
	e := domain.Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, type, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Type, e.Content, e.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return domain.Event{}, fmt.Errorf("record event: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) CountEvents(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
