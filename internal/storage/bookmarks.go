package storage

import (
	"fmt"
	"strings"
)

// AddBookmark saves questID for userID. Bookmarking the same quest twice is a no-op.
func (s *Store) AddBookmark(userID, questID string) error {
	if strings.TrimSpace(userID) == "" {
		return &ValidationError{Field: "user_id"}
	}
	if strings.TrimSpace(questID) == "" {
		return &ValidationError{Field: "quest_id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM quests WHERE id = ?`, questID).Scan(&exists); err != nil {
		return opErr("add_bookmark", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	_, err := s.db.Exec(`
		INSERT INTO bookmarks (user_id, quest_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, quest_id) DO NOTHING`,
		userID, questID, formatTime(s.now()),
	)
	return opErr("add_bookmark", err)
}

// RemoveBookmark deletes a saved quest for userID.
func (s *Store) RemoveBookmark(userID, questID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM bookmarks WHERE user_id = ? AND quest_id = ?`, userID, questID)
	if err != nil {
		return opErr("remove_bookmark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return opErr("remove_bookmark", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Bookmarks lists the quests saved by userID, newest bookmark first.
// Bookmarks whose quest has been evicted are skipped.
func (s *Store) Bookmarks(userID string) ([]Quest, error) {
	cols := make([]string, len(questColumns))
	for i, c := range questColumns {
		cols[i] = "q." + c
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT %s FROM bookmarks b
		JOIN quests q ON q.id = b.quest_id
		WHERE b.user_id = ?
		ORDER BY b.created_at DESC, q.id ASC`, strings.Join(cols, ", ")), userID)
	if err != nil {
		return nil, opErr("get_bookmarks", err)
	}
	quests, err := collectQuests(rows)
	return quests, opErr("get_bookmarks", err)
}
