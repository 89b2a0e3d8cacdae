package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"
)

var questColumns = []string{
	"id", "url", "title", "description", "reward", "difficulty", "source",
	"gear_required", "region", "approval_state", "created_at", "last_seen",
}

const defaultQuestLimit = 50

// --- Quest cache ---

// CacheQuest upserts q keyed by URL, evicts quests not seen within
// EvictionWindow and returns cache statistics. The lookup, write, eviction and
// statistics run in one transaction.
//
// Eviction is scoped to q.Source when it is set, otherwise it is global.
// On update the quest keeps its id, created_at and approval state.
func (s *Store) CacheQuest(q Quest) (CacheStats, error) {
	if err := q.Validate(); err != nil {
		return CacheStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	nowStr := formatTime(now)

	tx, err := s.db.Begin()
	if err != nil {
		return CacheStats{}, opErr("cache_quest", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	reward := q.Reward
	if strings.TrimSpace(reward) == "" {
		reward = PlaceholderReward
	}

	var id, lastSeen string
	err = tx.QueryRow(`SELECT id, last_seen FROM quests WHERE url = ?`, q.URL).Scan(&id, &lastSeen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = q.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.Exec(`
			INSERT INTO quests (id, url, title, description, reward, difficulty, source, gear_required, region, approval_state, created_at, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, q.URL, q.Title, q.Description, reward, q.Difficulty, q.Source,
			joinGear(q.GearRequired), q.Region, string(StatePending), nowStr, nowStr,
		)
		if err != nil {
			return CacheStats{}, opErr("cache_quest", fmt.Errorf("inserting quest: %w", err))
		}
	case err != nil:
		return CacheStats{}, opErr("cache_quest", fmt.Errorf("looking up quest: %w", err))
	default:
		seen := nowStr
		if lastSeen > seen {
			seen = lastSeen
		}
		_, err = tx.Exec(`
			UPDATE quests SET title = ?, description = ?, reward = ?, difficulty = ?, source = ?,
				gear_required = ?, region = ?, last_seen = ?
			WHERE id = ?`,
			q.Title, q.Description, reward, q.Difficulty, q.Source,
			joinGear(q.GearRequired), q.Region, seen, id,
		)
		if err != nil {
			return CacheStats{}, opErr("cache_quest", fmt.Errorf("updating quest: %w", err))
		}
	}

	if _, err := evictStale(tx, now, q.Source); err != nil {
		return CacheStats{}, opErr("cache_quest", err)
	}

	stats, err := cacheStats(tx)
	if err != nil {
		return CacheStats{}, opErr("cache_quest", err)
	}

	if err := tx.Commit(); err != nil {
		return CacheStats{}, opErr("cache_quest", fmt.Errorf("committing: %w", err))
	}
	return stats, nil
}

func evictStale(tx *sql.Tx, now time.Time, source string) (int64, error) {
	cutoff := formatTime(now.Add(-EvictionWindow))
	var (
		res sql.Result
		err error
	)
	if source != "" {
		res, err = tx.Exec(`DELETE FROM quests WHERE last_seen < ? AND source = ?`, cutoff, source)
	} else {
		res, err = tx.Exec(`DELETE FROM quests WHERE last_seen < ?`, cutoff)
	}
	if err != nil {
		return 0, fmt.Errorf("evicting stale quests: %w", err)
	}
	return res.RowsAffected()
}

// EvictStale deletes every quest not seen within EvictionWindow, across all
// sources. It returns the number of deleted rows.
func (s *Store) EvictStale() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, opErr("evict_stale", err)
	}
	defer tx.Rollback()

	n, err := evictStale(tx, s.now(), "")
	if err != nil {
		return 0, opErr("evict_stale", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, opErr("evict_stale", err)
	}
	return n, nil
}

func cacheStats(q queryer) (CacheStats, error) {
	var (
		stats          CacheStats
		oldest, newest string
	)
	err := q.QueryRow(`
		SELECT COUNT(*),
			COALESCE(AVG(difficulty), 0),
			COALESCE(MIN(created_at), ''),
			COALESCE(MAX(created_at), ''),
			COALESCE(SUM(CASE WHEN TRIM(gear_required) IN ('', 'TBD') THEN 1 ELSE 0 END), 0)
		FROM quests`,
	).Scan(&stats.TotalCount, &stats.AvgDifficulty, &oldest, &newest, &stats.PlaceholderGear)
	if err != nil {
		return CacheStats{}, fmt.Errorf("computing stats: %w", err)
	}

	if stats.OldestCreated, err = parseTime(oldest); err != nil {
		return CacheStats{}, fmt.Errorf("parsing oldest created_at: %w", err)
	}
	if stats.NewestCreated, err = parseTime(newest); err != nil {
		return CacheStats{}, fmt.Errorf("parsing newest created_at: %w", err)
	}

	rows, err := q.Query(`SELECT source, COUNT(*) FROM quests GROUP BY source`)
	if err != nil {
		return CacheStats{}, fmt.Errorf("counting by source: %w", err)
	}
	defer rows.Close()

	stats.BySource = make(map[string]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return CacheStats{}, err
		}
		stats.BySource[src] = n
	}
	return stats, rows.Err()
}

// Stats returns the current cache statistics without writing.
func (s *Store) Stats() (CacheStats, error) {
	stats, err := cacheStats(s.db)
	return stats, opErr("stats", err)
}

// --- Reads ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuest(r rowScanner) (Quest, error) {
	var (
		q                   Quest
		gear                string
		state               sql.NullString
		createdAt, lastSeen string
	)
	if err := r.Scan(&q.ID, &q.URL, &q.Title, &q.Description, &q.Reward, &q.Difficulty, &q.Source,
		&gear, &q.Region, &state, &createdAt, &lastSeen); err != nil {
		return Quest{}, err
	}
	q.GearRequired = splitGear(gear)
	q.ApprovalState = StatePending
	if state.Valid && state.String != "" {
		q.ApprovalState = ApprovalState(state.String)
	}
	var err error
	if q.CreatedAt, err = parseTime(createdAt); err != nil {
		return Quest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if q.LastSeen, err = parseTime(lastSeen); err != nil {
		return Quest{}, fmt.Errorf("parsing last_seen: %w", err)
	}
	return q, nil
}

func collectQuests(rows *sql.Rows) ([]Quest, error) {
	defer rows.Close()
	var results []Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

// GetQuest returns the quest with the given id.
func (s *Store) GetQuest(id string) (Quest, error) {
	query, args, err := sq.Select(questColumns...).From("quests").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Quest{}, opErr("get_quest", err)
	}
	q, err := scanQuest(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Quest{}, ErrNotFound
	}
	if err != nil {
		return Quest{}, opErr("get_quest", err)
	}
	return q, nil
}

// GetQuestByURL returns the quest cached under url.
func (s *Store) GetQuestByURL(url string) (Quest, error) {
	query, args, err := sq.Select(questColumns...).From("quests").Where(sq.Eq{"url": url}).ToSql()
	if err != nil {
		return Quest{}, opErr("get_quest_by_url", err)
	}
	q, err := scanQuest(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Quest{}, ErrNotFound
	}
	if err != nil {
		return Quest{}, opErr("get_quest_by_url", err)
	}
	return q, nil
}

// GetQuests lists quests matching f, most recently seen first.
func (s *Store) GetQuests(f QuestFilter) ([]Quest, error) {
	qb := sq.Select(questColumns...).From("quests").OrderBy("last_seen DESC", "created_at DESC", "id ASC")
	if f.Source != "" {
		qb = qb.Where(sq.Eq{"source": f.Source})
	}
	if f.Region != "" {
		qb = qb.Where(sq.Eq{"region": f.Region})
	}
	if f.State != "" {
		qb = qb.Where(sq.Eq{"approval_state": string(f.State)})
	}
	if f.MinDifficulty > 0 {
		qb = qb.Where(sq.GtOrEq{"difficulty": f.MinDifficulty})
	}
	if f.MaxDifficulty > 0 {
		qb = qb.Where(sq.LtOrEq{"difficulty": f.MaxDifficulty})
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQuestLimit
	}
	qb = qb.Limit(uint64(limit))
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, opErr("get_quests", fmt.Errorf("building query: %w", err))
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, opErr("get_quests", err)
	}
	quests, err := collectQuests(rows)
	return quests, opErr("get_quests", err)
}

// PendingQuests lists quests awaiting moderation.
func (s *Store) PendingQuests(limit int) ([]Quest, error) {
	return s.GetQuests(QuestFilter{State: StatePending, Limit: limit})
}

type questTitles []Quest

func (t questTitles) String(i int) string { return t[i].Title }
func (t questTitles) Len() int            { return len(t) }

// SearchQuests fuzzy-matches query against cached quest titles and returns
// the best matches first. An empty query lists the most recent quests.
func (s *Store) SearchQuests(query string, limit int) ([]Quest, error) {
	if limit <= 0 {
		limit = defaultQuestLimit
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return s.GetQuests(QuestFilter{Limit: limit})
	}

	sqlStr, args, err := sq.Select(questColumns...).From("quests").OrderBy("last_seen DESC").ToSql()
	if err != nil {
		return nil, opErr("search_quests", err)
	}
	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, opErr("search_quests", err)
	}
	all, err := collectQuests(rows)
	if err != nil {
		return nil, opErr("search_quests", err)
	}

	matches := fuzzy.FindFrom(strings.ToLower(query), lowerTitles(all))
	results := make([]Quest, 0, min(limit, len(matches)))
	for _, m := range matches {
		if len(results) == limit {
			break
		}
		results = append(results, all[m.Index])
	}
	return results, nil
}

func lowerTitles(quests []Quest) questTitles {
	out := make(questTitles, len(quests))
	for i, q := range quests {
		q.Title = strings.ToLower(q.Title)
		out[i] = q
	}
	return out
}

// SimilarQuests returns quests from the same source as id, closest in
// difficulty first.
func (s *Store) SimilarQuests(id string, limit int) ([]Quest, error) {
	ref, err := s.GetQuest(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	query, args, err := sq.Select(questColumns...).From("quests").
		Where(sq.Eq{"source": ref.Source}).
		Where(sq.NotEq{"id": ref.ID}).
		OrderByClause("ABS(difficulty - ?) ASC", ref.Difficulty).
		OrderBy("last_seen DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, opErr("similar_quests", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, opErr("similar_quests", err)
	}
	quests, err := collectQuests(rows)
	return quests, opErr("similar_quests", err)
}

// RecentActivity counts quests created per source over the last days days,
// busiest source first.
func (s *Store) RecentActivity(days int) ([]SourceActivity, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := formatTime(s.now().AddDate(0, 0, -days))

	query, args, err := sq.Select("source", "COUNT(*) AS n").From("quests").
		Where(sq.GtOrEq{"created_at": cutoff}).
		GroupBy("source").
		OrderBy("n DESC", "source ASC").
		ToSql()
	if err != nil {
		return nil, opErr("recent_activity", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, opErr("recent_activity", err)
	}
	defer rows.Close()

	var out []SourceActivity
	for rows.Next() {
		var a SourceActivity
		if err := rows.Scan(&a.Source, &a.Count); err != nil {
			return nil, opErr("recent_activity", err)
		}
		out = append(out, a)
	}
	return out, opErr("recent_activity", rows.Err())
}

// --- Moderation ---

// ApproveQuest moves a pending quest to approved.
func (s *Store) ApproveQuest(id string) error {
	return s.transition(id, StateApproved)
}

// RejectQuest moves a pending quest to rejected.
func (s *Store) RejectQuest(id string) error {
	return s.transition(id, StateRejected)
}

func (s *Store) transition(id string, to ApprovalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE quests SET approval_state = ?
		WHERE id = ? AND (approval_state IS NULL OR approval_state = '' OR approval_state = ?)`,
		string(to), id, string(StatePending),
	)
	if err != nil {
		return opErr("set_approval", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return opErr("set_approval", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM quests WHERE id = ?`, id).Scan(&exists); err != nil {
		return opErr("set_approval", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// --- Maintenance ---

// BackfillDifficulty gives unscored quests the average difficulty of their
// source over the last seven days. Sources with no scored quests in that
// window are left alone.
func (s *Store) BackfillDifficulty() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := formatTime(s.now().AddDate(0, 0, -7))
	res, err := s.db.Exec(`
		UPDATE quests SET difficulty = (
			SELECT AVG(q2.difficulty) FROM quests q2
			WHERE q2.source = quests.source AND q2.difficulty > 0 AND q2.created_at >= ?
		)
		WHERE difficulty = 0 AND EXISTS (
			SELECT 1 FROM quests q3
			WHERE q3.source = quests.source AND q3.difficulty > 0 AND q3.created_at >= ?
		)`, cutoff, cutoff)
	if err != nil {
		return 0, opErr("backfill_difficulty", err)
	}
	n, err := res.RowsAffected()
	return n, opErr("backfill_difficulty", err)
}
