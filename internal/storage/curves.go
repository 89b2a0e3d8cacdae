package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
)

const scoreEpsilon = 1e-9

// UpsertCurve records score for (category, keyword). It reports whether a
// write happened: a new pair or a changed score returns true, an identical
// resubmission returns false and leaves created_at untouched.
func (s *Store) UpsertCurve(category, keyword string, score float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now())

	tx, err := s.db.Begin()
	if err != nil {
		return false, opErr("upsert_curve", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	var existing float64
	err = tx.QueryRow(`SELECT difficulty_score FROM difficulty_curves WHERE category = ? AND keyword = ?`,
		category, keyword).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.Exec(`
			INSERT INTO difficulty_curves (category, keyword, difficulty_score, created_at)
			VALUES (?, ?, ?, ?)`, category, keyword, score, now); err != nil {
			return false, opErr("upsert_curve", fmt.Errorf("inserting curve: %w", err))
		}
	case err != nil:
		return false, opErr("upsert_curve", fmt.Errorf("looking up curve: %w", err))
	case math.Abs(existing-score) < scoreEpsilon:
		return false, nil
	default:
		if _, err := tx.Exec(`
			UPDATE difficulty_curves SET difficulty_score = ?, created_at = ?
			WHERE category = ? AND keyword = ?`, score, now, category, keyword); err != nil {
			return false, opErr("upsert_curve", fmt.Errorf("updating curve: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, opErr("upsert_curve", fmt.Errorf("committing: %w", err))
	}
	return true, nil
}

// Curves lists difficulty curves newest first. An empty category lists all.
func (s *Store) Curves(category string) ([]DifficultyCurve, error) {
	qb := sq.Select("id", "category", "keyword", "difficulty_score", "created_at").
		From("difficulty_curves").
		OrderBy("created_at DESC", "id DESC")
	if category != "" {
		qb = qb.Where(sq.Eq{"category": category})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, opErr("get_curves", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, opErr("get_curves", err)
	}
	defer rows.Close()

	var out []DifficultyCurve
	for rows.Next() {
		var c DifficultyCurve
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Category, &c.Keyword, &c.Score, &createdAt); err != nil {
			return nil, opErr("get_curves", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, opErr("get_curves", fmt.Errorf("parsing created_at: %w", err))
		}
		out = append(out, c)
	}
	return out, opErr("get_curves", rows.Err())
}

// CurveScores returns the stored score for each keyword of category that has one.
func (s *Store) CurveScores(category string, keywords []string) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(keywords) == 0 {
		return out, nil
	}

	query, args, err := sq.Select("keyword", "difficulty_score").From("difficulty_curves").
		Where(sq.Eq{"category": category, "keyword": keywords}).
		ToSql()
	if err != nil {
		return nil, opErr("curve_scores", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, opErr("curve_scores", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kw string
		var score float64
		if err := rows.Scan(&kw, &score); err != nil {
			return nil, opErr("curve_scores", err)
		}
		out[kw] = score
	}
	return out, opErr("curve_scores", rows.Err())
}

// PruneCurves deletes curves whose created_at is older than maxAgeDays.
func (s *Store) PruneCurves(maxAgeDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := formatTime(s.now().AddDate(0, 0, -maxAgeDays))
	res, err := s.db.Exec(`DELETE FROM difficulty_curves WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, opErr("prune_curves", err)
	}
	n, err := res.RowsAffected()
	return n, opErr("prune_curves", err)
}

// --- Scoring models ---

// SaveModel stores a scoring model artifact under name, replacing any previous one.
func (s *Store) SaveModel(m ModelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fitted := m.FittedAt
	if fitted.IsZero() {
		fitted = s.now()
	}
	_, err := s.db.Exec(`
		INSERT INTO scoring_models (name, payload, doc_count, fitted_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, doc_count = excluded.doc_count, fitted_at = excluded.fitted_at`,
		m.Name, string(m.Payload), m.DocCount, formatTime(fitted),
	)
	return opErr("save_model", err)
}

// LoadModel returns the artifact stored under name.
func (s *Store) LoadModel(name string) (ModelRecord, error) {
	var (
		m        ModelRecord
		payload  string
		fittedAt string
	)
	err := s.db.QueryRow(`SELECT name, payload, doc_count, fitted_at FROM scoring_models WHERE name = ?`, name).
		Scan(&m.Name, &payload, &m.DocCount, &fittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, ErrNotFound
	}
	if err != nil {
		return ModelRecord{}, opErr("load_model", err)
	}
	m.Payload = []byte(payload)
	if m.FittedAt, err = parseTime(fittedAt); err != nil {
		return ModelRecord{}, opErr("load_model", fmt.Errorf("parsing fitted_at: %w", err))
	}
	return m, nil
}
