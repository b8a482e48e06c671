package store

import (
	"database/sql"
	"fmt"

	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
)

type ComparisonStore struct {
	db *sql.DB
}

func NewComparisonStore(db *sql.DB) *ComparisonStore {
	return &ComparisonStore{db: db}
}

func scanComparison(scanner interface{ Scan(...any) error }) (*model.Comparison, error) {
	var c model.Comparison
	var score sql.NullFloat64
	var completedAt sql.NullTime
	err := scanner.Scan(
		&c.ID, &c.UserID, &c.BeforeKey, &c.AfterKey, &c.Status, &c.Summary,
		&score, &c.Report, &c.ErrorCode, &c.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		c.MatchScore = &score.Float64
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	return &c, nil
}

const comparisonCols = `id, user_id, before_key, after_key, status, summary, match_score, report, error_code, created_at, completed_at`

func (s *ComparisonStore) Create(id string, userID int64, beforeKey, afterKey string) (*model.Comparison, error) {
	_, err := s.db.Exec(
		`INSERT INTO comparisons (id, user_id, before_key, after_key) VALUES (?, ?, ?, ?)`,
		id, userID, beforeKey, afterKey,
	)
	if err != nil {
		return nil, fmt.Errorf("insert comparison: %w", err)
	}
	return s.GetByID(id)
}

func (s *ComparisonStore) GetByID(id string) (*model.Comparison, error) {
	row := s.db.QueryRow(`SELECT `+comparisonCols+` FROM comparisons WHERE id = ?`, id)
	c, err := scanComparison(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comparison: %w", err)
	}
	return c, nil
}

func (s *ComparisonStore) ListByUserID(userID int64, limit int) ([]*model.Comparison, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+comparisonCols+` FROM comparisons WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list comparisons: %w", err)
	}
	defer rows.Close()

	var comparisons []*model.Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		comparisons = append(comparisons, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comparisons: %w", err)
	}
	return comparisons, nil
}

func (s *ComparisonStore) MarkProcessing(id string) error {
	_, err := s.db.Exec(
		`UPDATE comparisons SET status = ? WHERE id = ?`,
		model.ComparisonProcessing, id,
	)
	if err != nil {
		return fmt.Errorf("mark comparison processing: %w", err)
	}
	return nil
}

func (s *ComparisonStore) MarkComplete(id, summary string, matchScore float64, reportJSON string) error {
	_, err := s.db.Exec(
		`UPDATE comparisons SET status = ?, summary = ?, match_score = ?, report = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.ComparisonComplete, summary, matchScore, reportJSON, id,
	)
	if err != nil {
		return fmt.Errorf("mark comparison complete: %w", err)
	}
	return nil
}

func (s *ComparisonStore) MarkFailed(id, errorCode string) error {
	_, err := s.db.Exec(
		`UPDATE comparisons SET status = ?, error_code = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.ComparisonFailed, errorCode, id,
	)
	if err != nil {
		return fmt.Errorf("mark comparison failed: %w", err)
	}
	return nil
}

func (s *ComparisonStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM comparisons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete comparison: %w", err)
	}
	return nil
}
