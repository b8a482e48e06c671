package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
)

// ErrLimitExceeded is returned by Consume when the day's counter is at max.
var ErrLimitExceeded = errors.New("daily limit exceeded")

type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

// Consume atomically increments the user's counter for the given day if it
// is under max. A stored row with a different day key is stale and resets
// to count 1. The guarded upsert executes as a single statement, so the
// count can never exceed max no matter how many requests race.
func (s *UsageStore) Consume(userID int64, day, plan string, max int) (*model.UsageCounter, error) {
	if max <= 0 {
		return nil, ErrLimitExceeded
	}

	result, err := s.db.Exec(
		`INSERT INTO usage_counters (user_id, day, count, max, plan) VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     count = CASE WHEN usage_counters.day <> excluded.day THEN 1 ELSE usage_counters.count + 1 END,
		     day = excluded.day,
		     max = excluded.max,
		     plan = excluded.plan
		 WHERE usage_counters.day <> excluded.day OR usage_counters.count < excluded.max`,
		userID, day, max, plan,
	)
	if err != nil {
		return nil, fmt.Errorf("consume usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrLimitExceeded
	}
	return s.Get(userID)
}

// Get returns the stored counter for the user, or nil if none exists yet.
// Callers must treat a day mismatch as zero usage.
func (s *UsageStore) Get(userID int64) (*model.UsageCounter, error) {
	row := s.db.QueryRow(
		`SELECT user_id, day, count, max, plan FROM usage_counters WHERE user_id = ?`,
		userID,
	)
	var c model.UsageCounter
	err := row.Scan(&c.UserID, &c.Day, &c.Count, &c.Max, &c.Plan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage counter: %w", err)
	}
	return &c, nil
}

// UsedToday returns the count for the given day, treating missing rows and
// stale day keys as zero.
func (s *UsageStore) UsedToday(userID int64, day string) (int, error) {
	c, err := s.Get(userID)
	if err != nil {
		return 0, err
	}
	if c == nil || c.Day != day {
		return 0, nil
	}
	return c.Count, nil
}

// Reset removes the user's counter. Used when a subscription is torn down.
func (s *UsageStore) Reset(userID int64) error {
	_, err := s.db.Exec(`DELETE FROM usage_counters WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("reset usage counter: %w", err)
	}
	return nil
}
