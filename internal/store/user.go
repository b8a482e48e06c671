package store

import (
	"database/sql"
	"fmt"

	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var stripeID sql.NullString
	err := scanner.Scan(
		&u.ID, &u.AuthSubject, &u.Email, &u.DisplayName, &u.AvatarURL,
		&stripeID, &u.Plan, &u.SubscriptionStatus, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if stripeID.Valid {
		u.StripeCustomerID = &stripeID.String
	}
	return &u, nil
}

const userCols = `id, auth_subject, email, display_name, avatar_url, stripe_customer_id, plan, subscription_status, created_at, updated_at`

// Upsert creates the user row for an auth subject on first sight, or
// refreshes email and display name from the verified token on later requests.
// Empty claim values never overwrite stored ones.
func (s *UserStore) Upsert(authSubject, email, displayName string) (*model.User, error) {
	_, err := s.db.Exec(
		`INSERT INTO users (auth_subject, email, display_name) VALUES (?, ?, ?)
		 ON CONFLICT(auth_subject) DO UPDATE SET
		     email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
		     display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE users.display_name END,
		     updated_at = CURRENT_TIMESTAMP`,
		authSubject, email, displayName,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetBySubject(authSubject)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetBySubject(authSubject string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE auth_subject = ?`, authSubject)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by subject: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByStripeCustomerID(customerID string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE stripe_customer_id = ?`, customerID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by stripe customer id: %w", err)
	}
	return u, nil
}

func (s *UserStore) UpdateStripeCustomerID(id int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE users SET stripe_customer_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("update stripe customer id: %w", err)
	}
	return nil
}

func (s *UserStore) UpdateAvatarURL(id int64, avatarURL string) error {
	_, err := s.db.Exec(
		`UPDATE users SET avatar_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		avatarURL, id,
	)
	if err != nil {
		return fmt.Errorf("update avatar url: %w", err)
	}
	return nil
}

// UpdateBilling refreshes the cached plan slug and subscription status.
// The cache is informational only; quota decisions never read it.
func (s *UserStore) UpdateBilling(id int64, plan, status string) error {
	_, err := s.db.Exec(
		`UPDATE users SET plan = ?, subscription_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		plan, status, id,
	)
	if err != nil {
		return fmt.Errorf("update billing cache: %w", err)
	}
	return nil
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
