// internal/storage/postgres/accounts.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"gymdesk/internal/accounts"
	"gymdesk/internal/membership"
)

// GetGymProfile returns the owner's gym profile.
func (s *Store) GetGymProfile(ctx context.Context, owner uuid.UUID) (*membership.GymProfile, error) {
	ctx, span := s.start(ctx, "postgres.get_gym_profile", attribute.String("user.id", owner.String()))
	defer span.End()

	p := &membership.GymProfile{}
	var fields []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, gym_name, form_fields, created_at, updated_at
		FROM gym_profiles
		WHERE user_id = $1
	`, owner).Scan(&p.ID, &p.UserID, &p.GymName, &fields, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, membership.ErrNotFound
		}
		return nil, fail(span, fmt.Errorf("query gym profile: %w", err))
	}
	if err := json.Unmarshal(fields, &p.FormFields); err != nil {
		return nil, fail(span, fmt.Errorf("decode form fields: %w", err))
	}
	return p, nil
}

// SaveGymProfile creates or replaces the profile of p.UserID.
func (s *Store) SaveGymProfile(ctx context.Context, p *membership.GymProfile) error {
	ctx, span := s.start(ctx, "postgres.save_gym_profile", attribute.String("user.id", p.UserID.String()))
	defer span.End()

	formFields := p.FormFields
	if formFields == nil {
		formFields = []membership.FormField{}
	}
	fields, err := json.Marshal(formFields)
	if err != nil {
		return fail(span, fmt.Errorf("encode form fields: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gym_profiles (id, user_id, gym_name, form_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET gym_name = EXCLUDED.gym_name,
		    form_fields = EXCLUDED.form_fields,
		    updated_at = EXCLUDED.updated_at
	`, p.ID, p.UserID, p.GymName, fields, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fail(span, fmt.Errorf("upsert gym profile: %w", err))
	}
	return nil
}

// CreateUser stores an account and its credential in one transaction.
func (s *Store) CreateUser(ctx context.Context, u *accounts.User, c *accounts.Credential) error {
	ctx, span := s.start(ctx, "postgres.create_user", attribute.String("user.id", u.ID.String()))
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, email, name, created_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Email, u.Name, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return accounts.ErrEmailTaken
		}
		return fail(span, fmt.Errorf("insert user: %w", err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (user_id, password_hash, salt)
		VALUES ($1, $2, $3)
	`, c.UserID, c.PasswordHash, c.Salt)
	if err != nil {
		return fail(span, fmt.Errorf("insert credential: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// GetUser returns an account by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*accounts.User, error) {
	return s.getUser(ctx, "postgres.get_user", `WHERE id = $1`, id)
}

// GetUserByEmail returns an account by its normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return s.getUser(ctx, "postgres.get_user_by_email", `WHERE email = $1`, email)
}

func (s *Store) getUser(ctx context.Context, spanName, where string, arg interface{}) (*accounts.User, error) {
	ctx, span := s.start(ctx, spanName)
	defer span.End()

	u := &accounts.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, created_at
		FROM users
	`+where, arg).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrUserNotFound
		}
		return nil, fail(span, fmt.Errorf("query user: %w", err))
	}
	return u, nil
}

// GetCredential returns the password credential of an account.
func (s *Store) GetCredential(ctx context.Context, userID uuid.UUID) (*accounts.Credential, error) {
	ctx, span := s.start(ctx, "postgres.get_credential", attribute.String("user.id", userID.String()))
	defer span.End()

	c := &accounts.Credential{}
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, password_hash, salt
		FROM credentials
		WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.PasswordHash, &c.Salt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accounts.ErrUserNotFound
		}
		return nil, fail(span, fmt.Errorf("query credential: %w", err))
	}
	return c, nil
}
