package persistence

import (
	"context"
	"time"
)

// UserRow is the full dimension row written on REGISTERED.
type UserRow struct {
	UserID       int64
	Username     *string
	Email        *string
	Role         *string
	Region       *string
	Organization *string
	PhoneNumber  *string
	Enabled      bool
	CreatedAt    time.Time
}

// UpsertUser replaces the dimension row for a (re-)registered user.
func (w *Writer) UpsertUser(ctx context.Context, row UserRow) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO dim_users (
			user_id, username, email, role, region, enabled,
			created_at, updated_at, organization_name, phone_number, last_login_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			username          = EXCLUDED.username,
			email             = EXCLUDED.email,
			role              = EXCLUDED.role,
			region            = EXCLUDED.region,
			enabled           = EXCLUDED.enabled,
			updated_at        = EXCLUDED.updated_at,
			organization_name = EXCLUDED.organization_name,
			phone_number      = EXCLUDED.phone_number,
			last_login_at     = EXCLUDED.last_login_at
	`,
		row.UserID, row.Username, row.Email, row.Role, row.Region, row.Enabled,
		row.CreatedAt, row.Organization, row.PhoneNumber,
	)
	return err
}

// UserPatch carries only the fields present in an UPDATED event. Nil fields
// keep their stored value through COALESCE, so a sparse update cannot null
// out columns the producer did not send.
type UserPatch struct {
	UserID       int64
	Username     *string
	Email        *string
	Role         *string
	Region       *string
	Organization *string
	PhoneNumber  *string
	UpdatedAt    time.Time
}

// UpdateUserProfile applies a partial update to the dimension row.
func (w *Writer) UpdateUserProfile(ctx context.Context, patch UserPatch) error {
	_, err := w.q.ExecContext(ctx, `
		UPDATE dim_users SET
			username          = COALESCE($2, username),
			email             = COALESCE($3, email),
			role              = COALESCE($4, role),
			region            = COALESCE($5, region),
			organization_name = COALESCE($6, organization_name),
			phone_number      = COALESCE($7, phone_number),
			updated_at        = $8
		WHERE user_id = $1
	`,
		patch.UserID, patch.Username, patch.Email, patch.Role, patch.Region,
		patch.Organization, patch.PhoneNumber, patch.UpdatedAt,
	)
	return err
}

// RecordUserLogin stamps last_login_at.
func (w *Writer) RecordUserLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := w.q.ExecContext(ctx, `
		UPDATE dim_users SET last_login_at = $2, updated_at = $2 WHERE user_id = $1
	`, userID, at)
	return err
}

// SetUserEnabled flips the enabled flag. DELETED is a soft delete: the row
// stays for historical joins with enabled=false.
func (w *Writer) SetUserEnabled(ctx context.Context, userID int64, enabled bool, at time.Time) error {
	_, err := w.q.ExecContext(ctx, `
		UPDATE dim_users SET enabled = $2, updated_at = $3 WHERE user_id = $1
	`, userID, enabled, at)
	return err
}
