package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"travel-cms/backend/internal/invitation/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an invitation repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const invitationColumns = `id, email, role, invited_by, trip_id, metadata, token_hash, token_salt,
	expires_at, used, used_at, used_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	var (
		inv      domain.Invitation
		tripID   sql.NullString
		metadata []byte
		usedAt   sql.NullTime
		usedBy   sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.InvitedBy, &tripID, &metadata, &inv.TokenHash, &inv.TokenSalt,
		&inv.ExpiresAt, &inv.Used, &usedAt, &usedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.TripID = tripID.String
	inv.UsedBy = usedBy.String
	if usedAt.Valid {
		t := usedAt.Time
		inv.UsedAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &inv.Metadata); err != nil {
			return nil, fmt.Errorf("decode invitation metadata: %w", err)
		}
	}
	if len(inv.Metadata) == 0 {
		inv.Metadata = nil
	}
	return &inv, nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, q string, args ...any) (*domain.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

func (r *PostgresRepository) queryMany(ctx context.Context, q string, args ...any) ([]*domain.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Get returns the invitation for id, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.queryOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

// GetActiveByEmail returns the unused, unexpired invitation for email, or nil.
func (r *PostgresRepository) GetActiveByEmail(ctx context.Context, email string, now time.Time) (*domain.Invitation, error) {
	return r.queryOne(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE email = $1 AND used = FALSE AND expires_at > $2
		ORDER BY created_at DESC LIMIT 1`, email, now)
}

// ListActive returns unused invitations expiring after cutoff.
func (r *PostgresRepository) ListActive(ctx context.Context, cutoff time.Time) ([]*domain.Invitation, error) {
	return r.queryMany(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE used = FALSE AND expires_at > $1`, cutoff)
}

// List returns one page of invitations matching f, newest first, and the total match count.
func (r *PostgresRepository) List(ctx context.Context, f Filter, p Page, now time.Time) ([]*domain.Invitation, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	switch f.Status {
	case domain.StatusPending:
		where = append(where, "used = FALSE AND expires_at > "+arg(now))
	case domain.StatusExpired:
		where = append(where, "used = FALSE AND expires_at <= "+arg(now))
	case domain.StatusAccepted:
		where = append(where, "used = TRUE")
	}
	if f.Role != "" {
		where = append(where, "role = "+arg(f.Role))
	}
	if f.InvitedBy != "" {
		where = append(where, "invited_by = "+arg(f.InvitedBy))
	}
	if f.Email != "" {
		where = append(where, "email LIKE '%' || "+arg(escapeLike(strings.ToLower(f.Email)))+" || '%' ESCAPE '\\'")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invitations`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + invitationColumns + ` FROM invitations` + clause + ` ORDER BY created_at DESC, id`
	if p.Limit > 0 {
		q += " LIMIT " + arg(p.Limit)
	}
	if p.Offset > 0 {
		q += " OFFSET " + arg(p.Offset)
	}
	items, err := r.queryMany(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Insert stores inv inside a transaction holding a per-email advisory lock, so two concurrent
// inserts for one email cannot both observe "no active invitation".
func (r *PostgresRepository) Insert(ctx context.Context, inv *domain.Invitation, now time.Time) error {
	metadata := []byte("{}")
	if len(inv.Metadata) > 0 {
		b, err := json.Marshal(inv.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, inv.Email); err != nil {
		return err
	}
	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM invitations WHERE email = $1 AND used = FALSE AND expires_at > $2)`,
		inv.Email, now).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrActiveInvitationExists
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO invitations (`+invitationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NULL, NULL, $10, $11)`,
		inv.ID, inv.Email, inv.Role, inv.InvitedBy, sql.NullString{String: inv.TripID, Valid: inv.TripID != ""},
		string(metadata), inv.TokenHash, inv.TokenSalt, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpdateIfUnused applies p in a single conditional UPDATE guarded by used = FALSE.
func (r *PostgresRepository) UpdateIfUnused(ctx context.Context, id, expectedHash string, p Patch) (bool, error) {
	return updateIfUnused(ctx, r.db, id, expectedHash, p)
}

// Rotate applies p under the same per-email advisory lock as Insert, refusing when another
// invitation for the email is active at now.
func (r *PostgresRepository) Rotate(ctx context.Context, id string, p Patch, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var email string
	err = tx.QueryRowContext(ctx, `SELECT email FROM invitations WHERE id = $1 AND used = FALSE`, id).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, email); err != nil {
		return false, err
	}
	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM invitations
		WHERE email = $1 AND id <> $2 AND used = FALSE AND expires_at > $3)`, email, id, now).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return false, ErrActiveInvitationExists
	}
	changed, err := updateIfUnused(ctx, tx, id, "", p)
	if err != nil || !changed {
		return false, err
	}
	return true, tx.Commit()
}

func updateIfUnused(ctx context.Context, db execer, id, expectedHash string, p Patch) (bool, error) {
	args := []any{id, p.UpdatedAt}
	sets := []string{"updated_at = $2"}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.TokenHash != "" {
		set("token_hash", p.TokenHash)
		set("token_salt", p.TokenSalt)
	}
	if !p.ExpiresAt.IsZero() {
		set("expires_at", p.ExpiresAt)
	}
	if p.MarkUsed {
		sets = append(sets, "used = TRUE")
		set("used_at", p.UsedAt)
		set("used_by", p.UsedBy)
	}
	q := `UPDATE invitations SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 AND used = FALSE`
	if expectedHash != "" {
		args = append(args, expectedHash)
		q += fmt.Sprintf(" AND token_hash = $%d", len(args))
	}
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes invitation id when it is unused.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
