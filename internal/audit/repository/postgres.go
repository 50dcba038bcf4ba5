package repository

import (
	"context"
	"database/sql"

	"travel-cms/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, resource, resource_id, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, nullString(a.ActorID), a.Action, a.Resource, nullString(a.ResourceID), nullString(a.IP),
		nullString(a.Metadata), a.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_id, action, resource, resource_id, ip, metadata, created_at
		FROM audit_logs
		WHERE resource = $1 AND resource_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, resource, resourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a                      domain.AuditLog
			actor, resID, ip, meta sql.NullString
		)
		if err := rows.Scan(&a.ID, &actor, &a.Action, &a.Resource, &resID, &ip, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ActorID, a.ResourceID, a.IP, a.Metadata = actor.String, resID.String, ip.String, meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
