package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events; it never updates or deletes.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, call_id, lead_id, campaign_id, appointment_id, reason, message, metadata, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, NULLIF($9, '')::jsonb, $10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.CallID,
		e.LeadID,
		e.CampaignID,
		e.AppointmentID,
		e.Reason,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
