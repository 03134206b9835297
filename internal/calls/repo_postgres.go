package calls

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the call_logs table from migrations/001_init.sql.
// Rows are INSERT-only.

type PostgresRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db, now: time.Now} }

func (r *PostgresRepo) Create(ctx context.Context, l CallLog) (CallLog, error) {
	if l.CallID == "" || l.Outcome == "" || l.CallType == "" {
		return CallLog{}, ErrInvalidArgument
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = r.now().UTC()
	}
	const q = `
INSERT INTO call_logs (
  id, call_id, lead_id, campaign_id, phone, transcript, report,
  duration_seconds, outcome, call_type, created_at
) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.db.ExecContext(ctx, q,
		l.ID,
		l.CallID,
		l.LeadID,
		l.CampaignID,
		l.Phone,
		l.Transcript,
		l.Report,
		l.DurationSeconds,
		string(l.Outcome),
		string(l.CallType),
		l.CreatedAt,
	)
	if err != nil {
		return CallLog{}, err
	}
	return l, nil
}

func (r *PostgresRepo) List(ctx context.Context, from, to time.Time, campaignID string) ([]CallLog, error) {
	const q = `
SELECT id, call_id, COALESCE(lead_id, ''), COALESCE(campaign_id, ''), phone, transcript, report,
       duration_seconds, outcome, call_type, created_at
FROM call_logs
WHERE created_at >= $1 AND created_at < $2
  AND ($3 = '' OR campaign_id = $3)
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, from, to, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]CallLog, 0)
	for rows.Next() {
		var l CallLog
		var outcome, callType string
		if err := rows.Scan(
			&l.ID,
			&l.CallID,
			&l.LeadID,
			&l.CampaignID,
			&l.Phone,
			&l.Transcript,
			&l.Report,
			&l.DurationSeconds,
			&outcome,
			&callType,
			&l.CreatedAt,
		); err != nil {
			return nil, err
		}
		l.Outcome = Outcome(outcome)
		l.CallType = CallType(callType)
		out = append(out, l)
	}
	return out, rows.Err()
}
