package appointments

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voice-agent/pkg/utils"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the appointments table from
// migrations/001_init.sql. Booking inserts are serialized with a transaction
// scoped advisory lock so the occupied-slot read and the insert are atomic.

var bookingLockKey = utils.AdvisoryLockKey("appointments:booking")

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type PostgresRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, now: time.Now}
}

const selectColumns = `
SELECT id, lead_id, campaign_id, scheduled_at, status, is_auto_callback, call_triggered,
       COALESCE(call_log_id, ''), notes, user_local_time, user_zone, created_at, updated_at
FROM appointments
`

func (r *PostgresRepo) Create(ctx context.Context, a Appointment) (Appointment, error) {
	return r.insert(ctx, r.db, a)
}

func (r *PostgresRepo) CreateChecked(ctx context.Context, a Appointment, window time.Duration, admit AdmitFunc) (Appointment, bool, error) {
	var out Appointment
	var admitted bool
	err := utils.WithAdvisoryLock(ctx, r.db, bookingLockKey, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
SELECT scheduled_at
FROM appointments
WHERE status <> 'CANCELLED'
  AND is_auto_callback = false
  AND scheduled_at BETWEEN $1 AND $2
`
		rows, err := tx.QueryContext(ctx, q, a.ScheduledAt.Add(-window), a.ScheduledAt.Add(window))
		if err != nil {
			return err
		}
		defer rows.Close()
		var occupied []time.Time
		for rows.Next() {
			var t time.Time
			if err := rows.Scan(&t); err != nil {
				return err
			}
			occupied = append(occupied, t)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if !admit(occupied) {
			return nil
		}
		out, err = r.insert(ctx, tx, a)
		if err != nil {
			return err
		}
		admitted = true
		return nil
	})
	if err != nil {
		return Appointment{}, false, err
	}
	return out, admitted, nil
}

func (r *PostgresRepo) insert(ctx context.Context, q querier, a Appointment) (Appointment, error) {
	if a.LeadID == "" || a.ScheduledAt.IsZero() || a.Status == "" {
		return Appointment{}, ErrInvalidArgument
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	const stmt = `
INSERT INTO appointments (
  id, lead_id, campaign_id, scheduled_at, status, is_auto_callback, call_triggered,
  call_log_id, notes, user_local_time, user_zone, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13)
`
	_, err := q.ExecContext(ctx, stmt,
		a.ID,
		a.LeadID,
		a.CampaignID,
		a.ScheduledAt.UTC(),
		string(a.Status),
		a.IsAutoCallback,
		a.CallTriggered,
		a.CallLogID,
		a.Notes,
		a.UserLocalTime,
		a.UserZone,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return Appointment{}, err
	}
	return a, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Appointment, error) {
	a, err := scanAppointment(r.db.QueryRowContext(ctx, selectColumns+`WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepo) ListBookable(ctx context.Context, from time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	const where = `
WHERE status <> 'CANCELLED' AND is_auto_callback = false AND scheduled_at >= $1
ORDER BY scheduled_at
LIMIT $2
`
	return r.list(ctx, selectColumns+where, from, limit)
}

func (r *PostgresRepo) ListDueCallbacks(ctx context.Context, now time.Time) ([]Appointment, error) {
	const where = `
WHERE is_auto_callback = true AND call_triggered = false AND status = 'FOLLOWUP' AND scheduled_at <= $1
ORDER BY scheduled_at
`
	return r.list(ctx, selectColumns+where, now)
}

func (r *PostgresRepo) ListPendingCallbacks(ctx context.Context) ([]Appointment, error) {
	const where = `
WHERE is_auto_callback = true AND call_triggered = false AND status = 'FOLLOWUP'
ORDER BY scheduled_at
`
	return r.list(ctx, selectColumns+where)
}

func (r *PostgresRepo) LatestScheduledForLead(ctx context.Context, leadID string) (Appointment, bool, error) {
	const where = `
WHERE lead_id = $1 AND status <> 'CANCELLED' AND is_auto_callback = false
ORDER BY scheduled_at DESC
LIMIT 1
`
	a, err := scanAppointment(r.db.QueryRowContext(ctx, selectColumns+where, leadID))
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, false, nil
	}
	if err != nil {
		return Appointment{}, false, err
	}
	return a, true, nil
}

func (r *PostgresRepo) ClaimCallback(ctx context.Context, id string) (bool, error) {
	const q = `
UPDATE appointments
SET call_triggered = true, updated_at = $2
WHERE id = $1 AND call_triggered = false
`
	res, err := r.db.ExecContext(ctx, q, id, r.now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) AttachCallLog(ctx context.Context, ids []string, callLogID string) error {
	if len(ids) == 0 {
		return nil
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `UPDATE appointments SET call_log_id = $2, updated_at = $3 WHERE id = $1`
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, q, id, callLogID, r.now().UTC())
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s scanner) (Appointment, error) {
	var a Appointment
	var status string
	err := s.Scan(
		&a.ID,
		&a.LeadID,
		&a.CampaignID,
		&a.ScheduledAt,
		&status,
		&a.IsAutoCallback,
		&a.CallTriggered,
		&a.CallLogID,
		&a.Notes,
		&a.UserLocalTime,
		&a.UserZone,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	a.Status = Status(status)
	return a, err
}
