package leads

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the leads and campaigns tables from
// migrations/001_init.sql.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const leadColumns = `
SELECT id, campaign_id, name, phone, COALESCE(email, ''), status, last_called_at, created_at
FROM leads
`

func (r *PostgresRepo) Get(ctx context.Context, id string) (Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx, leadColumns+`WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

func (r *PostgresRepo) ListPending(ctx context.Context, campaignID string) ([]Lead, error) {
	return r.list(ctx, leadColumns+`WHERE campaign_id = $1 AND status = 'PENDING' ORDER BY created_at, id`, campaignID)
}

func (r *PostgresRepo) ListByCampaign(ctx context.Context, campaignID string) ([]Lead, error) {
	return r.list(ctx, leadColumns+`WHERE campaign_id = $1 ORDER BY created_at, id`, campaignID)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Lead, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, status LeadStatus, at time.Time) error {
	const q = `UPDATE leads SET status = $2, last_called_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, string(status), at.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) GetCampaign(ctx context.Context, id string) (Campaign, error) {
	const q = `SELECT id, name, knowledge_ref, status, created_at FROM campaigns WHERE id = $1`
	var c Campaign
	var status string
	err := r.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Name, &c.KnowledgeRef, &status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	c.Status = CampaignStatus(status)
	return c, err
}

func (r *PostgresRepo) SetCampaignStatus(ctx context.Context, id string, status CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(s scanner) (Lead, error) {
	var l Lead
	var status string
	var called sql.NullTime
	err := s.Scan(&l.ID, &l.CampaignID, &l.Name, &l.Phone, &l.Email, &status, &called, &l.CreatedAt)
	l.Status = LeadStatus(status)
	if called.Valid {
		t := called.Time
		l.LastCalledAt = &t
	}
	return l, err
}
