package actionstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fixstream/fixstream/internal/models"
)

// PGDurable persists action records into Postgres.
type PGDurable struct {
	db *sql.DB
}

// NewPGDurable constructs a Postgres-backed durable store.
func NewPGDurable(db *sql.DB) *PGDurable {
	return &PGDurable{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGDurable) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGDurable) Insert(ctx context.Context, rec models.ActionRecord) error {
	q := `
		INSERT INTO actions
		  (action_id, created_at, stage, source_document,
		   baseline_name, baseline_site, baseline_fixlet,
		   group_name, group_id, group_site, group_type,
		   completion_offset, pre_notify, notify_ready, post_notify_sent, triggered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (action_id) DO UPDATE SET post_notify_sent = EXCLUDED.post_notify_sent
	`
	_, err := p.db.ExecContext(ctx, q,
		rec.ActionID,
		rec.CreatedAt,
		rec.Stage,
		rec.SourceDocument,
		rec.BaselineName,
		rec.BaselineSite,
		rec.BaselineFixlet,
		rec.GroupName,
		rec.GroupID,
		rec.GroupSite,
		rec.GroupType,
		rec.CompletionOff,
		rec.PreNotify,
		rec.NotifyReady,
		rec.PostNotifySent,
		rec.TriggeredBy,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (p *PGDurable) MarkNotified(ctx context.Context, actionID string) error {
	q := `UPDATE actions SET post_notify_sent = true WHERE action_id = $1`
	res, err := p.db.ExecContext(ctx, q, actionID)
	if err != nil {
		return fmt.Errorf("finalize action: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGDurable) LoadPending(ctx context.Context) ([]models.ActionRecord, error) {
	q := `
		SELECT action_id, created_at, stage, source_document,
		       baseline_name, baseline_site, baseline_fixlet,
		       group_name, group_id, group_site, group_type,
		       completion_offset, pre_notify, notify_ready, post_notify_sent, triggered_by
		FROM actions
		WHERE post_notify_sent = false
		ORDER BY created_at
	`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query pending actions: %w", err)
	}
	defer rows.Close()

	var out []models.ActionRecord
	for rows.Next() {
		var rec models.ActionRecord
		if err := rows.Scan(
			&rec.ActionID,
			&rec.CreatedAt,
			&rec.Stage,
			&rec.SourceDocument,
			&rec.BaselineName,
			&rec.BaselineSite,
			&rec.BaselineFixlet,
			&rec.GroupName,
			&rec.GroupID,
			&rec.GroupSite,
			&rec.GroupType,
			&rec.CompletionOff,
			&rec.PreNotify,
			&rec.NotifyReady,
			&rec.PostNotifySent,
			&rec.TriggeredBy,
		); err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteNotifiedBefore removes finalized rows whose creation time is older
// than cutoff. Unfinalized rows are never touched regardless of age.
func (p *PGDurable) DeleteNotifiedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := `DELETE FROM actions WHERE post_notify_sent = true AND created_at < $1`
	res, err := p.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune finalized actions: %w", err)
	}
	return res.RowsAffected()
}
