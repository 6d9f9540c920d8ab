package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
)

const trackingColumns = `email, first_seen_at, last_seen_at, total_logins, conversion_status, marketing_consent, source, notes`

// PgEmailTrackingRepository implementa EmailTrackingRepository usando pgxpool.
type PgEmailTrackingRepository struct {
	pool *pgxpool.Pool
}

func NewPgEmailTrackingRepository(pool *pgxpool.Pool) *PgEmailTrackingRepository {
	return &PgEmailTrackingRepository{pool: pool}
}

func (r *PgEmailTrackingRepository) GetByEmail(ctx context.Context, email string) (domain.EmailTracking, error) {
	query := `SELECT ` + trackingColumns + ` FROM email_tracking WHERE email = $1`
	return scanTracking(r.pool.QueryRow(ctx, query, email))
}

func (r *PgEmailTrackingRepository) Create(ctx context.Context, t domain.EmailTracking) (bool, error) {
	query := `
		INSERT INTO email_tracking (` + trackingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		t.Email,
		t.FirstSeenAt,
		t.LastSeenAt,
		t.TotalLogins,
		string(t.ConversionStatus),
		t.MarketingConsent,
		t.Source,
		t.Notes,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgEmailTrackingRepository) Touch(ctx context.Context, email string, seenAt time.Time) error {
	const query = `
		UPDATE email_tracking SET last_seen_at = GREATEST(last_seen_at, $2)
		WHERE email = $1
	`
	tag, err := r.pool.Exec(ctx, query, email, seenAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgEmailTrackingRepository) IncrementLogins(ctx context.Context, email string, seenAt time.Time) (domain.EmailTracking, error) {
	query := `
		UPDATE email_tracking
		SET total_logins = total_logins + 1,
			last_seen_at = GREATEST(last_seen_at, $2)
		WHERE email = $1
		RETURNING ` + trackingColumns
	return scanTracking(r.pool.QueryRow(ctx, query, email, seenAt))
}

func (r *PgEmailTrackingRepository) UpdateStatus(ctx context.Context, email string, from []domain.ConversionStatus, to domain.ConversionStatus, note string) (bool, error) {
	query := `
		UPDATE email_tracking
		SET conversion_status = $2,
			notes = CASE
				WHEN $3::text = '' THEN notes
				WHEN notes = '' THEN $3::text
				ELSE notes || E'\n' || $3::text
			END
		WHERE email = $1
	`
	args := []any{email, string(to), note}
	if len(from) > 0 {
		query += ` AND conversion_status = ANY($4)`
		args = append(args, statusStrings(from))
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanTracking(row pgx.Row) (domain.EmailTracking, error) {
	var (
		t      domain.EmailTracking
		status string
	)
	err := row.Scan(
		&t.Email,
		&t.FirstSeenAt,
		&t.LastSeenAt,
		&t.TotalLogins,
		&status,
		&t.MarketingConsent,
		&t.Source,
		&t.Notes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EmailTracking{}, ErrNotFound
	}
	if err != nil {
		return domain.EmailTracking{}, err
	}
	t.ConversionStatus, err = domain.ParseConversionStatus(status)
	if err != nil {
		return domain.EmailTracking{}, err
	}
	return t, nil
}
