package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Feustey/Dazlng-sub004/internal/domain"
)

// PgOTPCodeRepository implementa OTPCodeRepository usando pgxpool.
type PgOTPCodeRepository struct {
	pool *pgxpool.Pool
}

func NewPgOTPCodeRepository(pool *pgxpool.Pool) *PgOTPCodeRepository {
	return &PgOTPCodeRepository{pool: pool}
}

func (r *PgOTPCodeRepository) Create(ctx context.Context, code domain.OTPCode) error {
	const (
		lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
		supersede = `
			UPDATE otp_codes SET used = TRUE
			WHERE email = $1 AND used = FALSE
		`
		insert = `
			INSERT INTO otp_codes (id, email, code, expires_at, used, attempts, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
	)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializa emisiones concurrentes del mismo email.
	if _, err := tx.Exec(ctx, lockQuery, code.Email); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, supersede, code.Email); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insert,
		code.ID,
		code.Email,
		code.Code,
		code.ExpiresAt,
		code.Used,
		code.Attempts,
		code.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PgOTPCodeRepository) InvalidateActive(ctx context.Context, email string) (int64, error) {
	const query = `
		UPDATE otp_codes SET used = TRUE
		WHERE email = $1 AND used = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, email)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgOTPCodeRepository) FindLatestActive(ctx context.Context, email, code string) (domain.OTPCode, error) {
	const query = `
		SELECT id, email, code, expires_at, used, attempts, created_at
		FROM otp_codes
		WHERE email = $1 AND code = $2 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	var c domain.OTPCode
	err := r.pool.QueryRow(ctx, query, email, code).Scan(
		&c.ID,
		&c.Email,
		&c.Code,
		&c.ExpiresAt,
		&c.Used,
		&c.Attempts,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OTPCode{}, ErrNotFound
	}
	return c, err
}

func (r *PgOTPCodeRepository) Consume(ctx context.Context, id string) (bool, error) {
	const query = `
		UPDATE otp_codes SET used = TRUE, attempts = attempts + 1
		WHERE id = $1 AND used = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgOTPCodeRepository) Expire(ctx context.Context, id string) error {
	const query = `UPDATE otp_codes SET used = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgOTPCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM otp_codes WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
