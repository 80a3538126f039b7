package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopsphere/shopsphere-api/internal/model"
)

const paymentSchema = `
CREATE TABLE IF NOT EXISTS payments (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	order_id          TEXT NOT NULL,
	session_id        TEXT NOT NULL UNIQUE,
	payment_intent_id TEXT,
	amount            NUMERIC(12,2) NOT NULL,
	currency          TEXT NOT NULL DEFAULT 'usd',
	status            TEXT NOT NULL DEFAULT 'pending',
	method            TEXT NOT NULL DEFAULT 'card',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS payments_order_id_idx ON payments (order_id);
CREATE INDEX IF NOT EXISTS payments_intent_idx ON payments (payment_intent_id);
CREATE TABLE IF NOT EXISTS payment_refunds (
	id         TEXT PRIMARY KEY,
	payment_id TEXT NOT NULL REFERENCES payments (id) ON DELETE CASCADE,
	refund_id  TEXT NOT NULL UNIQUE,
	amount     NUMERIC(12,2) NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// PaymentRepository is the audit trail of processor payments. Orders remain
// the source of truth for payment state.
type PaymentRepository interface {
	EnsureSchema(ctx context.Context) error
	Create(ctx context.Context, payment *model.Payment) error
	GetBySession(ctx context.Context, sessionID string) (*model.Payment, error)
	MarkSucceeded(ctx context.Context, sessionID, intentID string) (bool, error)
	// AddRefund records a refund against the payment holding intentID and
	// flips it to refunded. Replayed refund ids are ignored.
	AddRefund(ctx context.Context, intentID string, refund model.Refund) (*model.Payment, error)
}

type pgPaymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &pgPaymentRepo{pool: pool}
}

func (r *pgPaymentRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, paymentSchema); err != nil {
		return fmt.Errorf("ensure payment schema: %w", err)
	}
	return nil
}

func (r *pgPaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, user_id, order_id, session_id, amount, currency, status, method, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		 ON CONFLICT (session_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		p.ID, p.UserID, p.OrderID, p.SessionID, p.Amount, p.Currency, p.Status, p.Method,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *pgPaymentRepo) GetBySession(ctx context.Context, sessionID string) (*model.Payment, error) {
	p := &model.Payment{}
	var intent *string
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, order_id, session_id, payment_intent_id, amount, currency, status, method, created_at, updated_at
		 FROM payments WHERE session_id = $1`, sessionID,
	).Scan(&p.ID, &p.UserID, &p.OrderID, &p.SessionID, &intent, &p.Amount, &p.Currency, &p.Status, &p.Method, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if intent != nil {
		p.PaymentIntentID = *intent
	}

	refunds, err := r.refunds(ctx, r.pool, p.ID)
	if err != nil {
		return nil, err
	}
	p.Refunds = refunds
	return p, nil
}

func (r *pgPaymentRepo) MarkSucceeded(ctx context.Context, sessionID, intentID string) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE payments SET status = $2, payment_intent_id = $3, updated_at = NOW()
		 WHERE session_id = $1`,
		sessionID, model.PaymentStatusSucceeded, intentID,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment succeeded: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *pgPaymentRepo) AddRefund(ctx context.Context, intentID string, refund model.Refund) (*model.Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p := &model.Payment{PaymentIntentID: intentID}
	err = tx.QueryRow(ctx,
		`SELECT id, user_id, order_id, session_id, amount, currency, status, method, created_at
		 FROM payments WHERE payment_intent_id = $1 FOR UPDATE`, intentID,
	).Scan(&p.ID, &p.UserID, &p.OrderID, &p.SessionID, &p.Amount, &p.Currency, &p.Status, &p.Method, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock payment: %w", err)
	}

	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO payment_refunds (id, payment_id, refund_id, amount, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (refund_id) DO NOTHING`,
		uuid.NewString(), p.ID, refund.RefundID, refund.Amount, refund.Reason, refund.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert refund: %w", err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		p.ID, model.PaymentStatusRefunded,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("mark payment refunded: %w", err)
	}
	p.Status = model.PaymentStatusRefunded

	if p.Refunds, err = r.refunds(ctx, tx, p.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return p, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *pgPaymentRepo) refunds(ctx context.Context, q querier, paymentID string) ([]model.Refund, error) {
	rows, err := q.Query(ctx,
		`SELECT refund_id, amount, reason, created_at FROM payment_refunds
		 WHERE payment_id = $1 ORDER BY created_at`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("get refunds: %w", err)
	}
	defer rows.Close()

	var refunds []model.Refund
	for rows.Next() {
		var rf model.Refund
		if err := rows.Scan(&rf.RefundID, &rf.Amount, &rf.Reason, &rf.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		refunds = append(refunds, rf)
	}
	return refunds, rows.Err()
}
