package refunds

import (
	"context"
	"errors"
	"fmt"

	"paygate/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const selectColumns = `
SELECT id, COALESCE(refund_no, ''), client_id, payment_channel_id, payment_order_id,
       trade_no, amount, reason, status, created_at, updated_at
FROM payment_refunds`

func scanRefund(row pgx.Row, r *Refund) error {
	return row.Scan(
		&r.ID, &r.RefundNo, &r.ClientID, &r.ChannelID, &r.OrderID,
		&r.TradeNo, &r.Amount, &r.Reason, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	)
}

// Create inserts a pending refund. The partial unique index on in-flight
// refunds turns a concurrent second refund into ErrConflict.
func (r *Repository) Create(ctx context.Context, ref *Refund) error {
	if ref.Status == "" {
		ref.Status = StatusPending
	}
	err := r.q.QueryRow(ctx, `
INSERT INTO payment_refunds (client_id, payment_channel_id, payment_order_id, trade_no, amount, reason, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at`,
		ref.ClientID, ref.ChannelID, ref.OrderID, ref.TradeNo, ref.Amount, ref.Reason, ref.Status,
	).Scan(&ref.ID, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}

func (r *Repository) SetRefundNo(ctx context.Context, id int64, refundNo string) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE payment_refunds SET refund_no = $2, updated_at = now()
WHERE id = $1 AND refund_no IS NULL`, id, refundNo)
	if err != nil {
		return fmt.Errorf("set refund_no: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrRefundNoAssigned
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Refund, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *Repository) GetByRefundNo(ctx context.Context, refundNo string) (*Refund, error) {
	return r.getOne(ctx, selectColumns+` WHERE refund_no = $1`, refundNo)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*Refund, error) {
	var ref Refund
	if err := scanRefund(r.q.QueryRow(ctx, query, args...), &ref); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get refund: %w", err)
	}
	return &ref, nil
}

func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]Refund, error) {
	rows, err := r.q.Query(ctx, selectColumns+`
WHERE payment_order_id = $1
ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var out []Refund
	for rows.Next() {
		var ref Refund
		if err := scanRefund(rows, &ref); err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id int64, from []Status, to Status) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}
	cmd, err := r.q.Exec(ctx, `
UPDATE payment_refunds SET status = $2, updated_at = now()
WHERE id = $1 AND status = ANY($3)`, id, string(to), fromStrs)
	if err != nil {
		return false, fmt.Errorf("update refund status: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}
