package orders

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
SELECT id, COALESCE(trade_no, ''), provider_ref, out_trade_no, client_id, payment_channel_id, channel,
       payment_channel_pay_way_id, pay_way, generation, amount, subject, body, detail, extra,
       buyer, seller, status, pay_at, expired_at, created_at, updated_at
FROM payment_orders`

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(
		&o.ID, &o.TradeNo, &o.ProviderRef, &o.OutTradeNo, &o.ClientID, &o.ChannelID, &o.Channel,
		&o.PayWayID, &o.PayWay, &o.Generation, &o.Amount, &o.Subject, &o.Body, &o.Detail, &o.Extra,
		&o.Buyer, &o.Seller, &o.Status, &o.PayAt, &o.ExpiredAt, &o.CreatedAt, &o.UpdatedAt,
	)
}

func (r *Repository) FindLatestActive(ctx context.Context, key Key) (*Order, error) {
	var o Order
	err := scanOrder(r.q.QueryRow(ctx, selectColumns+`
WHERE client_id = $1 AND out_trade_no = $2 AND channel = $3 AND pay_way = $4
  AND status NOT IN ('closed', 'canceled')
ORDER BY created_at DESC, id DESC
LIMIT 1`, key.ClientID, key.OutTradeNo, key.Channel, key.PayWay), &o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active order: %w", err)
	}
	return &o, nil
}

func (r *Repository) FindPaid(ctx context.Context, key Key) (*Order, error) {
	var o Order
	err := scanOrder(r.q.QueryRow(ctx, selectColumns+`
WHERE client_id = $1 AND out_trade_no = $2 AND channel = $3 AND pay_way = $4
  AND status = 'success'
ORDER BY id
LIMIT 1`, key.ClientID, key.OutTradeNo, key.Channel, key.PayWay), &o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find paid order: %w", err)
	}
	return &o, nil
}

func (r *Repository) NextGeneration(ctx context.Context, key Key) (int, error) {
	var next int
	if err := r.q.QueryRow(ctx, `
SELECT COALESCE(MAX(generation), 0) + 1
FROM payment_orders
WHERE client_id = $1 AND out_trade_no = $2 AND channel = $3 AND pay_way = $4`,
		key.ClientID, key.OutTradeNo, key.Channel, key.PayWay).Scan(&next); err != nil {
		return 0, fmt.Errorf("next order generation: %w", err)
	}
	return next, nil
}

// Create inserts a pending order. A concurrent insert of the same key and
// generation surfaces as ErrConflict.
func (r *Repository) Create(ctx context.Context, o *Order) error {
	if o.Status == "" {
		o.Status = StatusPending
	}
	err := r.q.QueryRow(ctx, `
INSERT INTO payment_orders (
  out_trade_no, client_id, payment_channel_id, channel, payment_channel_pay_way_id, pay_way,
  generation, amount, subject, body, detail, extra, buyer, seller, status, pay_at, expired_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
RETURNING id, created_at, updated_at`,
		o.OutTradeNo, o.ClientID, o.ChannelID, o.Channel, o.PayWayID, o.PayWay,
		o.Generation, o.Amount, o.Subject, o.Body, o.Detail, o.Extra, o.Buyer, o.Seller,
		o.Status, o.PayAt, o.ExpiredAt,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// SetTradeNo writes the trade number once; a second write is rejected.
func (r *Repository) SetTradeNo(ctx context.Context, id int64, tradeNo string) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE payment_orders SET trade_no = $2, updated_at = now()
WHERE id = $1 AND trade_no IS NULL`, id, tradeNo)
	if err != nil {
		return fmt.Errorf("set trade_no: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrTradeNoAssigned
	}
	return nil
}

func (r *Repository) SetProviderRef(ctx context.Context, id int64, ref string) error {
	cmd, err := r.q.Exec(ctx, `
UPDATE payment_orders SET provider_ref = $2, updated_at = now()
WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("set provider_ref: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = $1`, id)
}

func (r *Repository) GetByTradeNo(ctx context.Context, tradeNo string) (*Order, error) {
	return r.getOne(ctx, selectColumns+` WHERE trade_no = $1`, tradeNo)
}

func (r *Repository) GetByTradeNoForUpdate(ctx context.Context, tradeNo string) (*Order, error) {
	return r.getOne(ctx, selectColumns+` WHERE trade_no = $1 FOR UPDATE`, tradeNo)
}

func (r *Repository) getOne(ctx context.Context, query string, args ...any) (*Order, error) {
	var o Order
	if err := scanOrder(r.q.QueryRow(ctx, query, args...), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

func (r *Repository) ListByClient(ctx context.Context, clientID int64, status string, limit, offset int) ([]Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, `
SELECT id, COALESCE(trade_no, ''), provider_ref, out_trade_no, client_id, payment_channel_id, channel,
       payment_channel_pay_way_id, pay_way, generation, amount, subject, body, detail, extra,
       buyer, seller, status, pay_at, expired_at, created_at, updated_at,
       COUNT(*) OVER() AS total_count
FROM payment_orders
WHERE client_id = $1
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, clientID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		out   []Order
		total int
	)
	for rows.Next() {
		var o Order
		var t int
		if err := rows.Scan(
			&o.ID, &o.TradeNo, &o.ProviderRef, &o.OutTradeNo, &o.ClientID, &o.ChannelID, &o.Channel,
			&o.PayWayID, &o.PayWay, &o.Generation, &o.Amount, &o.Subject, &o.Body, &o.Detail, &o.Extra,
			&o.Buyer, &o.Seller, &o.Status, &o.PayAt, &o.ExpiredAt, &o.CreatedAt, &o.UpdatedAt,
			&t,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		if total == 0 {
			total = t
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id int64, from []Status, to Status) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}
	cmd, err := r.q.Exec(ctx, `
UPDATE payment_orders SET status = $2, updated_at = now()
WHERE id = $1 AND status = ANY($3)`, id, string(to), fromStrs)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}
