package gateway

import (
	"context"
	"errors"
	"time"

	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
	"paygate/internal/domain/storage"
)

const defaultRefundReason = "用户退货"

// RefundManager enforces refund eligibility and issues refund records.
type RefundManager struct {
	numbers *orders.NumberFormatter
	now     func() time.Time
}

func NewRefundManager(numbers *orders.NumberFormatter, now func() time.Time) *RefundManager {
	if numbers == nil {
		numbers = orders.ShanghaiFormatter()
	}
	if now == nil {
		now = time.Now
	}
	return &RefundManager{numbers: numbers, now: now}
}

// RequestRefund locks the order, checks it can be refunded and creates a
// pending refund with its own refund number.
func (m *RefundManager) RequestRefund(ctx context.Context, tx *storage.Tx, clientID int64, req CreateRefundRequest) (*orders.Order, *refunds.Refund, error) {
	order, err := tx.Orders.GetByTradeNoForUpdate(ctx, req.TradeNo)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, nil, ErrOrderNotFound
		}
		return nil, nil, err
	}
	if order.ClientID != clientID {
		return nil, nil, ErrOrderNotFound
	}
	if order.Status != orders.StatusSuccess {
		return nil, nil, ErrOrderNotPaid
	}

	existing, err := tx.Refunds.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range existing {
		if r.Status == refunds.StatusSuccess {
			return nil, nil, ErrRefundAlreadyComplete
		}
	}
	for _, r := range existing {
		if !r.Status.Terminal() {
			return nil, nil, ErrRefundInProgress
		}
	}

	amount := order.Amount
	if req.Amount != nil {
		if *req.Amount > order.Amount {
			return nil, nil, ErrRefundAmountExceeded
		}
		amount = *req.Amount
	}
	reason := req.Reason
	if reason == "" {
		reason = defaultRefundReason
	}

	ref := &refunds.Refund{
		ClientID:  order.ClientID,
		ChannelID: order.ChannelID,
		OrderID:   order.ID,
		TradeNo:   order.TradeNo,
		Amount:    amount,
		Reason:    reason,
		Status:    refunds.StatusPending,
	}
	if err := tx.Refunds.Create(ctx, ref); err != nil {
		if errors.Is(err, refunds.ErrConflict) {
			return nil, nil, ErrRefundInProgress
		}
		return nil, nil, err
	}

	refundNo := m.numbers.Format(m.now(), ref.ID)
	if err := tx.Refunds.SetRefundNo(ctx, ref.ID, refundNo); err != nil {
		return nil, nil, err
	}
	ref.RefundNo = refundNo
	return order, ref, nil
}

func (m *RefundManager) transition(ctx context.Context, store refunds.Store, ref *refunds.Refund, to refunds.Status) error {
	var from []refunds.Status
	for _, s := range []refunds.Status{refunds.StatusPending, refunds.StatusProcessing, refunds.StatusUnknown} {
		if refunds.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		return ErrInvalidTransition
	}
	ok, err := store.TransitionStatus(ctx, ref.ID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	ref.Status = to
	return nil
}
