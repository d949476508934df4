package gateway

import (
	"context"
	"errors"

	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
	"paygate/internal/domain/storage"
)

// MarkOrderResult applies a channel's final verdict (success or closed) to a
// processing or unknown order. Used by the callback and operator paths.
func (s *Service) MarkOrderResult(ctx context.Context, tradeNo string, to orders.Status) (*orders.Order, error) {
	var out *orders.Order
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		o, err := tx.Orders.GetByTradeNoForUpdate(ctx, tradeNo)
		if err != nil {
			return mapOrderErr(err)
		}
		if err := s.lifecycle.Settle(ctx, tx.Orders, o, to); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("order result recorded", "trade_no", tradeNo, "status", to)
	return out, nil
}

func (s *Service) CancelOrder(ctx context.Context, tradeNo string) (*orders.Order, error) {
	var out *orders.Order
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		o, err := tx.Orders.GetByTradeNoForUpdate(ctx, tradeNo)
		if err != nil {
			return mapOrderErr(err)
		}
		if err := s.lifecycle.Cancel(ctx, tx.Orders, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("order canceled", "trade_no", tradeNo)
	return out, nil
}

// MarkRefundResult applies a channel's final verdict to a refund still in
// flight.
func (s *Service) MarkRefundResult(ctx context.Context, refundNo string, to refunds.Status) (*refunds.Refund, error) {
	if !to.Terminal() {
		return nil, ErrInvalidTransition
	}
	var out *refunds.Refund
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		r, err := tx.Refunds.GetByRefundNo(ctx, refundNo)
		if err != nil {
			return mapRefundErr(err)
		}
		if err := s.refunds.transition(ctx, tx.Refunds, r, to); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("refund result recorded", "refund_no", refundNo, "status", to)
	return out, nil
}

func mapOrderErr(err error) error {
	if errors.Is(err, orders.ErrNotFound) {
		return ErrOrderNotFound
	}
	return err
}

func mapRefundErr(err error) error {
	if errors.Is(err, refunds.ErrNotFound) {
		return ErrRefundNotFound
	}
	return err
}
