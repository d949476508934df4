package gateway

import (
	"context"
	"fmt"

	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
	"paygate/internal/domain/storage"
)

func (s *Service) GetOrder(ctx context.Context, clientID int64, tradeNo string) (*OrderView, error) {
	var view *OrderView
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		o, err := tx.Orders.GetByTradeNo(ctx, tradeNo)
		if err != nil {
			return mapOrderErr(err)
		}
		if o.ClientID != clientID {
			return ErrOrderNotFound
		}
		rs, err := tx.Refunds.ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if rs == nil {
			rs = []refunds.Refund{}
		}
		view = &OrderView{Order: *o, Refunds: rs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *Service) ListOrders(ctx context.Context, clientID int64, status string, limit, offset int) ([]orders.Order, int, error) {
	if status != "" && !orders.Status(status).Valid() {
		return nil, 0, validationError(fmt.Errorf("unknown status %q", status))
	}
	var (
		out   []orders.Order
		total int
	)
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		out, total, err = tx.Orders.ListByClient(ctx, clientID, status, limit, offset)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Service) GetRefund(ctx context.Context, clientID int64, refundNo string) (*refunds.Refund, error) {
	var out *refunds.Refund
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		r, err := tx.Refunds.GetByRefundNo(ctx, refundNo)
		if err != nil {
			return mapRefundErr(err)
		}
		if r.ClientID != clientID {
			return ErrRefundNotFound
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
