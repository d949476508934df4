package gateway

import (
	"context"
	"time"

	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
)

const DefaultOrderExpiry = 2 * time.Hour

// Lifecycle owns order creation, reuse and status transitions.
type Lifecycle struct {
	numbers *orders.NumberFormatter
	now     func() time.Time
	expiry  time.Duration
}

func NewLifecycle(numbers *orders.NumberFormatter, now func() time.Time, expiry time.Duration) *Lifecycle {
	if numbers == nil {
		numbers = orders.ShanghaiFormatter()
	}
	if now == nil {
		now = time.Now
	}
	if expiry <= 0 {
		expiry = DefaultOrderExpiry
	}
	return &Lifecycle{numbers: numbers, now: now, expiry: expiry}
}

// ObtainOrder returns the live order for the request's key or creates a new
// one. created is false for an unexpired existing order, which must not be
// dispatched again. Expired orders are left untouched and superseded by a
// new row with its own trade number, except unknown ones: those keep being
// replayed until reconciled. A success on any generation of the key makes
// the request fail with ErrAlreadyPaid.
func (l *Lifecycle) ObtainOrder(ctx context.Context, store orders.Store, cfg channels.Config, clientID int64, req CreateOrderRequest) (order *orders.Order, created bool, err error) {
	key := orders.Key{ClientID: clientID, OutTradeNo: req.OutTradeNo, Channel: req.Channel, PayWay: req.PayWay}

	paid, err := store.FindPaid(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if paid != nil {
		return nil, false, ErrAlreadyPaid
	}

	existing, err := store.FindLatestActive(ctx, key)
	if err != nil {
		return nil, false, err
	}
	now := l.now()
	if existing != nil {
		if existing.Status == orders.StatusUnknown || !existing.Expired(now) {
			return existing, false, nil
		}
	}

	gen, err := store.NextGeneration(ctx, key)
	if err != nil {
		return nil, false, err
	}

	seller := req.Seller
	if seller == "" {
		seller = cfg.MerchantID
	}
	o := &orders.Order{
		OutTradeNo: req.OutTradeNo,
		ClientID:   clientID,
		ChannelID:  cfg.ChannelID,
		Channel:    req.Channel,
		PayWayID:   cfg.PayWayID,
		PayWay:     req.PayWay,
		Generation: gen,
		Amount:     req.Amount,
		Subject:    req.Subject,
		Body:       req.Body,
		Detail:     req.Detail,
		Extra:      req.Extra,
		Buyer:      req.Buyer,
		Seller:     seller,
		Status:     orders.StatusPending,
		PayAt:      now,
		ExpiredAt:  now.Add(l.expiry),
	}
	if err := store.Create(ctx, o); err != nil {
		return nil, false, err
	}

	tradeNo := l.numbers.Format(now, o.ID)
	if err := store.SetTradeNo(ctx, o.ID, tradeNo); err != nil {
		return nil, false, err
	}
	o.TradeNo = tradeNo
	return o, true, nil
}

// AdvanceToProcessing records a successful dispatch. Only pending orders
// may advance.
func (l *Lifecycle) AdvanceToProcessing(ctx context.Context, store orders.Store, order *orders.Order) error {
	return l.transition(ctx, store, order, []orders.Status{orders.StatusPending}, orders.StatusProcessing)
}

// MarkUnknown parks a pending order whose dispatch outcome is ambiguous.
func (l *Lifecycle) MarkUnknown(ctx context.Context, store orders.Store, order *orders.Order) error {
	return l.transition(ctx, store, order, []orders.Status{orders.StatusPending}, orders.StatusUnknown)
}

// Close ends a pending order the channel definitely rejected.
func (l *Lifecycle) Close(ctx context.Context, store orders.Store, order *orders.Order) error {
	return l.transition(ctx, store, order, []orders.Status{orders.StatusPending}, orders.StatusClosed)
}

// Settle applies a final channel result to a processing or unknown order.
func (l *Lifecycle) Settle(ctx context.Context, store orders.Store, order *orders.Order, to orders.Status) error {
	if to != orders.StatusSuccess && to != orders.StatusClosed {
		return ErrInvalidTransition
	}
	return l.transition(ctx, store, order, []orders.Status{orders.StatusProcessing, orders.StatusUnknown}, to)
}

// Cancel drives any order that allows it to canceled.
func (l *Lifecycle) Cancel(ctx context.Context, store orders.Store, order *orders.Order) error {
	var from []orders.Status
	for _, s := range []orders.Status{
		orders.StatusPending, orders.StatusProcessing, orders.StatusUnknown,
		orders.StatusSuccess, orders.StatusClosed,
	} {
		if orders.CanTransition(s, orders.StatusCanceled) {
			from = append(from, s)
		}
	}
	return l.transition(ctx, store, order, from, orders.StatusCanceled)
}

func (l *Lifecycle) transition(ctx context.Context, store orders.Store, order *orders.Order, from []orders.Status, to orders.Status) error {
	ok, err := store.TransitionStatus(ctx, order.ID, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	order.Status = to
	return nil
}
