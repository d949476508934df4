package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"paygate/internal/domain/auditlog"
	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
	"paygate/internal/domain/storage"
	"paygate/internal/lock"
	"paygate/internal/payments"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const DefaultChannelTimeout = 10 * time.Second

// Service sequences order and refund requests in three steps: an intent
// transaction, the channel call outside any transaction, and a finalize
// transaction recording the outcome.
type Service struct {
	store     storage.Transactor
	channels  channels.Lookup
	adapters  *payments.Registry
	locker    lock.KeyLocker
	lifecycle *Lifecycle
	refunds   *RefundManager
	audit     *Auditor
	validate  *validator.Validate
	logger    *zap.SugaredLogger

	now            func() time.Time
	numbers        *orders.NumberFormatter
	orderExpiry    time.Duration
	channelTimeout time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNumberFormatter(f *orders.NumberFormatter) Option {
	return func(s *Service) { s.numbers = f }
}

func WithOrderExpiry(d time.Duration) Option {
	return func(s *Service) { s.orderExpiry = d }
}

func WithChannelTimeout(d time.Duration) Option {
	return func(s *Service) { s.channelTimeout = d }
}

// WithLocker serializes CreateOrder per merchant reference across instances.
func WithLocker(l lock.KeyLocker) Option {
	return func(s *Service) { s.locker = l }
}

func NewService(store storage.Transactor, lookup channels.Lookup, adapters *payments.Registry, logger *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{
		store:          store,
		channels:       lookup,
		adapters:       adapters,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		logger:         logger,
		now:            time.Now,
		orderExpiry:    DefaultOrderExpiry,
		channelTimeout: DefaultChannelTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lifecycle = NewLifecycle(s.numbers, s.now, s.orderExpiry)
	s.refunds = NewRefundManager(s.numbers, s.now)
	s.audit = NewAuditor(logger)
	return s
}

func lockKey(k orders.Key) string {
	return fmt.Sprintf("order:%d:%s:%s:%s", k.ClientID, k.Channel, k.PayWay, k.OutTradeNo)
}

// CreateOrder issues or replays an order for the client's merchant reference
// and dispatches it to the channel at most once.
func (s *Service) CreateOrder(ctx context.Context, clientID int64, req CreateOrderRequest) (*OrderResult, error) {
	if clientID <= 0 {
		return nil, validationError(errors.New("client id is required"))
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	adapter, err := s.adapters.Resolve(req.PayWay)
	if err != nil {
		return nil, err
	}
	cfg, err := s.channels.Lookup(ctx, clientID, req.Channel, req.PayWay)
	if err != nil {
		return nil, err
	}

	key := orders.Key{ClientID: clientID, OutTradeNo: req.OutTradeNo, Channel: req.Channel, PayWay: req.PayWay}
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, lockKey(key))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageConflict, err)
		}
		defer unlock()
	}

	order, created, err := s.obtainOrder(ctx, clientID, cfg, req)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Infow("order replayed", "trade_no", order.TradeNo, "out_trade_no", order.OutTradeNo, "status", order.Status)
		return &OrderResult{Order: *order, Payment: s.storedPayment(ctx, order.ID), Replayed: true}, nil
	}

	params := payments.Params(req.Params)
	callCtx, cancel := context.WithTimeout(ctx, s.channelTimeout)
	resp, payErr := adapter.Pay(callCtx, *order, cfg, params)
	cancel()

	var adapterErr *AdapterError
	if payErr != nil {
		adapterErr = newAdapterError("pay", order.Channel, order.PayWay, payErr)
	}

	// The channel call already happened; record it even if the caller left.
	finalizeCtx := context.WithoutCancel(ctx)
	err = s.store.WithTx(finalizeCtx, func(tx *storage.Tx) error {
		s.audit.LogExternal(finalizeCtx, tx.Audit, auditlog.EventExternalOrderRequest, orderSubject(order.ID), params, externalView(resp, adapterErr))

		switch {
		case adapterErr == nil:
			if err := s.lifecycle.AdvanceToProcessing(finalizeCtx, tx.Orders, order); err != nil {
				return err
			}
			if resp.ProviderRef != "" {
				if err := tx.Orders.SetProviderRef(finalizeCtx, order.ID, resp.ProviderRef); err != nil {
					return err
				}
				order.ProviderRef = resp.ProviderRef
			}
			if resp.Status == payments.StatusSucceeded {
				return s.lifecycle.Settle(finalizeCtx, tx.Orders, order, orders.StatusSuccess)
			}
			return nil
		case adapterErr.Ambiguous:
			return s.lifecycle.MarkUnknown(finalizeCtx, tx.Orders, order)
		default:
			return s.lifecycle.Close(finalizeCtx, tx.Orders, order)
		}
	})
	if err != nil {
		s.logger.Errorw("order finalize failed", "trade_no", order.TradeNo, "err", err)
		return nil, err
	}

	if adapterErr != nil {
		s.logger.Warnw("order dispatch failed",
			"trade_no", order.TradeNo,
			"out_trade_no", order.OutTradeNo,
			"channel", order.Channel,
			"pay_way", order.PayWay,
			"ambiguous", adapterErr.Ambiguous,
			"status", order.Status,
			"err", payErr,
		)
		return nil, adapterErr
	}

	s.logger.Infow("order dispatched", "trade_no", order.TradeNo, "out_trade_no", order.OutTradeNo, "channel", order.Channel, "pay_way", order.PayWay)
	return &OrderResult{Order: *order, Payment: &resp}, nil
}

// obtainOrder runs the intent transaction. A uniqueness conflict means a
// concurrent request created the order first; the lookup is repeated once.
func (s *Service) obtainOrder(ctx context.Context, clientID int64, cfg channels.Config, req CreateOrderRequest) (*orders.Order, bool, error) {
	attempt := func() (order *orders.Order, created bool, err error) {
		err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
			o, fresh, err := s.lifecycle.ObtainOrder(ctx, tx.Orders, cfg, clientID, req)
			if err != nil {
				return err
			}
			if fresh {
				s.audit.LogInternal(ctx, tx.Audit, auditlog.EventInternalOrderRequest, orderSubject(o.ID), req)
			}
			order, created = o, fresh
			return nil
		})
		return order, created, err
	}

	order, created, err := attempt()
	if errors.Is(err, orders.ErrConflict) {
		s.logger.Infow("order key conflict, retrying lookup", "out_trade_no", req.OutTradeNo, "channel", req.Channel, "pay_way", req.PayWay)
		order, created, err = attempt()
		if errors.Is(err, orders.ErrConflict) {
			return nil, false, fmt.Errorf("%w: %v", ErrStorageConflict, err)
		}
	}
	return order, created, err
}

// storedPayment reads back what the channel returned for an order.
func (s *Service) storedPayment(ctx context.Context, orderID int64) *payments.Response {
	var entry *auditlog.Entry
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		e, err := tx.Audit.Get(ctx, auditlog.EventExternalOrderRequest, orderSubject(orderID))
		entry = e
		return err
	})
	if err != nil {
		if !errors.Is(err, auditlog.ErrNotFound) {
			s.logger.Warnw("stored payment lookup failed", "order_id", orderID, "err", err)
		}
		return nil
	}

	var payload struct {
		Response externalResult `json:"response"`
	}
	if err := json.Unmarshal(entry.Context, &payload); err != nil || payload.Response.Response == nil {
		return nil
	}
	v := payload.Response.Response
	return &payments.Response{ProviderRef: v.ProviderRef, Status: payments.Status(v.Status), Data: v.Data, Raw: v.Raw}
}

// CreateRefund refunds a paid order through the channel it was paid with.
func (s *Service) CreateRefund(ctx context.Context, clientID int64, req CreateRefundRequest) (*RefundResult, error) {
	if clientID <= 0 {
		return nil, validationError(errors.New("client id is required"))
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	var (
		order   *orders.Order
		ref     *refunds.Refund
		adapter payments.Adapter
		cfg     channels.Config
	)
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		o, r, err := s.refunds.RequestRefund(ctx, tx, clientID, req)
		if err != nil {
			return err
		}
		// The order's own channel and pay-way pick the adapter.
		a, err := s.adapters.Resolve(o.PayWay)
		if err != nil {
			return err
		}
		c, err := s.channels.Lookup(ctx, o.ClientID, o.Channel, o.PayWay)
		if err != nil {
			return err
		}
		s.audit.LogInternal(ctx, tx.Audit, auditlog.EventInternalRefundRequest, refundSubject(r.ID), req)
		order, ref, adapter, cfg = o, r, a, c
		return nil
	})
	if err != nil {
		if errors.Is(err, refunds.ErrConflict) {
			return nil, ErrRefundInProgress
		}
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.channelTimeout)
	resp, refundErr := adapter.Refund(callCtx, *order, *ref, cfg)
	cancel()

	var adapterErr *AdapterError
	if refundErr != nil {
		adapterErr = newAdapterError("refund", order.Channel, order.PayWay, refundErr)
	}

	finalizeCtx := context.WithoutCancel(ctx)
	request := map[string]any{"refund_no": ref.RefundNo, "trade_no": order.TradeNo, "amount": ref.Amount, "reason": ref.Reason}
	err = s.store.WithTx(finalizeCtx, func(tx *storage.Tx) error {
		s.audit.LogExternal(finalizeCtx, tx.Audit, auditlog.EventExternalRefundRequest, refundSubject(ref.ID), request, externalView(resp, adapterErr))

		switch {
		case adapterErr == nil && resp.Status == payments.StatusSucceeded:
			return s.refunds.transition(finalizeCtx, tx.Refunds, ref, refunds.StatusSuccess)
		case adapterErr == nil:
			return s.refunds.transition(finalizeCtx, tx.Refunds, ref, refunds.StatusProcessing)
		case adapterErr.Ambiguous:
			return s.refunds.transition(finalizeCtx, tx.Refunds, ref, refunds.StatusUnknown)
		default:
			return s.refunds.transition(finalizeCtx, tx.Refunds, ref, refunds.StatusFailed)
		}
	})
	if err != nil {
		s.logger.Errorw("refund finalize failed", "refund_no", ref.RefundNo, "err", err)
		return nil, err
	}

	if adapterErr != nil {
		s.logger.Warnw("refund dispatch failed",
			"refund_no", ref.RefundNo,
			"trade_no", order.TradeNo,
			"channel", order.Channel,
			"ambiguous", adapterErr.Ambiguous,
			"status", ref.Status,
			"err", refundErr,
		)
		return nil, adapterErr
	}

	s.logger.Infow("refund dispatched", "refund_no", ref.RefundNo, "trade_no", order.TradeNo, "amount", ref.Amount)
	return &RefundResult{Refund: *ref, Order: *order, Payment: &resp}, nil
}

func externalView(resp payments.Response, adapterErr *AdapterError) externalResult {
	if adapterErr != nil {
		return externalResult{Error: &errorView{Message: adapterErr.Err.Error(), Ambiguous: adapterErr.Ambiguous}}
	}
	return externalResult{Response: &responseView{
		ProviderRef: resp.ProviderRef,
		Status:      string(resp.Status),
		Data:        resp.Data,
		Raw:         resp.Raw,
	}}
}
