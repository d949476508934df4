package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"paygate/internal/domain/auditlog"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
)

// Memory is an in-process Transactor with the same uniqueness rules as the
// postgres schema. Transactions are serialized; a failed transaction leaves
// no trace.
type Memory struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

var _ Transactor = (*Memory)(nil)

type logKey struct {
	event      auditlog.Event
	loggerID   int64
	loggerType string
}

type memState struct {
	orders  map[int64]orders.Order
	refunds map[int64]refunds.Refund
	logs    map[logKey]auditlog.Entry

	nextOrderID  int64
	nextRefundID int64
	nextLogID    int64
}

func newMemState() *memState {
	return &memState{
		orders:  map[int64]orders.Order{},
		refunds: map[int64]refunds.Refund{},
		logs:    map[logKey]auditlog.Entry{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		orders:       make(map[int64]orders.Order, len(s.orders)),
		refunds:      make(map[int64]refunds.Refund, len(s.refunds)),
		logs:         make(map[logKey]auditlog.Entry, len(s.logs)),
		nextOrderID:  s.nextOrderID,
		nextRefundID: s.nextRefundID,
		nextLogID:    s.nextLogID,
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	for k, v := range s.logs {
		c.logs[k] = v
	}
	return c
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{state: newMemState(), now: now}
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	tx := &Tx{
		Orders:  &memOrders{s: work, now: m.now},
		Refunds: &memRefunds{s: work, now: m.now},
		Audit:   &memAudit{s: work, now: m.now},
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Orders returns a snapshot of every stored order, oldest first.
func (m *Memory) Orders() []orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]orders.Order, 0, len(m.state.orders))
	for _, o := range m.state.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) Refunds() []refunds.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]refunds.Refund, 0, len(m.state.refunds))
	for _, r := range m.state.refunds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) AuditEntries() []auditlog.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auditlog.Entry, 0, len(m.state.logs))
	for _, e := range m.state.logs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memOrders struct {
	s   *memState
	now func() time.Time
}

func (r *memOrders) FindLatestActive(_ context.Context, key orders.Key) (*orders.Order, error) {
	var latest *orders.Order
	for _, o := range r.s.orders {
		if o.Key() != key || !o.Status.Active() {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) ||
			(o.CreatedAt.Equal(latest.CreatedAt) && o.ID > latest.ID) {
			cp := o
			latest = &cp
		}
	}
	return latest, nil
}

func (r *memOrders) FindPaid(_ context.Context, key orders.Key) (*orders.Order, error) {
	var paid *orders.Order
	for _, o := range r.s.orders {
		if o.Key() != key || o.Status != orders.StatusSuccess {
			continue
		}
		if paid == nil || o.ID < paid.ID {
			cp := o
			paid = &cp
		}
	}
	return paid, nil
}

func (r *memOrders) NextGeneration(_ context.Context, key orders.Key) (int, error) {
	highest := 0
	for _, o := range r.s.orders {
		if o.Key() == key && o.Generation > highest {
			highest = o.Generation
		}
	}
	return highest + 1, nil
}

func (r *memOrders) Create(_ context.Context, o *orders.Order) error {
	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	for _, existing := range r.s.orders {
		if existing.Key() == o.Key() && existing.Generation == o.Generation {
			return orders.ErrConflict
		}
	}
	r.s.nextOrderID++
	now := r.now()
	o.ID = r.s.nextOrderID
	o.CreatedAt = now
	o.UpdatedAt = now
	r.s.orders[o.ID] = *o
	return nil
}

func (r *memOrders) SetTradeNo(_ context.Context, id int64, tradeNo string) error {
	o, ok := r.s.orders[id]
	if !ok || o.TradeNo != "" {
		return orders.ErrTradeNoAssigned
	}
	for _, other := range r.s.orders {
		if other.TradeNo == tradeNo {
			return orders.ErrConflict
		}
	}
	o.TradeNo = tradeNo
	o.UpdatedAt = r.now()
	r.s.orders[id] = o
	return nil
}

func (r *memOrders) SetProviderRef(_ context.Context, id int64, ref string) error {
	o, ok := r.s.orders[id]
	if !ok {
		return orders.ErrNotFound
	}
	o.ProviderRef = ref
	o.UpdatedAt = r.now()
	r.s.orders[id] = o
	return nil
}

func (r *memOrders) GetByID(_ context.Context, id int64) (*orders.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return &o, nil
}

func (r *memOrders) GetByTradeNo(_ context.Context, tradeNo string) (*orders.Order, error) {
	if tradeNo == "" {
		return nil, orders.ErrNotFound
	}
	for _, o := range r.s.orders {
		if o.TradeNo == tradeNo {
			cp := o
			return &cp, nil
		}
	}
	return nil, orders.ErrNotFound
}

// GetByTradeNoForUpdate needs no extra locking: memory transactions are
// already serialized.
func (r *memOrders) GetByTradeNoForUpdate(ctx context.Context, tradeNo string) (*orders.Order, error) {
	return r.GetByTradeNo(ctx, tradeNo)
}

func (r *memOrders) ListByClient(_ context.Context, clientID int64, status string, limit, offset int) ([]orders.Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var matched []orders.Order
	for _, o := range r.s.orders {
		if o.ClientID != clientID {
			continue
		}
		if status != "" && string(o.Status) != status {
			continue
		}
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memOrders) TransitionStatus(_ context.Context, id int64, from []orders.Status, to orders.Status) (bool, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			o.UpdatedAt = r.now()
			r.s.orders[id] = o
			return true, nil
		}
	}
	return false, nil
}

type memRefunds struct {
	s   *memState
	now func() time.Time
}

func (r *memRefunds) Create(_ context.Context, ref *refunds.Refund) error {
	if ref.Status == "" {
		ref.Status = refunds.StatusPending
	}
	if !ref.Status.Terminal() {
		for _, existing := range r.s.refunds {
			if existing.OrderID == ref.OrderID && !existing.Status.Terminal() {
				return refunds.ErrConflict
			}
		}
	}
	r.s.nextRefundID++
	now := r.now()
	ref.ID = r.s.nextRefundID
	ref.CreatedAt = now
	ref.UpdatedAt = now
	r.s.refunds[ref.ID] = *ref
	return nil
}

func (r *memRefunds) SetRefundNo(_ context.Context, id int64, refundNo string) error {
	ref, ok := r.s.refunds[id]
	if !ok || ref.RefundNo != "" {
		return refunds.ErrRefundNoAssigned
	}
	ref.RefundNo = refundNo
	ref.UpdatedAt = r.now()
	r.s.refunds[id] = ref
	return nil
}

func (r *memRefunds) GetByID(_ context.Context, id int64) (*refunds.Refund, error) {
	ref, ok := r.s.refunds[id]
	if !ok {
		return nil, refunds.ErrNotFound
	}
	return &ref, nil
}

func (r *memRefunds) GetByRefundNo(_ context.Context, refundNo string) (*refunds.Refund, error) {
	if refundNo == "" {
		return nil, refunds.ErrNotFound
	}
	for _, ref := range r.s.refunds {
		if ref.RefundNo == refundNo {
			cp := ref
			return &cp, nil
		}
	}
	return nil, refunds.ErrNotFound
}

func (r *memRefunds) ListByOrder(_ context.Context, orderID int64) ([]refunds.Refund, error) {
	var out []refunds.Refund
	for _, ref := range r.s.refunds {
		if ref.OrderID == orderID {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRefunds) TransitionStatus(_ context.Context, id int64, from []refunds.Status, to refunds.Status) (bool, error) {
	ref, ok := r.s.refunds[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if ref.Status == f {
			ref.Status = to
			ref.UpdatedAt = r.now()
			r.s.refunds[id] = ref
			return true, nil
		}
	}
	return false, nil
}

type memAudit struct {
	s   *memState
	now func() time.Time
}

func (a *memAudit) InsertIfAbsent(_ context.Context, e *auditlog.Entry) (bool, error) {
	k := logKey{event: e.Event, loggerID: e.LoggerID, loggerType: e.LoggerType}
	if _, exists := a.s.logs[k]; exists {
		return false, nil
	}
	a.s.nextLogID++
	e.ID = a.s.nextLogID
	e.CreatedAt = a.now()
	a.s.logs[k] = *e
	return true, nil
}

func (a *memAudit) Get(_ context.Context, event auditlog.Event, subject auditlog.Subject) (*auditlog.Entry, error) {
	e, ok := a.s.logs[logKey{event: event, loggerID: subject.ID, loggerType: subject.Type}]
	if !ok {
		return nil, auditlog.ErrNotFound
	}
	return &e, nil
}
