package orders

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrConflict          = errors.New("order already exists for key")
	ErrTradeNoAssigned   = errors.New("trade number already assigned")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusClosed     Status = "closed"
	StatusCanceled   Status = "canceled"
	// StatusUnknown marks an order whose dispatch outcome at the channel is
	// ambiguous (timeout, transport failure). Reconciled by the callback path.
	StatusUnknown Status = "unknown"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusClosed, StatusCanceled, StatusUnknown:
		return true
	}
	return false
}

// Active orders block a new order for the same key until they expire.
func (s Status) Active() bool {
	return s != StatusClosed && s != StatusCanceled
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusUnknown, StatusClosed, StatusCanceled},
	StatusProcessing: {StatusSuccess, StatusClosed, StatusCanceled},
	StatusUnknown:    {StatusProcessing, StatusSuccess, StatusClosed, StatusCanceled},
	StatusSuccess:    {StatusCanceled},
	StatusClosed:     {StatusCanceled},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Key identifies the merchant reference an order is issued for.
type Key struct {
	ClientID   int64
	OutTradeNo string
	Channel    string
	PayWay     string
}

type Order struct {
	ID          int64     `json:"id"`
	TradeNo     string    `json:"trade_no"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	OutTradeNo  string    `json:"out_trade_no"`
	ClientID    int64     `json:"client_id"`
	ChannelID   int64     `json:"payment_channel_id"`
	Channel     string    `json:"channel"`
	PayWayID    int64     `json:"payment_channel_pay_way_id"`
	PayWay      string    `json:"pay_way"`
	Generation  int       `json:"-"`
	Amount      int64     `json:"amount"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Detail      string    `json:"detail"`
	Extra       string    `json:"extra"`
	Buyer       string    `json:"buyer"`
	Seller      string    `json:"seller"`
	Status      Status    `json:"status"`
	PayAt       time.Time `json:"pay_at"`
	ExpiredAt   time.Time `json:"expired_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (o *Order) Key() Key {
	return Key{ClientID: o.ClientID, OutTradeNo: o.OutTradeNo, Channel: o.Channel, PayWay: o.PayWay}
}

func (o *Order) Expired(now time.Time) bool {
	return !now.Before(o.ExpiredAt)
}

type Store interface {
	// FindLatestActive returns the newest non-closed, non-canceled order for
	// key, or nil when there is none.
	FindLatestActive(ctx context.Context, key Key) (*Order, error)
	// FindPaid returns any successful order for key across all generations,
	// or nil when none has been paid.
	FindPaid(ctx context.Context, key Key) (*Order, error)
	NextGeneration(ctx context.Context, key Key) (int, error)
	Create(ctx context.Context, o *Order) error
	SetTradeNo(ctx context.Context, id int64, tradeNo string) error
	SetProviderRef(ctx context.Context, id int64, ref string) error

	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByTradeNo(ctx context.Context, tradeNo string) (*Order, error)
	// GetByTradeNoForUpdate also row-locks the order for the rest of the tx.
	GetByTradeNoForUpdate(ctx context.Context, tradeNo string) (*Order, error)
	ListByClient(ctx context.Context, clientID int64, status string, limit, offset int) ([]Order, int, error)

	// TransitionStatus moves id to `to` only if its current status is one of
	// from; it reports whether a row changed.
	TransitionStatus(ctx context.Context, id int64, from []Status, to Status) (bool, error)
}
