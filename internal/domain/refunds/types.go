package refunds

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("refund not found")
	ErrConflict         = errors.New("refund already in flight for order")
	ErrRefundNoAssigned = errors.New("refund number already assigned")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusClosed     Status = "closed"
	StatusUnknown    Status = "unknown"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusClosed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusSuccess, StatusFailed, StatusUnknown},
	StatusProcessing: {StatusSuccess, StatusFailed, StatusClosed},
	StatusUnknown:    {StatusProcessing, StatusSuccess, StatusFailed, StatusClosed},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Refund struct {
	ID        int64     `json:"id"`
	RefundNo  string    `json:"refund_no"`
	ClientID  int64     `json:"client_id"`
	ChannelID int64     `json:"payment_channel_id"`
	OrderID   int64     `json:"payment_order_id"`
	TradeNo   string    `json:"trade_no"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store interface {
	Create(ctx context.Context, r *Refund) error
	SetRefundNo(ctx context.Context, id int64, refundNo string) error
	GetByID(ctx context.Context, id int64) (*Refund, error)
	GetByRefundNo(ctx context.Context, refundNo string) (*Refund, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Refund, error)
	TransitionStatus(ctx context.Context, id int64, from []Status, to Status) (bool, error)
}
