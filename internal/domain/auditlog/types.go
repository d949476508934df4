package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("audit log entry not found")

type Event int

const (
	EventInternalOrderRequest  Event = 1
	EventExternalOrderRequest  Event = 2
	EventInternalRefundRequest Event = 3
	EventExternalRefundRequest Event = 4
)

func (e Event) String() string {
	switch e {
	case EventInternalOrderRequest:
		return "internal_order_request"
	case EventExternalOrderRequest:
		return "external_order_request"
	case EventInternalRefundRequest:
		return "internal_refund_request"
	case EventExternalRefundRequest:
		return "external_refund_request"
	}
	return "unknown"
}

// Subject types for the polymorphic logger reference.
const (
	SubjectOrder  = "order"
	SubjectRefund = "refund"
)

type Subject struct {
	Type string
	ID   int64
}

// Entry is an immutable request/response record. At most one exists per
// (event, logger_id, logger_type).
type Entry struct {
	ID         int64           `json:"id"`
	Event      Event           `json:"event"`
	LoggerID   int64           `json:"logger_id"`
	LoggerType string          `json:"logger_type"`
	Context    json.RawMessage `json:"context,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Store interface {
	// InsertIfAbsent reports false, nil when an entry already exists.
	InsertIfAbsent(ctx context.Context, e *Entry) (bool, error)
	Get(ctx context.Context, event Event, subject Subject) (*Entry, error)
}
