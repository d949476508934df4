package payments

import (
	"context"

	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks paygate/internal/payments Adapter

// Adapter translates a pay or refund intent into one channel's protocol.
// Implementations must not retry; the caller bounds each call with ctx.
type Adapter interface {
	Pay(ctx context.Context, order orders.Order, cfg channels.Config, params Params) (Response, error)
	Refund(ctx context.Context, order orders.Order, refund refunds.Refund, cfg channels.Config) (Response, error)
}
