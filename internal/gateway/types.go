package gateway

import (
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
	"paygate/internal/payments"
)

type CreateOrderRequest struct {
	Channel    string            `json:"channel" validate:"required,max=32"`
	PayWay     string            `json:"pay_way" validate:"required,max=32"`
	OutTradeNo string            `json:"out_trade_no" validate:"required,max=64"`
	Amount     int64             `json:"amount" validate:"gte=0"`
	Subject    string            `json:"subject" validate:"required,max=255"`
	Body       string            `json:"body" validate:"max=4096"`
	Detail     string            `json:"detail" validate:"max=4096"`
	Extra      string            `json:"extra" validate:"max=4096"`
	Buyer      string            `json:"buyer" validate:"max=128"`
	Seller     string            `json:"seller,omitempty" validate:"max=128"`
	Params     map[string]string `json:"params,omitempty" validate:"max=32"`
}

type CreateRefundRequest struct {
	TradeNo string `json:"trade_no" validate:"required,max=64"`
	Reason  string `json:"reason" validate:"max=255"`
	// Amount defaults to the full order amount.
	Amount *int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

type OrderResult struct {
	Order orders.Order `json:"order"`
	// Payment is what the channel returned for this order; on a replay it
	// is read back from the audit trail and may be nil.
	Payment  *payments.Response `json:"payment,omitempty"`
	Replayed bool               `json:"replayed"`
}

type RefundResult struct {
	Refund  refunds.Refund     `json:"refund"`
	Order   orders.Order       `json:"order"`
	Payment *payments.Response `json:"payment,omitempty"`
}

type OrderView struct {
	Order   orders.Order     `json:"order"`
	Refunds []refunds.Refund `json:"refunds"`
}
