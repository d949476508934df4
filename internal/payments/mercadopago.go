package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/shopspring/decimal"
)

var errMissingAccessToken = errors.New("missing mercado pago access token")

type mpPaymentClient interface {
	Create(ctx context.Context, request payment.Request) (*payment.Response, error)
}

type mpRefundClient interface {
	CreatePartialRefund(ctx context.Context, paymentID int, amount float64) (*refund.Response, error)
}

// mpClientsFunc builds SDK clients for one access token.
type mpClientsFunc func(accessToken string) (mpPaymentClient, mpRefundClient, error)

func sdkClients(accessToken string) (mpPaymentClient, mpRefundClient, error) {
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, nil, err
	}
	return payment.NewClient(cfg), refund.NewClient(cfg), nil
}

// MercadoPagoAdapter serves the mp_checkout pay-way. The pay-way's api_key
// holds the access token; amounts are stored in cents and sent as decimals.
type MercadoPagoAdapter struct {
	clients mpClientsFunc
}

var _ Adapter = (*MercadoPagoAdapter)(nil)

func NewMercadoPagoAdapter() *MercadoPagoAdapter {
	return &MercadoPagoAdapter{clients: sdkClients}
}

func minorToMajor(amount int64) float64 {
	return decimal.New(amount, -2).InexactFloat64()
}

func (a *MercadoPagoAdapter) Pay(ctx context.Context, order orders.Order, cfg channels.Config, params Params) (Response, error) {
	if cfg.APIKey == "" {
		return Response{}, &ProviderError{Channel: ChannelMercadoPago, Op: "pay", Err: errMissingAccessToken}
	}
	payments, _, err := a.clients(cfg.APIKey)
	if err != nil {
		return Response{}, &ProviderError{Channel: ChannelMercadoPago, Op: "pay", Err: err}
	}

	req := payment.Request{
		TransactionAmount: minorToMajor(order.Amount),
		Description:       order.Subject,
		ExternalReference: order.TradeNo,
		PaymentMethodID:   params["payment_method_id"],
		NotificationURL:   cfg.NotifyURL,
		Metadata: map[string]any{
			"request_id":   uuid.NewString(),
			"out_trade_no": order.OutTradeNo,
		},
	}
	if req.PaymentMethodID == "" {
		req.PaymentMethodID = "pix"
	}
	if email := params["payer_email"]; email != "" {
		req.Payer = &payment.PayerRequest{Email: email}
	}

	res, err := payments.Create(ctx, req)
	if err != nil {
		return Response{}, mpError("pay", err)
	}

	raw, _ := json.Marshal(res)
	status := StatusAccepted
	if res.Status == "approved" {
		status = StatusSucceeded
	}
	return Response{
		ProviderRef: strconv.Itoa(res.ID),
		Status:      status,
		Data: map[string]string{
			"payment_id":    strconv.Itoa(res.ID),
			"status":        res.Status,
			"status_detail": res.StatusDetail,
		},
		Raw: raw,
	}, nil
}

func (a *MercadoPagoAdapter) Refund(ctx context.Context, order orders.Order, ref refunds.Refund, cfg channels.Config) (Response, error) {
	if cfg.APIKey == "" {
		return Response{}, &ProviderError{Channel: ChannelMercadoPago, Op: "refund", Err: errMissingAccessToken}
	}
	paymentID, err := strconv.Atoi(strings.TrimSpace(order.ProviderRef))
	if err != nil {
		return Response{}, &ProviderError{Channel: ChannelMercadoPago, Op: "refund", Err: fmt.Errorf("order %s has no mercado pago payment id", order.TradeNo)}
	}
	_, refundsClient, err := a.clients(cfg.APIKey)
	if err != nil {
		return Response{}, &ProviderError{Channel: ChannelMercadoPago, Op: "refund", Err: err}
	}

	res, err := refundsClient.CreatePartialRefund(ctx, paymentID, minorToMajor(ref.Amount))
	if err != nil {
		return Response{}, mpError("refund", err)
	}

	raw, _ := json.Marshal(res)
	status := StatusAccepted
	if res.Status == "approved" {
		status = StatusSucceeded
	}
	return Response{
		ProviderRef: strconv.Itoa(res.ID),
		Status:      status,
		Data: map[string]string{
			"refund_id": strconv.Itoa(res.ID),
			"status":    res.Status,
		},
		Raw: raw,
	}, nil
}

func mpError(op string, err error) *ProviderError {
	pe := &ProviderError{Channel: ChannelMercadoPago, Op: op, Sent: true, Err: err}
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		pe.HTTPStatus = respErr.StatusCode
		pe.Message = respErr.Message
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal([]byte(respErr.Message), &body) == nil && body.Error != "" {
			pe.Code = body.Error
			pe.Message = body.Message
		}
	}
	return pe
}
