package payments

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	ChannelWechat      = "wechat"
	ChannelMercadoPago = "mercadopago"

	PayWayWechatMweb  = "mweb"
	PayWayWechatMini  = "mini"
	PayWayMercadoPago = "mp_checkout"
)

// Params are channel specific extras supplied by the client, e.g.
// "client_ip" for H5, "openid" for mini-program, "payer_email" for Mercado Pago.
type Params map[string]string

type Status string

const (
	// StatusAccepted means the provider took the request; the final result
	// arrives through the callback path.
	StatusAccepted  Status = "accepted"
	StatusSucceeded Status = "succeeded"
)

type Response struct {
	ProviderRef string            `json:"provider_ref"`
	Status      Status            `json:"status"`
	Data        map[string]string `json:"data,omitempty"`
	Raw         json.RawMessage   `json:"raw,omitempty"`
}

// ProviderError is a failed exchange with a channel.
type ProviderError struct {
	Channel    string
	Op         string
	HTTPStatus int
	Code       string
	Message    string
	// Sent is false when the request never left the process.
	Sent bool
	Raw  json.RawMessage
	Err  error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Channel, e.Op)
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(": http=%d", e.HTTPStatus)
	}
	if e.Code != "" {
		msg += " code=" + e.Code
	}
	if e.Message != "" {
		msg += " message=" + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Definite reports whether the failure certainly moved no money: either the
// request was never sent or the provider rejected it with a business code.
func (e *ProviderError) Definite() bool {
	if !e.Sent {
		return true
	}
	return e.HTTPStatus >= http.StatusBadRequest && e.HTTPStatus < http.StatusInternalServerError && e.Code != ""
}
