package payments

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
)

const wechatJSAPIPath = "/v3/pay/transactions/jsapi"

var errMissingOpenID = errors.New("openid is required for mini-program payments")

// WechatMiniAdapter serves the mini-program flow. The response carries the
// fields wx.requestPayment expects.
type WechatMiniAdapter struct {
	client *wechatClient
}

var _ Adapter = (*WechatMiniAdapter)(nil)

func NewWechatMiniAdapter(baseURL string, httpClient *http.Client) *WechatMiniAdapter {
	return &WechatMiniAdapter{client: newWechatClient(baseURL, httpClient)}
}

type wechatJSAPIRequest struct {
	AppID       string       `json:"appid"`
	MchID       string       `json:"mchid"`
	Description string       `json:"description"`
	OutTradeNo  string       `json:"out_trade_no"`
	TimeExpire  string       `json:"time_expire,omitempty"`
	Attach      string       `json:"attach,omitempty"`
	NotifyURL   string       `json:"notify_url"`
	Amount      wechatAmount `json:"amount"`
	Payer       struct {
		OpenID string `json:"openid"`
	} `json:"payer"`
}

func (a *WechatMiniAdapter) Pay(ctx context.Context, order orders.Order, cfg channels.Config, params Params) (Response, error) {
	openID := params["openid"]
	if openID == "" {
		openID = order.Buyer
	}
	if openID == "" {
		return Response{}, &ProviderError{Channel: ChannelWechat, Op: "pay", Code: "PARAM_ERROR", Err: errMissingOpenID}
	}

	req := wechatJSAPIRequest{
		AppID:       cfg.AppID,
		MchID:       cfg.MerchantID,
		Description: order.Subject,
		OutTradeNo:  order.TradeNo,
		Attach:      order.Extra,
		NotifyURL:   cfg.NotifyURL,
		Amount:      wechatAmount{Total: order.Amount, Currency: wechatCurrency},
	}
	if !order.ExpiredAt.IsZero() {
		req.TimeExpire = order.ExpiredAt.Format(time.RFC3339)
	}
	req.Payer.OpenID = openID

	var res struct {
		PrepayID string `json:"prepay_id"`
	}
	raw, err := a.client.post(ctx, cfg, "pay", wechatJSAPIPath, req, &res)
	if err != nil {
		return Response{}, err
	}

	pkg := "prepay_id=" + res.PrepayID
	ts := strconv.FormatInt(a.client.now().Unix(), 10)
	nonce := a.client.nonce()
	signer, err := NewSigner(cfg.PrivateKey)
	if err != nil {
		return Response{}, &ProviderError{Channel: ChannelWechat, Op: "pay", Sent: true, Err: err}
	}
	paySign, err := signer.Sign(cfg.AppID, ts, nonce, pkg)
	if err != nil {
		return Response{}, &ProviderError{Channel: ChannelWechat, Op: "pay", Sent: true, Err: err}
	}

	return Response{
		ProviderRef: res.PrepayID,
		Status:      StatusAccepted,
		Data: map[string]string{
			"appId":     cfg.AppID,
			"timeStamp": ts,
			"nonceStr":  nonce,
			"package":   pkg,
			"signType":  "RSA",
			"paySign":   paySign,
		},
		Raw: raw,
	}, nil
}

func (a *WechatMiniAdapter) Refund(ctx context.Context, order orders.Order, refund refunds.Refund, cfg channels.Config) (Response, error) {
	return a.client.refund(ctx, order, refund, cfg)
}
