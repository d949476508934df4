package payments

import (
	"context"
	"net/http"
	"time"

	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
)

const wechatH5Path = "/v3/pay/transactions/h5"

// WechatMwebAdapter serves the in-app-browser (H5) flow; the payer is sent
// to the returned h5_url.
type WechatMwebAdapter struct {
	client *wechatClient
}

var _ Adapter = (*WechatMwebAdapter)(nil)

func NewWechatMwebAdapter(baseURL string, httpClient *http.Client) *WechatMwebAdapter {
	return &WechatMwebAdapter{client: newWechatClient(baseURL, httpClient)}
}

type wechatH5Request struct {
	AppID       string       `json:"appid"`
	MchID       string       `json:"mchid"`
	Description string       `json:"description"`
	OutTradeNo  string       `json:"out_trade_no"`
	TimeExpire  string       `json:"time_expire,omitempty"`
	Attach      string       `json:"attach,omitempty"`
	NotifyURL   string       `json:"notify_url"`
	Amount      wechatAmount `json:"amount"`
	SceneInfo   struct {
		PayerClientIP string `json:"payer_client_ip"`
		H5Info        struct {
			Type string `json:"type"`
		} `json:"h5_info"`
	} `json:"scene_info"`
}

func (a *WechatMwebAdapter) Pay(ctx context.Context, order orders.Order, cfg channels.Config, params Params) (Response, error) {
	req := wechatH5Request{
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
	req.SceneInfo.PayerClientIP = params["client_ip"]
	req.SceneInfo.H5Info.Type = "Wap"

	var res struct {
		H5URL string `json:"h5_url"`
	}
	raw, err := a.client.post(ctx, cfg, "pay", wechatH5Path, req, &res)
	if err != nil {
		return Response{}, err
	}
	return Response{
		ProviderRef: order.TradeNo,
		Status:      StatusAccepted,
		Data:        map[string]string{"h5_url": res.H5URL},
		Raw:         raw,
	}, nil
}

func (a *WechatMwebAdapter) Refund(ctx context.Context, order orders.Order, refund refunds.Refund, cfg channels.Config) (Response, error) {
	return a.client.refund(ctx, order, refund, cfg)
}
