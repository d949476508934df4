package channels

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("channel not configured for client")

type Channel struct {
	ID       int64  `json:"id"`
	ClientID int64  `json:"client_id"`
	Channel  string `json:"channel"` // wechat, mercadopago, ...
	Name     string `json:"name"`
	Status   string `json:"status"`
}

type PayWay struct {
	ID         int64  `json:"id"`
	ChannelID  int64  `json:"payment_channel_id"`
	Way        string `json:"way"` // mweb, mini, mp_checkout
	MerchantID string `json:"merchant_id"`
	AppID      string `json:"app_id"`
	APIKey     string `json:"-"`
	SerialNo   string `json:"serial_no"`
	PrivateKey string `json:"-"`
	NotifyURL  string `json:"notify_url"`
	Endpoint   string `json:"endpoint"`
	Status     string `json:"status"`
}

// Config is the flattened (channel, pay-way) view handed to adapters.
type Config struct {
	ClientID   int64
	ChannelID  int64
	PayWayID   int64
	Channel    string
	PayWay     string
	MerchantID string
	AppID      string
	APIKey     string
	SerialNo   string
	PrivateKey string
	NotifyURL  string
	Endpoint   string
}

func NewConfig(c Channel, w PayWay) Config {
	return Config{
		ClientID:   c.ClientID,
		ChannelID:  c.ID,
		PayWayID:   w.ID,
		Channel:    c.Channel,
		PayWay:     w.Way,
		MerchantID: w.MerchantID,
		AppID:      w.AppID,
		APIKey:     w.APIKey,
		SerialNo:   w.SerialNo,
		PrivateKey: w.PrivateKey,
		NotifyURL:  w.NotifyURL,
		Endpoint:   w.Endpoint,
	}
}

type Key struct {
	ClientID int64
	Channel  string
	PayWay   string
}

func (c Config) Key() Key {
	return Key{ClientID: c.ClientID, Channel: c.Channel, PayWay: c.PayWay}
}

// Source loads every enabled (channel, pay-way) configuration.
type Source interface {
	LoadAll(ctx context.Context) ([]Config, error)
}

type Lookup interface {
	Lookup(ctx context.Context, clientID int64, channel, payWay string) (Config, error)
}
