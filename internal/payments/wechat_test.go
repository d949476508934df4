package payments

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
)

func testOrder() orders.Order {
	return orders.Order{
		ID:         1,
		TradeNo:    "20240302003005000001",
		OutTradeNo: "ORD-1",
		Amount:     5000,
		Subject:    "sneakers",
		Buyer:      "o-buyer",
		ExpiredAt:  time.Date(2024, 3, 1, 18, 30, 5, 0, time.UTC),
	}
}

func testConfig(endpoint string) channels.Config {
	return channels.Config{
		ClientID:   1,
		Channel:    ChannelWechat,
		PayWay:     PayWayWechatMweb,
		MerchantID: "1900000001",
		AppID:      "wx-app",
		SerialNo:   "SERIAL",
		NotifyURL:  "https://merchant.example/notify",
		Endpoint:   endpoint,
	}
}

func TestWechatMwebPay(t *testing.T) {
	var got wechatH5Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wechatH5Path {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "WECHATPAY2-SHA256-RSA2048 mchid=\"1900000001\"") {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"h5_url":"https://wx.tenpay.com/cgi-bin/mmpayweb-bin/checkmweb?prepay_id=wx1"}`))
	}))
	defer srv.Close()

	a := NewWechatMwebAdapter("", srv.Client())
	resp, err := a.Pay(context.Background(), testOrder(), testConfig(srv.URL), Params{"client_ip": "10.0.0.1"})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if resp.Status != StatusAccepted {
		t.Fatalf("status = %s", resp.Status)
	}
	if !strings.Contains(resp.Data["h5_url"], "prepay_id=wx1") {
		t.Fatalf("h5_url = %q", resp.Data["h5_url"])
	}
	if got.OutTradeNo != "20240302003005000001" || got.Amount.Total != 5000 || got.Amount.Currency != "CNY" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.SceneInfo.PayerClientIP != "10.0.0.1" || got.SceneInfo.H5Info.Type != "Wap" {
		t.Fatalf("unexpected scene info %+v", got.SceneInfo)
	}
}

func TestWechatPayErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		definite bool
	}{
		{"business rejection", http.StatusBadRequest, `{"code":"PARAM_ERROR","message":"bad appid"}`, true},
		{"server error", http.StatusInternalServerError, `{"code":"SYSTEM_ERROR","message":"busy"}`, false},
		{"gateway without body", http.StatusBadGateway, ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewWechatMwebAdapter(srv.URL, srv.Client())
			_, err := a.Pay(context.Background(), testOrder(), testConfig(""), nil)

			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProviderError, got %v", err)
			}
			if pe.HTTPStatus != tt.status {
				t.Fatalf("http status = %d", pe.HTTPStatus)
			}
			if pe.Definite() != tt.definite {
				t.Fatalf("definite = %v, want %v", pe.Definite(), tt.definite)
			}
		})
	}
}

func TestWechatPayTimeoutIsAmbiguous(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	// Runs before srv.Close so a handler that missed the disconnect still returns.
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	a := NewWechatMwebAdapter(srv.URL, srv.Client())
	_, err := a.Pay(ctx, testOrder(), testConfig(""), nil)

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.Definite() {
		t.Fatal("timeout must not be definite")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestWechatMiniPayRequiresOpenID(t *testing.T) {
	a := NewWechatMiniAdapter("http://127.0.0.1:0", nil)
	o := testOrder()
	o.Buyer = ""

	_, err := a.Pay(context.Background(), o, testConfig(""), nil)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProviderError, got %v", err)
	}
	if pe.Sent || !pe.Definite() {
		t.Fatalf("missing openid should fail before sending: %+v", pe)
	}
}

func TestWechatMiniPayReturnsPaymentFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wechatJSAPIPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req wechatJSAPIRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Payer.OpenID != "o-explicit" {
			t.Errorf("openid = %q", req.Payer.OpenID)
		}
		_, _ = w.Write([]byte(`{"prepay_id":"wx201410272009395522657a690389285100"}`))
	}))
	defer srv.Close()

	a := NewWechatMiniAdapter(srv.URL, srv.Client())
	resp, err := a.Pay(context.Background(), testOrder(), testConfig(""), Params{"openid": "o-explicit"})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if resp.ProviderRef != "wx201410272009395522657a690389285100" {
		t.Fatalf("provider ref = %q", resp.ProviderRef)
	}
	if resp.Data["package"] != "prepay_id=wx201410272009395522657a690389285100" {
		t.Fatalf("package = %q", resp.Data["package"])
	}
}

func TestWechatRefund(t *testing.T) {
	var got wechatRefundRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wechatRefundPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"refund_id":"50000000382019052709732678859","status":"PROCESSING"}`))
	}))
	defer srv.Close()

	a := NewWechatMwebAdapter(srv.URL, srv.Client())
	ref := refunds.Refund{ID: 3, RefundNo: "20240302003005000003", Amount: 5000, Reason: "customer request"}
	resp, err := a.Refund(context.Background(), testOrder(), ref, testConfig(""))
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if resp.Status != StatusAccepted || resp.ProviderRef != "50000000382019052709732678859" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.OutRefundNo != ref.RefundNo || got.Amount.Refund != 5000 || got.Amount.Total != 5000 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSignerSignsCanonicalMessage(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	s, err := NewSigner(keyPEM)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	sig, err := s.Sign("POST", "/v3/pay/transactions/h5", "1554208460", "593BEC0C930BF1AFEB40B4A08C8FB242", "{}")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	sum := sha256.Sum256([]byte("POST\n/v3/pay/transactions/h5\n1554208460\n593BEC0C930BF1AFEB40B4A08C8FB242\n{}\n"))
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, sum[:], raw); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestSignerRejectsGarbage(t *testing.T) {
	if _, err := NewSigner("not a key"); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}
}
