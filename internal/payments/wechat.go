package payments

import (
	"bytes"
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
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"

	"github.com/google/uuid"
)

const (
	DefaultWechatBaseURL = "https://api.mch.weixin.qq.com"

	wechatRefundPath = "/v3/refund/domestic/refunds"
	wechatCurrency   = "CNY"
)

var ErrInvalidPrivateKey = errors.New("invalid merchant private key")

// Signer produces WECHATPAY2-SHA256-RSA2048 signatures with the merchant key.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner parses a PEM encoded PKCS#8 or PKCS#1 RSA key. An empty key
// yields a signer that leaves signatures blank.
func NewSigner(privateKeyPEM string) (*Signer, error) {
	if strings.TrimSpace(privateKeyPEM) == "" {
		return &Signer{}, nil
	}
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, ErrInvalidPrivateKey
	}
	if k, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrInvalidPrivateKey
		}
		return &Signer{key: rk}, nil
	}
	rk, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return &Signer{key: rk}, nil
}

// Sign signs each line followed by "\n", base64 encoded.
func (s *Signer) Sign(lines ...string) (string, error) {
	if s.key == nil {
		return "", nil
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, sum[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// wechatClient is the v3 API transport shared by every WeChat pay-way.
type wechatClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
	nonce      func() string
}

func newWechatClient(baseURL string, httpClient *http.Client) *wechatClient {
	if baseURL == "" {
		baseURL = DefaultWechatBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &wechatClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
		nonce:      func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

func (c *wechatClient) authorization(cfg channels.Config, signer *Signer, method, path string, body []byte) (string, error) {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	nonce := c.nonce()
	sig, err := signer.Sign(method, path, ts, nonce, string(body))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`WECHATPAY2-SHA256-RSA2048 mchid="%s",nonce_str="%s",timestamp="%s",serial_no="%s",signature="%s"`,
		cfg.MerchantID, nonce, ts, cfg.SerialNo, sig), nil
}

// post sends payload and decodes a 2xx body into out. Failures come back as
// *ProviderError.
func (c *wechatClient) post(ctx context.Context, cfg channels.Config, op, path string, payload, out any) (json.RawMessage, error) {
	fail := func(sent bool, status int, err error) *ProviderError {
		return &ProviderError{Channel: ChannelWechat, Op: op, HTTPStatus: status, Sent: sent, Err: err}
	}

	signer, err := NewSigner(cfg.PrivateKey)
	if err != nil {
		return nil, fail(false, 0, err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fail(false, 0, err)
	}

	base := c.baseURL
	if cfg.Endpoint != "" {
		base = strings.TrimRight(cfg.Endpoint, "/")
	}
	auth, err := c.authorization(cfg, signer, http.MethodPost, path, body)
	if err != nil {
		return nil, fail(false, 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fail(false, 0, err)
	}
	httpReq.Header.Set("Authorization", auth)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fail(true, 0, fmt.Errorf("wechat %s request: %w", op, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(true, resp.StatusCode, fmt.Errorf("wechat %s read: %w", op, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		pe := fail(true, resp.StatusCode, nil)
		pe.Code = apiErr.Code
		pe.Message = apiErr.Message
		pe.Raw = rawJSON(raw)
		return nil, pe
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			pe := fail(true, resp.StatusCode, fmt.Errorf("wechat %s decode: %w", op, err))
			pe.Raw = rawJSON(raw)
			return nil, pe
		}
	}
	return rawJSON(raw), nil
}

type wechatAmount struct {
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type wechatRefundAmount struct {
	Refund   int64  `json:"refund"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type wechatRefundRequest struct {
	OutTradeNo  string             `json:"out_trade_no"`
	OutRefundNo string             `json:"out_refund_no"`
	Reason      string             `json:"reason,omitempty"`
	NotifyURL   string             `json:"notify_url,omitempty"`
	Amount      wechatRefundAmount `json:"amount"`
}

// refund is shared by all WeChat pay-ways; amounts are in fen.
func (c *wechatClient) refund(ctx context.Context, order orders.Order, refund refunds.Refund, cfg channels.Config) (Response, error) {
	req := wechatRefundRequest{
		OutTradeNo:  order.TradeNo,
		OutRefundNo: refund.RefundNo,
		Reason:      refund.Reason,
		NotifyURL:   cfg.NotifyURL,
		Amount: wechatRefundAmount{
			Refund:   refund.Amount,
			Total:    order.Amount,
			Currency: wechatCurrency,
		},
	}

	var res struct {
		RefundID string `json:"refund_id"`
		Status   string `json:"status"` // SUCCESS, CLOSED, PROCESSING, ABNORMAL
	}
	raw, err := c.post(ctx, cfg, "refund", wechatRefundPath, req, &res)
	if err != nil {
		return Response{}, err
	}

	status := StatusAccepted
	if strings.EqualFold(res.Status, "SUCCESS") {
		status = StatusSucceeded
	}
	return Response{
		ProviderRef: res.RefundID,
		Status:      status,
		Data: map[string]string{
			"refund_id": res.RefundID,
			"status":    res.Status,
		},
		Raw: raw,
	}, nil
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}
