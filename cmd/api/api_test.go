package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paygate/internal/auth"
	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/refunds"
	"paygate/internal/domain/storage"
	"paygate/internal/gateway"
	"paygate/internal/payments"
	"paygate/internal/payments/mocks"
	"paygate/internal/ratelimiter"

	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testServer struct {
	app    *application
	mux    http.Handler
	mem    *storage.Memory
	mweb   *mocks.MockAdapter
	tokens *auth.JWTAuthenticator
}

func newTestServer(t *testing.T, rl ratelimiter.Config) *testServer {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := zap.NewNop().Sugar()

	mem := storage.NewMemory()
	registry := channels.NewRegistry(channels.StaticSource{
		{ClientID: 1, ChannelID: 10, PayWayID: 11, Channel: "wechat", PayWay: "mweb", MerchantID: "1900000001"},
		{ClientID: 2, ChannelID: 20, PayWayID: 21, Channel: "wechat", PayWay: "mweb", MerchantID: "1900000002"},
	}, logger)

	mweb := mocks.NewMockAdapter(ctrl)
	adapters := payments.NewRegistry()
	adapters.Register(payments.PayWayWechatMweb, mweb)

	tokens := auth.NewJWTAuthenticator(testSecret, "paygate-clients", "paygate")
	app := &application{
		config: config{
			env:         "test",
			storage:     "memory",
			auth:        authConfig{basic: basicConfig{user: "ops", pass: "pw"}},
			rateLimiter: rl,
		},
		logger:        logger,
		gateway:       gateway.NewService(mem, registry, adapters, logger),
		channels:      registry,
		authenticator: tokens,
		rateLimiter:   ratelimiter.NewFixedWindowLimiter(rl.RequestsPerTimeFrame, rl.TimeFrame),
	}
	return &testServer{app: app, mux: app.mount(), mem: mem, mweb: mweb, tokens: tokens}
}

func (s *testServer) do(t *testing.T, clientID int64, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if clientID > 0 {
		token, err := s.tokens.GenerateClientToken(clientID, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return env.Data
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return env.Code
}

func orderBody(ref string) map[string]any {
	return map[string]any{
		"channel":      "wechat",
		"pay_way":      "mweb",
		"out_trade_no": ref,
		"amount":       5000,
		"subject":      "sneakers",
		"buyer":        "o-buyer",
	}
}

func h5(ref string) payments.Response {
	return payments.Response{ProviderRef: ref, Status: payments.StatusAccepted, Data: map[string]string{"h5_url": "https://pay.example/" + ref}}
}

func TestCreateOrderHandler_CreatesThenReplays(t *testing.T) {
	s := newTestServer(t, ratelimiter.Config{})

	s.mweb.EXPECT().
		Pay(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ orders.Order, _ channels.Config, params payments.Params) (payments.Response, error) {
			if params["client_ip"] == "" {
				t.Errorf("client_ip not filled from the request")
			}
			return h5("wx1"), nil
		}).
		Times(1)

	rr := s.do(t, 1, http.MethodPost, "/v1/orders", orderBody("ORD-1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("first create: status %d body %s", rr.Code, rr.Body)
	}
	first := decodeData[gateway.OrderResult](t, rr)
	if first.Order.Status != orders.StatusProcessing || first.Payment == nil || first.Payment.Data["h5_url"] == "" {
		t.Fatalf("unexpected result %+v", first)
	}

	rr = s.do(t, 1, http.MethodPost, "/v1/orders", orderBody("ORD-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("replay: status %d body %s", rr.Code, rr.Body)
	}
	replay := decodeData[gateway.OrderResult](t, rr)
	if !replay.Replayed || replay.Order.TradeNo != first.Order.TradeNo {
		t.Fatalf("replay = %+v, want trade no %s", replay, first.Order.TradeNo)
	}
}

func TestCreateOrderHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		client int64
		body   any
		status int
		code   string
	}{
		{"missing token", 0, orderBody("A"), http.StatusUnauthorized, "unauthorized"},
		{"unknown field", 1, map[string]any{"bogus": 1}, http.StatusBadRequest, "validation_failed"},
		{"missing subject", 1, func() map[string]any { b := orderBody("A"); delete(b, "subject"); return b }(), http.StatusBadRequest, "validation_failed"},
		{"unsupported pay way", 1, func() map[string]any { b := orderBody("A"); b["pay_way"] = "qr"; return b }(), http.StatusBadRequest, "unsupported_pay_way"},
		{"channel not configured", 3, orderBody("A"), http.StatusUnprocessableEntity, "channel_not_configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, ratelimiter.Config{})
			rr := s.do(t, tt.client, http.MethodPost, "/v1/orders", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body)
			}
			if code := decodeError(t, rr); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
			if n := len(s.mem.Orders()); n != 0 {
				t.Fatalf("%d orders persisted", n)
			}
		})
	}
}

func TestCreateOrderHandler_AdapterFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status orders.Status
	}{
		{"timeout", context.DeadlineExceeded, "channel_outcome_unknown", orders.StatusUnknown},
		{"rejected", &payments.ProviderError{Channel: "wechat", HTTPStatus: 400, Code: "PARAM_ERROR", Sent: true}, "channel_rejected", orders.StatusClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, ratelimiter.Config{})
			s.mweb.EXPECT().Pay(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(payments.Response{}, tt.err)

			rr := s.do(t, 1, http.MethodPost, "/v1/orders", orderBody("ORD-F"))
			if rr.Code != http.StatusBadGateway {
				t.Fatalf("status = %d, want 502", rr.Code)
			}
			if code := decodeError(t, rr); code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
			got := s.mem.Orders()
			if len(got) != 1 || got[0].Status != tt.status {
				t.Fatalf("orders = %+v, want one %s", got, tt.status)
			}
		})
	}
}

func TestOrderQueries(t *testing.T) {
	s := newTestServer(t, ratelimiter.Config{})
	s.mweb.EXPECT().Pay(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(h5("wx"), nil).Times(2)

	var tradeNo string
	for _, ref := range []string{"A", "B"} {
		rr := s.do(t, 1, http.MethodPost, "/v1/orders", orderBody(ref))
		if rr.Code != http.StatusCreated {
			t.Fatalf("create %s: %d", ref, rr.Code)
		}
		tradeNo = decodeData[gateway.OrderResult](t, rr).Order.TradeNo
	}

	rr := s.do(t, 1, http.MethodGet, "/v1/orders?limit=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	list := decodeData[struct {
		Orders     []orders.Order `json:"orders"`
		Pagination struct {
			Total   int  `json:"total"`
			HasNext bool `json:"has_next"`
		} `json:"pagination"`
	}](t, rr)
	if len(list.Orders) != 1 || list.Pagination.Total != 2 || !list.Pagination.HasNext {
		t.Fatalf("list = %+v", list)
	}

	if rr := s.do(t, 1, http.MethodGet, "/v1/orders?status=bogus", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter: %d", rr.Code)
	}

	rr = s.do(t, 1, http.MethodGet, "/v1/orders/"+tradeNo, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}
	if view := decodeData[gateway.OrderView](t, rr); view.Order.TradeNo != tradeNo {
		t.Fatalf("view = %+v", view)
	}

	// Another client's order is invisible.
	if rr := s.do(t, 2, http.MethodGet, "/v1/orders/"+tradeNo, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign get: %d", rr.Code)
	}
	if rr := s.do(t, 1, http.MethodGet, "/v1/orders/not-a-number", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed trade no: %d", rr.Code)
	}
}

func TestRefundHandlers(t *testing.T) {
	s := newTestServer(t, ratelimiter.Config{})
	s.mweb.EXPECT().Pay(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(h5("wx"), nil)

	rr := s.do(t, 1, http.MethodPost, "/v1/orders", orderBody("ORD-R"))
	tradeNo := decodeData[gateway.OrderResult](t, rr).Order.TradeNo

	rr = s.do(t, 1, http.MethodPost, "/v1/refunds", map[string]any{"trade_no": tradeNo})
	if rr.Code != http.StatusUnprocessableEntity || decodeError(t, rr) != "order_not_paid" {
		t.Fatalf("refund of unpaid order: %d", rr.Code)
	}

	if _, err := s.app.gateway.MarkOrderResult(context.Background(), tradeNo, orders.StatusSuccess); err != nil {
		t.Fatal(err)
	}

	s.mweb.EXPECT().
		Refund(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(payments.Response{ProviderRef: "rf1", Status: payments.StatusAccepted}, nil)

	rr = s.do(t, 1, http.MethodPost, "/v1/refunds", map[string]any{"trade_no": tradeNo, "amount": 6000})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("oversized refund: %d", rr.Code)
	}

	rr = s.do(t, 1, http.MethodPost, "/v1/refunds", map[string]any{"trade_no": tradeNo})
	if rr.Code != http.StatusCreated {
		t.Fatalf("refund: %d %s", rr.Code, rr.Body)
	}
	res := decodeData[gateway.RefundResult](t, rr)
	if res.Refund.Amount != 5000 || res.Refund.Status != refunds.StatusProcessing {
		t.Fatalf("refund = %+v", res.Refund)
	}

	rr = s.do(t, 1, http.MethodPost, "/v1/refunds", map[string]any{"trade_no": tradeNo})
	if rr.Code != http.StatusConflict || decodeError(t, rr) != "refund_in_progress" {
		t.Fatalf("second refund: %d", rr.Code)
	}

	rr = s.do(t, 1, http.MethodGet, "/v1/refunds/"+res.Refund.RefundNo, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get refund: %d", rr.Code)
	}
	if rr := s.do(t, 2, http.MethodGet, "/v1/refunds/"+res.Refund.RefundNo, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign refund: %d", rr.Code)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	s := newTestServer(t, ratelimiter.Config{RequestsPerTimeFrame: 2, TimeFrame: time.Minute, Enabled: true})

	for i := 0; i < 2; i++ {
		if rr := s.do(t, 1, http.MethodGet, "/v1/orders", nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rr.Code)
		}
	}
	rr := s.do(t, 1, http.MethodGet, "/v1/orders", nil)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("third request: %d", rr.Code)
	}
	// Other clients have their own window.
	if rr := s.do(t, 2, http.MethodGet, "/v1/orders", nil); rr.Code != http.StatusOK {
		t.Fatalf("other client: %d", rr.Code)
	}
}

func TestHealthAndDebugVars(t *testing.T) {
	s := newTestServer(t, ratelimiter.Config{})

	rr := s.do(t, 0, http.MethodGet, "/v1/health", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", rr.Code, rr.Body)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/debug/vars", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("debug vars without creds: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/debug/vars", nil)
	req.SetBasicAuth("ops", "pw")
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("debug vars: %d", rec.Code)
	}
}
