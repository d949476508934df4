package payments

import (
	"errors"
	"testing"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	mweb := NewWechatMwebAdapter("", nil)
	r.Register(PayWayWechatMweb, mweb)

	got, err := r.Resolve(PayWayWechatMweb)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != Adapter(mweb) {
		t.Fatal("resolved a different adapter")
	}

	if _, err := r.Resolve("alipay_wap"); !errors.Is(err, ErrUnsupportedPayWay) {
		t.Fatalf("expected ErrUnsupportedPayWay, got %v", err)
	}
}

func TestProviderErrorDefinite(t *testing.T) {
	tests := []struct {
		name string
		err  ProviderError
		want bool
	}{
		{"never sent", ProviderError{Sent: false}, true},
		{"transport failure", ProviderError{Sent: true}, false},
		{"4xx with code", ProviderError{Sent: true, HTTPStatus: 400, Code: "INVALID_REQUEST"}, true},
		{"4xx without code", ProviderError{Sent: true, HTTPStatus: 404}, false},
		{"5xx with code", ProviderError{Sent: true, HTTPStatus: 503, Code: "SYSTEM_ERROR"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Definite(); got != tt.want {
				t.Fatalf("Definite() = %v, want %v", got, tt.want)
			}
		})
	}
}
