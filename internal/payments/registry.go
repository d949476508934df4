package payments

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnsupportedPayWay = errors.New("unsupported pay way")

// Registry maps a pay-way tag to the adapter serving it. New channels are
// added by registering, never by branching.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(payWay string, adapter Adapter) {
	r.adapters[payWay] = adapter
}

func (r *Registry) Resolve(payWay string) (Adapter, error) {
	adapter, ok := r.adapters[payWay]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPayWay, payWay)
	}
	return adapter, nil
}

func (r *Registry) PayWays() []string {
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
