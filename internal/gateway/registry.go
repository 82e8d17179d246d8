// Package gateway resolves exchange adapters and submits orders over HTTP.
package gateway

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"alert-executor/pkg/exchanges/binance"
	"alert-executor/pkg/exchanges/bingx"
	"alert-executor/pkg/exchanges/bybit"
	"alert-executor/pkg/exchanges/coinbase"
	"alert-executor/pkg/exchanges/coinex"
	"alert-executor/pkg/exchanges/common"
	"alert-executor/pkg/exchanges/kraken"
	"alert-executor/pkg/exchanges/kucoin"
	"alert-executor/pkg/exchanges/mexc"
)

// Registry maps exchange names and aliases to adapters. Lookups outside the
// table fail with common.ErrUnsupportedExchange.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]common.Adapter
	aliases  map[string]string
	log      *zap.Logger
}

// NewRegistry builds a registry from adapters.
func NewRegistry(log *zap.Logger, adapters ...common.Adapter) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		adapters: make(map[string]common.Adapter, len(adapters)),
		aliases:  make(map[string]string),
		log:      log.Named("registry"),
	}
	for _, a := range adapters {
		name := canonical(a.Name)
		r.adapters[name] = a
		for _, alias := range a.Aliases {
			r.aliases[canonical(alias)] = name
		}
	}
	return r
}

// DefaultRegistry holds every supported exchange.
func DefaultRegistry(log *zap.Logger) *Registry {
	return NewRegistry(log,
		binance.New(),
		kraken.New(),
		coinbase.New(),
		kucoin.New(),
		bybit.New(),
		mexc.New(),
		bingx.New(),
		coinex.New(),
	)
}

// Lookup resolves name, ignoring case, to its adapter.
func (r *Registry) Lookup(name string) (common.Adapter, error) {
	key := canonical(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	a, ok := r.adapters[key]
	if !ok {
		return common.Adapter{}, &common.ValidationError{Msg: fmt.Sprintf("exchange %q", name), Err: common.ErrUnsupportedExchange}
	}
	return a, nil
}

// Build produces the exchange-specific request for a sized order.
func (r *Registry) Build(order common.SizedOrder, intent common.OrderIntent) (common.OrderRequest, error) {
	a, err := r.Lookup(intent.Exchange)
	if err != nil {
		return common.OrderRequest{}, err
	}
	req, err := a.Builder.Build(order, intent)
	if err != nil {
		return common.OrderRequest{}, err
	}
	req.Exchange = a.Name
	return req, nil
}

// Normalize maps a raw answer through the owning exchange's status table.
func (r *Registry) Normalize(raw common.RawResponse) common.OrderResponse {
	a, err := r.Lookup(raw.Exchange)
	if err != nil {
		return common.OrderResponse{
			Exchange:  raw.Exchange,
			Status:    common.StatusUnknown,
			Timestamp: raw.ReceivedAt,
			Error:     (&common.NormalizationError{Exchange: raw.Exchange, Err: err}).Error(),
		}
	}
	return a.Normalizer.Normalize(raw)
}

// Capability describes one exchange for listing.
type Capability struct {
	Name            string   `json:"name"`
	Aliases         []string `json:"aliases,omitempty"`
	Verified        bool     `json:"verified"`
	Live            string   `json:"live"`
	Sandbox         string   `json:"sandbox,omitempty"`
	SandboxVerified bool     `json:"sandboxVerified"`
}

// List returns the capability table sorted by name.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, Capability{
			Name:            a.Name,
			Aliases:         a.Aliases,
			Verified:        a.Verified,
			Live:            a.Endpoints.Live,
			Sandbox:         a.Endpoints.Sandbox,
			SandboxVerified: a.Endpoints.SandboxVerified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEndpoints replaces the endpoints of a known exchange.
func (r *Registry) SetEndpoints(name string, ep common.Endpoints) error {
	a, err := r.Lookup(name)
	if err != nil {
		return err
	}
	if ep.Live == "" {
		return common.Invalid("%s: live endpoint is required", a.Name)
	}
	r.mu.Lock()
	a.Endpoints = ep
	r.adapters[canonical(a.Name)] = a
	r.mu.Unlock()
	return nil
}

// overrideFile is the YAML layout of EXCHANGES_FILE:
//
//	exchanges:
//	  kraken:
//	    live: https://api.kraken.com
//	    sandbox: https://demo-futures.kraken.com
//	    sandbox_verified: false
type overrideFile struct {
	Exchanges map[string]common.Endpoints `yaml:"exchanges"`
}

// LoadOverrides applies endpoint overrides from a YAML file.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read exchanges file: %w", err)
	}
	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse exchanges file: %w", err)
	}
	for name, ep := range f.Exchanges {
		if err := r.SetEndpoints(name, ep); err != nil {
			return err
		}
		r.log.Info("endpoint override", zap.String("exchange", name),
			zap.String("live", ep.Live), zap.String("sandbox", ep.Sandbox))
	}
	return nil
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
