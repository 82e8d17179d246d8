package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"alert-executor/pkg/crypto"
	"alert-executor/pkg/exchanges/common"
)

// Store keys.
const (
	KeyTradingConfig       = "trading_config"
	KeyExchangeCredentials = "exchange_credentials"
	KeyAlertHistory        = "alert_history"
	// KeyAlertTombstones lists ids dropped from alert_history, so a
	// redelivered message is still recognised.
	KeyAlertTombstones = "alert_history_tombstones"
)

var ErrCredentialsNotFound = errors.New("credentials not found")

// KV is the opaque blob store underneath settings.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Sealer encrypts the credentials blob at rest. *crypto.KeyManager satisfies it.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// Store keeps the current settings in memory and writes every mutation through to KV.
type Store struct {
	kv     KV
	sealer Sealer
	log    *zap.Logger

	writeMu sync.Mutex // serializes mutations, held across KV writes
	mu      sync.RWMutex
	config  TradingConfig
	creds   []ExchangeCredentials
}

// NewStore creates a Store holding defaults until Load is called. A nil sealer
// stores credentials as plain JSON.
func NewStore(kv KV, sealer Sealer, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		kv:     kv,
		sealer: sealer,
		log:    log.Named("settings"),
		config: DefaultTradingConfig(),
	}
}

// Load reads config and credentials from KV. Missing keys keep the defaults.
func (s *Store) Load(ctx context.Context) error {
	cfg := DefaultTradingConfig()
	raw, found, err := s.kv.Get(ctx, KeyTradingConfig)
	if err != nil {
		return fmt.Errorf("load trading config: %w", err)
	}
	if found {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("decode trading config: %w", err)
		}
		cfg = cfg.normalize()
		if err := cfg.Validate(); err != nil {
			s.log.Warn("stored trading config invalid, using defaults", zap.Error(err))
			cfg = DefaultTradingConfig()
		}
	}

	var creds []ExchangeCredentials
	raw, found, err = s.kv.Get(ctx, KeyExchangeCredentials)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if found {
		plain, err := s.open(raw)
		if err != nil {
			return fmt.Errorf("open credentials: %w", err)
		}
		if err := json.Unmarshal(plain, &creds); err != nil {
			return fmt.Errorf("decode credentials: %w", err)
		}
	}

	s.mu.Lock()
	s.config = cfg
	s.creds = creds
	s.mu.Unlock()

	s.log.Info("settings loaded",
		zap.String("mode", string(cfg.Mode)),
		zap.Bool("test_mode", cfg.TestMode),
		zap.Int("credential_sets", len(creds)))
	return nil
}

// Snapshot returns a deep copy of the current settings.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Config:      s.config.clone(),
		Credentials: slices.Clone(s.creds),
	}
}

// Config returns a copy of the current trading config.
func (s *Store) Config() TradingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.clone()
}

// UpdateConfig validates and persists cfg, then makes it current.
func (s *Store) UpdateConfig(ctx context.Context, cfg TradingConfig) (TradingConfig, error) {
	cfg = cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return TradingConfig{}, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return TradingConfig{}, fmt.Errorf("encode trading config: %w", err)
	}
	if err := s.kv.Set(ctx, KeyTradingConfig, raw); err != nil {
		return TradingConfig{}, err
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	s.log.Info("trading config updated", zap.String("mode", string(cfg.Mode)), zap.Bool("test_mode", cfg.TestMode))
	return cfg.clone(), nil
}

// Credentials returns every stored set, secrets included.
func (s *Store) Credentials() []ExchangeCredentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.creds)
}

// UpsertCredentials adds or replaces the set identified by (exchange, apiKey).
// Activating a set deactivates the exchange's other sets.
func (s *Store) UpsertCredentials(ctx context.Context, c ExchangeCredentials) error {
	c.Exchange = strings.ToLower(strings.TrimSpace(c.Exchange))
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.Exchange == "" || c.APIKey == "" || c.APISecret == "" {
		return common.Invalid("exchange, apiKey and apiSecret are required")
	}
	return s.mutateCredentials(ctx, func(list []ExchangeCredentials) ([]ExchangeCredentials, error) {
		idx := indexOf(list, c.Exchange, c.APIKey)
		if idx < 0 {
			list = append(list, c)
		} else {
			list[idx] = c
		}
		if c.IsActive {
			deactivateOthers(list, c.Exchange, c.APIKey)
		}
		return list, nil
	})
}

// SetActive toggles one set. Activating deactivates the exchange's other sets.
func (s *Store) SetActive(ctx context.Context, exchange, apiKey string, active bool) error {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	return s.mutateCredentials(ctx, func(list []ExchangeCredentials) ([]ExchangeCredentials, error) {
		idx := indexOf(list, exchange, apiKey)
		if idx < 0 {
			return nil, ErrCredentialsNotFound
		}
		list[idx].IsActive = active
		if active {
			deactivateOthers(list, exchange, apiKey)
		}
		return list, nil
	})
}

// RemoveCredentials deletes one set.
func (s *Store) RemoveCredentials(ctx context.Context, exchange, apiKey string) error {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	return s.mutateCredentials(ctx, func(list []ExchangeCredentials) ([]ExchangeCredentials, error) {
		idx := indexOf(list, exchange, apiKey)
		if idx < 0 {
			return nil, ErrCredentialsNotFound
		}
		return slices.Delete(list, idx, idx+1), nil
	})
}

func (s *Store) mutateCredentials(ctx context.Context, fn func([]ExchangeCredentials) ([]ExchangeCredentials, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next, err := fn(s.Credentials())
	if err != nil {
		return err
	}
	plain, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	blob, err := s.seal(plain)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	if err := s.kv.Set(ctx, KeyExchangeCredentials, blob); err != nil {
		return err
	}

	s.mu.Lock()
	s.creds = next
	s.mu.Unlock()
	return nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	if s.sealer == nil {
		return plain, nil
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return nil, err
	}
	return []byte(sealed), nil
}

// open accepts both sealed and legacy plain JSON blobs.
func (s *Store) open(blob []byte) ([]byte, error) {
	if !crypto.IsSealed(string(blob)) {
		return blob, nil
	}
	if s.sealer == nil {
		return nil, errors.New("credentials are encrypted but no key is configured")
	}
	return s.sealer.Open(string(blob))
}

func indexOf(list []ExchangeCredentials, exchange, apiKey string) int {
	for i, c := range list {
		if strings.EqualFold(c.Exchange, exchange) && c.APIKey == apiKey {
			return i
		}
	}
	return -1
}

func deactivateOthers(list []ExchangeCredentials, exchange, apiKey string) {
	for i := range list {
		if strings.EqualFold(list[i].Exchange, exchange) && list[i].APIKey != apiKey {
			list[i].IsActive = false
		}
	}
}
