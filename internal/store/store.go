// Package store persists case documents: the ledger, the rule set and the
// latest alert set of every case. Backends only see opaque JSON bodies keyed
// by case and kind; typed encoding lives in documents.go.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang-redflag-service/pkg/errors"
)

// Kind names one of the documents kept per case.
type Kind string

const (
	KindLedger Kind = "ledger"
	KindRules  Kind = "rules"
	KindAlerts Kind = "alerts"
)

// CaseStore is a key-value store of case documents. Get returns a
// persistence error with CodeNotFound when nothing is stored under the key.
// Put replaces the stored body in a single write.
type CaseStore interface {
	Get(ctx context.Context, caseID string, kind Kind) ([]byte, error)
	Put(ctx context.Context, caseID string, kind Kind, body []byte) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	CacheItems int64  `mapstructure:"cache_items"`
}

// Open builds the configured backend, wrapped in a read cache when
// CacheItems is positive.
func Open(ctx context.Context, cfg Config) (CaseStore, error) {
	var (
		s   CaseStore
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		s = NewMemory()
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "store.dsn", "", nil)
		}
		s, err = NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "store.driver", cfg.Driver,
			fmt.Errorf("supported drivers: %s, %s", DriverMemory, DriverPostgres))
	}

	if cfg.CacheItems > 0 {
		cached, err := NewCached(s, cfg.CacheItems)
		if err != nil {
			s.Close()
			return nil, err
		}
		return cached, nil
	}
	return s, nil
}

func key(caseID string, kind Kind) string {
	return caseID + "/" + string(kind)
}

func notFound(caseID string, kind Kind) error {
	return errors.PersistenceError(errors.CodeNotFound, caseID, string(kind), nil)
}

// Memory keeps documents in process memory.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, caseID string, kind Kind) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.docs[key(caseID, kind)]
	if !ok {
		return nil, notFound(caseID, kind)
	}
	return append([]byte(nil), body...), nil
}

func (m *Memory) Put(_ context.Context, caseID string, kind Kind, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key(caseID, kind)] = append([]byte(nil), body...)
	return nil
}

func (m *Memory) Close() error { return nil }
