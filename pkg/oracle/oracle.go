// Package oracle supplies collateral prices to liquidation checks. The
// matching path never blocks on it; only liquidation decisions consult a
// quote, and they refuse to act on stale data.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairlend/fairlend/pkg/core"
)

// Quote is a price observation. Price is in position.PriceScale ticks per
// asset unit; AsOf is when the price was observed, not when it was read.
type Quote struct {
	Price int64     `json:"price"`
	AsOf  time.Time `json:"asOf"`
}

// Age returns how old the quote is at the given instant.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.AsOf)
}

// Source answers price lookups. Implementations return the last-known value
// with its observation time rather than blocking on a fresh read; staleness
// is the caller's judgement via Fresh.
type Source interface {
	GetPrice(ctx context.Context, asset string) (Quote, error)
}

// Fresh returns ErrStalePrice when the quote is older than maxAge.
func Fresh(q Quote, now time.Time, maxAge time.Duration) error {
	if age := q.Age(now); age > maxAge {
		return fmt.Errorf("%w: quote is %s old (max %s)", core.ErrStalePrice, age, maxAge)
	}
	return nil
}

// Static is an in-process Source fed by an external poller (or a test). It
// always answers with the last value set.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStatic() *Static {
	return &Static{quotes: make(map[string]Quote)}
}

func (s *Static) SetPrice(asset string, price int64, asOf time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[asset] = Quote{Price: price, AsOf: asOf}
}

func (s *Static) GetPrice(_ context.Context, asset string) (Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[asset]
	if !ok {
		return Quote{}, fmt.Errorf("price for %s: %w", asset, core.ErrNotFound)
	}
	return q, nil
}
