package fetcher

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"price-alerts/internal/asset"
)

// Limited paces calls to a provider shared by many assets.
type Limited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewLimited wraps p with a token bucket of rps requests per second.
func NewLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{inner: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *Limited) Name() string { return l.inner.Name() }

func (l *Limited) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return decimal.Decimal{}, newError(l.Name(), d.Symbol, KindRateLimited, fmt.Errorf("local limiter: %w", err))
	}
	return l.inner.Fetch(ctx, d)
}

// ConvertFunc turns a provider's native quote into the asset's unit and currency.
type ConvertFunc func(ctx context.Context, price decimal.Decimal) (decimal.Decimal, error)

// Converted applies a unit conversion step after a successful fetch.
type Converted struct {
	inner   Provider
	convert ConvertFunc
}

// NewConverted wraps p with fn.
func NewConverted(p Provider, fn ConvertFunc) *Converted {
	return &Converted{inner: p, convert: fn}
}

func (c *Converted) Name() string { return c.inner.Name() }

func (c *Converted) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	raw, err := c.inner.Fetch(ctx, d)
	if err != nil {
		return decimal.Decimal{}, err
	}
	out, err := c.convert(ctx, raw)
	if err != nil {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("convert: %w", err))
	}
	return checkPositive(c.Name(), d.Symbol, out)
}

var (
	_ Provider = (*Limited)(nil)
	_ Provider = (*Converted)(nil)
)
