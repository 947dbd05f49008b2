package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alerts/internal/asset"
	"price-alerts/internal/fetcher"
)

type fakeProvider struct {
	mu    sync.Mutex
	name  string
	price decimal.Decimal
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(context.Context, asset.Descriptor) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.price, f.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ok(name, price string) *fakeProvider {
	return &fakeProvider{name: name, price: decimal.RequireFromString(price)}
}

func failing(name string, kind fetcher.Kind) *fakeProvider {
	return &fakeProvider{name: name, err: &fetcher.FetchError{Provider: name, Kind: kind}}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func registry(ps ...*fakeProvider) map[string]fetcher.Provider {
	out := make(map[string]fetcher.Provider, len(ps))
	for _, p := range ps {
		out[p.name] = p
	}
	return out
}

func btcDesc(chain ...string) asset.Descriptor {
	return asset.Descriptor{
		Symbol:    "BTC",
		Name:      "Bitcoin",
		Currency:  "USD",
		Category:  asset.CategoryCrypto,
		Providers: chain,
		Fallback:  decimal.NewFromInt(45000),
	}
}

func goldDesc(chain ...string) asset.Descriptor {
	return asset.Descriptor{
		Symbol:    asset.GoldSymbol,
		Name:      "Gold (10g)",
		Currency:  "INR",
		Category:  asset.CategoryCommodity,
		Providers: chain,
		Fallback:  decimal.NewFromInt(100885),
	}
}

func TestResolverFallsThroughToSecondProvider(t *testing.T) {
	a := failing("a", fetcher.KindRateLimited)
	b := ok("b", "65000")
	r := NewResolver(registry(a, b), ResolverOptions{}, zerolog.Nop())

	q, err := r.Resolve(context.Background(), btcDesc("a", "b"))
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(65000)))
	assert.Equal(t, OriginLive, q.Origin)
	assert.Equal(t, "b", q.Source)
	assert.Equal(t, "USD", q.Currency)
}

func TestResolverShortCircuits(t *testing.T) {
	a := ok("a", "64000")
	b := ok("b", "65000")
	r := NewResolver(registry(a, b), ResolverOptions{}, zerolog.Nop())

	q, err := r.Resolve(context.Background(), btcDesc("a", "b"))
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(64000)))
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 0, b.Calls(), "later providers must not be consulted")
}

func TestResolverEmergencyFallback(t *testing.T) {
	a := failing("a", fetcher.KindUnreachable)
	b := failing("b", fetcher.KindMalformed)
	r := NewResolver(registry(a, b), ResolverOptions{}, zerolog.Nop())

	q, err := r.Resolve(context.Background(), btcDesc("a", "b"))
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(45000)))
	assert.Equal(t, OriginFallback, q.Origin)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
}

func TestResolverLiveReportsExhaustion(t *testing.T) {
	r := NewResolver(registry(failing("a", fetcher.KindUnreachable)), ResolverOptions{}, zerolog.Nop())
	_, err := r.Live(context.Background(), btcDesc("a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.True(t, fetcher.IsKind(err, fetcher.KindUnreachable))
}

func TestResolverWithoutFallbackErrors(t *testing.T) {
	r := NewResolver(registry(failing("a", fetcher.KindUnreachable)), ResolverOptions{}, zerolog.Nop())
	d := btcDesc("a")
	d.Fallback = decimal.Zero
	_, err := r.Resolve(context.Background(), d)
	assert.ErrorIs(t, err, ErrNoFallback)
}

func TestResolverSkipsUnregisteredProviders(t *testing.T) {
	b := ok("b", "1.5")
	r := NewResolver(registry(b), ResolverOptions{}, zerolog.Nop())
	q, err := r.Resolve(context.Background(), btcDesc("missing", "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", q.Source)
}

func TestResolverDelaysBetweenAttempts(t *testing.T) {
	a := failing("a", fetcher.KindRateLimited)
	b := ok("b", "2")
	r := NewResolver(registry(a, b), ResolverOptions{Delay: 40 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	_, err := r.Resolve(context.Background(), btcDesc("a", "b"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestResolverNeverReturnsZero(t *testing.T) {
	for _, d := range asset.Defaults() {
		r := NewResolver(nil, ResolverOptions{}, zerolog.Nop())
		q, err := r.Resolve(context.Background(), d)
		require.NoError(t, err, d.Symbol)
		assert.True(t, q.Price.IsPositive(), d.Symbol)
		assert.Equal(t, OriginFallback, q.Origin, d.Symbol)
		assert.True(t, q.Price.Equal(d.Fallback), d.Symbol)
	}
}

func TestGoldCacheServesWithinTTL(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	p := ok("metal", "72000.50")
	r := NewResolver(registry(p), ResolverOptions{Now: clk.Now}, zerolog.Nop())
	g := NewGoldCache(asset.GoldSymbol, r, GoldOptions{TTL: 24 * time.Hour, Now: clk.Now}, zerolog.Nop())
	d := goldDesc("metal")

	first, err := g.Resolve(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, OriginLive, first.Origin)

	clk.Advance(time.Hour)
	p.price = decimal.NewFromInt(1)
	second, err := g.Resolve(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, OriginCached, second.Origin)
	assert.Equal(t, first.Price.String(), second.Price.String())
	assert.Equal(t, 1, p.Calls(), "no network call inside the TTL window")
}

func TestGoldCacheRefreshesOnceAfterExpiry(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	p := ok("metal", "72000")
	r := NewResolver(registry(p), ResolverOptions{Now: clk.Now}, zerolog.Nop())
	g := NewGoldCache(asset.GoldSymbol, r, GoldOptions{TTL: 24 * time.Hour, Now: clk.Now}, zerolog.Nop())
	d := goldDesc("metal")

	_, err := g.Resolve(context.Background(), d)
	require.NoError(t, err)

	clk.Advance(25 * time.Hour)
	p.price = decimal.NewFromInt(73000)
	q, err := g.Resolve(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Calls())
	assert.True(t, q.Price.Equal(decimal.NewFromInt(73000)))

	entry, ok := g.Entry()
	require.True(t, ok)
	assert.Equal(t, clk.Now(), entry.RefreshedAt)
}

func TestGoldCacheServesStaleOnFailure(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	p := ok("metal", "72000")
	r := NewResolver(registry(p), ResolverOptions{Now: clk.Now}, zerolog.Nop())
	g := NewGoldCache(asset.GoldSymbol, r, GoldOptions{TTL: time.Hour, Now: clk.Now}, zerolog.Nop())
	d := goldDesc("metal")

	_, err := g.Resolve(context.Background(), d)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	p.err = &fetcher.FetchError{Provider: "metal", Kind: fetcher.KindRateLimited}
	q, err := g.Resolve(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, OriginCached, q.Origin)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(72000)))
}

func TestGoldCacheFallbackWhenEmpty(t *testing.T) {
	p := failing("metal", fetcher.KindUnreachable)
	r := NewResolver(registry(p), ResolverOptions{}, zerolog.Nop())
	g := NewGoldCache(asset.GoldSymbol, r, GoldOptions{}, zerolog.Nop())

	q, err := g.Resolve(context.Background(), goldDesc("metal"))
	require.NoError(t, err)
	assert.Equal(t, OriginFallback, q.Origin)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100885)))
	_, cached := g.Entry()
	assert.False(t, cached, "fallback must not populate the cache")
}

func TestGoldCacheRejectsOtherSymbols(t *testing.T) {
	g := NewGoldCache(asset.GoldSymbol, NewResolver(nil, ResolverOptions{}, zerolog.Nop()), GoldOptions{}, zerolog.Nop())
	_, err := g.Resolve(context.Background(), btcDesc("a"))
	assert.Error(t, err)
}

func TestGoldCacheConcurrentResolveRefreshesOnce(t *testing.T) {
	p := ok("metal", "72000")
	r := NewResolver(registry(p), ResolverOptions{}, zerolog.Nop())
	g := NewGoldCache(asset.GoldSymbol, r, GoldOptions{TTL: time.Hour}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Resolve(context.Background(), goldDesc("metal"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, p.Calls())
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	saves   int
}

func (m *memStore) LoadEntry(_ context.Context, key string) (CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memStore) SaveEntry(_ context.Context, key string, e CacheEntry, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]CacheEntry{}
	}
	m.entries[key] = e
	m.saves++
	return nil
}

func TestGoldCacheRestoresPersistedEntry(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := &memStore{entries: map[string]CacheEntry{
		"price:GOLD": {Price: decimal.NewFromInt(71000), RefreshedAt: clk.now.Add(-time.Hour), Source: "metalprice"},
	}}
	p := ok("metal", "72000")
	r := NewResolver(registry(p), ResolverOptions{}, zerolog.Nop())
	g := NewGoldCache(asset.GoldSymbol, r, GoldOptions{Store: store, Now: clk.Now}, zerolog.Nop())

	q, err := g.Resolve(context.Background(), goldDesc("metal"))
	require.NoError(t, err)
	assert.Equal(t, OriginCached, q.Origin)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(71000)))
	assert.Equal(t, 0, p.Calls())
}

type fxSource struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *fxSource) Rate(context.Context) (decimal.Decimal, error) {
	f.calls++
	return f.rate, f.err
}

func TestFXCacheHourlyRefresh(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	src := &fxSource{rate: decimal.RequireFromString("83.1")}
	store := &memStore{}
	c := NewFXCache(src, FXOptions{Default: decimal.NewFromInt(83), Now: clk.Now, Store: store}, zerolog.Nop())

	rate, err := c.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "83.1", rate.String())

	clk.Advance(30 * time.Minute)
	_, _ = c.Rate(context.Background())
	assert.Equal(t, 1, src.calls)

	clk.Advance(31 * time.Minute)
	src.rate = decimal.RequireFromString("83.4")
	rate, _ = c.Rate(context.Background())
	assert.Equal(t, "83.4", rate.String())
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 2, store.saves)
}

func TestFXCacheDefaultAndStale(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	src := &fxSource{err: errors.New("down")}
	c := NewFXCache(src, FXOptions{Default: decimal.NewFromInt(83), Now: clk.Now}, zerolog.Nop())

	rate, err := c.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(83)))

	src.err = nil
	src.rate = decimal.NewFromInt(84)
	rate, _ = c.Rate(context.Background())
	assert.True(t, rate.Equal(decimal.NewFromInt(84)))

	clk.Advance(2 * time.Hour)
	src.err = errors.New("down again")
	rate, _ = c.Rate(context.Background())
	assert.True(t, rate.Equal(decimal.NewFromInt(84)), "stale rate beats the default")
}

func TestGoldConversionThroughFXCache(t *testing.T) {
	fx := NewFXCache(&fxSource{rate: decimal.NewFromInt(83)}, FXOptions{}, zerolog.Nop())
	metal := fetcher.NewConverted(ok("metalprice", "2000"), fetcher.OunceUSDToTenGramsINR(fx))
	r := NewResolver(map[string]fetcher.Provider{"metalprice": metal}, ResolverOptions{}, zerolog.Nop())
	g := NewGoldCache(asset.GoldSymbol, r, GoldOptions{}, zerolog.Nop())

	q, err := g.Resolve(context.Background(), goldDesc("metalprice"))
	require.NoError(t, err)
	assert.Equal(t, "53370.24", q.Price.StringFixed(2))
	assert.Equal(t, "INR", q.Currency)
}
