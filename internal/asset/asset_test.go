package asset

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsBuildRegistry(t *testing.T) {
	reg, err := NewRegistry(Defaults())
	require.NoError(t, err)
	assert.Equal(t, 10, reg.Len())

	gold, ok := reg.Lookup("gold")
	require.True(t, ok)
	assert.Equal(t, CategoryCommodity, gold.Category)
	assert.Equal(t, "INR", gold.Currency)
	assert.True(t, gold.Fallback.Equal(decimal.NewFromInt(100885)))

	ton, ok := reg.Lookup("TON")
	require.True(t, ok)
	assert.Equal(t, []string{ProviderCoinPaprika, ProviderCoinGecko}, ton.Providers)
	assert.Equal(t, "ton-tokamak-network", ton.Ref(ProviderCoinPaprika, "x"))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	d := Descriptor{Symbol: "btc", Name: "Bitcoin", Currency: "usd", Category: CategoryCrypto, Providers: []string{"binance"}}
	_, err := NewRegistry([]Descriptor{d, d})
	require.Error(t, err)
}

func TestRegistryValidation(t *testing.T) {
	cases := map[string]Descriptor{
		"no providers": {Symbol: "BTC", Name: "Bitcoin", Currency: "USD", Category: CategoryCrypto},
		"bad category": {Symbol: "BTC", Name: "Bitcoin", Currency: "USD", Category: "stock", Providers: []string{"binance"}},
		"no currency":  {Symbol: "BTC", Name: "Bitcoin", Category: CategoryCrypto, Providers: []string{"binance"}},
		"negative":     {Symbol: "BTC", Name: "Bitcoin", Currency: "USD", Category: CategoryCrypto, Providers: []string{"binance"}, Fallback: decimal.NewFromInt(-1)},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry([]Descriptor{d})
			assert.Error(t, err)
		})
	}
}

func TestRefDefault(t *testing.T) {
	d := Descriptor{Refs: map[string]string{"coingecko": "bitcoin"}}
	assert.Equal(t, "bitcoin", d.Ref("coingecko", "btc"))
	assert.Equal(t, "BTCUSDT", d.Ref("binance", "BTCUSDT"))
}

func TestAllReturnsCopy(t *testing.T) {
	reg, err := NewRegistry(Defaults())
	require.NoError(t, err)
	all := reg.All()
	all[0].Symbol = "MUTATED"
	_, ok := reg.Lookup("BTC")
	assert.True(t, ok)
}

func TestDefaultsCarryProfiles(t *testing.T) {
	reg, err := NewRegistry(Defaults())
	require.NoError(t, err)
	for _, d := range reg.All() {
		assert.NotEmpty(t, d.Profile.Description, d.Symbol)
		assert.NotEmpty(t, d.Profile.Website, d.Symbol)
	}
	btc, _ := reg.Lookup("BTC")
	assert.Equal(t, "2009-01-03", btc.Profile.LaunchDate)
	gold, _ := reg.Lookup(GoldSymbol)
	assert.Empty(t, gold.Profile.Whitepaper)
}
