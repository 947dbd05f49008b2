package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

// Binance reads the spot ticker of the USDT pair.
type Binance struct {
	client *resty.Client
}

// NewBinance builds the Binance ticker adapter.
func NewBinance(opts HTTPOptions) *Binance {
	return &Binance{client: newRESTClient(opts, "https://api.binance.com")}
}

func (b *Binance) Name() string { return asset.ProviderBinance }

func (b *Binance) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	pair := d.Ref(asset.ProviderBinance, d.Symbol+"USDT")

	var out struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	req := b.client.R().SetQueryParam("symbol", pair)
	if err := getJSON(ctx, req, b.Name(), d.Symbol, "/api/v3/ticker/price", &out); err != nil {
		return decimal.Decimal{}, err
	}
	return checkPositive(b.Name(), d.Symbol, out.Price)
}

// CoinPaprika reads /v1/tickers/{id}.
type CoinPaprika struct {
	client *resty.Client
}

// NewCoinPaprika builds the CoinPaprika adapter.
func NewCoinPaprika(opts HTTPOptions) *CoinPaprika {
	return &CoinPaprika{client: newRESTClient(opts, "https://api.coinpaprika.com")}
}

func (c *CoinPaprika) Name() string { return asset.ProviderCoinPaprika }

func (c *CoinPaprika) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	id := d.Ref(asset.ProviderCoinPaprika, "")
	if id == "" {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("no coinpaprika id for %s", d.Symbol))
	}

	var out struct {
		Quotes map[string]struct {
			Price decimal.Decimal `json:"price"`
		} `json:"quotes"`
	}
	req := c.client.R().
		SetPathParam("id", id).
		SetQueryParam("quotes", d.Currency)
	if err := getJSON(ctx, req, c.Name(), d.Symbol, "/v1/tickers/{id}", &out); err != nil {
		return decimal.Decimal{}, err
	}
	q, ok := out.Quotes[d.Currency]
	if !ok {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("quotes.%s missing", d.Currency))
	}
	return checkPositive(c.Name(), d.Symbol, q.Price)
}

// CryptoCompare reads /data/price.
type CryptoCompare struct {
	client *resty.Client
	apiKey string
}

// NewCryptoCompare builds the CryptoCompare adapter; the key is optional.
func NewCryptoCompare(opts HTTPOptions) *CryptoCompare {
	return &CryptoCompare{
		client: newRESTClient(opts, "https://min-api.cryptocompare.com"),
		apiKey: strings.TrimSpace(opts.APIKey),
	}
}

func (c *CryptoCompare) Name() string { return asset.ProviderCryptoCompare }

func (c *CryptoCompare) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	fsym := d.Ref(asset.ProviderCryptoCompare, d.Symbol)

	req := c.client.R().SetQueryParams(map[string]string{
		"fsym":  fsym,
		"tsyms": d.Currency,
	})
	if c.apiKey != "" {
		req.SetHeader("authorization", "Apikey "+c.apiKey)
	}

	var out map[string]json.RawMessage
	if err := getJSON(ctx, req, c.Name(), d.Symbol, "/data/price", &out); err != nil {
		return decimal.Decimal{}, err
	}

	raw, ok := out[d.Currency]
	if !ok {
		// Errors come back as 200 {"Response":"Error","Message":"..."}.
		var msg string
		if m, found := out["Message"]; found {
			_ = json.Unmarshal(m, &msg)
		}
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindRateLimited, fmt.Errorf("%s", msg))
		}
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("%s missing: %s", d.Currency, msg))
	}
	price, err := decimal.NewFromString(strings.Trim(string(raw), `"`))
	if err != nil {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, err)
	}
	return checkPositive(c.Name(), d.Symbol, price)
}

// CoinGecko reads /api/v3/simple/price.
type CoinGecko struct {
	client *resty.Client
	apiKey string
}

// NewCoinGecko builds the CoinGecko adapter; the demo key is optional.
func NewCoinGecko(opts HTTPOptions) *CoinGecko {
	return &CoinGecko{
		client: newRESTClient(opts, "https://api.coingecko.com"),
		apiKey: strings.TrimSpace(opts.APIKey),
	}
}

func (c *CoinGecko) Name() string { return asset.ProviderCoinGecko }

func (c *CoinGecko) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	id := d.Ref(asset.ProviderCoinGecko, "")
	if id == "" {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("no coingecko id for %s", d.Symbol))
	}
	vs := strings.ToLower(d.Currency)

	req := c.client.R().SetQueryParams(map[string]string{
		"ids":           id,
		"vs_currencies": vs,
	})
	if c.apiKey != "" {
		req.SetHeader("x-cg-demo-api-key", c.apiKey)
	}

	var out map[string]map[string]decimal.Decimal
	if err := getJSON(ctx, req, c.Name(), d.Symbol, "/api/v3/simple/price", &out); err != nil {
		return decimal.Decimal{}, err
	}
	price, ok := out[id][vs]
	if !ok {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("%s.%s missing", id, vs))
	}
	return checkPositive(c.Name(), d.Symbol, price)
}

var (
	_ Provider = (*Binance)(nil)
	_ Provider = (*CoinPaprika)(nil)
	_ Provider = (*CryptoCompare)(nil)
	_ Provider = (*CoinGecko)(nil)
)
