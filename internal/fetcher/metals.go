package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

// MetalPrice reads MetalpriceAPI and returns USD per troy ounce of the referenced metal.
type MetalPrice struct {
	client *resty.Client
	apiKey string
}

// NewMetalPrice builds the MetalpriceAPI adapter.
func NewMetalPrice(opts HTTPOptions) *MetalPrice {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &MetalPrice{
		client: newRESTClient(opts, "https://api.metalpriceapi.com"),
		apiKey: strings.TrimSpace(opts.APIKey),
	}
}

func (m *MetalPrice) Name() string { return asset.ProviderMetalPrice }

// Fetch returns the latest USD price per troy ounce.
func (m *MetalPrice) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	return m.fetch(ctx, d, "/v1/latest")
}

// FetchOn returns the USD price per troy ounce published for the given day.
func (m *MetalPrice) FetchOn(ctx context.Context, d asset.Descriptor, day time.Time) (decimal.Decimal, error) {
	return m.fetch(ctx, d, "/v1/"+day.UTC().Format("2006-01-02"))
}

func (m *MetalPrice) fetch(ctx context.Context, d asset.Descriptor, path string) (decimal.Decimal, error) {
	if m.apiKey == "" {
		return decimal.Decimal{}, newError(m.Name(), d.Symbol, KindUnreachable, ErrMissingAPIKey)
	}
	metal := strings.ToUpper(d.Ref(asset.ProviderMetalPrice, "XAU"))

	var out struct {
		Success bool                       `json:"success"`
		Rates   map[string]decimal.Decimal `json:"rates"`
		Error   struct {
			StatusCode int    `json:"statusCode"`
			Info       string `json:"info"`
		} `json:"error"`
	}
	req := m.client.R().SetQueryParams(map[string]string{
		"api_key":    m.apiKey,
		"base":       "USD",
		"currencies": metal,
	})
	if err := getJSON(ctx, req, m.Name(), d.Symbol, path, &out); err != nil {
		return decimal.Decimal{}, err
	}

	if !out.Success {
		kind := KindMalformed
		// 104: monthly request allowance exhausted.
		if out.Error.StatusCode == 429 || out.Error.StatusCode == 104 {
			kind = KindRateLimited
		}
		return decimal.Decimal{}, &FetchError{
			Provider: m.Name(),
			Symbol:   d.Symbol,
			Kind:     kind,
			Status:   out.Error.StatusCode,
			Err:      errors.New(strings.TrimSpace("metalpriceapi: " + out.Error.Info)),
		}
	}

	if usd, ok := out.Rates["USD"+metal]; ok {
		return checkPositive(m.Name(), d.Symbol, usd)
	}
	// Older responses only carry ounces per dollar.
	if inv, ok := out.Rates[metal]; ok && inv.IsPositive() {
		return checkPositive(m.Name(), d.Symbol, decimal.NewFromInt(1).Div(inv))
	}
	return decimal.Decimal{}, newError(m.Name(), d.Symbol, KindMalformed, fmt.Errorf("rates.USD%s missing", metal))
}

// AlphaVantage reads CURRENCY_EXCHANGE_RATE; for metals that is the price of one troy ounce.
type AlphaVantage struct {
	client *resty.Client
	apiKey string
}

// NewAlphaVantage builds the Alpha Vantage adapter.
func NewAlphaVantage(opts HTTPOptions) *AlphaVantage {
	return &AlphaVantage{
		client: newRESTClient(opts, "https://www.alphavantage.co"),
		apiKey: strings.TrimSpace(opts.APIKey),
	}
}

func (a *AlphaVantage) Name() string { return asset.ProviderAlphaVantage }

func (a *AlphaVantage) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	if a.apiKey == "" {
		return decimal.Decimal{}, newError(a.Name(), d.Symbol, KindUnreachable, ErrMissingAPIKey)
	}

	var out struct {
		Rate struct {
			Exchange decimal.Decimal `json:"5. Exchange Rate"`
		} `json:"Realtime Currency Exchange Rate"`
		Note        string `json:"Note"`
		Information string `json:"Information"`
		Message     string `json:"Error Message"`
	}
	req := a.client.R().SetQueryParams(map[string]string{
		"function":      "CURRENCY_EXCHANGE_RATE",
		"from_currency": d.Ref(asset.ProviderAlphaVantage, d.Symbol),
		"to_currency":   d.Currency,
		"apikey":        a.apiKey,
	})
	if err := getJSON(ctx, req, a.Name(), d.Symbol, "/query", &out); err != nil {
		return decimal.Decimal{}, err
	}

	switch {
	case out.Note != "" || out.Information != "":
		// Throttling is reported in a 200 body.
		return decimal.Decimal{}, newError(a.Name(), d.Symbol, KindRateLimited, errors.New(out.Note+out.Information))
	case out.Message != "":
		return decimal.Decimal{}, newError(a.Name(), d.Symbol, KindMalformed, errors.New(out.Message))
	}
	return checkPositive(a.Name(), d.Symbol, out.Rate.Exchange)
}

// ExchangeRate reads exchangerate-api's open endpoint for a fixed currency pair.
type ExchangeRate struct {
	client *resty.Client
	base   string
	quote  string
}

// NewExchangeRate builds the FX adapter for base->quote.
func NewExchangeRate(opts HTTPOptions, base, quote string) *ExchangeRate {
	return &ExchangeRate{
		client: newRESTClient(opts, "https://api.exchangerate-api.com"),
		base:   strings.ToUpper(base),
		quote:  strings.ToUpper(quote),
	}
}

func (e *ExchangeRate) Name() string { return "exchangerate" }

// Pair returns the "BASE/QUOTE" label.
func (e *ExchangeRate) Pair() string { return e.base + "/" + e.quote }

// Rate returns quote units per one base unit.
func (e *ExchangeRate) Rate(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	req := e.client.R().SetPathParam("base", e.base)
	if err := getJSON(ctx, req, e.Name(), e.Pair(), "/v4/latest/{base}", &out); err != nil {
		return decimal.Decimal{}, err
	}
	rate, ok := out.Rates[e.quote]
	if !ok {
		return decimal.Decimal{}, newError(e.Name(), e.Pair(), KindMalformed, fmt.Errorf("rates.%s missing", e.quote))
	}
	return checkPositive(e.Name(), e.Pair(), rate)
}

var (
	_ Provider = (*MetalPrice)(nil)
	_ Provider = (*AlphaVantage)(nil)
	_ FXSource = (*ExchangeRate)(nil)
)
