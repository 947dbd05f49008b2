package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

func gold() asset.Descriptor {
	return asset.Descriptor{
		Symbol:   asset.GoldSymbol,
		Name:     "Gold (10g)",
		Currency: "INR",
		Category: asset.CategoryCommodity,
		Refs: map[string]string{
			asset.ProviderMetalPrice:   "XAU",
			asset.ProviderAlphaVantage: "XAU",
			asset.ProviderCoinGecko:    "gold",
		},
	}
}

func TestMetalPriceLatest(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"success":true,"base":"USD","rates":{"XAU":0.0004255,"USDXAU":2350.1}}`, func(r *http.Request) {
		if r.URL.Path != "/v1/latest" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "k" || q.Get("base") != "USD" || q.Get("currencies") != "XAU" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
	})
	price, err := NewMetalPrice(opts(srv.URL)).Fetch(context.Background(), gold())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("2350.1")) {
		t.Fatalf("price = %s", price)
	}
}

func TestMetalPriceInverseRate(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"success":true,"rates":{"XAU":0.0005}}`, nil)
	price, err := NewMetalPrice(opts(srv.URL)).Fetch(context.Background(), gold())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("price = %s", price)
	}
}

func TestMetalPriceHistorical(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"success":true,"rates":{"USDXAU":2010}}`, func(r *http.Request) {
		if r.URL.Path != "/v1/2024-03-05" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	day := time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC)
	if _, err := NewMetalPrice(opts(srv.URL)).FetchOn(context.Background(), gold(), day); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetalPriceQuotaExceeded(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"success":false,"error":{"statusCode":104,"info":"monthly limit reached"}}`, nil)
	_, err := NewMetalPrice(opts(srv.URL)).Fetch(context.Background(), gold())
	expectKind(t, err, KindRateLimited)
}

func TestMetalPriceMissingKey(t *testing.T) {
	o := opts("http://127.0.0.1:1")
	o.APIKey = ""
	_, err := NewMetalPrice(o).Fetch(context.Background(), gold())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestAlphaVantageFetch(t *testing.T) {
	body := `{"Realtime Currency Exchange Rate":{"1. From_Currency Code":"XAU","3. To_Currency Code":"INR","5. Exchange Rate":"198000.00"}}`
	srv := jsonServer(t, http.StatusOK, body, func(r *http.Request) {
		q := r.URL.Query()
		if q.Get("function") != "CURRENCY_EXCHANGE_RATE" || q.Get("from_currency") != "XAU" || q.Get("to_currency") != "INR" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
	})
	price, err := NewAlphaVantage(opts(srv.URL)).Fetch(context.Background(), gold())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(198000)) {
		t.Fatalf("price = %s", price)
	}
}

func TestAlphaVantageThrottleNote(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, nil)
	_, err := NewAlphaVantage(opts(srv.URL)).Fetch(context.Background(), gold())
	expectKind(t, err, KindRateLimited)
}

func TestExchangeRate(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"base":"USD","rates":{"INR":83.25,"EUR":0.92}}`, func(r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v4/latest/USD") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	fx := NewExchangeRate(opts(srv.URL), "usd", "inr")
	rate, err := fx.Rate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("83.25")) {
		t.Fatalf("rate = %s", rate)
	}
	if fx.Pair() != "USD/INR" {
		t.Fatalf("pair = %s", fx.Pair())
	}
}

func TestChainlinkMissingConfig(t *testing.T) {
	c := NewChainlink(ChainlinkOptions{}, zerolog.Nop())
	_, err := c.Fetch(context.Background(), gold())
	expectKind(t, err, KindUnreachable)

	c = NewChainlink(ChainlinkOptions{RPCURL: "http://localhost"}, zerolog.Nop())
	_, err = c.Fetch(context.Background(), gold())
	expectKind(t, err, KindMalformed)
}
