package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

func btc() asset.Descriptor {
	return asset.Descriptor{
		Symbol:   "BTC",
		Name:     "Bitcoin",
		Currency: "USD",
		Category: asset.CategoryCrypto,
		Refs: map[string]string{
			asset.ProviderCoinPaprika: "btc-bitcoin",
			asset.ProviderCoinGecko:   "bitcoin",
		},
	}
}

func jsonServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func opts(url string) HTTPOptions {
	return HTTPOptions{BaseURL: url, Timeout: time.Second, UserAgent: "test", APIKey: "k"}
}

func expectKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, fe.Kind, err)
	}
}

func TestBinanceFetchSuccess(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"symbol":"BTCUSDT","price":"65000.12000000"}`, func(r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("symbol query = %s", got)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test" {
			t.Fatalf("user agent = %s", ua)
		}
	})

	price, err := NewBinance(opts(srv.URL)).Fetch(context.Background(), btc())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("65000.12")) {
		t.Fatalf("price = %s", price)
	}
}

func TestBinanceRateLimited(t *testing.T) {
	srv := jsonServer(t, http.StatusTooManyRequests, `{"code":-1003}`, nil)
	_, err := NewBinance(opts(srv.URL)).Fetch(context.Background(), btc())
	expectKind(t, err, KindRateLimited)
}

func TestBinanceServerError(t *testing.T) {
	srv := jsonServer(t, http.StatusBadGateway, `oops`, nil)
	_, err := NewBinance(opts(srv.URL)).Fetch(context.Background(), btc())
	expectKind(t, err, KindUnreachable)
}

func TestBinanceZeroPriceIsMalformed(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"symbol":"BTCUSDT","price":"0"}`, nil)
	_, err := NewBinance(opts(srv.URL)).Fetch(context.Background(), btc())
	expectKind(t, err, KindMalformed)
}

func TestBinanceGarbageIsMalformed(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `<html>`, nil)
	_, err := NewBinance(opts(srv.URL)).Fetch(context.Background(), btc())
	expectKind(t, err, KindMalformed)
}

func TestTimeoutIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	o := opts(srv.URL)
	o.Timeout = 50 * time.Millisecond
	_, err := NewBinance(o).Fetch(context.Background(), btc())
	expectKind(t, err, KindUnreachable)
}

func TestCoinPaprikaFetch(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"id":"btc-bitcoin","quotes":{"USD":{"price":64999.5}}}`, func(r *http.Request) {
		if r.URL.Path != "/v1/tickers/btc-bitcoin" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	price, err := NewCoinPaprika(opts(srv.URL)).Fetch(context.Background(), btc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("64999.5")) {
		t.Fatalf("price = %s", price)
	}
}

func TestCoinPaprikaMissingQuote(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"quotes":{}}`, nil)
	_, err := NewCoinPaprika(opts(srv.URL)).Fetch(context.Background(), btc())
	expectKind(t, err, KindMalformed)
}

func TestCryptoCompareFetch(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"USD":65001.25}`, func(r *http.Request) {
		if r.URL.Query().Get("fsym") != "BTC" || r.URL.Query().Get("tsyms") != "USD" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("authorization") != "Apikey k" {
			t.Fatalf("api key header missing")
		}
	})
	price, err := NewCryptoCompare(opts(srv.URL)).Fetch(context.Background(), btc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("65001.25")) {
		t.Fatalf("price = %s", price)
	}
}

func TestCryptoCompareErrorBody(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"Response":"Error","Message":"You are over your rate limit please upgrade your account!"}`, nil)
	_, err := NewCryptoCompare(opts(srv.URL)).Fetch(context.Background(), btc())
	expectKind(t, err, KindRateLimited)

	srv = jsonServer(t, http.StatusOK, `{"Response":"Error","Message":"fsym is a required param."}`, nil)
	_, err = NewCryptoCompare(opts(srv.URL)).Fetch(context.Background(), btc())
	expectKind(t, err, KindMalformed)
}

func TestCoinGeckoFetch(t *testing.T) {
	srv := jsonServer(t, http.StatusOK, `{"bitcoin":{"usd":64000}}`, func(r *http.Request) {
		if r.URL.Query().Get("ids") != "bitcoin" || r.URL.Query().Get("vs_currencies") != "usd" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
	})
	price, err := NewCoinGecko(opts(srv.URL)).Fetch(context.Background(), btc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(64000)) {
		t.Fatalf("price = %s", price)
	}
}

func TestCoinGeckoWithoutID(t *testing.T) {
	d := btc()
	d.Refs = nil
	_, err := NewCoinGecko(opts("http://127.0.0.1:1")).Fetch(context.Background(), d)
	expectKind(t, err, KindMalformed)
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]Kind{
		429: KindRateLimited,
		418: KindRateLimited,
		500: KindUnreachable,
		503: KindUnreachable,
		451: KindUnreachable,
		400: KindMalformed,
		404: KindMalformed,
	}
	for status, want := range cases {
		if got := ClassifyStatus(status); got != want {
			t.Fatalf("ClassifyStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(errors.New("x")) != KindUnreachable {
		t.Fatal("plain errors should be unreachable")
	}
	err := newError("p", "BTC", KindRateLimited, nil)
	if !IsKind(err, KindRateLimited) {
		t.Fatal("IsKind should match")
	}
	if err.Error() != "p BTC: rate_limited" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
