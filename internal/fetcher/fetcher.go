package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "pricewatch/1.0"
)

// Provider is a single upstream price source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error)
}

// FXSource yields a currency conversion rate (quote units per base unit).
type FXSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// Kind classifies provider failures.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindUnreachable Kind = "unreachable"
	KindMalformed   Kind = "malformed_response"
)

var (
	// ErrMissingAPIKey is returned by adapters that need credentials they were not given.
	ErrMissingAPIKey = errors.New("api key not configured")
	// ErrNonPositive marks a zero or negative price.
	ErrNonPositive = errors.New("price is not positive")
)

// FetchError is the only error type adapters return.
type FetchError struct {
	Provider string
	Symbol   string
	Kind     Kind
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Provider, e.Symbol, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (http %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf extracts the failure class of err; unknown errors count as unreachable.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnreachable
}

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

func newError(provider, symbol string, kind Kind, err error) *FetchError {
	return &FetchError{Provider: provider, Symbol: symbol, Kind: kind, Err: err}
}

// ClassifyStatus maps a non-2xx HTTP status to a failure kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusTeapot:
		// Binance answers 418 once an IP is banned for ignoring 429s.
		return KindRateLimited
	case status >= 500, status == http.StatusForbidden, status == http.StatusUnavailableForLegalReasons:
		return KindUnreachable
	default:
		return KindMalformed
	}
}

// HTTPOptions are shared by the JSON adapters.
type HTTPOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

func newRESTClient(opts HTTPOptions, defaultBase string) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBase
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}

	return resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", ua)
}

// getJSON issues one GET and decodes the body; every failure comes back as *FetchError.
func getJSON(ctx context.Context, req *resty.Request, provider, symbol, path string, out any) error {
	resp, err := req.SetContext(ctx).Get(path)
	if err != nil {
		return newError(provider, symbol, KindUnreachable, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &FetchError{
			Provider: provider,
			Symbol:   symbol,
			Kind:     ClassifyStatus(resp.StatusCode()),
			Status:   resp.StatusCode(),
			Err:      errors.New(snippet(resp.Body())),
		}
	}
	if err := decodeJSON(resp.Body(), out); err != nil {
		return newError(provider, symbol, KindMalformed, err)
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}

func checkPositive(provider, symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Decimal{}, newError(provider, symbol, KindMalformed, ErrNonPositive)
	}
	return price, nil
}
