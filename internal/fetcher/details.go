package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

// MarketDetails is the slow-moving market data of one asset, all in USD.
// Fields the upstream leaves null stay invalid.
type MarketDetails struct {
	Name              string
	MarketCap         decimal.NullDecimal
	Volume24h         decimal.NullDecimal
	CirculatingSupply decimal.NullDecimal
	TotalSupply       decimal.NullDecimal
	MaxSupply         decimal.NullDecimal
	GitHub            string
	Twitter           string
	Reddit            string
}

// DetailsSource fetches market details for a descriptor.
type DetailsSource interface {
	Name() string
	FetchDetails(ctx context.Context, d asset.Descriptor) (MarketDetails, error)
}

type geckoCoin struct {
	Name       string `json:"name"`
	MarketData struct {
		MarketCap         map[string]decimal.NullDecimal `json:"market_cap"`
		TotalVolume       map[string]decimal.NullDecimal `json:"total_volume"`
		CirculatingSupply decimal.NullDecimal            `json:"circulating_supply"`
		TotalSupply       decimal.NullDecimal            `json:"total_supply"`
		MaxSupply         decimal.NullDecimal            `json:"max_supply"`
	} `json:"market_data"`
	Links struct {
		ReposURL struct {
			GitHub []string `json:"github"`
		} `json:"repos_url"`
		TwitterScreenName string `json:"twitter_screen_name"`
		SubredditURL      string `json:"subreddit_url"`
	} `json:"links"`
}

// FetchDetails reads /api/v3/coins/{id} with the heavy sections switched off.
func (c *CoinGecko) FetchDetails(ctx context.Context, d asset.Descriptor) (MarketDetails, error) {
	id := d.Ref(asset.ProviderCoinGecko, "")
	if id == "" {
		return MarketDetails{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("no coingecko id for %s", d.Symbol))
	}

	req := c.client.R().SetQueryParams(map[string]string{
		"localization":   "false",
		"tickers":        "false",
		"community_data": "false",
		"developer_data": "false",
	})
	if c.apiKey != "" {
		req.SetHeader("x-cg-demo-api-key", c.apiKey)
	}

	var coin geckoCoin
	if err := getJSON(ctx, req, c.Name(), d.Symbol, "/api/v3/coins/"+url.PathEscape(id), &coin); err != nil {
		return MarketDetails{}, err
	}

	out := MarketDetails{
		Name:              strings.TrimSpace(coin.Name),
		MarketCap:         coin.MarketData.MarketCap["usd"],
		Volume24h:         coin.MarketData.TotalVolume["usd"],
		CirculatingSupply: coin.MarketData.CirculatingSupply,
		TotalSupply:       coin.MarketData.TotalSupply,
		MaxSupply:         coin.MarketData.MaxSupply,
		Reddit:            strings.TrimSpace(coin.Links.SubredditURL),
	}
	if out.Name == "" {
		out.Name = d.Name
	}
	for _, repo := range coin.Links.ReposURL.GitHub {
		if repo = strings.TrimSpace(repo); repo != "" {
			out.GitHub = repo
			break
		}
	}
	if handle := strings.TrimSpace(coin.Links.TwitterScreenName); handle != "" {
		out.Twitter = "https://twitter.com/" + handle
	}
	return out, nil
}

var _ DetailsSource = (*CoinGecko)(nil)
