package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-alerts/internal/asset"
)

const (
	aggregatorV3ABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`
)

var aggregatorV3ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABIJSON))
	if err != nil {
		panic("failed to parse AggregatorV3 ABI: " + err.Error())
	}
	aggregatorV3ABI = parsed
}

// ChainlinkOptions parameterise the on-chain feed reader.
type ChainlinkOptions struct {
	RPCURL string
	// Feeds maps a feed reference (XAU, BTC, ...) to its aggregator proxy address.
	Feeds   map[string]string
	Timeout time.Duration
	// MaxAge rejects rounds older than this; zero disables the check.
	MaxAge time.Duration
}

// Chainlink reads AggregatorV3 price feeds over Ethereum RPC. Answers are quoted in USD.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	now       func() time.Time
	client    *ethclient.Client
	clientMux sync.Mutex
	decimals  sync.Map // common.Address -> int32
}

// NewChainlink builds the feed reader.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	feeds := make(map[string]string, len(opts.Feeds))
	for k, v := range opts.Feeds {
		feeds[strings.ToUpper(k)] = v
	}
	opts.Feeds = feeds
	return &Chainlink{
		opts:   opts,
		logger: logger.With().Str("component", "chainlink_fetcher").Logger(),
		now:    time.Now,
	}
}

func (c *Chainlink) Name() string { return asset.ProviderChainlink }

func (c *Chainlink) Fetch(ctx context.Context, d asset.Descriptor) (decimal.Decimal, error) {
	if c.opts.RPCURL == "" {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindUnreachable, errors.New("ethereum rpc url not configured"))
	}
	ref := strings.ToUpper(d.Ref(asset.ProviderChainlink, d.Symbol))
	feed, ok := c.opts.Feeds[ref]
	if !ok || !common.IsHexAddress(feed) {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("no feed address for %s", ref))
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindUnreachable, err)
	}

	addr := common.HexToAddress(feed)
	scale, err := c.feedDecimals(ctx, client, addr)
	if err != nil {
		return decimal.Decimal{}, c.wrap(d.Symbol, err)
	}

	outputs, err := c.call(ctx, client, addr, "latestRoundData")
	if err != nil {
		return decimal.Decimal{}, c.wrap(d.Symbol, err)
	}
	if len(outputs) != 5 {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, errors.New("unexpected latestRoundData response"))
	}
	answer, ok1 := outputs[1].(*big.Int)
	updatedAt, ok2 := outputs[3].(*big.Int)
	if !ok1 || !ok2 {
		return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, errors.New("failed to decode latestRoundData output"))
	}

	if c.opts.MaxAge > 0 {
		age := c.now().Sub(time.Unix(updatedAt.Int64(), 0))
		if age > c.opts.MaxAge {
			return decimal.Decimal{}, newError(c.Name(), d.Symbol, KindMalformed, fmt.Errorf("round is stale (%s old)", age.Truncate(time.Second)))
		}
	}

	return checkPositive(c.Name(), d.Symbol, decimal.NewFromBigInt(answer, -scale))
}

type callError struct{ err error }

func (e callError) Error() string { return e.err.Error() }

func (c *Chainlink) wrap(symbol string, err error) error {
	var ce callError
	if errors.As(err, &ce) {
		return newError(c.Name(), symbol, KindUnreachable, ce.err)
	}
	return newError(c.Name(), symbol, KindMalformed, err)
}

func (c *Chainlink) call(ctx context.Context, client *ethclient.Client, addr common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorV3ABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, callError{err: err}
	}
	return aggregatorV3ABI.Unpack(method, res)
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (int32, error) {
	if v, ok := c.decimals.Load(addr); ok {
		return v.(int32), nil
	}
	outputs, err := c.call(ctx, client, addr, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	dec, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}
	c.decimals.Store(addr, int32(dec))
	return int32(dec), nil
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	c.logger.Debug().Int("feeds", len(c.opts.Feeds)).Msg("connected to ethereum rpc")
	return client, nil
}

var _ Provider = (*Chainlink)(nil)
