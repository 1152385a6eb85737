package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
)

// feedViewABI is the shared view-function shape every on-chain protocol in
// this core reads: a price feed contract exposing a single read-only
// function returning (answer int256, updatedAt uint256), mirroring
// AggregatorV3Interface.latestRoundData's two load-bearing fields. Real
// API3/RedStone/Flux/Switchboard feeds differ in their full ABI, but every
// one of them exposes this shape for the fields spec §4.1 requires
// ("extract (value, timestamp) and divide by 10^decimals"); only the
// function name differs per protocol.
const feedViewABITemplate = `[{"constant":true,"inputs":[],"name":"%s","outputs":[{"name":"answer","type":"int256"},{"name":"updatedAt","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

// symbolAddr pairs a normalized symbol with its feed contract address.
type symbolAddr struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// onChainClient is the shared implementation backing every on-chain Client
// (chainlink, api3, redstone, flux, switchboard): it reads a price feed
// contract at a fixed address per symbol via eth_call.
type onChainClient struct {
	protocol Protocol
	chain    string
	method   string
	contract abi.ABI

	eth         *ethclient.Client
	feeds       map[string]symbolAddr // normalized symbol -> feed
	addrSymbols map[string]string     // lowercase address -> symbol

	timeout        time.Duration
	maxAttempts    int
	staleThreshold time.Duration

	logger  log.Logger
	svcTags metrics.Tags
}

func newOnChainClient(protocol Protocol, cfg ClientConfig, method string, table map[string]symbolAddr) (*onChainClient, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, &errs.OracleClientError{Code: "dial_failed", Cause: err}
	}

	parsedABI, err := abi.JSON(strings.NewReader(fmt.Sprintf(feedViewABITemplate, method)))
	if err != nil {
		return nil, &errs.OracleClientError{Code: "bad_abi", Cause: err}
	}

	addrSymbols := make(map[string]string, len(table))
	for symbol, sa := range table {
		addrSymbols[strings.ToLower(sa.Address.Hex())] = symbol
	}

	return &onChainClient{
		protocol:       protocol,
		chain:          cfg.Chain,
		method:         method,
		contract:       parsedABI,
		eth:            eth,
		feeds:          table,
		addrSymbols:    addrSymbols,
		timeout:        cfg.timeout(),
		maxAttempts:    cfg.maxAttempts(),
		staleThreshold: cfg.staleThreshold(),
		logger: log.WithFields(log.Fields{
			"svc":      "oracle",
			"protocol": string(protocol),
			"chain":    cfg.Chain,
		}),
		svcTags: metrics.Tags{
			"protocol": string(protocol),
			"chain":    cfg.Chain,
		},
	}, nil
}

func (c *onChainClient) Protocol() Protocol { return c.protocol }
func (c *onChainClient) Shape() Shape       { return ShapeOnChain }

func (c *onChainClient) Capabilities() Capabilities {
	return Capabilities{PriceFeeds: true, BatchQueries: true, Websocket: false}
}

func (c *onChainClient) Symbols() []string {
	symbols := make([]string, 0, len(c.feeds))
	for s := range c.feeds {
		symbols = append(symbols, s)
	}
	return symbols
}

func (c *onChainClient) FetchPrice(ctx context.Context, symbol string) (*PriceFeed, error) {
	normalized := NormalizeSymbol(symbol)
	feed, ok := c.feeds[normalized]
	if !ok {
		return nil, nil
	}

	var value *big.Int
	var updatedAt uint64

	err := WithRetry(ctx, c.maxAttempts, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		v, ts, callErr := c.callFeed(callCtx, feed.Address)
		if callErr != nil {
			return callErr
		}
		value, updatedAt = v, ts
		return nil
	})
	if err != nil {
		return nil, err
	}

	price := decimal.NewFromBigInt(value, -int32(feed.Decimals))
	ts := time.Unix(int64(updatedAt), 0).UTC()
	staleness, isStale := ComputeStaleness(ts, time.Now().UTC(), c.staleThreshold)
	base, quote := SplitSymbol(normalized)

	return &PriceFeed{
		Protocol:         c.protocol,
		Chain:            c.chain,
		Symbol:           normalized,
		BaseAsset:        base,
		QuoteAsset:       quote,
		Price:            price,
		PriceRaw:         value.String(),
		Decimals:         feed.Decimals,
		Timestamp:        ts,
		IsStale:          isStale,
		StalenessSeconds: staleness,
	}, nil
}

func (c *onChainClient) callFeed(ctx context.Context, addr common.Address) (*big.Int, uint64, error) {
	data, err := c.contract.Pack(c.method)
	if err != nil {
		return nil, 0, &errs.UpstreamPermanentError{Protocol: string(c.protocol), Chain: c.chain, Cause: errors.Wrap(err, "pack call data")}
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, 0, &errs.UpstreamTransientError{Protocol: string(c.protocol), Chain: c.chain, Cause: err}
	}

	out, err := c.contract.Unpack(c.method, raw)
	if err != nil || len(out) < 2 {
		return nil, 0, &errs.UpstreamPermanentError{Protocol: string(c.protocol), Chain: c.chain, Cause: errors.Wrap(err, "unpack call result")}
	}

	answer, ok := out[0].(*big.Int)
	if !ok {
		return nil, 0, &errs.UpstreamPermanentError{Protocol: string(c.protocol), Chain: c.chain, Cause: errors.New("unexpected answer type")}
	}
	updatedAt, ok := out[1].(*big.Int)
	if !ok {
		return nil, 0, &errs.UpstreamPermanentError{Protocol: string(c.protocol), Chain: c.chain, Cause: errors.New("unexpected updatedAt type")}
	}

	return answer, updatedAt.Uint64(), nil
}

func (c *onChainClient) FetchAllFeeds(ctx context.Context) ([]*PriceFeed, error) {
	result, err := c.GetPrices(ctx, c.Symbols())
	if err != nil {
		return nil, err
	}
	return result.Prices, nil
}

func (c *onChainClient) GetPrices(ctx context.Context, symbols []string) (*BatchPriceResult, error) {
	return fetchBatch(ctx, symbols, c.FetchPrice, Defaults[c.protocol].MaxConcurrency)
}

func (c *onChainClient) HealthCheck(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	_, err := c.eth.BlockNumber(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{Status: "unhealthy", LatencyMs: latency, Issues: []string{err.Error()}}, &errs.HealthCheckError{Protocol: string(c.protocol), Cause: err}
	}
	return HealthStatus{Status: "healthy", LatencyMs: latency}, nil
}

func (c *onChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, &errs.UpstreamTransientError{Protocol: string(c.protocol), Chain: c.chain, Cause: err}
	}
	return n, nil
}
