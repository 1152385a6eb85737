package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
)

// diaAssets maps normalized symbols to DIA's {blockchain}/{address-or-symbol}
// quotation path segments, following spec §4.1's
// "GET {endpoint}/quotation/{asset}".
var diaAssets = map[string]string{
	"ETH/USD": "Ethereum/0x0000000000000000000000000000000000000000",
	"BTC/USD": "Bitcoin/0x0000000000000000000000000000000000000000",
}

type diaQuotation struct {
	Symbol string  `json:"Symbol"`
	Price  float64 `json:"Price"`
	Time   string  `json:"Time"`
}

type diaClient struct {
	chain          string
	endpoint       string
	http           *http.Client
	ids            httpIDMapping
	timeout        time.Duration
	maxAttempts    int
	staleThreshold time.Duration
	logger         log.Logger
	svcTags        metrics.Tags
}

func newDIAClient(cfg ClientConfig) (Client, error) {
	return &diaClient{
		chain:          cfg.Chain,
		endpoint:       strings.TrimRight(cfg.RPCURL, "/"),
		http:           newHTTPClient(cfg.timeout()),
		ids:            newHTTPIDMapping(diaAssets),
		timeout:        cfg.timeout(),
		maxAttempts:    cfg.maxAttempts(),
		staleThreshold: cfg.staleThreshold(),
		logger:         httpClientLogger(ProtocolDIA, cfg.Chain),
		svcTags:        httpClientTags(ProtocolDIA, cfg.Chain),
	}, nil
}

func (c *diaClient) Protocol() Protocol { return ProtocolDIA }
func (c *diaClient) Shape() Shape       { return ShapeHTTP }

func (c *diaClient) Capabilities() Capabilities {
	return Capabilities{PriceFeeds: true, BatchQueries: true, Websocket: false}
}

func (c *diaClient) Symbols() []string {
	symbols := make([]string, 0, len(c.ids.symbolToID))
	for s := range c.ids.symbolToID {
		symbols = append(symbols, s)
	}
	return symbols
}

func (c *diaClient) FetchPrice(ctx context.Context, symbol string) (*PriceFeed, error) {
	normalized := NormalizeSymbol(symbol)
	asset, ok := c.ids.symbolToID[normalized]
	if !ok {
		return nil, nil
	}

	var quote diaQuotation
	err := WithRetry(ctx, c.maxAttempts, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		url := fmt.Sprintf("%s/v1/quotation/%s", c.endpoint, asset)
		return httpGetJSON(callCtx, c.http, ProtocolDIA, url, &quote)
	})
	if err != nil {
		return nil, err
	}

	ts, parseErr := time.Parse(time.RFC3339, quote.Time)
	if parseErr != nil {
		ts = time.Now().UTC()
	}
	staleness, isStale := ComputeStaleness(ts, time.Now().UTC(), c.staleThreshold)
	base, quoteAsset := SplitSymbol(normalized)

	price := decimal.NewFromFloat(quote.Price)
	// DIA quotes floating-point USD prices; scale to an 8-decimal fixed
	// integer representation for price_raw, per spec §4.1 "scale to 8
	// decimals" for HTTP API upstreams.
	scaled := price.Shift(8).Truncate(0)

	return &PriceFeed{
		Protocol:         ProtocolDIA,
		Chain:            c.chain,
		Symbol:           normalized,
		BaseAsset:        base,
		QuoteAsset:       quoteAsset,
		Price:            price,
		PriceRaw:         scaled.String(),
		Decimals:         8,
		Timestamp:        ts,
		Sources:          []string{"dia"},
		IsStale:          isStale,
		StalenessSeconds: staleness,
	}, nil
}

func (c *diaClient) FetchAllFeeds(ctx context.Context) ([]*PriceFeed, error) {
	result, err := c.GetPrices(ctx, c.Symbols())
	if err != nil {
		return nil, err
	}
	return result.Prices, nil
}

func (c *diaClient) GetPrices(ctx context.Context, symbols []string) (*BatchPriceResult, error) {
	return fetchBatch(ctx, symbols, c.FetchPrice, Defaults[ProtocolDIA].MaxConcurrency)
}

func (c *diaClient) HealthCheck(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	var quote diaQuotation
	err := httpGetJSON(ctx, c.http, ProtocolDIA, c.endpoint+"/v1/quotation/"+diaAssets["ETH/USD"], &quote)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{Status: "unhealthy", LatencyMs: latency, Issues: []string{err.Error()}}, &errs.HealthCheckError{Protocol: string(ProtocolDIA), Cause: err}
	}
	return HealthStatus{Status: "healthy", LatencyMs: latency}, nil
}

func (c *diaClient) BlockNumber(ctx context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}
