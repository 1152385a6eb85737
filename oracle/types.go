// Package oracle implements the protocol client framework: a uniform
// contract over heterogeneous upstream price-oracle protocols, covering
// both on-chain RPC reads and HTTP API polling.
package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Protocol is one of the closed set of supported oracle protocols.
type Protocol string

const (
	ProtocolChainlink   Protocol = "chainlink"
	ProtocolPyth        Protocol = "pyth"
	ProtocolBand        Protocol = "band"
	ProtocolDIA         Protocol = "dia"
	ProtocolAPI3        Protocol = "api3"
	ProtocolRedStone    Protocol = "redstone"
	ProtocolFlux        Protocol = "flux"
	ProtocolSwitchboard Protocol = "switchboard"
)

// Shape distinguishes the two upstream access patterns a Client may use.
type Shape string

const (
	ShapeOnChain Shape = "on_chain"
	ShapeHTTP    Shape = "http"
)

// PriceFeed is the normalized record produced by any Client for a single
// (protocol, chain, symbol) sample.
type PriceFeed struct {
	Protocol         Protocol
	Chain            string
	Symbol           string
	BaseAsset        string
	QuoteAsset       string
	Price            decimal.Decimal
	PriceRaw         string
	Decimals         uint8
	Timestamp        time.Time
	BlockNumber      uint64
	Confidence       *decimal.Decimal
	Sources          []string
	IsStale          bool
	StalenessSeconds uint32
	TxHash           *string
	LogIndex         *int
}

// FeedID is the deterministic fingerprint of a PriceFeed sample, used as
// the upsert conflict key in PersistenceGateway.
func (f *PriceFeed) FeedID() string {
	return FingerprintFeed(string(f.Protocol), f.Chain, f.Symbol, f.Timestamp)
}

// Capabilities describes what a Client supports.
type Capabilities struct {
	PriceFeeds   bool
	BatchQueries bool
	Websocket    bool
}

// HealthStatus is returned by Client.HealthCheck.
type HealthStatus struct {
	Status    string // healthy | degraded | unhealthy
	LatencyMs int64
	Issues    []string
}

// PerSymbolFailure captures a single failed fetch inside a batch result.
type PerSymbolFailure struct {
	Symbol string
	Error  error
}

// BatchPriceResult is the outcome of Client.GetPrices: partial failures are
// reported inline, never raised as a batch-level error.
type BatchPriceResult struct {
	Prices     []*PriceFeed
	Failed     []PerSymbolFailure
	DurationMs int64
}

// Client is the uniform contract every protocol implementation satisfies.
type Client interface {
	Protocol() Protocol
	Shape() Shape
	Capabilities() Capabilities

	// FetchPrice fetches a single symbol. Unknown symbols return
	// (nil, nil), never an error.
	FetchPrice(ctx context.Context, symbol string) (*PriceFeed, error)

	// FetchAllFeeds enumerates every symbol the client knows about for its
	// configured chain and fetches them all.
	FetchAllFeeds(ctx context.Context) ([]*PriceFeed, error)

	// GetPrices fetches a batch of symbols through limiter-bounded
	// concurrency; partial failures never abort the batch.
	GetPrices(ctx context.Context, symbols []string) (*BatchPriceResult, error)

	HealthCheck(ctx context.Context) (HealthStatus, error)

	// BlockNumber returns the current block height; HTTP-only protocols
	// return a wall-clock-seconds surrogate.
	BlockNumber(ctx context.Context) (uint64, error)

	// Symbols lists every symbol this client can serve for its chain.
	Symbols() []string
}
