package oracle

import (
	"time"

	"github.com/pkg/errors"
)

// ClientConfig is the per-instance configuration a Client is constructed
// from: RPC endpoint for on-chain shapes, HTTP endpoint for API shapes,
// plus the protocol-specific config blob stored on the Instance row.
type ClientConfig struct {
	Chain          string
	RPCURL         string
	ProtocolConfig map[string]interface{}
	TimeoutMs      uint32
	MaxAttempts    int
	StaleThreshold time.Duration
}

func (c ClientConfig) timeout() time.Duration {
	if c.TimeoutMs == 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c ClientConfig) maxAttempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

func (c ClientConfig) staleThreshold() time.Duration {
	if c.StaleThreshold <= 0 {
		return 300 * time.Second
	}
	return c.StaleThreshold
}

// ProtocolDefaults are the per-protocol scheduling defaults from spec §4.4.
type ProtocolDefaults struct {
	IntervalMs           uint32
	BatchSize            int
	MaxConcurrency       int
	PriceChangeThreshold float64 // fraction, e.g. 0.0010 == 0.10%
}

// Defaults is the closed table of per-protocol defaults. An instance's
// sync_interval_ms overrides IntervalMs; the other fields are not
// overridable per instance (clients read MaxConcurrency from this table).
var Defaults = map[Protocol]ProtocolDefaults{
	ProtocolChainlink:   {IntervalMs: 60_000, BatchSize: 100, MaxConcurrency: 5, PriceChangeThreshold: 0.0010},
	ProtocolPyth:        {IntervalMs: 30_000, BatchSize: 100, MaxConcurrency: 5, PriceChangeThreshold: 0.0005},
	ProtocolBand:        {IntervalMs: 300_000, BatchSize: 50, MaxConcurrency: 3, PriceChangeThreshold: 0.0020},
	ProtocolDIA:         {IntervalMs: 600_000, BatchSize: 50, MaxConcurrency: 3, PriceChangeThreshold: 0.0050},
	ProtocolAPI3:        {IntervalMs: 60_000, BatchSize: 50, MaxConcurrency: 5, PriceChangeThreshold: 0.0010},
	ProtocolRedStone:    {IntervalMs: 30_000, BatchSize: 50, MaxConcurrency: 5, PriceChangeThreshold: 0.0005},
	ProtocolFlux:        {IntervalMs: 30_000, BatchSize: 50, MaxConcurrency: 3, PriceChangeThreshold: 0.0010},
	ProtocolSwitchboard: {IntervalMs: 30_000, BatchSize: 50, MaxConcurrency: 3, PriceChangeThreshold: 0.0010},
}

// SupportedChains fixes the (protocol, chain) compatibility table enforced
// at read-time by the orchestrator (spec §3 Instance invariant). Protocols
// not listed for a chain are considered unsupported for it.
var SupportedChains = map[Protocol]map[string]bool{
	ProtocolChainlink: setOf("ethereum", "polygon", "arbitrum", "optimism", "base", "bsc", "avalanche", "gnosis", "scroll", "sepolia", "local"),
	ProtocolPyth:      setOf("ethereum", "solana", "aptos", "sui", "base", "arbitrum", "optimism", "polygon", "local"),
	ProtocolBand:      setOf("ethereum", "bsc", "polygon", "local"),
	ProtocolDIA:       setOf("ethereum", "polygon", "bsc", "avalanche", "fantom", "moonbeam", "local"),
	ProtocolAPI3:      setOf("ethereum", "polygon", "arbitrum", "optimism", "base", "gnosis", "local"),
	ProtocolRedStone:  setOf("ethereum", "polygon", "arbitrum", "base", "mantle", "blast", "mode", "linea", "local"),
	ProtocolFlux:      setOf("ethereum", "near", "aptos", "local"),
	ProtocolSwitchboard: setOf("solana", "aptos", "sui", "local"),
}

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// IsChainSupported enforces the (protocol, chain) compatibility invariant.
func IsChainSupported(protocol Protocol, chain string) bool {
	chains, ok := SupportedChains[protocol]
	if !ok {
		return false
	}
	return chains[chain]
}

// NewClient is the protocol factory: it dispatches to the concrete Client
// implementation for protocol, after validating the (protocol, chain) pair.
func NewClient(protocol Protocol, cfg ClientConfig) (Client, error) {
	if !IsChainSupported(protocol, cfg.Chain) {
		return nil, errors.Errorf("unsupported (protocol, chain) pair: %s/%s", protocol, cfg.Chain)
	}
	if cfg.RPCURL == "" {
		switch protocol {
		case ProtocolPyth, ProtocolBand, ProtocolDIA:
			return nil, errors.New("rpc_url (http endpoint) is required")
		default:
			return nil, errors.New("rpc_url is required")
		}
	}

	switch protocol {
	case ProtocolChainlink:
		return newChainlinkClient(cfg)
	case ProtocolAPI3:
		return newAPI3Client(cfg)
	case ProtocolRedStone:
		return newRedStoneClient(cfg)
	case ProtocolFlux:
		return newFluxClient(cfg)
	case ProtocolSwitchboard:
		return newSwitchboardClient(cfg)
	case ProtocolPyth:
		return newPythClient(cfg)
	case ProtocolBand:
		return newBandClient(cfg)
	case ProtocolDIA:
		return newDIAClient(cfg)
	default:
		return nil, errors.Errorf("unknown protocol: %s", protocol)
	}
}

// String satisfies fmt.Stringer for Protocol, used in log fields.
func (p Protocol) String() string { return string(p) }
