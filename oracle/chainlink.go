package oracle

import "github.com/ethereum/go-ethereum/common"

// chainlinkFeeds is the static symbol->feed-address table Chainlink's
// AggregatorV3Interface deployments use per chain, built at construction
// per spec §4.1 "Symbol→ID mapping".
var chainlinkFeeds = map[string]map[string]symbolAddr{
	"ethereum": {
		"ETH/USD": {Symbol: "ETH/USD", Address: common.HexToAddress("0x1578a946a47d72894e5bbaa02195fd0eaadfbd7f"), Decimals: 8},
		"BTC/USD": {Symbol: "BTC/USD", Address: common.HexToAddress("0xb4a9a4c11686c219077c40ab98ded4230e8606aa"), Decimals: 8},
	},
	"polygon": {
		"ETH/USD":   {Symbol: "ETH/USD", Address: common.HexToAddress("0xb11e352890c6765432c4f17e0cf48be9d4fd2d76"), Decimals: 8},
		"MATIC/USD": {Symbol: "MATIC/USD", Address: common.HexToAddress("0x0adbcc81e9c9d74dbaf25e234509e74aa72f3c2d"), Decimals: 8},
	},
	"arbitrum": {
		"ETH/USD": {Symbol: "ETH/USD", Address: common.HexToAddress("0x2c13e9ca1832b33eef08931d8ae6d12f20ac2a85"), Decimals: 8},
	},
	"local": {
		"ETH/USD": {Symbol: "ETH/USD", Address: common.HexToAddress("0xbbcb9a4aaf4634745f8d78de94992d465d3e30c3"), Decimals: 8},
	},
}

func newChainlinkClient(cfg ClientConfig) (Client, error) {
	table, ok := chainlinkFeeds[cfg.Chain]
	if !ok {
		table = map[string]symbolAddr{}
	}
	return newOnChainClient(ProtocolChainlink, cfg, "latestRoundData", table)
}
