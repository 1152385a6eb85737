package oracle

import "github.com/ethereum/go-ethereum/common"

// switchboardFeeds is the static symbol->aggregator-address table for
// Switchboard's on-chain aggregators, built at construction per spec §4.1.
// Switchboard is natively Solana/Aptos/Sui; the EVM-shaped read here models
// its EVM-compatible aggregator mirrors.
var switchboardFeeds = map[string]map[string]symbolAddr{
	"solana": {
		"SOL/USD": {Symbol: "SOL/USD", Address: common.HexToAddress("0x9c96010ec3cce48626bef9a8ad6ada7a97637ba9"), Decimals: 8},
		"BTC/USD": {Symbol: "BTC/USD", Address: common.HexToAddress("0x61f7f8fa8fd4cea9f2af190bd5266fb902d6a921"), Decimals: 8},
	},
	"local": {
		"ETH/USD": {Symbol: "ETH/USD", Address: common.HexToAddress("0x4b8336264d475303d29922addc35a9a11dc37050"), Decimals: 8},
	},
}

func newSwitchboardClient(cfg ClientConfig) (Client, error) {
	table, ok := switchboardFeeds[cfg.Chain]
	if !ok {
		table = map[string]symbolAddr{}
	}
	return newOnChainClient(ProtocolSwitchboard, cfg, "latestResult", table)
}
