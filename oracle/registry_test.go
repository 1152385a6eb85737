package oracle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsChainSupported(t *testing.T) {
	require.True(t, IsChainSupported(ProtocolChainlink, "ethereum"))
	require.False(t, IsChainSupported(ProtocolChainlink, "solana"))
	require.True(t, IsChainSupported(ProtocolSwitchboard, "solana"))
	require.False(t, IsChainSupported(Protocol("unknown"), "ethereum"))
}

func TestNewClientRejectsUnsupportedChain(t *testing.T) {
	_, err := NewClient(ProtocolChainlink, ClientConfig{Chain: "solana", RPCURL: "http://localhost"})
	require.Error(t, err)
}

func TestNewClientRequiresRPCURL(t *testing.T) {
	_, err := NewClient(ProtocolChainlink, ClientConfig{Chain: "ethereum"})
	require.Error(t, err)
}

func TestNewClientUnknownProtocol(t *testing.T) {
	_, err := NewClient(Protocol("unknown"), ClientConfig{Chain: "ethereum", RPCURL: "http://localhost"})
	require.Error(t, err)
}

func TestClientConfigDefaults(t *testing.T) {
	cfg := ClientConfig{}
	require.Equal(t, 10*time.Second, cfg.timeout())
	require.Equal(t, 3, cfg.maxAttempts())
	require.Equal(t, 300*time.Second, cfg.staleThreshold())
}
