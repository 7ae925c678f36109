package domain

import "strings"

type Network string

const (
	NetworkMainnet Network = "mainnet-beta"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"

	// DefaultNetwork is used whenever a request names an unknown network.
	DefaultNetwork = NetworkDevnet
)

// Networks lists every supported network in a stable order.
var Networks = []Network{NetworkMainnet, NetworkTestnet, NetworkDevnet}

// DefaultEndpoints maps each network to its static public candidate list.
var DefaultEndpoints = map[Network][]string{
	NetworkMainnet: {
		"https://api.mainnet-beta.solana.com",
		"https://solana-mainnet.rpc.extrnode.com",
		"https://rpc.ankr.com/solana",
		"https://solana.public-rpc.com",
	},
	NetworkTestnet: {
		"https://api.testnet.solana.com",
		"https://rpc.ankr.com/solana_testnet",
	},
	NetworkDevnet: {
		"https://api.devnet.solana.com",
		"https://rpc.ankr.com/solana_devnet",
		"https://devnet.helius-rpc.com",
	},
}

// FallbackRPCURL is returned when the gateway fails before choosing anything.
const FallbackRPCURL = "https://api.devnet.solana.com"

// ParseNetwork reports whether s names a supported network.
func ParseNetwork(s string) (Network, bool) {
	n := Network(strings.TrimSpace(s))
	switch n {
	case NetworkMainnet, NetworkTestnet, NetworkDevnet:
		return n, true
	}
	return "", false
}

// NormalizeNetwork coerces unknown or empty values to DefaultNetwork.
func NormalizeNetwork(s string) Network {
	if n, ok := ParseNetwork(s); ok {
		return n
	}
	return DefaultNetwork
}

// EnvKey returns the environment variable holding the override URL,
// e.g. MAINNET_BETA_RPC_URL.
func (n Network) EnvKey() string {
	return strings.ToUpper(strings.ReplaceAll(string(n), "-", "_")) + "_RPC_URL"
}

func (n Network) String() string {
	return string(n)
}
