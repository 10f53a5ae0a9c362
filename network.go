package musig

import (
	"fmt"
	"strings"
)

// Network selects the Solana cluster a session targets
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"
	NetworkLocal   Network = "local"

	DefaultNetwork = NetworkTestnet
)

var networkEndpoints = map[Network]string{
	NetworkMainnet: "https://api.mainnet-beta.solana.com",
	NetworkTestnet: "https://api.testnet.solana.com",
	NetworkDevnet:  "https://api.devnet.solana.com",
	NetworkLocal:   "http://127.0.0.1:8899",
}

// Networks lists the known clusters in display order
func Networks() []Network {
	return []Network{NetworkMainnet, NetworkTestnet, NetworkDevnet, NetworkLocal}
}

// ParseNetwork parses a network name case-insensitively. An empty name
// selects DefaultNetwork.
func ParseNetwork(name string) (Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultNetwork, nil
	}
	network := Network(name)
	if _, ok := networkEndpoints[network]; !ok {
		return "", fmt.Errorf("unknown network %q (want one of mainnet, testnet, devnet, local)", name)
	}
	return network, nil
}

// RPCURL returns the cluster's public JSON-RPC endpoint
func (n Network) RPCURL() string {
	return networkEndpoints[n]
}

// Valid reports whether n is a known cluster
func (n Network) Valid() bool {
	_, ok := networkEndpoints[n]
	return ok
}

func (n Network) String() string { return string(n) }
