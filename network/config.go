package network

import "fmt"

// RPCConfig holds the connection parameters for a ledger node's JSON-RPC
// interface.
type RPCConfig struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
	Network  string `json:"network"`
}

// Environment variables read by ResolveConfig.
const (
	EnvRPCURL  = "LIBTOKEN_RPC_URL"
	EnvRPCUser = "LIBTOKEN_RPC_USER"
	EnvRPCPass = "LIBTOKEN_RPC_PASS"
)

// NetworkPresets contains default RPC configurations for known networks.
// Mainnet is intentionally omitted to require explicit configuration.
var NetworkPresets = map[string]RPCConfig{
	"regtest": {URL: "http://localhost:12381", User: "rpcuser", Password: "rpcpassword"},
	"testnet": {URL: "http://localhost:12381", User: "rpcuser", Password: "rpcpassword"},
}

// ResolveConfig merges RPC configuration from three sources with decreasing priority:
//  1. explicit settings, usually from the config file or flags
//  2. environment variables (LIBTOKEN_RPC_URL, LIBTOKEN_RPC_USER, LIBTOKEN_RPC_PASS)
//  3. network presets (regtest/testnet only)
func ResolveConfig(explicit *RPCConfig, env map[string]string, network string) (*RPCConfig, error) {
	result := RPCConfig{Network: network}
	if preset, ok := NetworkPresets[network]; ok {
		result = preset
		result.Network = network
	}

	if v := env[EnvRPCURL]; v != "" {
		result.URL = v
	}
	if v := env[EnvRPCUser]; v != "" {
		result.User = v
	}
	if v := env[EnvRPCPass]; v != "" {
		result.Password = v
	}

	if explicit != nil {
		if explicit.URL != "" {
			result.URL = explicit.URL
		}
		if explicit.User != "" {
			result.User = explicit.User
		}
		if explicit.Password != "" {
			result.Password = explicit.Password
		}
	}

	if result.URL == "" {
		return nil, fmt.Errorf("%w: %s requires an explicit RPC URL (set rpcurl or %s)", ErrNotConfigured, network, EnvRPCURL)
	}
	return &result, nil
}
