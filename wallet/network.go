package wallet

import (
	"encoding/json"
	"fmt"
	"os"
)

// NetworkConfig describes a colored-coin ledger network.
type NetworkConfig struct {
	Name string `json:"name"`
	// NetworkID separates ledgers sharing address versions.
	NetworkID      uint32 `json:"network_id"`
	AddressVersion byte   `json:"address_version"`
	P2SHVersion    byte   `json:"p2sh_version"`
	DefaultPort    uint16 `json:"default_port"`
	RPCPort        uint16 `json:"rpc_port"`
	// Dev networks accept unconfirmed funding by default.
	Dev bool `json:"dev"`
}

// Predefined network configurations.
var (
	MainNet = NetworkConfig{
		Name:           "mainnet",
		NetworkID:      1,
		AddressVersion: 0x00,
		P2SHVersion:    0x05,
		DefaultPort:    2357,
		RPCPort:        2377,
	}

	TestNet = NetworkConfig{
		Name:           "testnet",
		NetworkID:      1939510133,
		AddressVersion: 0x6f,
		P2SHVersion:    0xc4,
		DefaultPort:    12383,
		RPCPort:        12381,
	}

	RegTest = NetworkConfig{
		Name:           "regtest",
		NetworkID:      1905960821,
		AddressVersion: 0x6f,
		P2SHVersion:    0xc4,
		DefaultPort:    12383,
		RPCPort:        12381,
		Dev:            true,
	}
)

var predefined = map[string]*NetworkConfig{
	"mainnet": &MainNet,
	"testnet": &TestNet,
	"regtest": &RegTest,
}

// GetNetwork returns a predefined network by name.
func GetNetwork(name string) (*NetworkConfig, error) {
	if net, ok := predefined[name]; ok {
		return net, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidNetwork, name)
}

// Mainnet reports whether addresses use the production version byte.
func (n *NetworkConfig) Mainnet() bool {
	return n.AddressVersion == MainNet.AddressVersion
}

// LoadCustomNetwork loads a NetworkConfig from a JSON file.
func LoadCustomNetwork(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to read network config: %w", err)
	}

	var config NetworkConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("wallet: failed to parse network config: %w", err)
	}
	if config.Name == "" {
		return nil, fmt.Errorf("%w: network config must have a name", ErrInvalidNetwork)
	}
	if config.NetworkID == 0 {
		return nil, fmt.Errorf("%w: network %q has no network id", ErrInvalidNetwork, config.Name)
	}
	return &config, nil
}
