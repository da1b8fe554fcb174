// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bitfsorg/libtoken-go/fee"
	"github.com/bitfsorg/libtoken-go/network"
	"github.com/bitfsorg/libtoken-go/provider"
	"github.com/bitfsorg/libtoken-go/utxo"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ---------------------------------------------------------------------------
// DefaultConfig tests
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Network", cfg.Network, "mainnet"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"Store", cfg.Store, StoreBolt},
		{"FeeMode", cfg.FeeMode, FeeFixed},
		{"PoolSize", cfg.PoolSize, 20},
		{"MaxPoolSize", cfg.MaxPoolSize, 2000},
		{"DefaultValue", cfg.DefaultValue, uint64(1000)},
		{"DustLimit", cfg.DustLimit, uint64(546)},
		{"UseProvider", cfg.UseProvider, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}

	if !strings.HasSuffix(cfg.DataDir, ".libtoken") {
		t.Errorf("DataDir = %q, want suffix .libtoken", cfg.DataDir)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig / LoadConfig tests
// ---------------------------------------------------------------------------

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")

	original := DefaultConfig()
	original.DataDir = "/tmp/test-libtoken"
	original.Network = "regtest"
	original.LogLevel = "debug"
	original.LogJSON = true
	original.RPCURL = "http://node:12381"
	original.Store = StoreBadger
	original.FeeMode = FeeAuto
	original.FeeRate = 2500
	original.UseProvider = true
	original.PoolSize = 50
	original.DefaultValue = 2000
	original.AllowUnfinalized = true

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# libtoken configuration\n") {
		t.Error("saved config should start with the header comment")
	}
	for _, fd := range fields {
		if !strings.Contains(string(data), "\n"+fd.key+"=") {
			t.Errorf("saved config is missing key %q", fd.key)
		}
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded != original {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, original)
	}
}

func TestLoadConfigNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadConfig nonexistent: got %v, want ErrConfigNotFound", err)
	}
}

func TestLoadConfigInvalidLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no equals", "this-is-not-key-value\n"},
		{"bad uint", "fixedfee = lots\n"},
		{"negative uint", "dustlimit = -1\n"},
		{"bad bool", "useprovider = maybe\n"},
		{"bad int", "poolsize = 1.5\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			if !errors.Is(err, ErrInvalidConfigLine) {
				t.Errorf("got %v, want ErrInvalidConfigLine", err)
			}
		})
	}
}

func TestLoadConfigCommentsBlanksAndUnknownKeys(t *testing.T) {
	content := `# This is a comment
network = testnet

futurekey = futurevalue
# Another comment
LogLevel = debug
rpcpass = a=b=c
logfile =
`
	cfg, err := LoadConfig(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Network != "testnet" {
		t.Errorf("Network = %q, want %q", cfg.Network, "testnet")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q (keys are case-insensitive)", cfg.LogLevel, "debug")
	}
	if cfg.RPCPass != "a=b=c" {
		t.Errorf("RPCPass = %q, want everything after the first '='", cfg.RPCPass)
	}
	if cfg.LogFile != "" {
		t.Errorf("LogFile = %q, want empty", cfg.LogFile)
	}
	if cfg.PoolSize != 20 {
		t.Errorf("PoolSize = %d, want default 20", cfg.PoolSize)
	}
}

func TestLoadConfig_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission test not reliable on Windows")
	}
	if os.Getuid() == 0 {
		t.Skip("cannot test permission denial as root")
	}

	path := writeConfig(t, "network=testnet\n")
	if err := os.Chmod(path, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(path, 0600) })

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig on unreadable file: expected error, got nil")
	}
	if errors.Is(err, ErrConfigNotFound) {
		t.Error("LoadConfig on unreadable file should not return ErrConfigNotFound")
	}
}

func TestConfigPath(t *testing.T) {
	if got, want := ConfigPath("/foo/"), filepath.Join("/foo", "config"); got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// ValidateConfig tests
// ---------------------------------------------------------------------------

func TestValidateConfigDefaults(t *testing.T) {
	if err := ValidateConfig(DefaultConfig()); err != nil {
		t.Errorf("ValidateConfig(DefaultConfig()) = %v, want nil", err)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"empty datadir", func(c *Config) { c.DataDir = "" }, ErrEmptyDataDir},
		{"bad network", func(c *Config) { c.Network = "teranet" }, ErrInvalidNetwork},
		{"bad loglevel", func(c *Config) { c.LogLevel = "loud" }, ErrInvalidLogLevel},
		{"bad store", func(c *Config) { c.Store = "sqlite" }, ErrInvalidStore},
		{"bad fee mode", func(c *Config) { c.FeeMode = "free" }, ErrInvalidFee},
		{"auto without rate", func(c *Config) { c.FeeMode = FeeAuto; c.FeeRate = 0 }, ErrInvalidFee},
		{"zero dust", func(c *Config) { c.DustLimit = 0 }, ErrInvalidPool},
		{"negative pool", func(c *Config) { c.PoolSize = -1 }, ErrInvalidPool},
		{"default below dust", func(c *Config) { c.DefaultValue = 100 }, ErrInvalidPool},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			if err := ValidateConfig(cfg); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateConfig_LogLevelCaseInsensitive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "WARN"
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig(WARN) = %v, want nil", err)
	}
}

// ---------------------------------------------------------------------------
// Derived objects
// ---------------------------------------------------------------------------

func TestFeeEstimator(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.FeeEstimator(), (fee.Fixed{Amount: 10000}); got != want {
		t.Errorf("fixed: got %#v, want %#v", got, want)
	}

	cfg.FeeMode = FeeAuto
	cfg.FeeRate = 1500
	if got, want := cfg.FeeEstimator(), (fee.Auto{RatePerKB: 1500}); got != want {
		t.Errorf("auto: got %#v, want %#v", got, want)
	}

	cfg.FeeSponsored = true
	if _, ok := cfg.FeeEstimator().(fee.Sponsored); !ok {
		t.Errorf("sponsored: got %#v", cfg.FeeEstimator())
	}
}

func TestProviderConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PoolSize = 7
	cfg.AllowUnfinalized = true
	p := cfg.ProviderConfig()
	if p.PoolSize != 7 || p.MaxPoolSize != 2000 || p.DefaultValue != 1000 || p.DustLimit != 546 || !p.AllowUnfinalized {
		t.Errorf("ProviderConfig = %+v", p)
	}
}

func TestBuilderConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network = "regtest"
	store := utxo.NewMemoryStore()
	pool := &provider.Provider{}

	b := cfg.BuilderConfig(store, nil, pool, nil)
	if b.Funder != nil {
		t.Error("pool wired without useprovider")
	}
	if !b.AutoFee || !b.AutoFulfill || b.Mainnet || b.DustLimit != 546 {
		t.Errorf("BuilderConfig = %+v", b)
	}
	if got, want := b.Estimator, (fee.Fixed{Amount: 10000}); got != want {
		t.Errorf("estimator: got %#v, want %#v", got, want)
	}

	cfg.UseProvider = true
	if b := cfg.BuilderConfig(store, nil, pool, nil); b.Funder != pool {
		t.Error("pool not wired with useprovider")
	}
}

func TestRPC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network = "regtest"
	cfg.RPCUser = "alice"

	rpc, err := cfg.RPC(map[string]string{network.EnvRPCURL: "http://env:1"})
	if err != nil {
		t.Fatal(err)
	}
	if rpc.URL != "http://env:1" || rpc.User != "alice" || rpc.Network != "regtest" {
		t.Errorf("RPC = %+v", rpc)
	}

	cfg.Network = "mainnet"
	if _, err := cfg.RPC(nil); !errors.Is(err, network.ErrNotConfigured) {
		t.Errorf("mainnet without url: got %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	for _, backend := range []string{StoreMemory, StoreBolt, StoreBadger} {
		t.Run(backend, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = filepath.Join(t.TempDir(), "data")
			cfg.Store = backend

			store, err := cfg.OpenStore()
			if err != nil {
				t.Fatalf("OpenStore: %v", err)
			}
			defer func() { _ = store.Close() }()

			out := &utxo.Output{Value: 1000, Script: []byte{0x51}, WalletID: "w"}
			if err := store.Upsert(out); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			if _, err := store.Get(out.Outpoint()); err != nil {
				t.Errorf("Get: %v", err)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Store = "sqlite"
	if _, err := cfg.OpenStore(); !errors.Is(err, ErrInvalidStore) {
		t.Errorf("unknown store: got %v", err)
	}
}
