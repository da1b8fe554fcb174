// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads the library's settings from a key=value file and
// turns them into the objects the other packages take.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitfsorg/libtoken-go/color"
	"github.com/bitfsorg/libtoken-go/fee"
	"github.com/bitfsorg/libtoken-go/log"
	"github.com/bitfsorg/libtoken-go/network"
	"github.com/bitfsorg/libtoken-go/provider"
	"github.com/bitfsorg/libtoken-go/tx"
	"github.com/bitfsorg/libtoken-go/txbuilder"
	"github.com/bitfsorg/libtoken-go/utxo"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreBadger = "badger"
)

// Fee modes.
const (
	FeeFixed = "fixed"
	FeeAuto  = "auto"
)

// Config holds every setting read from the config file.
type Config struct {
	DataDir  string
	Network  string
	LogLevel string
	LogFile  string
	LogJSON  bool

	RPCURL  string
	RPCUser string
	RPCPass string

	Store string

	FeeMode  string
	FixedFee uint64
	// FeeRate is satoshis per 1000 bytes.
	FeeRate      uint64
	FeeSponsored bool

	UseProvider      bool
	PoolSize         int
	MaxPoolSize      int
	DefaultValue     uint64
	DustLimit        uint64
	AllowUnfinalized bool
}

// DefaultDataDir returns ~/.libtoken, or .libtoken when the home directory
// is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".libtoken"
	}
	return filepath.Join(home, ".libtoken")
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() Config {
	pool := provider.DefaultConfig()
	return Config{
		DataDir:      DefaultDataDir(),
		Network:      "mainnet",
		LogLevel:     "info",
		Store:        StoreBolt,
		FeeMode:      FeeFixed,
		FixedFee:     10000,
		FeeRate:      1000,
		PoolSize:     pool.PoolSize,
		MaxPoolSize:  pool.MaxPoolSize,
		DefaultValue: pool.DefaultValue,
		DustLimit:    tx.DustLimit,
	}
}

// field binds a config key to its Config member.
type field struct {
	key string
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringField(key string, p func(c *Config) *string) field {
	return field{
		key: key,
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func uintField(key string, p func(c *Config) *uint64) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatUint(*p(c), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return err
			}
			*p(c) = n
			return nil
		},
	}
}

func intField(key string, p func(c *Config) *int) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(key string, p func(c *Config) *bool) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p(c) = b
			return nil
		},
	}
}

// fields lists the keys in file order.
var fields = []field{
	stringField("datadir", func(c *Config) *string { return &c.DataDir }),
	stringField("network", func(c *Config) *string { return &c.Network }),
	stringField("loglevel", func(c *Config) *string { return &c.LogLevel }),
	stringField("logfile", func(c *Config) *string { return &c.LogFile }),
	boolField("logjson", func(c *Config) *bool { return &c.LogJSON }),
	stringField("rpcurl", func(c *Config) *string { return &c.RPCURL }),
	stringField("rpcuser", func(c *Config) *string { return &c.RPCUser }),
	stringField("rpcpass", func(c *Config) *string { return &c.RPCPass }),
	stringField("store", func(c *Config) *string { return &c.Store }),
	stringField("feemode", func(c *Config) *string { return &c.FeeMode }),
	uintField("fixedfee", func(c *Config) *uint64 { return &c.FixedFee }),
	uintField("feerate", func(c *Config) *uint64 { return &c.FeeRate }),
	boolField("feesponsored", func(c *Config) *bool { return &c.FeeSponsored }),
	boolField("useprovider", func(c *Config) *bool { return &c.UseProvider }),
	intField("poolsize", func(c *Config) *int { return &c.PoolSize }),
	intField("maxpoolsize", func(c *Config) *int { return &c.MaxPoolSize }),
	uintField("defaultvalue", func(c *Config) *uint64 { return &c.DefaultValue }),
	uintField("dustlimit", func(c *Config) *uint64 { return &c.DustLimit }),
	boolField("allowunfinalized", func(c *Config) *bool { return &c.AllowUnfinalized }),
}

// LoadConfig reads path over DefaultConfig. Lines are key=value; blank
// lines and lines starting with # are skipped and unknown keys ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	byKey := make(map[string]field, len(fields))
	for _, fd := range fields {
		byKey[fd.key] = fd
	}

	sc := bufio.NewScanner(f)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		fd, known := byKey[key]
		if !known {
			log.Logger.Warn().Str("key", key).Int("line", lineNo).Msg("ignoring unknown config key")
			continue
		}
		if err := fd.set(&cfg, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %s: %w", ErrInvalidConfigLine, lineNo, key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}

	var b strings.Builder
	b.WriteString("# libtoken configuration\n")
	for _, fd := range fields {
		fmt.Fprintf(&b, "%s=%s\n", fd.key, fd.get(&cfg))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// InitLogging applies the log settings to the global logger.
func (c Config) InitLogging() error {
	return log.Init(c.LogLevel, c.LogJSON, c.LogFile)
}

// FeeEstimator returns the estimator the settings select. A sponsored
// configuration charges nothing whatever the mode.
func (c Config) FeeEstimator() fee.Estimator {
	switch {
	case c.FeeSponsored:
		return fee.Sponsored{}
	case c.FeeMode == FeeAuto:
		return fee.Auto{RatePerKB: c.FeeRate}
	default:
		return fee.Fixed{Amount: c.FixedFee}
	}
}

// ProviderConfig returns the funding pool parameters.
func (c Config) ProviderConfig() provider.Config {
	return provider.Config{
		PoolSize:         c.PoolSize,
		MaxPoolSize:      c.MaxPoolSize,
		DefaultValue:     c.DefaultValue,
		DustLimit:        c.DustLimit,
		AllowUnfinalized: c.AllowUnfinalized,
	}
}

// BuilderConfig wires a transaction builder for sender. pool funds fees
// and funding outputs only when UseProvider is set; otherwise the sender's
// wallet pays.
func (c Config) BuilderConfig(store utxo.Repository, sender txbuilder.Signer, pool *provider.Provider, reg color.Registry) txbuilder.Config {
	cfg := txbuilder.Config{
		Store:            store,
		Sender:           sender,
		Estimator:        c.FeeEstimator(),
		Registry:         reg,
		AutoFee:          true,
		AutoFulfill:      true,
		AllowUnfinalized: c.AllowUnfinalized,
		DustLimit:        c.DustLimit,
		Mainnet:          c.Network == "mainnet",
	}
	if c.UseProvider {
		cfg.Funder = pool
	}
	return cfg
}

// RPC resolves the node connection from the file settings, env and the
// network presets.
func (c Config) RPC(env map[string]string) (*network.RPCConfig, error) {
	return network.ResolveConfig(&network.RPCConfig{
		URL:      c.RPCURL,
		User:     c.RPCUser,
		Password: c.RPCPass,
	}, env, c.Network)
}

// Store is an output repository that holds resources until closed.
type Store interface {
	utxo.Repository
	Close() error
}

type memoryStore struct{ *utxo.MemoryStore }

func (memoryStore) Close() error { return nil }

// OpenStore opens the configured repository under DataDir.
func (c Config) OpenStore() (Store, error) {
	switch c.Store {
	case StoreMemory:
		return memoryStore{utxo.NewMemoryStore()}, nil
	case StoreBolt, StoreBadger:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStore, c.Store)
	}

	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("config: create data dir: %w", err)
	}
	if c.Store == StoreBolt {
		s, err := utxo.OpenBoltStore(filepath.Join(c.DataDir, "utxo.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := utxo.OpenBadgerStore(filepath.Join(c.DataDir, "utxo.badger"))
	if err != nil {
		return nil, err
	}
	return s, nil
}
