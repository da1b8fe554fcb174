// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStores = map[string]bool{
	StoreMemory: true,
	StoreBolt:   true,
	StoreBadger: true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if !validStores[cfg.Store] {
		return fmt.Errorf("%w: %q", ErrInvalidStore, cfg.Store)
	}

	switch cfg.FeeMode {
	case FeeFixed:
	case FeeAuto:
		if cfg.FeeRate == 0 {
			return fmt.Errorf("%w: auto fee needs a positive feerate", ErrInvalidFee)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidFee, cfg.FeeMode)
	}

	if cfg.DustLimit == 0 {
		return fmt.Errorf("%w: dustlimit must be positive", ErrInvalidPool)
	}
	if cfg.PoolSize < 0 || cfg.MaxPoolSize < 0 {
		return fmt.Errorf("%w: negative pool size", ErrInvalidPool)
	}
	if cfg.DefaultValue < cfg.DustLimit {
		return fmt.Errorf("%w: defaultvalue %d is below dustlimit %d", ErrInvalidPool, cfg.DefaultValue, cfg.DustLimit)
	}

	return nil
}
