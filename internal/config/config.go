// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keychain.
//
// go-keychain is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads keymintd's runtime configuration: the boot-time
// version identity a Context reports through GetVersion2, the operation
// table size, the confirmation buffer limit, the enabled soft algorithm
// list, and the RKP endpoint-encryption-key trust anchor path. The
// confirmation buffer limit, the algorithm list and the trust anchor path
// are loaded here but not read by any other package: the key factory
// table always holds all four soft algorithms, and GenerateCsr does not
// consult the trust anchor.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-keymint/pkg/keymint"
)

// ParseKmVersion maps the server.km_version string onto a keymint.KmVersion.
func ParseKmVersion(s string) (keymint.KmVersion, error) {
	switch strings.ToLower(s) {
	case "keymaster1":
		return keymint.KeyMaster1, nil
	case "keymaster2":
		return keymint.KeyMaster2, nil
	case "keymaster3":
		return keymint.KeyMaster3, nil
	case "keymaster4":
		return keymint.KeyMaster4, nil
	case "keymint1":
		return keymint.KeyMint1, nil
	case "keymint2":
		return keymint.KeyMint2, nil
	case "keymint3":
		return keymint.KeyMint3, nil
	default:
		return 0, fmt.Errorf("config: unknown server.km_version %q", s)
	}
}

// ServerConfig carries the version identity a Context reports at boot and
// the sizing of the dispatcher's operation table.
type ServerConfig struct {
	OSVersion              uint32 `mapstructure:"os_version"`
	OSPatchlevel           uint32 `mapstructure:"os_patchlevel"`
	KmVersion              string `mapstructure:"km_version"`
	OperationTableCapacity int    `mapstructure:"operation_table_capacity"`
	KmDate                 int64  `mapstructure:"km_date"`
}

// LoggingConfig controls logger verbosity and output shape.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IsDebug reports whether the configured level enables debug logging.
func (l LoggingConfig) IsDebug() bool {
	return strings.EqualFold(l.Level, "debug")
}

// RateLimitConfig mirrors ratelimit.Config so it can be decoded straight
// off the wire and handed to ratelimit.New.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// MetricsConfig controls whether a prometheus registry is created and
// where its instruments are exposed for scraping.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// StorageConfig selects the SecureKeyStorage backend. Only "memory" is
// currently implemented; "file" is reserved for a future on-disk backend
// rooted at Path.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// KeyMintConfig holds the leaves that are specific to running a pure
// software KeyMint context: key material locations, which algorithms the
// factory table exposes, and RKP trust configuration.
type KeyMintConfig struct {
	MasterKeyPath           string   `mapstructure:"master_key_path"`
	RootOfTrustPath         string   `mapstructure:"root_of_trust_path"`
	ConfirmationBufferLimit int      `mapstructure:"confirmation_buffer_limit"`
	EnabledAlgorithms       []string `mapstructure:"enabled_algorithms"`
	RKPTestMode             bool     `mapstructure:"rkp_test_mode"`
	TrustedEEKRootPath      string   `mapstructure:"trusted_eek_root_path"`
}

// Config is the complete keymintd configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Storage   StorageConfig   `mapstructure:"storage"`
	KeyMint   KeyMintConfig   `mapstructure:"keymint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.os_version", uint32(150000))
	v.SetDefault("server.os_patchlevel", uint32(202601))
	v.SetDefault("server.km_version", "keymint3")
	v.SetDefault("server.operation_table_capacity", 16)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests_per_minute", 600)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9464")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("keymint.confirmation_buffer_limit", 16)
	v.SetDefault("keymint.enabled_algorithms", []string{"aes", "hmac", "ec", "rsa"})
	v.SetDefault("keymint.rkp_test_mode", true)
}

// Load reads configuration from path (any format viper understands: yaml,
// json, toml) through fs, applies KEYMINTD_-prefixed environment overrides,
// and validates the result. fs lets callers substitute an in-memory
// filesystem in tests without touching disk.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix("KEYMINTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the decoded configuration for internally-consistent
// values Load cannot catch through defaults alone.
func (c *Config) Validate() error {
	if c.Server.OperationTableCapacity <= 0 {
		return fmt.Errorf("server.operation_table_capacity must be positive")
	}
	if c.KeyMint.MasterKeyPath == "" {
		return fmt.Errorf("keymint.master_key_path is required")
	}
	if c.KeyMint.ConfirmationBufferLimit <= 0 {
		return fmt.Errorf("keymint.confirmation_buffer_limit must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "memory", "file":
	default:
		return fmt.Errorf("unsupported storage.backend: %s", c.Storage.Backend)
	}
	for _, alg := range c.KeyMint.EnabledAlgorithms {
		switch strings.ToLower(alg) {
		case "aes", "hmac", "ec", "rsa":
		default:
			return fmt.Errorf("unsupported keymint.enabled_algorithms entry: %s", alg)
		}
	}
	return nil
}

// HasAlgorithm reports whether alg (e.g. "aes", "ec") is in the enabled
// algorithm list.
func (c *Config) HasAlgorithm(alg string) bool {
	for _, a := range c.KeyMint.EnabledAlgorithms {
		if strings.EqualFold(a, alg) {
			return true
		}
	}
	return false
}
