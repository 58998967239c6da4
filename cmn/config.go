/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/flowmq/flowmq/sys"
)

// Config is the on-disk daemon configuration: TCP address, TLS material,
// shard count, storage root, log directory, and the bootstrap credentials
// for the root account. Everything has a usable default so `flowmqd` can
// start with no config file at all for local development.
type Config struct {
	Net struct {
		Address string `json:"address"`
		TLS     struct {
			Enabled  bool   `json:"enabled"`
			CertFile string `json:"cert_file"`
			KeyFile  string `json:"key_file"`
		} `json:"tls"`
		KeepaliveSec int `json:"keepalive_sec"`
	} `json:"net"`
	ShardCount int `json:"shard_count"` // 0 = one per CPU
	Storage    struct {
		Path string `json:"path"`
	} `json:"storage"`
	Log struct {
		Dir       string `json:"dir"`
		Verbosity int    `json:"verbosity"`
	} `json:"log"`
	Auth struct {
		RootUsername string `json:"root_username"`
		RootPassword string `json:"root_password"`
		SigningKey   string `json:"signing_key"`
	} `json:"auth"`
	Metrics struct {
		Address string `json:"address"` // empty = no /metrics endpoint
	} `json:"metrics"`
}

// DefaultConfig returns the configuration flowmqd runs with when no file is
// given: loopback TCP, per-CPU shards, an in-memory storage database.
func DefaultConfig() *Config {
	c := &Config{}
	c.Net.Address = "127.0.0.1:8090"
	c.Storage.Path = ":memory:"
	c.Auth.RootUsername = "root"
	c.Auth.RootPassword = "flowmq"
	c.Auth.SigningKey = "flowmq-dev-signing-key"
	return c
}

// LoadConfig reads and validates a JSON config file, filling unset fields
// from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %q", path)
	}
	if err := jsoniter.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %q", path)
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validate config %q", path)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Net.Address == "" {
		return errors.New("net.address must not be empty")
	}
	if c.Net.TLS.Enabled && (c.Net.TLS.CertFile == "" || c.Net.TLS.KeyFile == "") {
		return errors.New("net.tls.cert_file and net.tls.key_file are required when TLS is enabled")
	}
	if c.ShardCount < 0 {
		return errors.Errorf("shard_count must be >= 0, got %d", c.ShardCount)
	}
	if c.Auth.RootUsername == "" || c.Auth.RootPassword == "" {
		return errors.New("auth.root_username and auth.root_password must not be empty")
	}
	return nil
}

// NumShards resolves the configured shard count, defaulting to one shard per
// (container-aware) CPU.
func (c *Config) NumShards() int {
	if c.ShardCount > 0 {
		return c.ShardCount
	}
	return sys.NumCPU()
}

func (c *Config) Keepalive() time.Duration {
	return time.Duration(c.Net.KeepaliveSec) * time.Second
}
