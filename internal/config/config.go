// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package config loads and checks the emulator configuration: channel
// transports, identity strings, protocol frame IDs, timing, relay driver
// selection, and telemetry endpoints.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Channels    []ChannelConfig `yaml:"channels"`
	Identity    IdentityConfig  `yaml:"identity"`
	Protocol    ProtocolConfig  `yaml:"protocol"`
	Timing      TimingConfig    `yaml:"timing"`
	Relay       RelayConfig     `yaml:"relay"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	PersistPath string          `yaml:"persist_path"`
}

// ---- CHANNEL ----

// ChannelConfig selects one transport: a serial port or a websocket URL,
// never both.
type ChannelConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	URL      string `yaml:"url"`
	Username string `yaml:"username"`
}

// ---- IDENTITY ----

type IdentityConfig struct {
	Firmware  string `yaml:"firmware"`   // "<protocol>:<model>:<capability>:<software>:<hardware>"
	FactoryID string `yaml:"factory_id"` // factory identity, conventionally 32 hex chars
	Name      string `yaml:"name"`
}

// ---- PROTOCOL ----

type ProtocolConfig struct {
	HandshakeFID byte `yaml:"handshake_fid"`
	AppFID       byte `yaml:"app_fid"`
}

// ---- TIMING ----

type TimingConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
	LinkTimeoutMs  int `yaml:"link_timeout_ms"`
	SaveDebounceMs int `yaml:"save_debounce_ms"`
}

func (t TimingConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

func (t TimingConfig) LinkTimeout() time.Duration {
	return time.Duration(t.LinkTimeoutMs) * time.Millisecond
}

func (t TimingConfig) SaveDebounce() time.Duration {
	return time.Duration(t.SaveDebounceMs) * time.Millisecond
}

// ---- RELAY ----

// Relay driver names accepted in RelayConfig.Driver.
const (
	RelayDriverLog    = "log"
	RelayDriverGPIO   = "gpio"
	RelayDriverModbus = "modbus"
)

type RelayConfig struct {
	Driver        string `yaml:"driver"`
	GPIOPin       string `yaml:"gpio_pin"`
	ModbusAddress string `yaml:"modbus_address"`
	ModbusCoil    uint16 `yaml:"modbus_coil"`
}

// ---- TELEMETRY ----

// TelemetryConfig enables optional status consumers. An empty address
// disables that consumer.
type TelemetryConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	RedisAddr   string `yaml:"redis_addr"`
}

// Default returns the configuration used when a field (or the whole file)
// is absent. Channels are deliberately empty: the caller supplies at least
// one, from the file or from flags.
func Default() *Config {
	return &Config{
		Identity: IdentityConfig{
			Firmware:  "02:FAE:B:0103:0100",
			FactoryID: "0102030405060708090A0B0C0D0E0F10",
			Name:      "FAE-EMU",
		},
		Protocol: ProtocolConfig{
			HandshakeFID: 0x00,
			AppFID:       0x02,
		},
		Timing: TimingConfig{
			PollIntervalMs: 20,
			LinkTimeoutMs:  10000,
			SaveDebounceMs: 3000,
		},
		Relay: RelayConfig{
			Driver: RelayDriverLog,
		},
		Telemetry: TelemetryConfig{
			MetricsAddr: ":9833",
		},
		PersistPath: "fae-state.cbor",
	}
}

// Load reads a YAML file over the defaults. Fields the file does not
// mention keep their default values. The result is normalized but not yet
// validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	Normalize(cfg)
	return cfg, nil
}

// Normalize fills derivable per-channel defaults. It may mutate the
// configuration and runs before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		if ch.Port != "" && ch.Baud == 0 {
			ch.Baud = 115200
		}
	}
}
