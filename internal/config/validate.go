// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package config

import "fmt"

// MaxChannels is the number of station channels the emulator will serve.
const MaxChannels = 2

// Validate checks configuration correctness. It performs declarative
// validation only and does not mutate the configuration.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// CHANNELS
	// ------------------------------------------------------------

	if len(cfg.Channels) == 0 {
		return fmt.Errorf("no channels configured")
	}
	if len(cfg.Channels) > MaxChannels {
		return fmt.Errorf("%d channels configured, at most %d supported", len(cfg.Channels), MaxChannels)
	}

	for i, ch := range cfg.Channels {
		hasPort := ch.Port != ""
		hasURL := ch.URL != ""

		if hasPort && hasURL {
			return fmt.Errorf("channel %d: port and url are mutually exclusive", i)
		}
		if !hasPort && !hasURL {
			return fmt.Errorf("channel %d: needs either port or url", i)
		}
		if hasPort && ch.Baud <= 0 {
			return fmt.Errorf("channel %d: baud must be positive, got %d", i, ch.Baud)
		}
	}

	// ------------------------------------------------------------
	// IDENTITY
	// ------------------------------------------------------------

	for _, s := range []struct {
		field string
		value string
	}{
		{"identity.firmware", cfg.Identity.Firmware},
		{"identity.factory_id", cfg.Identity.FactoryID},
		{"identity.name", cfg.Identity.Name},
	} {
		for i := 0; i < len(s.value); i++ {
			if s.value[i] < 0x20 || s.value[i] > 0x7E {
				return fmt.Errorf("%s must contain printable ASCII only", s.field)
			}
		}
	}
	if cfg.Identity.Firmware == "" {
		return fmt.Errorf("identity.firmware must not be empty")
	}
	if len(cfg.Identity.Name) > 32 {
		return fmt.Errorf("identity.name exceeds 32 bytes")
	}

	// ------------------------------------------------------------
	// PROTOCOL
	// ------------------------------------------------------------

	if cfg.Protocol.HandshakeFID == cfg.Protocol.AppFID {
		return fmt.Errorf("protocol: handshake_fid and app_fid must differ, both 0x%02X",
			cfg.Protocol.HandshakeFID)
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	if cfg.Timing.PollIntervalMs <= 0 {
		return fmt.Errorf("timing.poll_interval_ms must be positive, got %d", cfg.Timing.PollIntervalMs)
	}
	if cfg.Timing.LinkTimeoutMs <= 0 {
		return fmt.Errorf("timing.link_timeout_ms must be positive, got %d", cfg.Timing.LinkTimeoutMs)
	}
	if cfg.Timing.SaveDebounceMs <= 0 {
		return fmt.Errorf("timing.save_debounce_ms must be positive, got %d", cfg.Timing.SaveDebounceMs)
	}

	// ------------------------------------------------------------
	// RELAY DRIVER
	// ------------------------------------------------------------

	switch cfg.Relay.Driver {
	case RelayDriverLog:
	case RelayDriverGPIO:
		if cfg.Relay.GPIOPin == "" {
			return fmt.Errorf("relay: gpio driver needs gpio_pin")
		}
	case RelayDriverModbus:
		if cfg.Relay.ModbusAddress == "" {
			return fmt.Errorf("relay: modbus driver needs modbus_address")
		}
	default:
		return fmt.Errorf("relay: unknown driver %q", cfg.Relay.Driver)
	}

	// ------------------------------------------------------------
	// PERSISTENCE
	// ------------------------------------------------------------

	if cfg.PersistPath == "" {
		return fmt.Errorf("persist_path must not be empty")
	}

	return nil
}
