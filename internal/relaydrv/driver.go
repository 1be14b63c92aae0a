// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

// Package relaydrv provides the hardware backends for the relay output:
// a log-only driver for bench use, a GPIO pin, and a Modbus coil. The
// coordinator in internal/engine drives whichever one is configured.
package relaydrv

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/config"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/engine"
)

// New builds the driver selected by the relay configuration. An empty
// driver name means log-only.
func New(log *logrus.Logger, cfg config.RelayConfig) (engine.Driver, error) {
	switch cfg.Driver {
	case "", config.RelayDriverLog:
		return NewLog(log), nil
	case config.RelayDriverGPIO:
		return NewGPIO(log, cfg.GPIOPin)
	case config.RelayDriverModbus:
		return NewModbus(log, cfg.ModbusAddress, cfg.ModbusCoil)
	}
	return nil, fmt.Errorf("unknown relay driver %q", cfg.Driver)
}

// Log is the bench driver: no hardware, every transition goes to the log.
type Log struct {
	log *logrus.Logger
}

// NewLog creates the log-only driver.
func NewLog(log *logrus.Logger) *Log {
	return &Log{log: log}
}

func (d *Log) Set(on bool) error {
	d.log.WithField("on", on).Info("Relay (log driver)")
	return nil
}

func (d *Log) Close() error {
	return nil
}
