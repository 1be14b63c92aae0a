// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package relaydrv

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/sirupsen/logrus"
)

// Modbus defines the single-coil write values: 0xFF00 energizes, 0x0000 releases.
const (
	coilOn  = 0xFF00
	coilOff = 0x0000
)

// modbusTimeout bounds every coil write; a stuck endpoint must not stall
// the engine cycle noticeably.
const modbusTimeout = 3 * time.Second

// Modbus drives the relay through a single coil on a Modbus TCP endpoint,
// for setups where the extraction hardware hangs off a PLC.
type Modbus struct {
	log     *logrus.Logger
	handler *modbus.TCPClientHandler
	client  modbus.Client
	coil    uint16
}

// NewModbus connects to the endpoint ("host:port") and fails fast when it
// is unreachable.
func NewModbus(log *logrus.Logger, endpoint string, coil uint16) (*Modbus, error) {
	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = modbusTimeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect relay modbus endpoint %q: %w", endpoint, err)
	}

	log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"coil":     coil,
	}).Info("Relay on Modbus coil")

	return &Modbus{
		log:     log,
		handler: h,
		client:  modbus.NewClient(h),
		coil:    coil,
	}, nil
}

func (d *Modbus) Set(on bool) error {
	value := uint16(coilOff)
	if on {
		value = coilOn
	}
	_, err := d.client.WriteSingleCoil(d.coil, value)
	return err
}

func (d *Modbus) Close() error {
	return d.handler.Close()
}
