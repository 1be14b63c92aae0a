// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package relaydrv

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// GPIO drives the relay through one output pin, active high.
type GPIO struct {
	log *logrus.Logger
	pin gpio.PinIO
}

// NewGPIO initializes the periph host, looks the pin up by name
// ("GPIO17", "P1_11", ...) and drives it low.
func NewGPIO(log *logrus.Logger, name string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize gpio host: %w", err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to drive gpio pin %q: %w", name, err)
	}

	log.WithField("pin", pin.Name()).Info("Relay on GPIO pin")
	return &GPIO{log: log, pin: pin}, nil
}

func (d *GPIO) Set(on bool) error {
	level := gpio.Low
	if on {
		level = gpio.High
	}
	return d.pin.Out(level)
}

// Close leaves the pin driven low so the relay cannot stick on.
func (d *GPIO) Close() error {
	return d.pin.Out(gpio.Low)
}
