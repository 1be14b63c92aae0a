// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package relaydrv

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/config"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNew_LogDriver(t *testing.T) {
	tests := []struct {
		name   string
		driver string
	}{
		{"explicit log", config.RelayDriverLog},
		{"empty defaults to log", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(quietLogger(), config.RelayConfig{Driver: tt.driver})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if err := d.Set(true); err != nil {
				t.Errorf("Set failed: %v", err)
			}
			if err := d.Set(false); err != nil {
				t.Errorf("Set failed: %v", err)
			}
			if err := d.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	if _, err := New(quietLogger(), config.RelayConfig{Driver: "smoke-signals"}); err == nil {
		t.Fatal("Unknown driver name should be rejected")
	}
}
