// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/config"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/engine"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/metrics"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/persist"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/relaydrv"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/station"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fume extractor emulator",
	Long: `Run the emulator against one or more stations.

Opens the configured channel transports, answers the P02 handshake and
serves parameter commands until interrupted. Operator commands are read
from stdin; type "help" at the console for the command set.

Channel 0 can be given on the command line (--port or --url); further
channels, relay driver, telemetry endpoints and persistence come from
the YAML config file.`,
	RunE: runEmulator,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// loadRunConfig builds the effective configuration from the config file
// and the connection flags. Flags take precedence for channel 0.
func loadRunConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if portName != "" || wsURL != "" {
		flagChannel := config.ChannelConfig{
			Port:     portName,
			Baud:     baudRate,
			URL:      wsURL,
			Username: wsUsername,
		}
		if len(cfg.Channels) == 0 {
			cfg.Channels = []config.ChannelConfig{flagChannel}
		} else {
			cfg.Channels[0] = flagChannel
		}
	}

	config.Normalize(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// assembleEmulator wires state, relay, persistence, transports and
// telemetry into a ready-to-run engine. Transport pumps and telemetry
// run on goroutines bound to ctx.
func assembleEmulator(ctx context.Context, log *logrus.Logger) (*engine.Engine, *config.Config, error) {
	cfg, err := loadRunConfig()
	if err != nil {
		return nil, nil, err
	}

	driver, err := relaydrv.New(log, cfg.Relay)
	if err != nil {
		return nil, nil, err
	}

	e := engine.New(log, cfg, station.NewState(),
		engine.NewRelayCoordinator(log, driver), persist.NewStore(cfg.PersistPath))

	// A password prompt is answered at most once and shared by all
	// WebSocket channels that authenticate.
	password := ""
	for _, cc := range cfg.Channels {
		if cc.URL != "" && cc.Username != "" {
			password, err = GetPassword()
			if err != nil {
				return nil, nil, err
			}
			break
		}
	}

	var pumps []*channelPump
	for _, cc := range cfg.Channels {
		conn, connInfo, err := openChannelConnection(cc, password)
		if err != nil {
			for _, p := range pumps {
				p.closeConn()
			}
			return nil, nil, err
		}

		pump := newChannelPump(log, cc, password, conn)
		ch, err := e.AddChannel(pump)
		if err != nil {
			conn.Close()
			for _, p := range pumps {
				p.closeConn()
			}
			return nil, nil, err
		}
		pump.bind(ch)
		pumps = append(pumps, pump)

		log.WithFields(logrus.Fields{
			"channel":    ch.Index(),
			"connection": connInfo,
		}).Info("Channel attached")
	}
	for _, p := range pumps {
		go p.run(ctx)
	}

	e.RestorePersisted()

	if cfg.Telemetry.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(log, cfg.Telemetry.MetricsAddr, e.Snapshot); err != nil {
				log.WithError(err).Error("Metrics endpoint failed")
			}
		}()
	}
	if cfg.Telemetry.RedisAddr != "" {
		go telemetry.NewMirror(log, cfg.Telemetry.RedisAddr, e.Snapshot).Run(ctx)
	}

	return e, cfg, nil
}

func runEmulator(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, cfg, err := assembleEmulator(ctx, log)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"channels": len(cfg.Channels),
		"relay":    cfg.Relay.Driver,
		"persist":  cfg.PersistPath,
	}).Info("FAE emulator running")

	go runConsole(log, e)

	err = e.Run(ctx)
	log.Info("FAE emulator stopped")
	return err
}
