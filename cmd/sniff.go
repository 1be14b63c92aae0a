// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/IceCube20/JBC-FAE-Emulator/pkg/p02"
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Decode and display P02 traffic in human-readable form",
	Long: `Continuously decode and display P02 frames as they arrive.

Shows every decoded frame with timestamp, control name and payload detail,
plus the bare line bytes (NAK, SYN, ACK, ...) exchanged outside frames
during the handshake. Useful for watching a live station link or for
verifying emulator replies.

Supports both serial and WebSocket connections.`,
	RunE: runSniff,
}

func init() {
	rootCmd.AddCommand(sniffCmd)
}

func runSniff(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenFlagConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("FAE Emulator - P02 Sniffer\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := p02.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			b := buf[i]

			// Bare line bytes between frames are handshake traffic
			if decoder.Idle() {
				if name := lineByteName(b); name != "" {
					fmt.Printf("[%s] line %s (0x%02X)\n",
						time.Now().Format("15:04:05.000"), name, b)
					continue
				}
			}

			frame, err := decoder.DecodeByte(b)
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Print(p02.FormatFrame(frame))
			}
		}
	}
}

// lineByteName names the P02 line bytes that travel outside frames.
func lineByteName(b byte) string {
	switch b {
	case p02.SOH:
		return "SOH"
	case p02.EOT:
		return "EOT"
	case p02.ACK:
		return "ACK"
	case p02.NAK:
		return "NAK"
	case p02.SYN:
		return "SYN"
	case p02.RST:
		return "RST"
	case p02.FWQ:
		return "FWQ"
	}
	return ""
}
