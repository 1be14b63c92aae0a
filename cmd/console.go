// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/engine"
)

const consoleHelp = `Commands:
  get <param>            Show one device parameter
  set <param> <value>    Change one device parameter
  status                 Show station, relay and channel summary
  work <channel> on|off  Assert or release a channel's work signal
  error <mask>           Force the station error mask (e.g. 0x0102, 0 clears)
  channels <n>           Serve only the first n channels
  wipe                   Erase persisted state on disk
  help                   Show this help
  quit                   Save settings and exit

Parameters:
  suction select_flow delay_work delay_stand work_active stand_active
  pedal pedal_mode pedal_connected continuous usb beep lock pin
  pin_enabled name filter_status filter_sat
Read-only: flow speed error`

// execCommand applies one operator command line to the engine and returns
// the operator-visible response. Shared by the stdin console and the TUI
// command field.
func execCommand(e *engine.Engine, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch fields[0] {
	case "help":
		return consoleHelp, nil

	case "get":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: get <param>")
		}
		snap := e.Snapshot()
		if snap == nil {
			return "", fmt.Errorf("engine has not completed a cycle yet")
		}
		value, ok := snap.Param(fields[1])
		if !ok {
			return "", fmt.Errorf("unknown parameter %q", fields[1])
		}
		return fmt.Sprintf("%s = %s", fields[1], value), nil

	case "set":
		if len(fields) < 3 {
			return "", fmt.Errorf("usage: set <param> <value>")
		}
		// Device names may contain spaces
		value := strings.Join(fields[2:], " ")
		op, err := engine.SetParam(fields[1], value)
		if err != nil {
			return "", err
		}
		e.Submit(op)
		return "ok", nil

	case "status":
		snap := e.Snapshot()
		if snap == nil {
			return "", fmt.Errorf("engine has not completed a cycle yet")
		}
		return formatStatus(snap), nil

	case "work":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: work <channel> on|off")
		}
		channel, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("bad channel %q", fields[1])
		}
		on, err := parseSwitch(fields[2])
		if err != nil {
			return "", err
		}
		e.Submit(engine.Work(channel, on))
		return "ok", nil

	case "error":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: error <mask>")
		}
		mask, err := strconv.ParseUint(fields[1], 0, 16)
		if err != nil {
			return "", fmt.Errorf("bad error mask %q", fields[1])
		}
		e.Submit(engine.ForceError(uint16(mask)))
		return "ok", nil

	case "channels":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: channels <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", fmt.Errorf("bad channel count %q", fields[1])
		}
		e.Submit(engine.SetChannelCount(n))
		return "ok", nil

	case "wipe":
		e.Submit(engine.WipePersisted())
		return "persisted state wiped", nil

	case "quit", "exit":
		e.Submit(engine.Quit())
		return "shutting down", nil
	}

	return "", fmt.Errorf("unknown command %q, try \"help\"", fields[0])
}

func parseSwitch(value string) (bool, error) {
	switch value {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("bad switch value %q, want on or off", value)
}

// formatStatus renders the status summary for the console.
func formatStatus(snap *engine.Snapshot) string {
	var s strings.Builder

	relay := "OFF"
	if snap.RelayOn {
		relay = "ON"
	}
	afterRun := "-"
	if snap.AfterRunOwner >= 0 {
		afterRun = fmt.Sprintf("ch%d %s", snap.AfterRunOwner, snap.AfterRunRemaining.Round(100*time.Millisecond))
	}

	fmt.Fprintf(&s, "station  %s  suction=%d flow=%d/%d filter=%d error=0x%04X\n",
		snap.Settings.Name, snap.Settings.SuctionLevel, snap.Flow,
		snap.Settings.SelectFlow, snap.Settings.FilterStatus, snap.ErrorMask)
	fmt.Fprintf(&s, "relay    %s  work_mask=0x%02X after_run=%s transitions=%d\n",
		relay, snap.WorkMask, afterRun, snap.RelayTransitions)

	for _, ch := range snap.Channels {
		state := "disabled"
		if ch.Active {
			state = ch.Link.String()
		}
		fmt.Fprintf(&s, "chan %d   %-10s addr=0x%02X locked=%t frames=%d/%d replies=%d errors=%d\n",
			ch.Index, state, ch.OwnAddress, ch.AddressLocked,
			ch.FramesValid, ch.FramesTotal, ch.RepliesSent, ch.Errors)
	}

	return strings.TrimRight(s.String(), "\n")
}

// runConsole reads operator commands from stdin until EOF. Losing stdin
// does not stop the emulator; the console is an optional surface.
func runConsole(log *logrus.Logger, e *engine.Engine) {
	fmt.Println(`FAE emulator console ready, type "help" for commands`)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp, err := execCommand(e, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if resp != "" {
			fmt.Println(resp)
		}
	}

	log.Debug("Operator console closed")
}
