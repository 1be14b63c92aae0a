// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package p02

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	name := ControlName(f.Control)

	result := fmt.Sprintf("[%s] %s (%d) %02X→%02X fid=%02X len=%d\n",
		timestamp, name, f.Control, f.Source, f.Dest, f.FrameID, len(f.Data))

	if detail := FormatData(f.Control, f.Data); detail != "" {
		result += detail
	}
	return result
}

// ControlName returns the human-readable name for a control code
func ControlName(control byte) string {
	switch control {
	case CmdHandshake:
		return "HANDSHAKE"
	case CmdAck:
		return "ACK"
	case CmdNak:
		return "NAK"
	case CmdDeviceIDOriginal:
		return "READ_DEVICE_ID_ORIGINAL"
	case CmdDiscover:
		return "DISCOVER"
	case CmdReadDeviceID:
		return "READ_DEVICE_ID"
	case CmdWriteDeviceID:
		return "WRITE_DEVICE_ID"
	case CmdReset:
		return "RESET"
	case CmdFirmware:
		return "FIRMWARE"

	case CmdClearMemFlash:
		return "CLEAR_MEM_FLASH"
	case CmdSendMemAddress:
		return "SEND_MEM_ADDRESS"
	case CmdSendMemData:
		return "SEND_MEM_DATA"
	case CmdEndProgram:
		return "END_PROGRAM"
	case CmdEndUpdate:
		return "END_UPDATE"
	case CmdContinueUpdate:
		return "CONTINUE_UPDATE"
	case CmdClearing:
		return "CLEARING"
	case CmdForceUpdate:
		return "FORCE_UPDATE"

	case CmdReadSuctionLevel:
		return "READ_SUCTION_LEVEL"
	case CmdWriteSuctionLevel:
		return "WRITE_SUCTION_LEVEL"
	case CmdReadFlow:
		return "READ_FLOW"
	case CmdReadSpeed:
		return "READ_SPEED"
	case CmdReadSelectFlow:
		return "READ_SELECT_FLOW"
	case CmdWriteSelectFlow:
		return "WRITE_SELECT_FLOW"
	case CmdReadStandIntakes:
		return "READ_STAND_INTAKES"
	case CmdWriteStandIntakes:
		return "WRITE_STAND_INTAKES"
	case CmdReadIntakeActivation:
		return "READ_INTAKE_ACTIVATION"
	case CmdWriteIntakeActivation:
		return "WRITE_INTAKE_ACTIVATION"
	case CmdReadSuctionDelay:
		return "READ_SUCTION_DELAY"
	case CmdWriteSuctionDelay:
		return "WRITE_SUCTION_DELAY"
	case CmdReadDelayTime:
		return "READ_DELAY_TIME"
	case CmdWriteWorkIntakes:
		return "WRITE_WORK_INTAKES"

	case CmdReadPedalActivation:
		return "READ_PEDAL_ACTIVATION"
	case CmdWritePedalActivation:
		return "WRITE_PEDAL_ACTIVATION"
	case CmdReadPedalMode:
		return "READ_PEDAL_MODE"
	case CmdWritePedalMode:
		return "WRITE_PEDAL_MODE"
	case CmdReadFilterStatus:
		return "READ_FILTER_STATUS"
	case CmdResetFilter:
		return "RESET_FILTER"
	case CmdReadConnectedPedal:
		return "READ_CONNECTED_PEDAL"
	case CmdReadFilterSat:
		return "READ_FILTER_SATURATION"

	case CmdResetStation:
		return "RESET_STATION"
	case CmdReadPin:
		return "READ_PIN"
	case CmdWritePin:
		return "WRITE_PIN"
	case CmdReadStationLocked:
		return "READ_STATION_LOCKED"
	case CmdWriteStationLocked:
		return "WRITE_STATION_LOCKED"
	case CmdReadBeep:
		return "READ_BEEP"
	case CmdWriteBeep:
		return "WRITE_BEEP"
	case CmdReadContinuousSuction:
		return "READ_CONTINUOUS_SUCTION"
	case CmdWriteContinuousSuction:
		return "WRITE_CONTINUOUS_SUCTION"
	case CmdReadStationError:
		return "READ_STATION_ERROR"
	case CmdReadDeviceName:
		return "READ_DEVICE_NAME"
	case CmdWriteDeviceName:
		return "WRITE_DEVICE_NAME"
	case CmdReadPinEnabled:
		return "READ_PIN_ENABLED"
	case CmdWritePinEnabled:
		return "WRITE_PIN_ENABLED"

	case CmdReadCounters:
		return "READ_COUNTERS"
	case CmdResetCounters:
		return "RESET_COUNTERS"
	case CmdReadCountersPartial:
		return "READ_COUNTERS_PARTIAL"
	case CmdResetCountersPartial:
		return "RESET_COUNTERS_PARTIAL"

	case CmdReadUSBConnect:
		return "READ_USB_CONNECT"
	case CmdWriteUSBConnect:
		return "WRITE_USB_CONNECT"

	case CmdReadRobotConnConfig:
		return "READ_ROBOT_CONN_CONFIG"
	case CmdWriteRobotConnConfig:
		return "WRITE_ROBOT_CONN_CONFIG"
	case CmdReadRobotConnStatus:
		return "READ_ROBOT_CONN_STATUS"
	case CmdWriteRobotConnStatus:
		return "WRITE_ROBOT_CONN_STATUS"

	default:
		return "UNKNOWN"
	}
}

// FormatData renders the data bytes of selected control codes; everything
// else falls back to a hex dump.
func FormatData(control byte, data []byte) string {
	switch control {
	case CmdHandshake, CmdAck:
		if len(data) == 1 && data[0] == ACK {
			return "  Status: ACK\n"
		}

	case CmdFirmware, CmdReadDeviceID, CmdDeviceIDOriginal, CmdDiscover, CmdReadDeviceName:
		if len(data) > 0 && isPrintable(data) {
			return fmt.Sprintf("  Text: %q\n", string(data))
		}

	case CmdWriteSuctionLevel, CmdReadSuctionLevel:
		if len(data) == 2 {
			return fmt.Sprintf("  Port: %d, Level: %d\n", data[0], data[1])
		}

	case CmdReadFlow, CmdReadSpeed, CmdReadSelectFlow, CmdWriteSelectFlow:
		if len(data) == 3 {
			return fmt.Sprintf("  Port: %d, Value: %d\n", data[0], uint16(data[1])|uint16(data[2])<<8)
		}

	case CmdWriteWorkIntakes, CmdWriteStandIntakes, CmdReadStandIntakes:
		if len(data) == 2 {
			onOff := "off"
			if data[1] != 0 {
				onOff = "on"
			}
			return fmt.Sprintf("  Port: %d, Intake: %s\n", data[0], onOff)
		}

	case CmdReadIntakeActivation, CmdWriteIntakeActivation:
		if len(data) == 3 {
			return fmt.Sprintf("  Port: %d, Intake: %d, Active: %d\n", data[0], data[1], data[2])
		}

	case CmdReadSuctionDelay, CmdWriteSuctionDelay, CmdReadDelayTime:
		if len(data) == 4 {
			return fmt.Sprintf("  Port: %d, Intake: %d, Value: %d\n",
				data[0], data[1], uint16(data[2])|uint16(data[3])<<8)
		}

	case CmdReadStationError:
		if len(data) == 2 {
			return fmt.Sprintf("  Error Mask: 0x%04X\n", uint16(data[0])|uint16(data[1])<<8)
		}

	case CmdReadFilterStatus, CmdReadFilterSat:
		if len(data) == 2 {
			return fmt.Sprintf("  Value: %d\n", uint16(data[0])|uint16(data[1])<<8)
		}
	}

	if len(data) == 0 {
		return ""
	}
	return fmt.Sprintf("  Data: %s\n", hexBytes(data))
}

// hexBytes renders data as space-separated hex pairs.
func hexBytes(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// isPrintable reports whether every byte is printable ASCII.
func isPrintable(data []byte) bool {
	for _, b := range data {
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}
