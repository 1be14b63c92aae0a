package p02

import "fmt"

// EncodeFrame builds the complete wire image for a frame: marker, stuffed
// body, checksum, and trailing terminator.
// The body (header, data, and BCC) has every 0x10 doubled; the delimiters
// are transmitted raw.
func EncodeFrame(f *Frame) ([]byte, error) {
	if len(f.Data) > MaxDataLen {
		return nil, fmt.Errorf("data too large: %d bytes (max %d)", len(f.Data), MaxDataLen)
	}

	body := make([]byte, 0, HeaderLen+len(f.Data)+1)
	body = append(body, f.Source, f.Dest, f.FrameID, f.Control, byte(len(f.Data)))
	body = append(body, f.Data...)
	body = append(body, Checksum(body))

	wire := make([]byte, 0, len(body)*2+4)
	wire = append(wire, DLE, STX)
	wire = stuffBytes(wire, body)
	wire = append(wire, DLE, ETX)
	return wire, nil
}

// MustEncodeFrame encodes a frame and panics on error. Intended for
// fixed-size replies whose data length is known to be in range.
func MustEncodeFrame(f *Frame) []byte {
	wire, err := EncodeFrame(f)
	if err != nil {
		panic(fmt.Sprintf("p02: encode error: %v", err))
	}
	return wire
}

// stuffBytes appends body to dst, doubling every DLE so the receiver never
// mistakes a data byte for a marker.
func stuffBytes(dst, body []byte) []byte {
	for _, b := range body {
		if b == DLE {
			dst = append(dst, DLE, DLE)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// UnstuffBytes removes DLE doubling from an escaped body. This is the
// inverse of stuffBytes for well-formed input.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escaped := false

	for _, b := range data {
		if escaped {
			if b != DLE {
				return nil, fmt.Errorf("%w: 0x10 0x%02X", ErrEscape, b)
			}
			result = append(result, DLE)
			escaped = false
		} else if b == DLE {
			escaped = true
		} else {
			result = append(result, b)
		}
	}

	if escaped {
		return nil, fmt.Errorf("%w: dangling 0x10 at end of data", ErrEscape)
	}

	return result, nil
}
