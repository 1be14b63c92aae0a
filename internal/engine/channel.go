// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package engine

import (
	"io"
	"sync"
	"time"

	"github.com/IceCube20/JBC-FAE-Emulator/pkg/p02"
)

// MaxChannels is the number of station channels the emulator serves.
const MaxChannels = 2

// Channel is one station link: a transport, the byte queue its pump fills,
// and the per-channel protocol state. All fields except the rx queue are
// touched only from the engine cycle.
type Channel struct {
	index  int
	writer io.Writer

	mu sync.Mutex
	rx []byte

	hs    *p02.Handshake
	dec   *p02.Decoder
	stats *p02.Statistics

	ownAddr  byte // address adopted from the station's handshake
	locked   bool
	peerAddr byte
	link     p02.LinkState
	identity []byte

	active       bool
	pendingReset bool // framed reset request, applied after the ack is out

	lastByte   time.Time
	lastReply  time.Time
	lastIntake time.Time
}

func newChannel(index int, w io.Writer) *Channel {
	return &Channel{
		index:  index,
		writer: w,
		hs:     p02.NewHandshake(),
		dec:    p02.NewDecoder(),
		stats:  p02.NewStatistics(),
		link:   p02.LinkDown,
		active: true,
	}
}

// Index returns the channel's position, 0-based.
func (c *Channel) Index() int {
	return c.index
}

// QueueBytes hands received transport bytes to the engine. Safe to call
// from the transport pump goroutine; the bytes are consumed at the next
// engine cycle.
func (c *Channel) QueueBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	c.mu.Lock()
	c.rx = append(c.rx, p...)
	c.mu.Unlock()
}

// drainRx takes everything queued so far.
func (c *Channel) drainRx() []byte {
	c.mu.Lock()
	out := c.rx
	c.rx = nil
	c.mu.Unlock()
	return out
}

// send writes raw bytes to the transport.
func (c *Channel) send(p []byte) error {
	if c.writer == nil {
		return nil
	}
	_, err := c.writer.Write(p)
	if err != nil {
		c.stats.WriteErrors++
	}
	return err
}
