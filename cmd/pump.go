// SPDX-License-Identifier: MIT OR GPL-2.0-only
// Copyright (c) 2026 IceCube20

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/IceCube20/JBC-FAE-Emulator/internal/config"
	"github.com/IceCube20/JBC-FAE-Emulator/internal/engine"
)

// Connection is the byte stream a station channel talks through, either a
// serial port or a WebSocket bridge.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrConnectionClosed reports a WebSocket transport that has already
// failed; retrying the read cannot recover it.
var ErrConnectionClosed = errors.New("websocket connection closed")

// openSerial opens the port 8-N-1 at the given rate. The serial package's
// Port is already a ReadWriteCloser and serves as the Connection directly.
func openSerial(name string, baud int) (Connection, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return port, nil
}

// wsTransport adapts a WebSocket to the Connection byte stream. Bridged
// stations put raw P02 bytes into binary messages; a message longer than
// the read buffer is handed out across several reads.
type wsTransport struct {
	conn    *websocket.Conn
	pending []byte
	dead    bool
}

func (t *wsTransport) Read(p []byte) (int, error) {
	if t.dead {
		return 0, ErrConnectionClosed
	}
	for len(t.pending) == 0 {
		kind, msg, err := t.conn.ReadMessage()
		if err != nil {
			t.dead = true
			return 0, err
		}
		// Text and control messages carry no frame bytes.
		if kind == websocket.BinaryMessage {
			t.pending = msg
		}
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *wsTransport) Write(p []byte) (int, error) {
	if err := t.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// openWebSocket dials a ws:// or wss:// bridge, optionally with HTTP Basic
// auth and optionally skipping certificate verification.
func openWebSocket(rawURL, username, password string, insecure bool) (Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme %q (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure}
	}

	header := http.Header{}
	if username != "" && password != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		header.Set("Authorization", "Basic "+cred)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

// GetPassword resolves the WebSocket password: the JBC_FAE_WS_PASSWORD
// environment variable when set, an interactive no-echo prompt otherwise.
func GetPassword() (string, error) {
	if pw := os.Getenv("JBC_FAE_WS_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(syscall.Stdin))
	if err == nil {
		return string(raw), nil
	}

	// Stdin is not a terminal; read one plain line instead.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// openChannelConnection opens the transport for one configured station
// channel. The password is resolved once by the caller and reused across
// reconnects.
func openChannelConnection(cc config.ChannelConfig, password string) (Connection, string, error) {
	if cc.URL != "" {
		conn, err := openWebSocket(cc.URL, cc.Username, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cc.URL), nil
	}

	conn, err := openSerial(cc.Port, cc.Baud)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("Serial: %s @ %d baud", cc.Port, cc.Baud), nil
}

// OpenFlagConnection opens a transport from the global connection flags,
// prompting for the WebSocket password when a username is set.
func OpenFlagConnection() (Connection, string, error) {
	if portName == "" && wsURL == "" {
		return nil, "", errors.New("either --port or --url must be specified")
	}

	password := ""
	if wsURL != "" && wsUsername != "" {
		var err error
		if password, err = GetPassword(); err != nil {
			return nil, "", err
		}
	}

	return openChannelConnection(config.ChannelConfig{
		Port:     portName,
		Baud:     baudRate,
		URL:      wsURL,
		Username: wsUsername,
	}, password)
}

// After this many consecutive read errors a transport is declared lost
// and the pump switches to reconnecting. WebSocket closes are detected
// immediately; serial errors can be transient, so a short streak is
// tolerated first.
const maxReadErrStreak = 50

// channelPump moves bytes between one transport and one station channel.
// It owns the Connection, feeds received bytes to the engine via
// QueueBytes, serves as the channel's io.Writer, and reconnects with
// exponential backoff when the transport fails.
type channelPump struct {
	log      *logrus.Logger
	cfg      config.ChannelConfig
	password string

	ch *engine.Channel

	mu   sync.RWMutex
	conn Connection
}

func newChannelPump(log *logrus.Logger, cfg config.ChannelConfig, password string, conn Connection) *channelPump {
	return &channelPump{
		log:      log,
		cfg:      cfg,
		password: password,
		conn:     conn,
	}
}

// bind attaches the engine channel. Must happen before run starts.
func (p *channelPump) bind(ch *engine.Channel) {
	p.ch = ch
}

func (p *channelPump) getConn() Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *channelPump) setConn(conn Connection) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

// Write sends reply bytes to the station. Called from the engine cycle;
// while the transport is down the write fails and the engine counts it.
func (p *channelPump) Write(b []byte) (int, error) {
	conn := p.getConn()
	if conn == nil {
		return 0, fmt.Errorf("channel %d: transport down", p.ch.Index())
	}
	return conn.Write(b)
}

// run pumps the transport until the context ends, reconnecting as needed.
func (p *channelPump) run(ctx context.Context) {
	for {
		lost := p.readFromConnection(ctx)
		if !lost {
			p.closeConn()
			return
		}

		p.log.WithField("channel", p.ch.Index()).Warn("Transport lost, reconnecting")
		if !p.reconnect(ctx) {
			return
		}
	}
}

// readFromConnection reads until the transport fails. Returns true if the
// connection was lost, false if shutdown was requested.
func (p *channelPump) readFromConnection(ctx context.Context) bool {
	buf := make([]byte, 128)
	errStreak := 0

	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		conn := p.getConn()
		if conn == nil {
			return true
		}

		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return false
			default:
			}

			// A closed WebSocket never recovers by retrying
			if errors.Is(err, ErrConnectionClosed) {
				return true
			}

			errStreak++
			if errStreak >= maxReadErrStreak {
				return true
			}

			// Brief pause before retry on transient errors (e.g., serial)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		errStreak = 0

		p.ch.QueueBytes(buf[:n])
	}
}

// reconnect attempts to reopen the transport with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (p *channelPump) reconnect(ctx context.Context) bool {
	p.closeConn()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := openChannelConnection(p.cfg, p.password)
		if err == nil {
			p.setConn(conn)
			p.log.WithFields(logrus.Fields{
				"channel":    p.ch.Index(),
				"connection": connInfo,
			}).Info("Transport reconnected")
			return true
		}

		p.log.WithField("channel", p.ch.Index()).WithError(err).Debug("Reconnect attempt failed")

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (p *channelPump) closeConn() {
	if conn := p.getConn(); conn != nil {
		conn.Close()
		p.setConn(nil)
	}
}
