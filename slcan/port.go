package slcan

import (
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// Frame is one classic CAN frame with an 11-bit identifier.
type Frame struct {
	ID   uint32
	Data []byte
}

// MaxFrameData is the classic CAN payload limit.
const MaxFrameData = 8

// CAN bitrate codes from the LAWICEL command set.
const (
	Bitrate125k = "S4"
	Bitrate250k = "S5"
	Bitrate500k = "S6"
	Bitrate1M   = "S8"
)

// PortConfig holds the serial adapter configuration.
type PortConfig struct {
	// BaudRate is the serial line speed to the adapter
	// Default is 115200
	BaudRate int

	// Bitrate is the LAWICEL CAN bitrate command
	// Default is Bitrate500k
	Bitrate string
}

// PortOption is a functional option for configuring the Port.
type PortOption func(*PortConfig)

// WithBaudRate sets the serial line speed to the adapter.
func WithBaudRate(baud int) PortOption {
	return func(c *PortConfig) {
		if baud > 0 {
			c.BaudRate = baud
		}
	}
}

// WithBitrate sets the LAWICEL CAN bitrate command, e.g. Bitrate250k.
func WithBitrate(code string) PortOption {
	return func(c *PortConfig) {
		c.Bitrate = code
	}
}

// Port is a LAWICEL SLCAN adapter on a serial device. It encodes and
// decodes classic CAN frames as ASCII command lines.
type Port struct {
	port serial.Port
	buf  []byte
}

// OpenPort opens the serial device and brings the CAN channel up:
// the channel is first closed to reach a known state, then the bitrate
// is set and the channel opened.
func OpenPort(device string, opts ...PortOption) (*Port, error) {
	cfg := PortConfig{
		BaudRate: 115200,
		Bitrate:  Bitrate500k,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	sp, err := serial.Open(device, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", device, err)
	}

	p := &Port{port: sp}
	for _, cmd := range []string{"C", cfg.Bitrate, "O"} {
		if err := p.command(cmd); err != nil {
			sp.Close()
			return nil, fmt.Errorf("adapter command %q failed: %w", cmd, err)
		}
	}
	return p, nil
}

// Close brings the CAN channel down and closes the serial device.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	p.command("C")
	err := p.port.Close()
	p.port = nil
	return err
}

// command writes one LAWICEL command line. Adapter acknowledgements are
// consumed lazily by the read path, so no reply is awaited here.
func (p *Port) command(cmd string) error {
	_, err := p.port.Write([]byte(cmd + "\r"))
	return err
}

// WriteFrame transmits one 11-bit CAN frame.
//
// Line format:
//
//	t<III><L><DD...>\r
//
// where III is the hex identifier, L the data length, and DD the data
// bytes in hex.
func (p *Port) WriteFrame(f Frame) error {
	if len(f.Data) > MaxFrameData {
		return fmt.Errorf("frame data length %d exceeds maximum %d", len(f.Data), MaxFrameData)
	}
	if f.ID > 0x7FF {
		return fmt.Errorf("identifier 0x%X does not fit 11 bits", f.ID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "t%03X%d", f.ID, len(f.Data))
	for _, b := range f.Data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	sb.WriteByte('\r')

	_, err := p.port.Write([]byte(sb.String()))
	return err
}

// ReadFrame blocks until the next CAN frame line arrives, skipping
// adapter acknowledgements and unsupported line types.
func (p *Port) ReadFrame() (Frame, error) {
	for {
		line, err := p.readLine()
		if err != nil {
			return Frame{}, err
		}
		if len(line) == 0 || line[0] != 't' {
			// "\r" ACKs, "\a" errors, extended/RTR frames: skip.
			continue
		}
		f, err := parseFrameLine(line)
		if err != nil {
			return Frame{}, err
		}
		return f, nil
	}
}

// readLine accumulates serial bytes until a line terminator.
func (p *Port) readLine() (string, error) {
	var line []byte
	for {
		for len(p.buf) > 0 {
			c := p.buf[0]
			p.buf = p.buf[1:]
			if c == '\r' || c == '\a' {
				if c == '\a' {
					return "", fmt.Errorf("adapter reported command error")
				}
				if len(line) == 0 {
					continue // bare ACK
				}
				return string(line), nil
			}
			line = append(line, c)
		}

		chunk := make([]byte, 64)
		n, err := p.port.Read(chunk)
		if err != nil {
			return "", err
		}
		p.buf = append(p.buf, chunk[:n]...)
	}
}

// parseFrameLine decodes a "tIIILDD.." line into a Frame.
func parseFrameLine(line string) (Frame, error) {
	if len(line) < 5 {
		return Frame{}, fmt.Errorf("frame line too short: %q", line)
	}
	id, err := strconv.ParseUint(line[1:4], 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("bad identifier in %q: %w", line, err)
	}
	dlc, err := strconv.Atoi(line[4:5])
	if err != nil || dlc > MaxFrameData {
		return Frame{}, fmt.Errorf("bad data length in %q", line)
	}
	// Timestamps are never enabled on the adapter, so the line length
	// must match the declared data length exactly.
	if len(line) != 5+2*dlc {
		return Frame{}, fmt.Errorf("frame line length does not match data length: %q", line)
	}
	data := make([]byte, dlc)
	for i := 0; i < dlc; i++ {
		b, err := strconv.ParseUint(line[5+2*i:7+2*i], 16, 8)
		if err != nil {
			return Frame{}, fmt.Errorf("bad data byte in %q: %w", line, err)
		}
		data[i] = byte(b)
	}
	return Frame{ID: uint32(id), Data: data}, nil
}
