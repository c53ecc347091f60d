package slcan

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/uds"
)

// ISO-TP (ISO 15765-2) protocol control information, high nibble of the
// first payload byte.
const (
	pciSingleFrame      = 0x0
	pciFirstFrame       = 0x1
	pciConsecutiveFrame = 0x2
	pciFlowControl      = 0x3
)

// Flow status values in a flow control frame.
const (
	flowStatusContinue = 0x0
	flowStatusWait     = 0x1
	flowStatusOverflow = 0x2
)

// maxSingleFrameData is the payload capacity of an ISO-TP single frame.
const maxSingleFrameData = 7

// FrameBus is the CAN access the transport needs. *Port satisfies it;
// tests substitute an in-memory implementation.
type FrameBus interface {
	WriteFrame(Frame) error
	ReadFrame() (Frame, error)
}

// TransportConfig holds the ISO-TP transport configuration.
type TransportConfig struct {
	// ResponseTimeout bounds each wait for a diagnostic response
	ResponseTimeout time.Duration

	// Logger receives transport diagnostics (optional)
	Logger logrus.FieldLogger
}

// TransportOption is a functional option for configuring the Transport.
type TransportOption func(*TransportConfig)

// WithResponseTimeout bounds each wait for a diagnostic response.
func WithResponseTimeout(d time.Duration) TransportOption {
	return func(c *TransportConfig) {
		if d > 0 {
			c.ResponseTimeout = d
		}
	}
}

// WithTransportLogger sets a logger for transport operations.
func WithTransportLogger(logger logrus.FieldLogger) TransportOption {
	return func(c *TransportConfig) {
		c.Logger = logger
	}
}

// Transport carries UDS requests over CAN using ISO-TP normal
// addressing: requests go out on TxID, responses come back on RxID.
// It implements uds.Transport.
type Transport struct {
	bus  FrameBus
	txID uint32
	rxID uint32
	cfg  TransportConfig
}

// NewTransport creates an ISO-TP transport on the given bus and
// identifier pair.
func NewTransport(bus FrameBus, txID, rxID uint32, opts ...TransportOption) *Transport {
	cfg := TransportConfig{ResponseTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Transport{bus: bus, txID: txID, rxID: rxID, cfg: cfg}
}

// SendPayload sends one UDS request and waits for the final response,
// segmenting and reassembling as ISO-TP requires. responsePending
// (0x78) responses restart the response wait internally.
func (t *Transport) SendPayload(ctx context.Context, payload []byte) (*uds.Response, error) {
	if err := t.send(ctx, payload); err != nil {
		return nil, err
	}
	for {
		data, err := t.receive(ctx)
		if err != nil {
			return nil, err
		}
		if uds.IsResponsePending(data) {
			t.logf("response pending (0x78), waiting for final response")
			continue
		}
		return uds.Classify(data), nil
	}
}

// send transmits payload as a single frame, or as a first frame plus
// consecutive frames paced by the receiver's flow control.
func (t *Transport) send(ctx context.Context, payload []byte) error {
	if len(payload) <= maxSingleFrameData {
		frame := make([]byte, 1+len(payload))
		frame[0] = byte(len(payload)) // SF, high nibble 0
		copy(frame[1:], payload)
		return t.bus.WriteFrame(Frame{ID: t.txID, Data: frame})
	}

	if len(payload) > 0xFFF {
		return fmt.Errorf("payload length %d exceeds ISO-TP limit 4095", len(payload))
	}

	ff := make([]byte, 8)
	ff[0] = byte(pciFirstFrame<<4) | byte(len(payload)>>8)
	ff[1] = byte(len(payload))
	copy(ff[2:], payload[:6])
	if err := t.bus.WriteFrame(Frame{ID: t.txID, Data: ff}); err != nil {
		return err
	}

	blockSize, stMin, err := t.awaitFlowControl(ctx)
	if err != nil {
		return err
	}

	seq := byte(1)
	sentInBlock := 0
	for pos := 6; pos < len(payload); {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := payload[pos:]
		if len(chunk) > 7 {
			chunk = chunk[:7]
		}
		cf := make([]byte, 1+len(chunk))
		cf[0] = byte(pciConsecutiveFrame<<4) | (seq & 0x0F)
		copy(cf[1:], chunk)
		if err := t.bus.WriteFrame(Frame{ID: t.txID, Data: cf}); err != nil {
			return err
		}
		pos += len(chunk)
		seq++
		sentInBlock++

		if pos < len(payload) && blockSize > 0 && sentInBlock >= int(blockSize) {
			if blockSize, stMin, err = t.awaitFlowControl(ctx); err != nil {
				return err
			}
			sentInBlock = 0
		}
		if stMin > 0 {
			time.Sleep(stMin)
		}
	}
	return nil
}

// awaitFlowControl reads frames until a flow control arrives, honoring
// wait frames and failing on overflow.
func (t *Transport) awaitFlowControl(ctx context.Context) (blockSize byte, stMin time.Duration, err error) {
	deadline := time.Now().Add(t.cfg.ResponseTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		if time.Now().After(deadline) {
			return 0, 0, fmt.Errorf("timed out waiting for flow control")
		}
		frame, err := t.bus.ReadFrame()
		if err != nil {
			return 0, 0, err
		}
		if frame.ID != t.rxID || len(frame.Data) < 3 || frame.Data[0]>>4 != pciFlowControl {
			continue
		}
		switch frame.Data[0] & 0x0F {
		case flowStatusContinue:
			return frame.Data[1], decodeSTmin(frame.Data[2]), nil
		case flowStatusWait:
			continue
		case flowStatusOverflow:
			return 0, 0, fmt.Errorf("receiver reported buffer overflow")
		default:
			return 0, 0, fmt.Errorf("unknown flow status 0x%X", frame.Data[0]&0x0F)
		}
	}
}

// receive reassembles one incoming ISO-TP message addressed to rxID.
func (t *Transport) receive(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(t.cfg.ResponseTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for response")
		}
		frame, err := t.bus.ReadFrame()
		if err != nil {
			return nil, err
		}
		if frame.ID != t.rxID || len(frame.Data) == 0 {
			continue
		}

		switch frame.Data[0] >> 4 {
		case pciSingleFrame:
			length := int(frame.Data[0] & 0x0F)
			if length == 0 || len(frame.Data) < 1+length {
				return nil, fmt.Errorf("malformed single frame")
			}
			return frame.Data[1 : 1+length], nil

		case pciFirstFrame:
			if len(frame.Data) < 8 {
				return nil, fmt.Errorf("malformed first frame")
			}
			total := int(frame.Data[0]&0x0F)<<8 | int(frame.Data[1])
			data := make([]byte, 0, total)
			data = append(data, frame.Data[2:]...)

			fc := Frame{ID: t.txID, Data: []byte{pciFlowControl << 4, 0x00, 0x00}}
			if err := t.bus.WriteFrame(fc); err != nil {
				return nil, err
			}
			return t.receiveConsecutive(ctx, data, total)

		default:
			// Stray flow control or consecutive frame outside a
			// transfer: skip.
			continue
		}
	}
}

// receiveConsecutive collects consecutive frames until total bytes have
// arrived, checking the rolling sequence number.
func (t *Transport) receiveConsecutive(ctx context.Context, data []byte, total int) ([]byte, error) {
	deadline := time.Now().Add(t.cfg.ResponseTimeout)
	next := byte(1)
	for len(data) < total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for consecutive frame")
		}
		frame, err := t.bus.ReadFrame()
		if err != nil {
			return nil, err
		}
		if frame.ID != t.rxID || len(frame.Data) == 0 || frame.Data[0]>>4 != pciConsecutiveFrame {
			continue
		}
		if seq := frame.Data[0] & 0x0F; seq != next {
			return nil, fmt.Errorf("consecutive frame out of order: got %d, want %d", seq, next)
		}
		next = (next + 1) & 0x0F
		data = append(data, frame.Data[1:]...)
	}
	return data[:total], nil
}

// decodeSTmin converts the STmin byte to a pause duration. Values
// 0x00-0x7F are milliseconds; 0xF1-0xF9 are 100-900 microseconds.
func decodeSTmin(b byte) time.Duration {
	switch {
	case b <= 0x7F:
		return time.Duration(b) * time.Millisecond
	case b >= 0xF1 && b <= 0xF9:
		return time.Duration(b-0xF0) * 100 * time.Microsecond
	default:
		return 0
	}
}

func (t *Transport) logf(format string, args ...interface{}) {
	if t.cfg.Logger != nil {
		t.cfg.Logger.Debugf(format, args...)
	}
}
