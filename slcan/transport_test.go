package slcan

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBus records transmitted frames and plays back a scripted
// list of received frames, optionally generated after each write.
type scriptedBus struct {
	sent    []Frame
	rx      []Frame
	onWrite func(f Frame)
}

func (b *scriptedBus) WriteFrame(f Frame) error {
	b.sent = append(b.sent, f)
	if b.onWrite != nil {
		b.onWrite(f)
	}
	return nil
}

func (b *scriptedBus) ReadFrame() (Frame, error) {
	if len(b.rx) == 0 {
		return Frame{}, io.EOF
	}
	f := b.rx[0]
	b.rx = b.rx[1:]
	return f, nil
}

func (b *scriptedBus) queue(id uint32, data ...byte) {
	b.rx = append(b.rx, Frame{ID: id, Data: data})
}

const (
	testTxID = 0x7E0
	testRxID = 0x7E8
)

func TestSendPayloadSingleFrame(t *testing.T) {
	bus := &scriptedBus{}
	bus.queue(testRxID, 0x02, 0x50, 0x03)

	tr := NewTransport(bus, testTxID, testRxID)
	resp, err := tr.SendPayload(context.Background(), []byte{0x10, 0x03})
	require.NoError(t, err)

	require.Len(t, bus.sent, 1)
	assert.Equal(t, Frame{ID: testTxID, Data: []byte{0x02, 0x10, 0x03}}, bus.sent[0])

	assert.True(t, resp.Positive())
	assert.Equal(t, []byte{0x50, 0x03}, resp.Payload)
}

func TestSendPayloadMultiFrame(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	bus := &scriptedBus{}
	bus.onWrite = func(f Frame) {
		if len(f.Data) == 0 {
			return
		}
		switch {
		case f.Data[0]>>4 == pciFirstFrame:
			// Flow control: continue, no block limit, no STmin.
			bus.queue(testRxID, 0x30, 0x00, 0x00)
		case f.Data[0] == 0x22:
			// Final response once the last consecutive frame lands.
			bus.queue(testRxID, 0x01, 0x76)
		}
	}

	tr := NewTransport(bus, testTxID, testRxID)
	resp, err := tr.SendPayload(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, resp.Positive())

	// FF carrying 6 bytes, then CFs carrying 7+7.
	require.Len(t, bus.sent, 3)
	assert.Equal(t, []byte{0x10, 0x14, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05}, bus.sent[0].Data)
	assert.Equal(t, byte(0x21), bus.sent[1].Data[0])
	assert.Equal(t, payload[6:13], bus.sent[1].Data[1:])
	assert.Equal(t, byte(0x22), bus.sent[2].Data[0])
	assert.Equal(t, payload[13:20], bus.sent[2].Data[1:])
}

func TestSendPayloadBlockSize(t *testing.T) {
	payload := make([]byte, 27) // FF(6) + 3 CFs

	fcCount := 0
	bus := &scriptedBus{}
	bus.onWrite = func(f Frame) {
		if len(f.Data) == 0 {
			return
		}
		// Block size 2: a fresh flow control is due after the first
		// frame and again after every second consecutive frame. The
		// first one is preceded by a wait frame the sender must retry
		// through.
		switch {
		case f.Data[0]>>4 == pciFirstFrame:
			fcCount++
			bus.queue(testRxID, 0x31, 0x00, 0x00)
			bus.queue(testRxID, 0x30, 0x02, 0x00)
		case f.Data[0] == 0x22:
			fcCount++
			bus.queue(testRxID, 0x30, 0x02, 0x00)
		case f.Data[0] == 0x23:
			bus.queue(testRxID, 0x01, 0x76)
		}
	}

	tr := NewTransport(bus, testTxID, testRxID)
	_, err := tr.SendPayload(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 2, fcCount)
	assert.Len(t, bus.sent, 4) // FF + 3 CFs
}

func TestReceiveMultiFrame(t *testing.T) {
	bus := &scriptedBus{}
	// 0x62 response spanning FF + 2 CFs: 18 bytes total.
	bus.queue(testRxID, 0x10, 0x12, 0x62, 0xF1, 0x90, 0x01, 0x02, 0x03)
	bus.queue(testRxID, 0x21, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A)
	bus.queue(testRxID, 0x22, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F)

	tr := NewTransport(bus, testTxID, testRxID)
	resp, err := tr.SendPayload(context.Background(), []byte{0x22, 0xF1, 0x90})
	require.NoError(t, err)

	assert.True(t, resp.Positive())
	assert.Len(t, resp.Payload, 18)
	assert.Equal(t, []byte{0x62, 0xF1, 0x90}, resp.Payload[:3])
	assert.Equal(t, byte(0x0F), resp.Payload[17])

	// Request SF, then flow control for the incoming first frame.
	require.Len(t, bus.sent, 2)
	assert.Equal(t, []byte{0x30, 0x00, 0x00}, bus.sent[1].Data)
}

func TestReceiveOutOfOrderConsecutive(t *testing.T) {
	bus := &scriptedBus{}
	bus.queue(testRxID, 0x10, 0x12, 0x62, 0xF1, 0x90, 0x01, 0x02, 0x03)
	bus.queue(testRxID, 0x22, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A)

	tr := NewTransport(bus, testTxID, testRxID)
	_, err := tr.SendPayload(context.Background(), []byte{0x22, 0xF1, 0x90})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")
}

func TestSendPayloadResponsePending(t *testing.T) {
	bus := &scriptedBus{}
	bus.queue(testRxID, 0x03, 0x7F, 0x31, 0x78)
	bus.queue(testRxID, 0x03, 0x7F, 0x31, 0x78)
	bus.queue(testRxID, 0x04, 0x71, 0x01, 0xFF, 0x00)

	tr := NewTransport(bus, testTxID, testRxID)
	resp, err := tr.SendPayload(context.Background(), []byte{0x31, 0x01, 0xFF, 0x00})
	require.NoError(t, err)
	assert.True(t, resp.Positive())
	assert.Equal(t, []byte{0x71, 0x01, 0xFF, 0x00}, resp.Payload)
}

func TestSendPayloadIgnoresOtherIDs(t *testing.T) {
	bus := &scriptedBus{}
	bus.queue(0x123, 0x02, 0xAA, 0xBB) // unrelated traffic
	bus.queue(testRxID, 0x02, 0x50, 0x03)

	tr := NewTransport(bus, testTxID, testRxID)
	resp, err := tr.SendPayload(context.Background(), []byte{0x10, 0x03})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x50, 0x03}, resp.Payload)
}

func TestSendPayloadFlowControlOverflow(t *testing.T) {
	bus := &scriptedBus{}
	bus.onWrite = func(f Frame) {
		// 0x32 is flow status 2, receiver buffer overflow.
		if len(f.Data) > 0 && f.Data[0]>>4 == pciFirstFrame {
			bus.queue(testRxID, 0x32, 0x00, 0x00)
		}
	}

	tr := NewTransport(bus, testTxID, testRxID)
	_, err := tr.SendPayload(context.Background(), make([]byte, 20))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflow")
}

func TestSendPayloadTooLong(t *testing.T) {
	tr := NewTransport(&scriptedBus{}, testTxID, testRxID)
	_, err := tr.SendPayload(context.Background(), make([]byte, 4096))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds ISO-TP limit")
}

func TestSendPayloadContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bus := &scriptedBus{}
	bus.onWrite = func(f Frame) {
		if len(f.Data) > 0 && f.Data[0]>>4 == pciFirstFrame {
			bus.queue(testRxID, 0x30, 0x00, 0x00)
		}
	}

	tr := NewTransport(bus, testTxID, testRxID)
	_, err := tr.SendPayload(ctx, make([]byte, 20))
	require.Error(t, err)
}

func TestDecodeSTmin(t *testing.T) {
	tests := []struct {
		name  string
		input byte
		want  time.Duration
	}{
		{name: "zero", input: 0x00, want: 0},
		{name: "milliseconds", input: 0x14, want: 20 * time.Millisecond},
		{name: "max milliseconds", input: 0x7F, want: 127 * time.Millisecond},
		{name: "microsecond range", input: 0xF3, want: 300 * time.Microsecond},
		{name: "reserved", input: 0xA0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeSTmin(tt.input))
		})
	}
}
