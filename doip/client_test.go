package doip

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway emulates a DoIP gateway on the far end of a net.Pipe. It
// handles routing activation, acknowledges diagnostic messages, and
// answers them through the respond callback.
type fakeGateway struct {
	conn           net.Conn
	ecuAddress     uint16
	activationCode byte
	respond        func(userData []byte) [][]byte
}

func (g *fakeGateway) run() {
	for {
		msg, err := ReadMessage(g.conn)
		if err != nil {
			return
		}
		switch msg.PayloadType {
		case PayloadTypeRoutingActivationRequest:
			resp := make([]byte, 9)
			copy(resp[0:2], msg.Payload[0:2])
			resp[2] = byte(g.ecuAddress >> 8)
			resp[3] = byte(g.ecuAddress)
			resp[4] = g.activationCode
			g.conn.Write(EncodeMessage(PayloadTypeRoutingActivationResponse, resp))

		case PayloadTypeDiagnosticMessage:
			dm, err := DecodeDiagnosticMessage(msg.Payload)
			if err != nil {
				return
			}
			ack := append(EncodeDiagnosticMessage(g.ecuAddress, dm.SourceAddress, nil), 0x00)
			g.conn.Write(EncodeMessage(PayloadTypeDiagnosticPositiveACK, ack))
			if g.respond == nil {
				continue
			}
			for _, answer := range g.respond(dm.UserData) {
				reply := EncodeDiagnosticMessage(g.ecuAddress, dm.SourceAddress, answer)
				g.conn.Write(EncodeMessage(PayloadTypeDiagnosticMessage, reply))
			}
		}
	}
}

func newTestClient(t *testing.T, gw *fakeGateway) *Client {
	t.Helper()
	clientSide, gatewaySide := net.Pipe()
	gw.conn = gatewaySide
	go gw.run()
	t.Cleanup(func() {
		clientSide.Close()
		gatewaySide.Close()
	})

	return New("gateway",
		WithECUAddress(gw.ecuAddress),
		WithConnectRetries(1),
		WithConnectTimeout(time.Second),
		WithResponseTimeout(time.Second),
		withDialer(func(ctx context.Context, address string) (net.Conn, error) {
			return clientSide, nil
		}),
	)
}

func TestClientConnectAndSend(t *testing.T) {
	gw := &fakeGateway{
		ecuAddress:     0x1234,
		activationCode: RoutingActivationSuccess,
		respond: func(userData []byte) [][]byte {
			require.Equal(t, []byte{0x10, 0x03}, userData)
			return [][]byte{{0x50, 0x03}}
		},
	}
	client := newTestClient(t, gw)

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	resp, err := client.SendPayload(ctx, []byte{0x10, 0x03})
	require.NoError(t, err)
	assert.True(t, resp.Positive())
	assert.Equal(t, []byte{0x50, 0x03}, resp.Payload)
}

func TestClientRoutingActivationRefused(t *testing.T) {
	gw := &fakeGateway{
		ecuAddress:     0x1234,
		activationCode: RoutingActivationDeniedWrongSource,
	}
	client := newTestClient(t, gw)

	err := client.Connect(context.Background())
	var raErr *RoutingActivationError
	require.True(t, errors.As(err, &raErr))
	assert.Equal(t, RoutingActivationDeniedWrongSource, raErr.ResponseCode)
}

func TestClientResponsePending(t *testing.T) {
	gw := &fakeGateway{
		ecuAddress:     0x1234,
		activationCode: RoutingActivationSuccess,
		respond: func(userData []byte) [][]byte {
			// Two pending frames before the real answer; the client
			// must absorb them and return only the final response.
			return [][]byte{
				{0x7F, userData[0], 0x78},
				{0x7F, userData[0], 0x78},
				{0x71, 0x01, 0x02, 0x02},
			}
		},
	}
	client := newTestClient(t, gw)

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	resp, err := client.SendPayload(ctx, []byte{0x31, 0x01, 0x02, 0x02})
	require.NoError(t, err)
	assert.True(t, resp.Positive())
	assert.Equal(t, []byte{0x71, 0x01, 0x02, 0x02}, resp.Payload)
}

func TestClientNegativeResponse(t *testing.T) {
	gw := &fakeGateway{
		ecuAddress:     0x1234,
		activationCode: RoutingActivationSuccess,
		respond: func(userData []byte) [][]byte {
			return [][]byte{{0x7F, userData[0], 0x33}}
		},
	}
	client := newTestClient(t, gw)

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	resp, err := client.SendPayload(ctx, []byte{0x27, 0x01})
	require.NoError(t, err)
	assert.False(t, resp.Positive())
	assert.Equal(t, byte(0x33), resp.Code)
	assert.Equal(t, "SecurityAccessDenied", resp.CodeName)
}

func TestClientSendBeforeConnect(t *testing.T) {
	client := New("gateway")
	_, err := client.SendPayload(context.Background(), []byte{0x3E, 0x00})
	var ncErr *NotConnectedError
	require.True(t, errors.As(err, &ncErr))
}

func TestClientResponseTimeout(t *testing.T) {
	gw := &fakeGateway{
		ecuAddress:     0x1234,
		activationCode: RoutingActivationSuccess,
		respond: func(userData []byte) [][]byte {
			return nil // ACK only, never answer
		},
	}
	client := newTestClient(t, gw)
	client.cfg.ResponseTimeout = 50 * time.Millisecond

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	_, err := client.SendPayload(ctx, []byte{0x3E, 0x00})
	require.Error(t, err)
}
