package doip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/uds"
)

// DefaultClientLogicalAddress is the tester logical address used when
// the configuration does not specify one.
const DefaultClientLogicalAddress uint16 = 0x0E00

// Config holds the DoIP client configuration.
type Config struct {
	// ECULogicalAddress is the target ECU's logical address
	ECULogicalAddress uint16

	// ClientLogicalAddress is this tester's logical address
	// Default is 0x0E00
	ClientLogicalAddress uint16

	// ActivationType is the routing activation type (0x00 default)
	ActivationType byte

	// ConnectTimeout bounds the TCP dial plus routing activation
	ConnectTimeout time.Duration

	// ResponseTimeout bounds each wait for a diagnostic response
	ResponseTimeout time.Duration

	// ConnectRetries is the number of connection attempts
	ConnectRetries uint

	// Logger receives client diagnostics (optional)
	Logger logrus.FieldLogger

	// dial allows tests to substitute the TCP dialer
	dial func(ctx context.Context, address string) (net.Conn, error)
}

func defaultConfig() Config {
	return Config{
		ClientLogicalAddress: DefaultClientLogicalAddress,
		ConnectTimeout:       5 * time.Second,
		ResponseTimeout:      5 * time.Second,
		ConnectRetries:       3,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithECUAddress sets the target ECU's logical address.
func WithECUAddress(addr uint16) Option {
	return func(c *Config) {
		c.ECULogicalAddress = addr
	}
}

// WithClientAddress sets this tester's logical address.
// Default is 0x0E00.
func WithClientAddress(addr uint16) Option {
	return func(c *Config) {
		c.ClientLogicalAddress = addr
	}
}

// WithActivationType sets the routing activation type.
func WithActivationType(t byte) Option {
	return func(c *Config) {
		c.ActivationType = t
	}
}

// WithConnectTimeout bounds the TCP dial plus routing activation handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ConnectTimeout = d
		}
	}
}

// WithResponseTimeout bounds each wait for a diagnostic response.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResponseTimeout = d
		}
	}
}

// WithConnectRetries sets the number of connection attempts.
func WithConnectRetries(n uint) Option {
	return func(c *Config) {
		if n > 0 {
			c.ConnectRetries = n
		}
	}
}

// WithLogger sets a logger for client operations.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// withDialer substitutes the TCP dialer. Used by tests.
func withDialer(dial func(ctx context.Context, address string) (net.Conn, error)) Option {
	return func(c *Config) {
		c.dial = dial
	}
}

// Client is a DoIP tester endpoint carrying UDS diagnostics over TCP.
// It implements uds.Transport once connected.
//
// A Client is safe for use from one goroutine at a time; concurrent
// SendPayload calls are serialized internally.
type Client struct {
	address string
	cfg     Config

	mu   sync.Mutex
	conn net.Conn
}

// New creates a DoIP client for the given "host:port" address. The port
// may be omitted, in which case the DoIP default 13400 is used.
func New(address string, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, fmt.Sprintf("%d", DefaultPort))
	}
	return &Client{address: address, cfg: cfg}
}

// Connect dials the gateway and performs routing activation. Transient
// dial failures are retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dial := c.cfg.dial
	if dial == nil {
		dial = func(ctx context.Context, address string) (net.Conn, error) {
			d := net.Dialer{}
			return d.DialContext(ctx, "tcp", address)
		}
	}

	err := retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
			defer cancel()

			conn, err := dial(attemptCtx, c.address)
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", c.address, err)
			}
			if err := c.activateRouting(conn); err != nil {
				conn.Close()
				return err
			}
			c.conn = conn
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.ConnectRetries),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Activation refusals are not transient.
			var raErr *RoutingActivationError
			return !errors.As(err, &raErr)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logf("connect attempt %d failed: %v", n+1, err)
		}),
	)
	if err != nil {
		return err
	}
	c.logf("connected to %s, routing activated", c.address)
	return nil
}

// Close terminates the TCP session. It is safe to call on an
// unconnected client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// activateRouting performs the routing activation handshake on a fresh
// connection, consuming frames until the activation response arrives.
func (c *Client) activateRouting(conn net.Conn) error {
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	defer conn.SetDeadline(time.Time{})

	req := EncodeRoutingActivationRequest(c.cfg.ClientLogicalAddress, c.cfg.ActivationType)
	if _, err := conn.Write(EncodeMessage(PayloadTypeRoutingActivationRequest, req)); err != nil {
		return fmt.Errorf("failed to send routing activation: %w", err)
	}

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return fmt.Errorf("failed to read routing activation response: %w", err)
		}
		switch msg.PayloadType {
		case PayloadTypeRoutingActivationResponse:
			resp, err := DecodeRoutingActivationResponse(msg.Payload)
			if err != nil {
				return err
			}
			if resp.ResponseCode != RoutingActivationSuccess {
				return &RoutingActivationError{ResponseCode: resp.ResponseCode}
			}
			return nil
		case PayloadTypeAliveCheckRequest:
			ack := EncodeAliveCheckResponse(c.cfg.ClientLogicalAddress)
			if _, err := conn.Write(EncodeMessage(PayloadTypeAliveCheckResponse, ack)); err != nil {
				return err
			}
		default:
			c.logf("ignoring payload type 0x%04X during activation", msg.PayloadType)
		}
	}
}

// SendPayload sends one UDS request and waits for the final response.
// It implements uds.Transport: the diagnostic message is acknowledged
// by the gateway, then the ECU response is read; responsePending (0x78)
// responses restart the response wait internally, so callers only ever
// see the final answer.
func (c *Client) SendPayload(ctx context.Context, payload []byte) (*uds.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, &NotConnectedError{}
	}

	diag := EncodeDiagnosticMessage(c.cfg.ClientLogicalAddress, c.cfg.ECULogicalAddress, payload)
	if err := c.writeFrame(ctx, EncodeMessage(PayloadTypeDiagnosticMessage, diag)); err != nil {
		return nil, fmt.Errorf("failed to send diagnostic message: %w", err)
	}

	for {
		msg, err := c.readFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read diagnostic response: %w", err)
		}

		switch msg.PayloadType {
		case PayloadTypeDiagnosticPositiveACK:
			// Transmission confirmed, keep waiting for the ECU response.

		case PayloadTypeDiagnosticNegativeACK:
			code, err := DecodeDiagnosticACK(msg.Payload)
			if err != nil {
				return nil, err
			}
			return nil, &NegativeACKError{NACKCode: code}

		case PayloadTypeDiagnosticMessage:
			dm, err := DecodeDiagnosticMessage(msg.Payload)
			if err != nil {
				return nil, err
			}
			if dm.SourceAddress != c.cfg.ECULogicalAddress {
				c.logf("ignoring diagnostic message from unexpected address 0x%04X", dm.SourceAddress)
				continue
			}
			if uds.IsResponsePending(dm.UserData) {
				c.logf("response pending (0x78), waiting for final response")
				continue
			}
			return uds.Classify(dm.UserData), nil

		case PayloadTypeAliveCheckRequest:
			ack := EncodeAliveCheckResponse(c.cfg.ClientLogicalAddress)
			if err := c.writeFrame(ctx, EncodeMessage(PayloadTypeAliveCheckResponse, ack)); err != nil {
				return nil, err
			}

		case PayloadTypeGenericNACK:
			code := byte(0xFF)
			if len(msg.Payload) > 0 {
				code = msg.Payload[0]
			}
			return nil, &ProtocolError{Reason: fmt.Sprintf("generic NACK 0x%02X", code)}

		default:
			c.logf("ignoring payload type 0x%04X", msg.PayloadType)
		}
	}
}

// writeFrame writes one frame under the context deadline plus the
// configured response timeout.
func (c *Client) writeFrame(ctx context.Context, frame []byte) error {
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	_, err := c.conn.Write(frame)
	return err
}

// readFrame reads one frame under the context deadline plus the
// configured response timeout.
func (c *Client) readFrame(ctx context.Context) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		return nil, err
	}
	return ReadMessage(c.conn)
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debugf(format, args...)
	}
}
