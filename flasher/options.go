package flasher

import "github.com/YEZZESDXHN/DoIP-Client-sub000/firmware"

// DefaultEventBuffer is the default capacity of the event channel.
const DefaultEventBuffer = 256

// Logger is an optional logging interface mirroring the executor's event
// stream into a logging framework.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// SecurityProvider exposes the security key computed by a prior
// SecurityAccess seed/key exchange. The executor only reads it, when
// building a send-key payload; a nil or empty key disables the
// SecurityAccess payload substitution.
type SecurityProvider interface {
	SecurityKey() []byte
}

// StaticKey is a SecurityProvider wrapping a fixed key.
type StaticKey []byte

// SecurityKey returns the key bytes.
func (k StaticKey) SecurityKey() []byte { return k }

// SegmentLoader parses one firmware file into ordered memory segments.
// The default loader is firmware.Parse; tests inject synthetic loaders.
type SegmentLoader func(path string) ([]firmware.Segment, error)

func defaultSegmentLoader(path string) ([]firmware.Segment, error) {
	img, err := firmware.Parse(path)
	if err != nil {
		return nil, err
	}
	return img.Segments(), nil
}

type execConfig struct {
	logger      Logger
	security    SecurityProvider
	loader      SegmentLoader
	eventBuffer int
}

func defaultExecConfig() execConfig {
	return execConfig{
		loader:      defaultSegmentLoader,
		eventBuffer: DefaultEventBuffer,
	}
}

// Option is a functional option for configuring the Executor.
type Option func(*execConfig)

// WithLogger mirrors events into a logging framework.
func WithLogger(logger Logger) Option {
	return func(c *execConfig) {
		c.logger = logger
	}
}

// WithSecurityProvider supplies the security key source used for
// SecurityAccess send-key steps.
func WithSecurityProvider(p SecurityProvider) Option {
	return func(c *execConfig) {
		c.security = p
	}
}

// WithSegmentLoader replaces the firmware file loader. Useful for tests
// and for callers that pre-parse their images.
func WithSegmentLoader(loader SegmentLoader) Option {
	return func(c *execConfig) {
		if loader != nil {
			c.loader = loader
		}
	}
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(c *execConfig) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}
