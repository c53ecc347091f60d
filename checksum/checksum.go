// Package checksum provides the pluggable checksum strategies used to
// fingerprint firmware segments before transfer.
//
// A Strategy is pure: the same input bytes always produce the same output
// bytes, so callers may treat Calculate as a referentially transparent
// function. Strategies hold no mutable session state.
package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// Type identifies a checksum algorithm in configuration files.
type Type string

// Supported checksum types.
const (
	TypeCRC32  Type = "crc32"
	TypeMD5    Type = "md5"
	TypeSHA256 Type = "sha256"
)

// CRC32Size is the length in bytes of a CRC32 checksum.
const CRC32Size = 4

// Strategy computes a checksum over arbitrary byte data.
type Strategy interface {
	// Calculate returns the checksum of data as raw bytes.
	Calculate(data []byte) ([]byte, error)
}

// UnsupportedAlgorithmError indicates that no strategy is registered for a
// checksum type.
type UnsupportedAlgorithmError struct {
	Type Type
}

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("unsupported checksum algorithm: %q", string(e.Type))
}

// New returns the strategy registered for the given type.
// Unknown types return an *UnsupportedAlgorithmError.
//
// Example:
//
//	strategy, err := checksum.New(checksum.TypeCRC32)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sum, _ := strategy.Calculate(data)
func New(t Type) (Strategy, error) {
	ctor, ok := registry[t]
	if !ok {
		return nil, &UnsupportedAlgorithmError{Type: t}
	}
	return ctor(), nil
}

var registry = map[Type]func() Strategy{
	TypeCRC32:  func() Strategy { return crc32Strategy{} },
	TypeMD5:    func() Strategy { return md5Strategy{} },
	TypeSHA256: func() Strategy { return sha256Strategy{} },
}

// crc32Strategy produces the 4-byte big-endian representation of the
// standard CRC-32 (IEEE 802.3) value.
type crc32Strategy struct{}

func (crc32Strategy) Calculate(data []byte) ([]byte, error) {
	sum := make([]byte, CRC32Size)
	binary.BigEndian.PutUint32(sum, crc32.ChecksumIEEE(data))
	return sum, nil
}

// md5Strategy produces the 16-byte MD5 digest.
type md5Strategy struct{}

func (md5Strategy) Calculate(data []byte) ([]byte, error) {
	sum := md5.Sum(data)
	return sum[:], nil
}

// sha256Strategy produces the 32-byte SHA-256 digest.
type sha256Strategy struct{}

func (sha256Strategy) Calculate(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// UnmarshalJSON validates the type against the registry so configuration
// errors surface at load time instead of at checksum-compute time.
func (t *Type) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if _, ok := registry[Type(s)]; !ok {
		return &UnsupportedAlgorithmError{Type: Type(s)}
	}
	*t = Type(s)
	return nil
}

// MarshalJSON encodes the type as its string name.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(t))
}
