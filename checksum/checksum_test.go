package checksum

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestCRC32KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{
			// The CRC-32 check value: crc32("123456789") == 0xCBF43926.
			name:  "check value",
			input: []byte("123456789"),
			want:  []byte{0xCB, 0xF4, 0x39, 0x26},
		},
		{
			name:  "empty input",
			input: nil,
			want:  []byte{0x00, 0x00, 0x00, 0x00},
		},
		{
			name:  "single byte",
			input: []byte{0x00},
			want:  []byte{0xD2, 0x02, 0xEF, 0x8D},
		},
	}

	strategy, err := New(TypeCRC32)
	if err != nil {
		t.Fatalf("New(TypeCRC32) error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := strategy.Calculate(tt.input)
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Calculate() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestCalculateDeterministic(t *testing.T) {
	for _, typ := range []Type{TypeCRC32, TypeMD5, TypeSHA256} {
		t.Run(string(typ), func(t *testing.T) {
			strategy, err := New(typ)
			if err != nil {
				t.Fatalf("New(%q) error: %v", typ, err)
			}
			input := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}
			first, err := strategy.Calculate(input)
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			second, err := strategy.Calculate(input)
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			if !bytes.Equal(first, second) {
				t.Errorf("Calculate() not deterministic: % X vs % X", first, second)
			}
		})
	}
}

func TestDigestSizes(t *testing.T) {
	tests := []struct {
		typ  Type
		size int
	}{
		{TypeCRC32, 4},
		{TypeMD5, 16},
		{TypeSHA256, 32},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			strategy, err := New(tt.typ)
			if err != nil {
				t.Fatalf("New(%q) error: %v", tt.typ, err)
			}
			sum, err := strategy.Calculate([]byte("firmware"))
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			if len(sum) != tt.size {
				t.Errorf("len(Calculate()) = %d, want %d", len(sum), tt.size)
			}
		})
	}
}

func TestNewUnsupported(t *testing.T) {
	_, err := New(Type("crc16"))
	if err == nil {
		t.Fatal("New(crc16) expected error, got nil")
	}
	var unsupported *UnsupportedAlgorithmError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error type = %T, want *UnsupportedAlgorithmError", err)
	}
	if unsupported.Type != Type("crc16") {
		t.Errorf("unsupported.Type = %q, want %q", unsupported.Type, "crc16")
	}
}

func TestTypeJSONRoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeCRC32, TypeMD5, TypeSHA256} {
		raw, err := json.Marshal(typ)
		if err != nil {
			t.Fatalf("Marshal(%q) error: %v", typ, err)
		}
		var got Type
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", raw, err)
		}
		if got != typ {
			t.Errorf("round trip = %q, want %q", got, typ)
		}
	}

	var got Type
	if err := json.Unmarshal([]byte(`"adler32"`), &got); err == nil {
		t.Error("Unmarshal(adler32) expected error, got nil")
	}
}
