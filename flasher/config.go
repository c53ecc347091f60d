package flasher

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/checksum"
	"github.com/YEZZESDXHN/DoIP-Client-sub000/uds"
)

// DefaultParameterLength is the byte width used for numeric substitutions
// when the configuration does not specify one.
const DefaultParameterLength = 4

// HexBytes is a byte slice that marshals to and from a hex string in JSON,
// matching how step templates are edited and stored.
type HexBytes []byte

// MarshalJSON encodes the bytes as an upper-case hex string.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToUpper(hex.EncodeToString(h)))
}

// UnmarshalJSON decodes a hex string, ignoring spaces between byte pairs.
func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	*h = decoded
	return nil
}

// TransmissionParameters is the immutable per-session transfer configuration.
type TransmissionParameters struct {
	// ChecksumType selects the segment checksum algorithm
	ChecksumType checksum.Type `json:"checksum_type"`

	// MaxNumberOfBlockLength is the transport's maximum single-frame
	// payload, including the 2-byte TransferData header
	MaxNumberOfBlockLength int `json:"max_number_of_block_length"`

	// MemoryAddressParameterLength is the byte width used when
	// serializing segment addresses into step payloads
	MemoryAddressParameterLength int `json:"memory_address_parameter_length"`

	// MemorySizeParameterLength is the byte width used when serializing
	// segment sizes into step payloads
	MemorySizeParameterLength int `json:"memory_size_parameter_length"`
}

// FileConfig identifies one firmware artifact among possibly several
// flashed independently (e.g. application plus calibration).
type FileConfig struct {
	// Name is the unique key referenced by step tokens
	Name string `json:"name"`

	// DefaultPath is used when the caller supplies no explicit path
	DefaultPath string `json:"default_path,omitempty"`
}

// Step is one diagnostic action in the flash script: either a local
// utility invocation (IsCall) or a protocol send built from a fixed
// byte template plus resolved external-data tokens.
type Step struct {
	StepName string `json:"step_name"`

	// IsCall selects a local utility call instead of a protocol send
	IsCall bool `json:"is_call,omitempty"`

	// Data is the fixed template prefix (service ID + sub-function)
	Data HexBytes `json:"data,omitempty"`

	// ExternalData lists tokens resolved against the variable store
	// and appended to Data, in order
	ExternalData []string `json:"external_data,omitempty"`

	// ExpRespData, when non-empty, is compared against the leading
	// bytes of the positive response
	ExpRespData HexBytes `json:"exp_resp_data,omitempty"`
}

// FlashConfig is the declarative flash script: file list, ordered step
// list, and transmission parameters. Step order is execution order.
type FlashConfig struct {
	Files                  []FileConfig           `json:"files"`
	Steps                  []Step                 `json:"steps"`
	TransmissionParameters TransmissionParameters `json:"transmission_parameters"`
}

// LoadConfig reads a JSON flash configuration from disk, applies defaults,
// and validates it.
//
// Example:
//
//	cfg, err := flasher.LoadConfig("flash.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfig(path string) (*FlashConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := &FlashConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON.
func (c *FlashConfig) Save(path string) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *FlashConfig) applyDefaults() {
	if c.TransmissionParameters.ChecksumType == "" {
		c.TransmissionParameters.ChecksumType = checksum.TypeCRC32
	}
	if c.TransmissionParameters.MemoryAddressParameterLength <= 0 {
		c.TransmissionParameters.MemoryAddressParameterLength = DefaultParameterLength
	}
	if c.TransmissionParameters.MemorySizeParameterLength <= 0 {
		c.TransmissionParameters.MemorySizeParameterLength = DefaultParameterLength
	}
}

// Validate checks the configuration for problems that would otherwise
// surface mid-run: duplicate file names, send steps without a template,
// and a block length too small to carry TransferData frames.
func (c *FlashConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Files))
	for _, f := range c.Files {
		if f.Name == "" {
			return fmt.Errorf("file config with empty name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate file name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}

	for i, step := range c.Steps {
		if step.IsCall {
			continue
		}
		if len(step.Data) == 0 {
			return fmt.Errorf("step %d (%q): send step with empty data template", i, step.StepName)
		}
		if step.Data[0] == uds.ServiceTransferData && c.TransmissionParameters.MaxNumberOfBlockLength <= transferDataHeaderSize {
			return fmt.Errorf("step %d (%q): max_number_of_block_length %d cannot carry TransferData frames",
				i, step.StepName, c.TransmissionParameters.MaxNumberOfBlockLength)
		}
	}
	return nil
}
