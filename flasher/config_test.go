package flasher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/checksum"
)

func TestHexBytesJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    HexBytes
		wantErr bool
	}{
		{name: "plain hex", input: `"3601"`, want: HexBytes{0x36, 0x01}},
		{name: "spaced hex", input: `"36 01 AB"`, want: HexBytes{0x36, 0x01, 0xAB}},
		{name: "lower case", input: `"de ad"`, want: HexBytes{0xDE, 0xAD}},
		{name: "empty", input: `""`, want: HexBytes{}},
		{name: "invalid hex", input: `"zz"`, wantErr: true},
		{name: "odd length", input: `"360"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got HexBytes
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			raw, err := json.Marshal(got)
			require.NoError(t, err)
			var round HexBytes
			require.NoError(t, json.Unmarshal(raw, &round))
			assert.Equal(t, got, round)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	const doc = `{
  "files": [
    {"name": "app", "default_path": "build/app.s19"},
    {"name": "cal"}
  ],
  "steps": [
    {"step_name": "enter programming session", "data": "1002", "exp_resp_data": "5002"},
    {"step_name": "Wait", "is_call": true, "external_data": ["500"]},
    {"step_name": "transfer app", "data": "36", "external_data": ["app_data[0]"]}
  ],
  "transmission_parameters": {
    "checksum_type": "crc32",
    "max_number_of_block_length": 4093
  }
}`

	path := filepath.Join(t.TempDir(), "flash.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Files, 2)
	assert.Equal(t, "app", cfg.Files[0].Name)
	assert.Equal(t, "build/app.s19", cfg.Files[0].DefaultPath)

	require.Len(t, cfg.Steps, 3)
	assert.Equal(t, HexBytes{0x10, 0x02}, cfg.Steps[0].Data)
	assert.Equal(t, HexBytes{0x50, 0x02}, cfg.Steps[0].ExpRespData)
	assert.True(t, cfg.Steps[1].IsCall)
	assert.Equal(t, []string{"app_data[0]"}, cfg.Steps[2].ExternalData)

	assert.Equal(t, checksum.TypeCRC32, cfg.TransmissionParameters.ChecksumType)
	assert.Equal(t, 4093, cfg.TransmissionParameters.MaxNumberOfBlockLength)

	// Unspecified parameter widths default to 4.
	assert.Equal(t, 4, cfg.TransmissionParameters.MemoryAddressParameterLength)
	assert.Equal(t, 4, cfg.TransmissionParameters.MemorySizeParameterLength)
}

func TestConfigSaveRoundTrip(t *testing.T) {
	cfg := &FlashConfig{
		Files: []FileConfig{{Name: "fw"}},
		Steps: []Step{
			{StepName: "transfer", Data: HexBytes{0x36}, ExternalData: []string{"fw_data[0]"}},
		},
		TransmissionParameters: testParams(64),
	}

	path := filepath.Join(t.TempDir(), "flash.json")
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Files, loaded.Files)
	assert.Equal(t, cfg.Steps, loaded.Steps)
	assert.Equal(t, cfg.TransmissionParameters, loaded.TransmissionParameters)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FlashConfig)
		errMsg string
	}{
		{
			name:   "valid",
			mutate: func(*FlashConfig) {},
		},
		{
			name: "duplicate file name",
			mutate: func(c *FlashConfig) {
				c.Files = append(c.Files, FileConfig{Name: "fw"})
			},
			errMsg: "duplicate file name",
		},
		{
			name: "empty file name",
			mutate: func(c *FlashConfig) {
				c.Files = append(c.Files, FileConfig{})
			},
			errMsg: "empty name",
		},
		{
			name: "send step without template",
			mutate: func(c *FlashConfig) {
				c.Steps = append(c.Steps, Step{StepName: "broken"})
			},
			errMsg: "empty data template",
		},
		{
			name: "block length too small for transfer data",
			mutate: func(c *FlashConfig) {
				c.TransmissionParameters.MaxNumberOfBlockLength = 2
			},
			errMsg: "cannot carry TransferData",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &FlashConfig{
				Files: []FileConfig{{Name: "fw"}},
				Steps: []Step{
					{StepName: "transfer", Data: HexBytes{0x36}, ExternalData: []string{"fw_data[0]"}},
				},
				TransmissionParameters: testParams(64),
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestVarsStoreReset(t *testing.T) {
	s := NewVarsStore()
	s.Append("fw", SegmentVars{Addr: 0x1000, Size: 2, Data: []byte{1, 2}})

	_, ok := s.Segment("fw", 0)
	require.True(t, ok)

	// Reset drops all prior segments so no stale data survives a run.
	s.Reset([]string{"fw", "cal"})
	_, ok = s.Segment("fw", 0)
	assert.False(t, ok)

	fv, ok := s.File("cal")
	require.True(t, ok)
	assert.Empty(t, fv.Segments)

	_, ok = s.File("unknown")
	assert.False(t, ok)
}
