package flasher

import (
	"errors"
	"strings"
	"testing"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    token
		wantErr bool
		errMsg  string
	}{
		{
			name:  "data field",
			input: "app_data[0]",
			want:  token{file: "app", field: fieldData, index: 0},
		},
		{
			name:  "addr field",
			input: "app_addr[3]",
			want:  token{file: "app", field: fieldAddr, index: 3},
		},
		{
			name:  "size field",
			input: "cal_size[1]",
			want:  token{file: "cal", field: fieldSize, index: 1},
		},
		{
			name:  "checksum field",
			input: "cal_checksum[12]",
			want:  token{file: "cal", field: fieldChecksum, index: 12},
		},
		{
			name:  "file name containing underscores",
			input: "my_app_v2_checksum[0]",
			want:  token{file: "my_app_v2", field: fieldChecksum, index: 0},
		},
		{
			name:    "missing index",
			input:   "app_data",
			wantErr: true,
			errMsg:  "expected name[index]",
		},
		{
			name:    "non-numeric index",
			input:   "app_data[x]",
			wantErr: true,
			errMsg:  "expected name[index]",
		},
		{
			name:    "missing field suffix",
			input:   "appdata[0]",
			wantErr: true,
			errMsg:  "expected <file>_<field>",
		},
		{
			name:    "unknown field",
			input:   "app_crc[0]",
			wantErr: true,
			errMsg:  `unknown field "crc"`,
		},
		{
			name:    "trailing underscore",
			input:   "app_[0]",
			wantErr: true,
			errMsg:  "expected <file>_<field>",
		},
		{
			name:    "empty token",
			input:   "",
			wantErr: true,
			errMsg:  "expected name[index]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseToken(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var tokenErr *TokenError
				if !errors.As(err, &tokenErr) {
					t.Fatalf("error type = %T, want *TokenError", err)
				}
				if tokenErr.Token != tt.input {
					t.Errorf("TokenError.Token = %q, want %q", tokenErr.Token, tt.input)
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseToken(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
