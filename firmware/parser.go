package firmware

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Format identifies a firmware file format.
type Format int

// Supported firmware file formats.
const (
	FormatSRecord Format = iota
	FormatIntelHex
	FormatBinary
	FormatTITxt
)

// String returns the conventional name of the format.
func (f Format) String() string {
	switch f {
	case FormatSRecord:
		return "srec"
	case FormatIntelHex:
		return "ihex"
	case FormatBinary:
		return "bin"
	case FormatTITxt:
		return "ti-txt"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Option configures parsing.
type Option func(*config)

type config struct {
	baseAddress uint32
}

// WithBaseAddress sets the load address for raw binary files, which carry
// no address information of their own. Ignored for other formats.
//
// Example:
//
//	img, err := firmware.Parse("app.bin", firmware.WithBaseAddress(0x08000000))
func WithBaseAddress(addr uint32) Option {
	return func(c *config) {
		c.baseAddress = addr
	}
}

// Parse loads a firmware file, selecting the format from the file
// extension: .s19/.srec/.mot (S-record), .hex/.ihex (Intel HEX),
// .bin (raw binary), .txt (TI-TXT). Unknown extensions are tried as
// S-record first, then Intel HEX.
//
// Example:
//
//	img, err := firmware.Parse("app.s19")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, seg := range img.Segments() {
//	    fmt.Printf("0x%08X: %d bytes\n", seg.Address, len(seg.Data))
//	}
func Parse(path string, opts ...Option) (*Image, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".s19", ".srec", ".mot":
		return parseReader(f, FormatSRecord, cfg)
	case ".hex", ".ihex":
		return parseReader(f, FormatIntelHex, cfg)
	case ".bin":
		return parseReader(f, FormatBinary, cfg)
	case ".txt":
		return parseReader(f, FormatTITxt, cfg)
	default:
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		img, srecErr := parseReader(strings.NewReader(string(data)), FormatSRecord, cfg)
		if srecErr == nil {
			return img, nil
		}
		img, ihexErr := parseReader(strings.NewReader(string(data)), FormatIntelHex, cfg)
		if ihexErr == nil {
			return img, nil
		}
		return nil, fmt.Errorf("unrecognized firmware format for %s: %w", path, srecErr)
	}
}

// ParseReader parses firmware data of a known format from any io.Reader.
// This is useful for testing and reading from non-file sources.
func ParseReader(r io.Reader, format Format, opts ...Option) (*Image, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return parseReader(r, format, cfg)
}

func parseReader(r io.Reader, format Format, cfg config) (*Image, error) {
	switch format {
	case FormatSRecord:
		return parseSRecord(r)
	case FormatIntelHex:
		return parseIntelHex(r)
	case FormatBinary:
		return parseBinary(r, cfg.baseAddress)
	case FormatTITxt:
		return parseTITxt(r)
	default:
		return nil, fmt.Errorf("unknown format: %v", format)
	}
}

// parseBinary loads raw binary data as a single segment at the base address.
func parseBinary(r io.Reader, base uint32) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	img := &Image{}
	img.add(base, data)
	return img, nil
}

// parseSRecord parses Motorola S-record data.
//
// Record format:
//
//	S<type><count><address><data><checksum>
//
// S1/S2/S3 carry data with 2/3/4-byte addresses. The checksum is the
// ones' complement of the sum of count, address, and data bytes.
func parseSRecord(r io.Reader) (*Image, error) {
	img := &Image{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	records := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) < 4 || (line[0] != 'S' && line[0] != 's') {
			return nil, fmt.Errorf("line %d: not an S-record: %q", lineNum, truncateForError(line))
		}

		recType := line[1]
		raw, err := hex.DecodeString(line[2:])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid hex data: %w", lineNum, err)
		}
		if len(raw) < 2 {
			return nil, fmt.Errorf("line %d: record too short", lineNum)
		}

		count := int(raw[0])
		if count != len(raw)-1 {
			return nil, fmt.Errorf("line %d: byte count mismatch: got %d bytes, record declares %d", lineNum, len(raw)-1, count)
		}

		var sum byte
		for _, b := range raw[:len(raw)-1] {
			sum += b
		}
		if check := ^sum; check != raw[len(raw)-1] {
			return nil, fmt.Errorf("line %d: checksum mismatch: got 0x%02X, expected 0x%02X", lineNum, raw[len(raw)-1], check)
		}

		body := raw[1 : len(raw)-1]
		var addrLen int
		switch recType {
		case '1':
			addrLen = 2
		case '2':
			addrLen = 3
		case '3':
			addrLen = 4
		case '0', '5', '6', '7', '8', '9':
			// Header, count, and start-address records carry no data.
			continue
		default:
			return nil, fmt.Errorf("line %d: unsupported record type S%c", lineNum, recType)
		}

		if len(body) < addrLen {
			return nil, fmt.Errorf("line %d: record too short for S%c address", lineNum, recType)
		}
		var addr uint32
		for _, b := range body[:addrLen] {
			addr = addr<<8 | uint32(b)
		}
		img.add(addr, body[addrLen:])
		records++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if records == 0 {
		return nil, fmt.Errorf("no data records found")
	}
	return img, nil
}

// Intel HEX record types.
const (
	ihexData              = 0x00
	ihexEOF               = 0x01
	ihexExtendedSegment   = 0x02
	ihexStartSegment      = 0x03
	ihexExtendedLinear    = 0x04
	ihexStartLinear       = 0x05
)

// parseIntelHex parses Intel HEX data.
//
// Record format:
//
//	:<count><address><type><data><checksum>
//
// Extended segment (02) and extended linear (04) records set the upper
// address bits for subsequent data records. The checksum is the two's
// complement of the sum of all preceding record bytes.
func parseIntelHex(r io.Reader) (*Image, error) {
	img := &Image{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var upper uint32
	lineNum := 0
	records := 0
	sawEOF := false
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if sawEOF {
			return nil, fmt.Errorf("line %d: data after EOF record", lineNum)
		}
		if line[0] != ':' {
			return nil, fmt.Errorf("line %d: record must start with ':': %q", lineNum, truncateForError(line))
		}

		raw, err := hex.DecodeString(line[1:])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid hex data: %w", lineNum, err)
		}
		if len(raw) < 5 {
			return nil, fmt.Errorf("line %d: record too short", lineNum)
		}

		count := int(raw[0])
		if len(raw) != count+5 {
			return nil, fmt.Errorf("line %d: byte count mismatch: got %d data bytes, record declares %d", lineNum, len(raw)-5, count)
		}

		var sum byte
		for _, b := range raw[:len(raw)-1] {
			sum += b
		}
		if check := -sum; check != raw[len(raw)-1] {
			return nil, fmt.Errorf("line %d: checksum mismatch: got 0x%02X, expected 0x%02X", lineNum, raw[len(raw)-1], check)
		}

		offset := uint32(raw[1])<<8 | uint32(raw[2])
		recType := raw[3]
		data := raw[4 : 4+count]

		switch recType {
		case ihexData:
			img.add(upper+offset, data)
			records++
		case ihexEOF:
			sawEOF = true
		case ihexExtendedSegment:
			if count != 2 {
				return nil, fmt.Errorf("line %d: extended segment record must carry 2 bytes", lineNum)
			}
			upper = (uint32(data[0])<<8 | uint32(data[1])) << 4
		case ihexExtendedLinear:
			if count != 2 {
				return nil, fmt.Errorf("line %d: extended linear record must carry 2 bytes", lineNum)
			}
			upper = (uint32(data[0])<<8 | uint32(data[1])) << 16
		case ihexStartSegment, ihexStartLinear:
			// Entry-point records carry no load data.
		default:
			return nil, fmt.Errorf("line %d: unsupported record type 0x%02X", lineNum, recType)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if records == 0 {
		return nil, fmt.Errorf("no data records found")
	}
	return img, nil
}

// parseTITxt parses TI-TXT data: "@ADDR" lines switch the write address,
// plain lines hold space-separated data bytes, and "q" terminates.
func parseTITxt(r io.Reader) (*Image, error) {
	img := &Image{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var addr uint32
	haveAddr := false
	lineNum := 0
	records := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case line[0] == '@':
			v, err := strconv.ParseUint(line[1:], 16, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid address %q: %w", lineNum, line, err)
			}
			addr = uint32(v)
			haveAddr = true
		case line == "q" || line == "Q":
			if records == 0 {
				return nil, fmt.Errorf("no data records found")
			}
			return img, nil
		default:
			if !haveAddr {
				return nil, fmt.Errorf("line %d: data before any @address line", lineNum)
			}
			raw, err := hex.DecodeString(strings.ReplaceAll(line, " ", ""))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid hex data: %w", lineNum, err)
			}
			img.add(addr, raw)
			addr += uint32(len(raw))
			records++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if records == 0 {
		return nil, fmt.Errorf("no data records found")
	}
	return img, nil
}

func truncateForError(line string) string {
	if len(line) > 16 {
		return line[:16] + "..."
	}
	return line
}
