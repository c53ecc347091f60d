// Package firmware parses firmware image files into sparse memory segments.
//
// # Supported Formats
//
//   - Motorola S-record (.s19, .srec, .mot)
//   - Intel HEX (.hex, .ihex)
//   - Raw binary (.bin, load address supplied by the caller)
//   - TI-TXT (.txt)
//
// # Usage
//
// Parse a file from disk, format selected by extension:
//
//	img, err := firmware.Parse("app.s19")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, seg := range img.Segments() {
//	    fmt.Printf("0x%08X: %d bytes\n", seg.Address, len(seg.Data))
//	}
//
// Parse from an io.Reader with an explicit format:
//
//	img, err := firmware.ParseReader(strings.NewReader(srec), firmware.FormatSRecord)
//
// # Segment Semantics
//
// Records are assembled into an Image: segments are sorted by address,
// contiguous runs are coalesced into one segment, and overlapping records
// are resolved with later writes winning. This mirrors how sparse-memory
// firmware containers behave, so a file whose records are emitted in
// address order produces one segment per contiguous flash region.
//
// # Error Handling
//
// Parse returns detailed errors for invalid files: malformed records with
// line numbers, hex-encoding failures, byte-count mismatches, and
// per-record checksum mismatches.
package firmware
