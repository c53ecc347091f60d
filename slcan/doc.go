// Package slcan carries UDS diagnostics over CAN through a LAWICEL
// SLCAN serial adapter.
//
// # Overview
//
// Two layers:
//   - Port talks the LAWICEL ASCII protocol to the adapter: channel
//     setup commands plus "tIIILDD.." frame lines for classic 11-bit
//     CAN frames.
//   - Transport implements ISO-TP (ISO 15765-2) normal addressing on
//     top of any FrameBus: single frames for short payloads, first
//     frame / flow control / consecutive frames for longer ones. It
//     satisfies uds.Transport, so it plugs directly into the flash
//     executor.
//
// # Basic Usage
//
//	port, err := slcan.OpenPort("/dev/ttyACM0", slcan.WithBitrate(slcan.Bitrate500k))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	transport := slcan.NewTransport(port, 0x7E0, 0x7E8)
//	resp, err := transport.SendPayload(ctx, []byte{0x10, 0x03})
package slcan
