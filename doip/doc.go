// Package doip implements a minimal DoIP (ISO 13400-2) tester endpoint,
// sufficient to carry UDS diagnostic requests to an ECU behind a DoIP
// gateway.
//
// # Overview
//
// The package provides:
//   - Frame encoding and decoding for the generic DoIP header and the
//     payload types a tester needs: routing activation, diagnostic
//     messages, diagnostic ACK/NACK, and alive check.
//   - A Client that dials the gateway over TCP, performs routing
//     activation, and then exchanges diagnostic messages. The Client
//     satisfies uds.Transport, so it plugs directly into the flash
//     executor.
//
// # Basic Usage
//
//	client := doip.New("192.168.1.10:13400",
//	    doip.WithECUAddress(0x1234),
//	    doip.WithClientAddress(0x0E00),
//	)
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.SendPayload(ctx, []byte{0x10, 0x03})
//
// # Response Pending
//
// ECUs answer slow operations with the 0x7F/0x78 responsePending frame.
// SendPayload absorbs those internally and keeps waiting, so callers
// only ever see the final positive or negative response.
package doip
