package doip

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Protocol constants from ISO 13400-2.
const (
	// ProtocolVersion is DoIP ISO 13400-2:2012 (version 2).
	ProtocolVersion byte = 0x02

	// HeaderSize is the fixed generic header length in bytes.
	HeaderSize = 8

	// DefaultPort is the TCP port for unsecured diagnostic data.
	DefaultPort = 13400
)

// Payload types.
const (
	PayloadTypeGenericNACK               uint16 = 0x0000
	PayloadTypeRoutingActivationRequest  uint16 = 0x0005
	PayloadTypeRoutingActivationResponse uint16 = 0x0006
	PayloadTypeAliveCheckRequest         uint16 = 0x0007
	PayloadTypeAliveCheckResponse        uint16 = 0x0008
	PayloadTypeDiagnosticMessage         uint16 = 0x8001
	PayloadTypeDiagnosticPositiveACK     uint16 = 0x8002
	PayloadTypeDiagnosticNegativeACK     uint16 = 0x8003
)

// Routing activation response codes.
const (
	RoutingActivationDeniedUnknownSource  byte = 0x00
	RoutingActivationDeniedAllSocketsUsed byte = 0x01
	RoutingActivationDeniedWrongSource    byte = 0x02
	RoutingActivationDeniedAlreadyActive  byte = 0x03
	RoutingActivationSuccess              byte = 0x10
	RoutingActivationPendingConfirmation  byte = 0x11
)

// maxPayloadLength bounds incoming payloads so a corrupt length field
// cannot trigger a huge allocation.
const maxPayloadLength = 1 << 24

// Message is one DoIP frame: a payload type plus its raw payload bytes.
type Message struct {
	PayloadType uint16
	Payload     []byte
}

// EncodeMessage serializes a DoIP frame with the generic header.
//
// Frame structure:
//
//	[VERSION][~VERSION][TYPE_H][TYPE_L][LEN(4, big-endian)][PAYLOAD...]
func EncodeMessage(payloadType uint16, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = ProtocolVersion
	frame[1] = ^ProtocolVersion
	binary.BigEndian.PutUint16(frame[2:4], payloadType)
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame
}

// ReadMessage reads exactly one DoIP frame from r, validating the
// protocol version pair and the payload length field.
func ReadMessage(r io.Reader) (*Message, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if header[0] != ProtocolVersion || header[1] != ^ProtocolVersion {
		return nil, &ProtocolError{
			Reason: fmt.Sprintf("bad protocol version bytes 0x%02X 0x%02X", header[0], header[1]),
		}
	}
	length := binary.BigEndian.Uint32(header[4:8])
	if length > maxPayloadLength {
		return nil, &ProtocolError{
			Reason: fmt.Sprintf("payload length %d exceeds maximum %d", length, maxPayloadLength),
		}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &Message{
		PayloadType: binary.BigEndian.Uint16(header[2:4]),
		Payload:     payload,
	}, nil
}

// EncodeRoutingActivationRequest builds a routing activation request payload.
//
// Payload structure:
//
//	[SOURCE_ADDR(2)][ACTIVATION_TYPE][RESERVED(4)]
func EncodeRoutingActivationRequest(sourceAddress uint16, activationType byte) []byte {
	payload := make([]byte, 7)
	binary.BigEndian.PutUint16(payload[0:2], sourceAddress)
	payload[2] = activationType
	// reserved bytes stay zero
	return payload
}

// RoutingActivationResponse is the decoded 0x0006 payload.
type RoutingActivationResponse struct {
	ClientAddress uint16
	EntityAddress uint16
	ResponseCode  byte
}

// DecodeRoutingActivationResponse parses a routing activation response
// payload.
//
// Payload structure:
//
//	[CLIENT_ADDR(2)][ENTITY_ADDR(2)][RESPONSE_CODE][RESERVED(4)]
func DecodeRoutingActivationResponse(payload []byte) (*RoutingActivationResponse, error) {
	if len(payload) < 5 {
		return nil, &ProtocolError{
			Reason: fmt.Sprintf("routing activation response too short: %d bytes", len(payload)),
		}
	}
	return &RoutingActivationResponse{
		ClientAddress: binary.BigEndian.Uint16(payload[0:2]),
		EntityAddress: binary.BigEndian.Uint16(payload[2:4]),
		ResponseCode:  payload[4],
	}, nil
}

// EncodeDiagnosticMessage builds a diagnostic message payload carrying
// user data between two logical addresses.
//
// Payload structure:
//
//	[SOURCE_ADDR(2)][TARGET_ADDR(2)][USER_DATA...]
func EncodeDiagnosticMessage(sourceAddress, targetAddress uint16, userData []byte) []byte {
	payload := make([]byte, 4+len(userData))
	binary.BigEndian.PutUint16(payload[0:2], sourceAddress)
	binary.BigEndian.PutUint16(payload[2:4], targetAddress)
	copy(payload[4:], userData)
	return payload
}

// DiagnosticMessage is a decoded 0x8001 payload.
type DiagnosticMessage struct {
	SourceAddress uint16
	TargetAddress uint16
	UserData      []byte
}

// DecodeDiagnosticMessage parses a diagnostic message payload.
func DecodeDiagnosticMessage(payload []byte) (*DiagnosticMessage, error) {
	if len(payload) < 4 {
		return nil, &ProtocolError{
			Reason: fmt.Sprintf("diagnostic message too short: %d bytes", len(payload)),
		}
	}
	return &DiagnosticMessage{
		SourceAddress: binary.BigEndian.Uint16(payload[0:2]),
		TargetAddress: binary.BigEndian.Uint16(payload[2:4]),
		UserData:      payload[4:],
	}, nil
}

// DecodeDiagnosticACK parses a diagnostic message positive or negative
// acknowledgement payload and returns the ACK/NACK code.
//
// Payload structure:
//
//	[SOURCE_ADDR(2)][TARGET_ADDR(2)][CODE][PREVIOUS_MESSAGE...]
func DecodeDiagnosticACK(payload []byte) (byte, error) {
	if len(payload) < 5 {
		return 0, &ProtocolError{
			Reason: fmt.Sprintf("diagnostic ACK too short: %d bytes", len(payload)),
		}
	}
	return payload[4], nil
}

// EncodeAliveCheckResponse builds an alive check response payload
// identifying this tester by its logical address.
func EncodeAliveCheckResponse(sourceAddress uint16) []byte {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, sourceAddress)
	return payload
}
