// Package uds holds the Unified Diagnostic Services (ISO 14229) vocabulary
// shared by the transports and the flash executor: service identifiers,
// negative response codes, and the response model handed back to callers.
package uds

import (
	"context"
	"fmt"
)

// Service identifiers used by the flashing executor.
const (
	ServiceSecurityAccess = 0x27
	ServiceTesterPresent  = 0x3E
	ServiceTransferData   = 0x36

	// NegativeResponseSID is the service identifier of a negative
	// response frame: [0x7F, requested SID, NRC].
	NegativeResponseSID = 0x7F

	// PositiveResponseOffset is added to a request SID to form the
	// positive response SID (0x36 -> 0x76).
	PositiveResponseOffset = 0x40

	// NRCResponsePending is sent by the server while a long-running
	// request is still in progress; transports wait it out.
	NRCResponsePending = 0x78
)

// Response is the outcome of one request/response exchange.
// Code 0 means a positive response; any other value is the negative
// response code sent by the server.
type Response struct {
	// Code is 0 for a positive response, otherwise the NRC
	Code byte

	// CodeName is the human-readable name of Code
	CodeName string

	// Payload is the full response payload, starting with the response SID
	Payload []byte
}

// Positive reports whether the response is a positive response.
func (r *Response) Positive() bool {
	return r.Code == 0
}

// Transport carries one UDS request to the server and returns its response.
// A nil response with an error signals an unrecoverable transport failure;
// the per-exchange timeout is the transport's responsibility.
type Transport interface {
	SendPayload(ctx context.Context, payload []byte) (*Response, error)
}

// nrcNames maps negative response codes to their ISO 14229 names.
var nrcNames = map[byte]string{
	0x10: "GeneralReject",
	0x11: "ServiceNotSupported",
	0x12: "SubFunctionNotSupported",
	0x13: "IncorrectMessageLengthOrInvalidFormat",
	0x14: "ResponseTooLong",
	0x21: "BusyRepeatRequest",
	0x22: "ConditionsNotCorrect",
	0x24: "RequestSequenceError",
	0x31: "RequestOutOfRange",
	0x33: "SecurityAccessDenied",
	0x35: "InvalidKey",
	0x36: "ExceedNumberOfAttempts",
	0x37: "RequiredTimeDelayNotExpired",
	0x70: "UploadDownloadNotAccepted",
	0x71: "TransferDataSuspended",
	0x72: "GeneralProgrammingFailure",
	0x73: "WrongBlockSequenceCounter",
	0x78: "RequestCorrectlyReceived-ResponsePending",
	0x7E: "SubFunctionNotSupportedInActiveSession",
	0x7F: "ServiceNotSupportedInActiveSession",
	0x92: "VoltageTooHigh",
	0x93: "VoltageTooLow",
}

// NRCName returns the ISO 14229 name for a negative response code, or
// "Unknown (0xNN)" for codes outside the table.
func NRCName(code byte) string {
	if name, ok := nrcNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (0x%02X)", code)
}

// Classify builds a Response from a raw response payload. A payload
// starting with 0x7F is a negative response carrying an NRC; anything
// else is treated as positive.
func Classify(payload []byte) *Response {
	if len(payload) >= 3 && payload[0] == NegativeResponseSID {
		nrc := payload[2]
		return &Response{
			Code:     nrc,
			CodeName: NRCName(nrc),
			Payload:  payload,
		}
	}
	return &Response{
		Code:     0,
		CodeName: "PositiveResponse",
		Payload:  payload,
	}
}

// IsResponsePending reports whether the payload is a 0x7F/0x78 negative
// response telling the client to keep waiting for the final answer.
func IsResponsePending(payload []byte) bool {
	return len(payload) >= 3 && payload[0] == NegativeResponseSID && payload[2] == NRCResponsePending
}
