package doip

import "fmt"

// ProtocolError indicates a malformed or unexpected DoIP frame.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("doip protocol error: %s", e.Reason)
}

// RoutingActivationError indicates the gateway refused routing activation.
type RoutingActivationError struct {
	ResponseCode byte
}

func (e *RoutingActivationError) Error() string {
	return fmt.Sprintf("routing activation refused with code 0x%02X", e.ResponseCode)
}

// NegativeACKError indicates the gateway rejected a diagnostic message
// with a negative acknowledgement.
type NegativeACKError struct {
	NACKCode byte
}

func (e *NegativeACKError) Error() string {
	return fmt.Sprintf("diagnostic message negatively acknowledged with code 0x%02X", e.NACKCode)
}

// NotConnectedError indicates an operation was attempted before Connect
// succeeded or after Close.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string {
	return "doip client is not connected"
}
