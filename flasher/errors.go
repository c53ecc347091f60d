package flasher

import "fmt"

// NegativeResponseError indicates the ECU answered a step with a negative
// response code.
type NegativeResponseError struct {
	Step     string
	Code     byte
	CodeName string
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("step %q rejected: %s (0x%02X)", e.Step, e.CodeName, e.Code)
}

// ResponseTooShortError indicates a positive response shorter than the
// step's expected response prefix. This mismatch is fatal to the run.
type ResponseTooShortError struct {
	Step     string
	Expected int
	Got      int
}

func (e *ResponseTooShortError) Error() string {
	return fmt.Sprintf("step %q response too short: expected at least %d bytes, got %d", e.Step, e.Expected, e.Got)
}

// UnknownCallError indicates a call step names a local utility that is
// not part of the supported action set.
type UnknownCallError struct {
	Name string
}

func (e *UnknownCallError) Error() string {
	return fmt.Sprintf("unknown call step %q", e.Name)
}
