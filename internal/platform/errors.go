package platform

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrNoCode is returned by Code when an error carries no recognisable remote
// error code.
var ErrNoCode = errors.New("platform: no error code")

// PlatformError is an error reported by the remote platform itself.
// Code 0 is the generic wrapper value; the real code may then be embedded in
// Message as a "(#NNN)" prefix.
type PlatformError struct {
	Code    int
	Message string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform error %d: %s", e.Code, e.Message)
}

// TransportError means the call never produced a usable platform answer:
// network failure, timeout, throttle wait aborted, or a 5xx without an error
// body.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("platform %s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

var embeddedCode = regexp.MustCompile(`^\(#(\d+)\)`)

// ExtractCode returns the remote error code carried by err. When the platform
// wrapped the error with code 0, the code is re-parsed from a leading "(#NNN)"
// in the message. ok is false for transport failures, foreign errors and code
// 0 messages without a usable prefix.
func ExtractCode(err error) (code int, msg string, ok bool) {
	var pe *PlatformError
	if !errors.As(err, &pe) {
		if err == nil {
			return 0, "", false
		}
		return 0, err.Error(), false
	}
	if pe.Code != 0 {
		return pe.Code, pe.Message, true
	}
	m := embeddedCode.FindStringSubmatch(pe.Message)
	if m == nil {
		return 0, pe.Message, false
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, pe.Message, false
	}
	return n, pe.Message, true
}

// Code is ExtractCode without the message: it returns ErrNoCode when err has
// no usable code.
func Code(err error) (int, error) {
	code, _, ok := ExtractCode(err)
	if !ok {
		return 0, ErrNoCode
	}
	return code, nil
}
