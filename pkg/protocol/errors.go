package protocol

// baseError is the shared shape for every taxonomy member below: a short
// message plus an optionally-wrapped cause, so callers can use
// errors.As to discriminate without string matching.
type baseError struct {
	msg string
	err error
}

func (e *baseError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *baseError) Unwrap() error {
	return e.err
}

// TransportError reports a broken byte pipe (closed port, OS-level
// I/O failure). Fatal for the session.
type TransportError struct{ baseError }

func NewTransportError(msg string, cause error) *TransportError {
	return &TransportError{baseError{msg, cause}}
}

// TimeoutError reports that ReadExact did not receive the promised
// byte count within the transport's read deadline. Recoverable by a
// session-level retry.
type TimeoutError struct{ baseError }

func NewTimeoutError(msg string) *TimeoutError {
	return &TimeoutError{baseError{msg, nil}}
}

// ExpectError reports that a fixed-template command's response did
// not byte-match the expected template. Usually means the chip is
// not in flash mode or the baud rate is wrong.
type ExpectError struct {
	baseError
	Want []byte
	Got  []byte
}

func NewExpectError(want, got []byte) *ExpectError {
	return &ExpectError{baseError{"response does not match expected template", nil}, want, got}
}

// CRCError reports that a CRC-framed response's checksum residue was
// non-zero. Treated the same as ExpectError for retry purposes.
type CRCError struct{ baseError }

func NewCRCError(msg string) *CRCError {
	return &CRCError{baseError{msg, nil}}
}

// StateError reports a flash-mutating operation invoked outside the
// FLASH module state. Programmer error; never retried.
type StateError struct{ baseError }

func NewStateError(msg string) *StateError {
	return &StateError{baseError{msg, nil}}
}

// ArgumentError reports a sector-alignment or overlap violation.
// Programmer error; never retried.
type ArgumentError struct{ baseError }

func NewArgumentError(msg string) *ArgumentError {
	return &ArgumentError{baseError{msg, nil}}
}
