package lorawan

import "errors"

// Errors returned by the frame codec. Downlink handling treats all of these
// as a malformed frame: the frame is dropped, never propagated as a panic.
var (
	// ErrBufferTooShort is returned when the given byte slice is too short
	// to hold the field(s) being decoded.
	ErrBufferTooShort = errors.New("lorawan: buffer too short")

	// ErrInvalidMType is returned when the MType is unknown or not valid
	// for the operation.
	ErrInvalidMType = errors.New("lorawan: invalid MType")

	// ErrInvalidMajor is returned when the major version is not LoRaWAN R1.
	ErrInvalidMajor = errors.New("lorawan: invalid major version")

	// ErrMACCommandsOverflow is returned when the marshaled mac-commands
	// exceed the 15 byte FOpts limit.
	ErrMACCommandsOverflow = errors.New("lorawan: max number of FOpts bytes is 15")

	// ErrFOptsAndPort0Payload is returned when a frame carries both FOpts
	// and a mac-command FRMPayload on port 0.
	ErrFOptsAndPort0Payload = errors.New("lorawan: FOpts and FPort 0 FRMPayload are mutually exclusive")
)
