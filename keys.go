package lorawan

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// AES128Key represents a 128 bit AES key.
type AES128Key [16]byte

// String implements fmt.Stringer.
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k AES128Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AES128Key) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(k) {
		return fmt.Errorf("lorawan: exactly %d bytes are expected", len(k))
	}
	copy(k[:], b)
	return nil
}

// EUI64 represents a 64 bit extended unique identifier (DevEUI, JoinEUI).
type EUI64 [8]byte

// String implements fmt.Stringer.
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// MarshalText implements encoding.TextMarshaler.
func (e EUI64) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EUI64) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(e) {
		return fmt.Errorf("lorawan: exactly %d bytes are expected", len(e))
	}
	copy(e[:], b)
	return nil
}

// MarshalBinary encodes the EUI64 to a slice of bytes (little endian, as
// transmitted on air).
func (e EUI64) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(e))
	for i, v := range e {
		// little endian
		out[len(e)-i-1] = v
	}
	return out, nil
}

// UnmarshalBinary decodes the EUI64 from a slice of bytes.
func (e *EUI64) UnmarshalBinary(data []byte) error {
	if len(data) != len(e) {
		return fmt.Errorf("lorawan: %d bytes of data are expected", len(e))
	}
	for i, v := range data {
		// little endian
		e[len(e)-i-1] = v
	}
	return nil
}

// DevNonce represents the device nonce sent in a join-request. LoRaWAN 1.0.4
// requires this to be a counter that is incremented for every join-request
// and persisted across resets.
type DevNonce uint16

// MarshalBinary encodes the DevNonce to a slice of bytes.
func (n DevNonce) MarshalBinary() ([]byte, error) {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, uint16(n))
	return out, nil
}

// UnmarshalBinary decodes the DevNonce from a slice of bytes.
func (n *DevNonce) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.New("lorawan: 2 bytes of data are expected")
	}
	*n = DevNonce(binary.LittleEndian.Uint16(data))
	return nil
}

// AppNonce represents the 3 byte network server nonce in the join-accept.
type AppNonce [3]byte

// MarshalBinary encodes the AppNonce to a slice of bytes.
func (n AppNonce) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(n))
	for i, v := range n {
		// little endian
		out[len(n)-i-1] = v
	}
	return out, nil
}

// UnmarshalBinary decodes the AppNonce from a slice of bytes.
func (n *AppNonce) UnmarshalBinary(data []byte) error {
	if len(data) != len(n) {
		return fmt.Errorf("lorawan: %d bytes of data are expected", len(n))
	}
	for i, v := range data {
		// little endian
		n[len(n)-i-1] = v
	}
	return nil
}

// MIC represents the message integrity code.
type MIC [4]byte

// String implements fmt.Stringer.
func (m MIC) String() string {
	return hex.EncodeToString(m[:])
}

// MarshalText implements encoding.TextMarshaler.
func (m MIC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
