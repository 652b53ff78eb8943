package lorawan

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// DevAddr represents the device address.
type DevAddr [4]byte

// String implements fmt.Stringer.
func (a DevAddr) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a DevAddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *DevAddr) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(a) {
		return fmt.Errorf("lorawan: exactly %d bytes are expected", len(a))
	}
	copy(a[:], b)
	return nil
}

// MarshalBinary encodes the DevAddr to a slice of bytes (little endian, as
// transmitted on air).
func (a DevAddr) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(a))
	for i, v := range a {
		// little endian
		out[len(a)-i-1] = v
	}
	return out, nil
}

// UnmarshalBinary decodes the DevAddr from a slice of bytes.
func (a *DevAddr) UnmarshalBinary(data []byte) error {
	if len(data) != len(a) {
		return fmt.Errorf("lorawan: %d bytes of data are expected", len(a))
	}
	for i, v := range data {
		// little endian
		a[len(a)-i-1] = v
	}
	return nil
}

// FCtrl represents the FCtrl (frame control) field.
type FCtrl struct {
	ADR       bool `json:"adr"`
	ADRACKReq bool `json:"adrAckReq"`
	ACK       bool `json:"ack"`
	FPending  bool `json:"fPending"` // downlink only
	ClassB    bool `json:"classB"`   // uplink only, shares the FPending bit
	fOptsLen  uint8
}

// MarshalBinary marshals the object in binary form.
func (c FCtrl) MarshalBinary() ([]byte, error) {
	if c.fOptsLen > 15 {
		return nil, ErrMACCommandsOverflow
	}
	b := byte(c.fOptsLen)
	if c.FPending || c.ClassB {
		b = b ^ (1 << 4)
	}
	if c.ACK {
		b = b ^ (1 << 5)
	}
	if c.ADRACKReq {
		b = b ^ (1 << 6)
	}
	if c.ADR {
		b = b ^ (1 << 7)
	}
	return []byte{b}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (c *FCtrl) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return ErrBufferTooShort
	}
	c.fOptsLen = data[0] & ((1 << 3) ^ (1 << 2) ^ (1 << 1) ^ (1 << 0))
	c.FPending = data[0]&(1<<4) > 0
	c.ClassB = data[0]&(1<<4) > 0
	c.ACK = data[0]&(1<<5) > 0
	c.ADRACKReq = data[0]&(1<<6) > 0
	c.ADR = data[0]&(1<<7) > 0
	return nil
}

// FHDR represents the frame header.
type FHDR struct {
	DevAddr DevAddr      `json:"devAddr"`
	FCtrl   FCtrl        `json:"fCtrl"`
	FCnt    uint32       `json:"fCnt"`  // only the 16 LSB are marshaled
	FOpts   []MACCommand `json:"fOpts"` // max. 15 bytes
}

// MarshalBinary marshals the object in binary form.
func (h FHDR) MarshalBinary() ([]byte, error) {
	var opts []byte
	for _, mac := range h.FOpts {
		b, err := mac.MarshalBinary()
		if err != nil {
			return nil, err
		}
		opts = append(opts, b...)
	}
	h.FCtrl.fOptsLen = uint8(len(opts))
	if h.FCtrl.fOptsLen > 15 {
		return nil, ErrMACCommandsOverflow
	}

	out := make([]byte, 0, 7+h.FCtrl.fOptsLen)
	b, err := h.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = h.FCtrl.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	fCnt := make([]byte, 2)
	binary.LittleEndian.PutUint16(fCnt, uint16(h.FCnt))
	out = append(out, fCnt...)
	out = append(out, opts...)

	return out, nil
}

// UnmarshalBinary decodes the object from binary form. The FOpts bytes (if
// any) are decoded into mac-commands; uplink indicates the direction of the
// frame the header belongs to.
func (h *FHDR) UnmarshalBinary(uplink bool, data []byte) error {
	if len(data) < 7 {
		return ErrBufferTooShort
	}

	if err := h.DevAddr.UnmarshalBinary(data[0:4]); err != nil {
		return err
	}
	if err := h.FCtrl.UnmarshalBinary(data[4:5]); err != nil {
		return err
	}
	h.FCnt = uint32(binary.LittleEndian.Uint16(data[5:7]))

	if len(data) != 7+int(h.FCtrl.fOptsLen) {
		return fmt.Errorf("lorawan: %d bytes of FOpts are expected", h.FCtrl.fOptsLen)
	}
	if h.FCtrl.fOptsLen > 0 {
		var err error
		h.FOpts, err = DecodeMACCommands(uplink, data[7:7+h.FCtrl.fOptsLen])
		if err != nil {
			return err
		}
	}
	return nil
}
