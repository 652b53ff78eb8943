package lorawan

import "errors"

// Payload is the interface that every MACPayload type needs to implement.
type Payload interface {
	MarshalBinary() (data []byte, err error)
	UnmarshalBinary(uplink bool, data []byte) error
}

// DataPayload represents a slice of bytes.
type DataPayload struct {
	Bytes []byte `json:"bytes"`
}

// MarshalBinary marshals the object in binary form.
func (p DataPayload) MarshalBinary() ([]byte, error) {
	return p.Bytes, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *DataPayload) UnmarshalBinary(uplink bool, data []byte) error {
	p.Bytes = make([]byte, len(data))
	copy(p.Bytes, data)
	return nil
}

// MACPayload represents the MAC payload of a data frame.
type MACPayload struct {
	FHDR       FHDR   `json:"fhdr"`
	FPort      *uint8 `json:"fPort"` // optional, absent when FRMPayload is absent
	FRMPayload []byte `json:"frmPayload"`
}

// MarshalBinary marshals the object in binary form. It validates that FOpts
// and a port 0 mac-command payload are not used together.
func (p MACPayload) MarshalBinary() ([]byte, error) {
	if p.FPort != nil && *p.FPort == 0 && len(p.FHDR.FOpts) > 0 {
		return nil, ErrFOptsAndPort0Payload
	}
	if p.FPort == nil && len(p.FRMPayload) > 0 {
		return nil, errors.New("lorawan: FPort must be set when FRMPayload is set")
	}

	out, err := p.FHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if p.FPort != nil {
		out = append(out, *p.FPort)
		out = append(out, p.FRMPayload...)
	}
	return out, nil
}

// UnmarshalBinary decodes the object from binary form. The FRMPayload (when
// present) stays encrypted; call PHYPayload.DecryptFRMPayload to obtain the
// plaintext.
func (p *MACPayload) UnmarshalBinary(uplink bool, data []byte) error {
	if len(data) < 7 {
		return ErrBufferTooShort
	}

	fOptsLen := int(data[4] & ((1 << 3) ^ (1 << 2) ^ (1 << 1) ^ (1 << 0)))
	if len(data) < 7+fOptsLen {
		return ErrBufferTooShort
	}
	if err := p.FHDR.UnmarshalBinary(uplink, data[0:7+fOptsLen]); err != nil {
		return err
	}

	if len(data) > 7+fOptsLen {
		fPort := data[7+fOptsLen]
		p.FPort = &fPort
		if fPort == 0 && fOptsLen > 0 {
			return ErrFOptsAndPort0Payload
		}
		p.FRMPayload = make([]byte, len(data)-7-fOptsLen-1)
		copy(p.FRMPayload, data[7+fOptsLen+1:])
	}
	return nil
}
