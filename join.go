package lorawan

import (
	"encoding/binary"
	"errors"
)

// JoinRequestPayload represents the join-request message payload.
type JoinRequestPayload struct {
	JoinEUI  EUI64    `json:"joinEUI"`
	DevEUI   EUI64    `json:"devEUI"`
	DevNonce DevNonce `json:"devNonce"`
}

// MarshalBinary marshals the object in binary form.
func (p JoinRequestPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 18)
	b, err := p.JoinEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevNonce.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(out, b...), nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *JoinRequestPayload) UnmarshalBinary(uplink bool, data []byte) error {
	if len(data) != 18 {
		return errors.New("lorawan: 18 bytes of data are expected")
	}
	if err := p.JoinEUI.UnmarshalBinary(data[0:8]); err != nil {
		return err
	}
	if err := p.DevEUI.UnmarshalBinary(data[8:16]); err != nil {
		return err
	}
	return p.DevNonce.UnmarshalBinary(data[16:18])
}

// CFListType defines the CFList payload type.
type CFListType uint8

// Possible CFList types.
const (
	CFListChannel     CFListType = 0
	CFListChannelMask CFListType = 1
)

// CFList represents the optional CFList in the join-accept. Dynamic channel
// plans use the channel variant (up to 5 extra frequencies), fixed plans the
// channel-mask variant.
type CFList struct {
	Payload    Payload    `json:"payload"`
	CFListType CFListType `json:"cFListType"`
}

// MarshalBinary marshals the object in binary form.
func (l CFList) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 16)
	b, err := l.Payload.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if len(b) > 15 {
		return nil, errors.New("lorawan: max size of the CFList payload is 15 bytes")
	}
	out = append(out, b...)

	// the CFList must always be 16 bytes, the last byte being the type
	for len(out) < 15 {
		out = append(out, 0)
	}
	return append(out, byte(l.CFListType)), nil
}

// UnmarshalBinary decodes the object from binary form.
func (l *CFList) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return errors.New("lorawan: 16 bytes of data are expected")
	}

	l.CFListType = CFListType(data[15])
	switch l.CFListType {
	case CFListChannel:
		l.Payload = &CFListChannelPayload{}
	case CFListChannelMask:
		// up to six 2 byte channel-masks, the remaining 3 bytes are RFU
		l.Payload = &CFListChannelMaskPayload{}
		return l.Payload.UnmarshalBinary(false, data[0:12])
	default:
		return errors.New("lorawan: invalid CFListType")
	}

	return l.Payload.UnmarshalBinary(false, data[0:15])
}

// CFListChannelPayload holds a list of (up to 5) channel frequencies in Hz.
type CFListChannelPayload struct {
	Channels [5]uint32
}

// MarshalBinary marshals the object in binary form.
func (p CFListChannelPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 15)
	for _, f := range p.Channels {
		if f%100 != 0 {
			return nil, errors.New("lorawan: frequency must be a multiple of 100")
		}
		f = f / 100
		if f >= (1 << 24) {
			return nil, errors.New("lorawan: max value of frequency is 2^24-1")
		}

		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, f)
		out = append(out, b[0:3]...)
	}
	return out, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *CFListChannelPayload) UnmarshalBinary(uplink bool, data []byte) error {
	if len(data) > 15 || len(data)%3 != 0 {
		return errors.New("lorawan: max 15 bytes of data, in blocks of 3 bytes, are expected")
	}

	for i := 0; i < len(data)/3; i++ {
		b := make([]byte, 4)
		copy(b, data[i*3:(i+1)*3])
		p.Channels[i] = binary.LittleEndian.Uint32(b) * 100
	}
	return nil
}

// CFListChannelMaskPayload holds a list of channel-masks (fixed channel
// plans).
type CFListChannelMaskPayload struct {
	ChannelMasks []ChMask
}

// MarshalBinary marshals the object in binary form.
func (p CFListChannelMaskPayload) MarshalBinary() ([]byte, error) {
	if len(p.ChannelMasks) > 6 {
		return nil, errors.New("lorawan: max number of channel-masks is 6")
	}

	var out []byte
	for _, cm := range p.ChannelMasks {
		b, err := cm.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// UnmarshalBinary decodes the object from binary form. Trailing all-zero
// masks are significant for fixed plans and are retained.
func (p *CFListChannelMaskPayload) UnmarshalBinary(uplink bool, data []byte) error {
	if len(data)%2 != 0 {
		return errors.New("lorawan: data must be a multiple of 2 bytes")
	}

	p.ChannelMasks = make([]ChMask, len(data)/2)
	for i := 0; i < len(data)/2; i++ {
		if err := p.ChannelMasks[i].UnmarshalBinary(data[i*2 : (i+1)*2]); err != nil {
			return err
		}
	}
	return nil
}

// JoinAcceptPayload represents the (decrypted) join-accept message payload.
type JoinAcceptPayload struct {
	AppNonce   AppNonce   `json:"appNonce"`
	NetID      NetID      `json:"netID"`
	DevAddr    DevAddr    `json:"devAddr"`
	DLSettings DLSettings `json:"dlSettings"`
	RXDelay    uint8      `json:"rxDelay"` // 0=1s, 1=1s, ... 15=15s
	CFList     *CFList    `json:"cFList"`
}

// MarshalBinary marshals the object in binary form.
func (p JoinAcceptPayload) MarshalBinary() ([]byte, error) {
	if p.RXDelay > 15 {
		return nil, errors.New("lorawan: the max value of RXDelay is 15")
	}

	out := make([]byte, 0, 12)
	b, err := p.AppNonce.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.NetID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DLSettings.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)
	out = append(out, p.RXDelay)

	if p.CFList != nil {
		b, err = p.CFList.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *JoinAcceptPayload) UnmarshalBinary(uplink bool, data []byte) error {
	if len(data) != 12 && len(data) != 28 {
		return errors.New("lorawan: 12 or 28 bytes of data are expected (excluding MIC)")
	}

	if err := p.AppNonce.UnmarshalBinary(data[0:3]); err != nil {
		return err
	}
	if err := p.NetID.UnmarshalBinary(data[3:6]); err != nil {
		return err
	}
	if err := p.DevAddr.UnmarshalBinary(data[6:10]); err != nil {
		return err
	}
	if err := p.DLSettings.UnmarshalBinary(data[10:11]); err != nil {
		return err
	}
	p.RXDelay = data[11]

	if len(data) == 28 {
		p.CFList = &CFList{}
		if err := p.CFList.UnmarshalBinary(data[12:28]); err != nil {
			return err
		}
	}
	return nil
}
