package device

import (
	"encoding/binary"
	"errors"

	"github.com/lorastack/lorawan"
)

// MaxFCntGap is the maximum number of missed downlink frame-counter values
// that is bridged when reconstructing the full 32 bit counter from the 16
// transmitted bits.
const MaxFCntGap = 16384

// maxFCntUp is the last usable uplink frame-counter value. When it is
// reached the session expires and a new join is required.
const maxFCntUp = 1<<32 - 2

// ExtraChannel describes a channel added through the CFList or
// NewChannelReq, kept in the session so it survives a reset.
type ExtraChannel struct {
	Frequency uint32
	MinDR     uint8
	MaxDR     uint8
}

// Session holds the state established by an OTAA join or ABP install. It is
// mutated only by the MAC layer: on uplink commit (FCntUp), on admitted
// downlink frames and by mac-commands.
type Session struct {
	DevAddr lorawan.DevAddr
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key

	// FCntUp is the frame-counter of the next uplink.
	FCntUp uint32

	// FCntDown is the lowest acceptable frame-counter of the next
	// downlink (one above the last admitted downlink).
	FCntDown uint32

	// RXDelay is the RX1 delay in seconds (1..15).
	RXDelay uint8

	RX1DROffset  uint8
	RX2DataRate  uint8
	RX2Frequency uint32

	// TxDataRate and TxPowerIndex hold the values set by the last
	// accepted LinkADRReq.
	TxDataRate   uint8
	TxPowerIndex uint8

	// MaxDutyCycle as set by DutyCycleReq (2^-MaxDutyCycle).
	MaxDutyCycle uint8

	// ExtraChannels and EnabledChannels mirror the band channel state so
	// it can be restored together with the session.
	ExtraChannels   []ExtraChannel
	EnabledChannels []uint16
}

// Expired returns true when the uplink frame-counter space is exhausted.
func (s *Session) Expired() bool {
	return s.FCntUp > maxFCntUp
}

// CommitUplink advances the uplink frame-counter. It must be called exactly
// once per completed transmission.
func (s *Session) CommitUplink() {
	s.FCntUp++
}

// ValidateFCntDown reconstructs the full 32 bit downlink frame-counter from
// the 16 transmitted bits and validates it against the session state. The
// second return value is false when the counter is a replay or implies a
// gap larger than MaxFCntGap.
func (s *Session) ValidateFCntDown(fCnt16 uint16) (uint32, bool) {
	full := s.FCntDown&0xffff0000 | uint32(fCnt16)
	if full < s.FCntDown {
		full += 1 << 16
	}
	if full-s.FCntDown > MaxFCntGap {
		return 0, false
	}
	return full, true
}

// CommitDownlink records an admitted downlink frame-counter. fCnt must come
// from ValidateFCntDown.
func (s *Session) CommitDownlink(fCnt uint32) {
	s.FCntDown = fCnt + 1
}

const sessionSnapshotVersion = 1

// MarshalBinary encodes the session into a binary snapshot that round-trips
// exactly through UnmarshalBinary.
func (s Session) MarshalBinary() ([]byte, error) {
	if len(s.ExtraChannels) > 255 {
		return nil, errors.New("device: too many extra channels")
	}

	out := make([]byte, 0, 64)
	out = append(out, sessionSnapshotVersion)
	out = append(out, s.DevAddr[:]...)
	out = append(out, s.NwkSKey[:]...)
	out = append(out, s.AppSKey[:]...)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], s.FCntUp)
	out = append(out, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], s.FCntDown)
	out = append(out, u32[:]...)

	out = append(out, s.RXDelay, s.RX1DROffset, s.RX2DataRate)
	binary.LittleEndian.PutUint32(u32[:], s.RX2Frequency)
	out = append(out, u32[:]...)
	out = append(out, s.TxDataRate, s.TxPowerIndex, s.MaxDutyCycle)

	out = append(out, byte(len(s.ExtraChannels)))
	for _, c := range s.ExtraChannels {
		binary.LittleEndian.PutUint32(u32[:], c.Frequency)
		out = append(out, u32[:]...)
		out = append(out, c.MinDR, c.MaxDR)
	}

	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], uint16(len(s.EnabledChannels)))
	out = append(out, u16[:]...)
	for _, c := range s.EnabledChannels {
		binary.LittleEndian.PutUint16(u16[:], c)
		out = append(out, u16[:]...)
	}

	return out, nil
}

// UnmarshalBinary decodes a session snapshot.
func (s *Session) UnmarshalBinary(data []byte) error {
	if len(data) < 1 || data[0] != sessionSnapshotVersion {
		return errors.New("device: unknown session snapshot version")
	}
	data = data[1:]

	if len(data) < 4+16+16+4+4+3+4+3+1 {
		return errors.New("device: session snapshot too short")
	}

	copy(s.DevAddr[:], data[0:4])
	copy(s.NwkSKey[:], data[4:20])
	copy(s.AppSKey[:], data[20:36])
	s.FCntUp = binary.LittleEndian.Uint32(data[36:40])
	s.FCntDown = binary.LittleEndian.Uint32(data[40:44])
	s.RXDelay = data[44]
	s.RX1DROffset = data[45]
	s.RX2DataRate = data[46]
	s.RX2Frequency = binary.LittleEndian.Uint32(data[47:51])
	s.TxDataRate = data[51]
	s.TxPowerIndex = data[52]
	s.MaxDutyCycle = data[53]

	nExtra := int(data[54])
	data = data[55:]
	if len(data) < nExtra*6+2 {
		return errors.New("device: session snapshot too short")
	}
	s.ExtraChannels = nil
	for i := 0; i < nExtra; i++ {
		s.ExtraChannels = append(s.ExtraChannels, ExtraChannel{
			Frequency: binary.LittleEndian.Uint32(data[0:4]),
			MinDR:     data[4],
			MaxDR:     data[5],
		})
		data = data[6:]
	}

	nEnabled := int(binary.LittleEndian.Uint16(data[0:2]))
	data = data[2:]
	if len(data) != nEnabled*2 {
		return errors.New("device: session snapshot too short")
	}
	s.EnabledChannels = nil
	for i := 0; i < nEnabled; i++ {
		s.EnabledChannels = append(s.EnabledChannels, binary.LittleEndian.Uint16(data[0:2]))
		data = data[2:]
	}

	return nil
}

// ABPParams holds the material for an activation-by-personalization install.
type ABPParams struct {
	DevAddr  lorawan.DevAddr
	NwkSKey  lorawan.AES128Key
	AppSKey  lorawan.AES128Key
	FCntUp   uint32
	FCntDown uint32
}

// newABPSession installs an ABP session using the band defaults for the
// receive parameters.
func newABPSession(p ABPParams, rxDelay uint8, rx2Freq uint32, rx2DR uint8) *Session {
	if rxDelay == 0 {
		rxDelay = 1
	}
	return &Session{
		DevAddr:      p.DevAddr,
		NwkSKey:      p.NwkSKey,
		AppSKey:      p.AppSKey,
		FCntUp:       p.FCntUp,
		FCntDown:     p.FCntDown,
		RXDelay:      rxDelay,
		RX2Frequency: rx2Freq,
		RX2DataRate:  rx2DR,
	}
}
