package lorawan

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
)

// PHYPayload represents the physical payload.
type PHYPayload struct {
	MHDR       MHDR    `json:"mhdr"`
	MACPayload Payload `json:"macPayload"`
	MIC        MIC     `json:"mic"`
}

// MarshalBinary marshals the object in binary form.
func (p PHYPayload) MarshalBinary() ([]byte, error) {
	if p.MACPayload == nil {
		return nil, errors.New("lorawan: MACPayload should not be nil")
	}

	var out []byte
	b, err := p.MHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.MACPayload.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)
	return append(out, p.MIC[0:len(p.MIC)]...), nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *PHYPayload) UnmarshalBinary(data []byte) error {
	if len(data) < 5 {
		return ErrBufferTooShort
	}

	// MHDR
	if err := p.MHDR.UnmarshalBinary(data[0:1]); err != nil {
		return err
	}

	// MACPayload
	switch p.MHDR.MType {
	case JoinRequest:
		p.MACPayload = &JoinRequestPayload{}
	case JoinAccept:
		// the join-accept is encrypted, unmarshal the raw bytes and use
		// DecryptJoinAcceptPayload to obtain the JoinAcceptPayload
		p.MACPayload = &DataPayload{}
	case UnconfirmedDataUp, UnconfirmedDataDown, ConfirmedDataUp, ConfirmedDataDown:
		p.MACPayload = &MACPayload{}
	case Proprietary:
		p.MACPayload = &DataPayload{}
	default:
		return ErrInvalidMType
	}

	if err := p.MACPayload.UnmarshalBinary(p.IsUplink(), data[1:len(data)-4]); err != nil {
		return err
	}

	// MIC
	copy(p.MIC[:], data[len(data)-4:])
	return nil
}

// MarshalText encodes the PHYPayload into base64.
func (p PHYPayload) MarshalText() ([]byte, error) {
	b, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(b)), nil
}

// UnmarshalText decodes the PHYPayload from base64.
func (p *PHYPayload) UnmarshalText(text []byte) error {
	b, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	return p.UnmarshalBinary(b)
}

// MarshalJSON encodes the PHYPayload into JSON.
func (p PHYPayload) MarshalJSON() ([]byte, error) {
	type phyAlias PHYPayload
	return json.Marshal(phyAlias(p))
}

// IsUplink returns a bool indicating if the packet is uplink or downlink.
// Note that for MType Proprietary it can't derive if the packet is uplink
// or downlink.
func (p PHYPayload) IsUplink() bool {
	switch p.MHDR.MType {
	case JoinRequest, UnconfirmedDataUp, ConfirmedDataUp:
		return true
	default:
		return false
	}
}

// SetUplinkDataMIC calculates and sets the MIC field for uplink data frames.
func (p *PHYPayload) SetUplinkDataMIC(cipher Cipher, nwkSKey AES128Key) error {
	mic, err := p.calculateDataMIC(cipher, true, nwkSKey)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateUplinkDataMIC validates the MIC of an uplink data frame.
// In order to validate the MIC, the FCnt value must first be set to the
// full 32 bit frame-counter value, as only the 16 least-significant bits
// are transmitted.
func (p PHYPayload) ValidateUplinkDataMIC(cipher Cipher, nwkSKey AES128Key) (bool, error) {
	mic, err := p.calculateDataMIC(cipher, true, nwkSKey)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

// SetDownlinkDataMIC calculates and sets the MIC field for downlink data
// frames.
func (p *PHYPayload) SetDownlinkDataMIC(cipher Cipher, nwkSKey AES128Key) error {
	mic, err := p.calculateDataMIC(cipher, false, nwkSKey)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateDownlinkDataMIC validates the MIC of a downlink data frame.
// In order to validate the MIC, the FCnt value must first be set to the
// full 32 bit frame-counter value, as only the 16 least-significant bits
// are transmitted.
func (p PHYPayload) ValidateDownlinkDataMIC(cipher Cipher, nwkSKey AES128Key) (bool, error) {
	mic, err := p.calculateDataMIC(cipher, false, nwkSKey)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

// SetJoinRequestMIC calculates and sets the MIC field for join-request
// frames.
func (p *PHYPayload) SetJoinRequestMIC(cipher Cipher, appKey AES128Key) error {
	mic, err := p.calculateJoinMIC(cipher, appKey)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateJoinRequestMIC validates the MIC of a join-request frame.
func (p PHYPayload) ValidateJoinRequestMIC(cipher Cipher, appKey AES128Key) (bool, error) {
	mic, err := p.calculateJoinMIC(cipher, appKey)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

// SetJoinAcceptMIC calculates and sets the MIC field for join-accept frames.
// This must be called before EncryptJoinAcceptPayload as the MIC is part of
// the encrypted payload.
func (p *PHYPayload) SetJoinAcceptMIC(cipher Cipher, appKey AES128Key) error {
	mic, err := p.calculateJoinMIC(cipher, appKey)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateJoinAcceptMIC validates the MIC of a join-accept frame. This must
// be called after DecryptJoinAcceptPayload.
func (p PHYPayload) ValidateJoinAcceptMIC(cipher Cipher, appKey AES128Key) (bool, error) {
	mic, err := p.calculateJoinMIC(cipher, appKey)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

// calculateJoinMIC computes the CMAC over MHDR | MACPayload.
func (p PHYPayload) calculateJoinMIC(cipher Cipher, key AES128Key) (MIC, error) {
	var mic MIC
	if p.MACPayload == nil {
		return mic, errors.New("lorawan: MACPayload must not be nil")
	}

	var micBytes []byte
	b, err := p.MHDR.MarshalBinary()
	if err != nil {
		return mic, err
	}
	micBytes = append(micBytes, b...)

	b, err = p.MACPayload.MarshalBinary()
	if err != nil {
		return mic, err
	}
	micBytes = append(micBytes, b...)

	hash, err := cipher.CMAC(key, micBytes)
	if err != nil {
		return mic, err
	}
	copy(mic[:], hash[0:4])
	return mic, nil
}

// calculateDataMIC computes the CMAC over B0 | MHDR | MACPayload per the
// LoRaWAN 1.0 specification.
func (p PHYPayload) calculateDataMIC(cipher Cipher, uplink bool, key AES128Key) (MIC, error) {
	var mic MIC
	if p.MACPayload == nil {
		return mic, errors.New("lorawan: MACPayload must not be nil")
	}
	macPL, ok := p.MACPayload.(*MACPayload)
	if !ok {
		return mic, errors.New("lorawan: MACPayload field must be of type *MACPayload")
	}

	var micBytes []byte
	b, err := p.MHDR.MarshalBinary()
	if err != nil {
		return mic, err
	}
	micBytes = append(micBytes, b...)

	b, err = macPL.MarshalBinary()
	if err != nil {
		return mic, err
	}
	micBytes = append(micBytes, b...)

	b0 := make([]byte, 16)
	b0[0] = 0x49
	if !uplink {
		b0[5] = 0x01
	}
	b, err = macPL.FHDR.DevAddr.MarshalBinary()
	if err != nil {
		return mic, err
	}
	copy(b0[6:10], b)
	binary.LittleEndian.PutUint32(b0[10:14], macPL.FHDR.FCnt)
	b0[15] = byte(len(micBytes))

	hash, err := cipher.CMAC(key, append(b0, micBytes...))
	if err != nil {
		return mic, err
	}
	copy(mic[:], hash[0:4])
	return mic, nil
}

// EncryptJoinAcceptPayload encrypts the join-accept payload with the given
// AppKey. Note that encryption must be performed after calling
// SetJoinAcceptMIC (since the MIC is part of the encrypted payload).
//
// The network server runs an AES decrypt operation so that the device only
// needs the (hardware accelerated) encrypt operation; this helper therefore
// uses the software cipher directly and is intended for network-side tools
// and tests.
func (p *PHYPayload) EncryptJoinAcceptPayload(appKey AES128Key) error {
	if _, ok := p.MACPayload.(*JoinAcceptPayload); !ok {
		return errors.New("lorawan: MACPayload value must be of type *JoinAcceptPayload")
	}

	pt, err := p.MACPayload.MarshalBinary()
	if err != nil {
		return err
	}
	pt = append(pt, p.MIC[0:4]...)
	if len(pt)%16 != 0 {
		return errors.New("lorawan: plaintext must be a multiple of 16 bytes")
	}

	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return err
	}
	ct := make([]byte, len(pt))
	for i := 0; i < len(ct)/16; i++ {
		offset := i * 16
		block.Decrypt(ct[offset:offset+16], pt[offset:offset+16])
	}
	p.MACPayload = &DataPayload{Bytes: ct[0 : len(ct)-4]}
	copy(p.MIC[:], ct[len(ct)-4:])
	return nil
}

// DecryptJoinAcceptPayload decrypts the join-accept payload with the given
// AppKey. Decryption runs the AES encrypt operation over the ciphertext per
// the LoRaWAN specification. Note that you need to decrypt before you can
// validate the MIC.
func (p *PHYPayload) DecryptJoinAcceptPayload(cipher Cipher, appKey AES128Key) error {
	dp, ok := p.MACPayload.(*DataPayload)
	if !ok {
		return errors.New("lorawan: MACPayload must be of type *DataPayload")
	}

	// append MIC to the ciphertext since it is encrypted too
	ct := append(dp.Bytes, p.MIC[:]...)
	if len(ct)%16 != 0 {
		return errors.New("lorawan: ciphertext must be a multiple of 16 bytes")
	}

	pt := make([]byte, len(ct))
	for i := 0; i < len(pt)/16; i++ {
		offset := i * 16
		if err := cipher.Encrypt128(appKey, pt[offset:offset+16], ct[offset:offset+16]); err != nil {
			return err
		}
	}

	p.MACPayload = &JoinAcceptPayload{}
	copy(p.MIC[:], pt[len(pt)-4:]) // set the decrypted MIC
	return p.MACPayload.UnmarshalBinary(p.IsUplink(), pt[0:len(pt)-4])
}

// EncryptFRMPayload encrypts the FRMPayload with the given key.
func (p *PHYPayload) EncryptFRMPayload(cipher Cipher, key AES128Key) error {
	macPL, ok := p.MACPayload.(*MACPayload)
	if !ok {
		return errors.New("lorawan: MACPayload must be of type *MACPayload")
	}

	// nothing to encrypt
	if len(macPL.FRMPayload) == 0 {
		return nil
	}

	data, err := EncryptFRMPayload(cipher, key, p.IsUplink(), macPL.FHDR.DevAddr, macPL.FHDR.FCnt, macPL.FRMPayload)
	if err != nil {
		return err
	}
	macPL.FRMPayload = data
	return nil
}

// DecryptFRMPayload decrypts the FRMPayload with the given key.
func (p *PHYPayload) DecryptFRMPayload(cipher Cipher, key AES128Key) error {
	// the encryption is a XOR against the key-stream, decryption is the
	// same operation
	return p.EncryptFRMPayload(cipher, key)
}

// EncryptFRMPayload encrypts the FRMPayload (slice of bytes) with AES-CTR
// over the A_i blocks as defined by the LoRaWAN specification. Note that
// this function is used for both encryption and decryption.
func EncryptFRMPayload(cipher Cipher, key AES128Key, uplink bool, devAddr DevAddr, fCnt uint32, data []byte) ([]byte, error) {
	pLen := len(data)
	buf := make([]byte, pLen)
	copy(buf, data)
	if pLen%16 != 0 {
		// append empty bytes so that len(buf) is a multiple of 16
		buf = append(buf, make([]byte, 16-(pLen%16))...)
	}

	s := make([]byte, 16)
	a := make([]byte, 16)
	a[0] = 0x01
	if !uplink {
		a[5] = 0x01
	}

	b, err := devAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	copy(a[6:10], b)
	binary.LittleEndian.PutUint32(a[10:14], fCnt)

	for i := 0; i < len(buf)/16; i++ {
		a[15] = byte(i + 1)
		if err := cipher.Encrypt128(key, s, a); err != nil {
			return nil, err
		}
		for j := 0; j < len(s); j++ {
			buf[i*16+j] = buf[i*16+j] ^ s[j]
		}
	}

	return buf[0:pLen], nil
}
