package store

import (
	"crypto/aes"
	"encoding/binary"

	keywrap "github.com/NickBall/go-aes-key-wrap"
	"github.com/pkg/errors"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/device"
)

// KeyWrapper protects the session keys of a persisted snapshot using
// AES key wrap (RFC 3394) under a key-encryption key, typically the
// device's AppKey.
type KeyWrapper struct {
	kek lorawan.AES128Key
}

// NewKeyWrapper returns a KeyWrapper using the given key-encryption key.
func NewKeyWrapper(kek lorawan.AES128Key) *KeyWrapper {
	return &KeyWrapper{kek: kek}
}

// WrapSession encodes the session with the NwkSKey and AppSKey replaced by
// a single wrapped key blob.
func (w *KeyWrapper) WrapSession(s *device.Session) ([]byte, error) {
	block, err := aes.NewCipher(w.kek[:])
	if err != nil {
		return nil, errors.Wrap(err, "new cipher error")
	}

	material := make([]byte, 0, 32)
	material = append(material, s.NwkSKey[:]...)
	material = append(material, s.AppSKey[:]...)

	wrapped, err := keywrap.Wrap(block, material)
	if err != nil {
		return nil, errors.Wrap(err, "key wrap error")
	}

	blanked := *s
	blanked.NwkSKey = lorawan.AES128Key{}
	blanked.AppSKey = lorawan.AES128Key{}
	snapshot, err := blanked.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 2, 2+len(wrapped)+len(snapshot))
	binary.LittleEndian.PutUint16(out, uint16(len(wrapped)))
	out = append(out, wrapped...)
	return append(out, snapshot...), nil
}

// UnwrapSession decodes a snapshot produced by WrapSession.
func (w *KeyWrapper) UnwrapSession(b []byte) (*device.Session, error) {
	if len(b) < 2 {
		return nil, errors.New("store: wrapped snapshot too short")
	}
	wrappedLen := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b) < 2+wrappedLen {
		return nil, errors.New("store: wrapped snapshot too short")
	}

	block, err := aes.NewCipher(w.kek[:])
	if err != nil {
		return nil, errors.Wrap(err, "new cipher error")
	}
	material, err := keywrap.Unwrap(block, b[2:2+wrappedLen])
	if err != nil {
		return nil, errors.Wrap(err, "key unwrap error")
	}
	if len(material) != 32 {
		return nil, errors.New("store: unexpected key material length")
	}

	var s device.Session
	if err := s.UnmarshalBinary(b[2+wrappedLen:]); err != nil {
		return nil, err
	}
	copy(s.NwkSKey[:], material[0:16])
	copy(s.AppSKey[:], material[16:32])
	return &s, nil
}
