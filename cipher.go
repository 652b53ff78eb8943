package lorawan

import (
	"crypto/aes"
	"errors"

	"github.com/jacobsa/crypto/cmac"
)

// Cipher provides the AES-128 primitives used by this package. All MIC,
// payload-encryption and key-derivation operations are expressed in terms of
// this interface so that a secure element can be substituted for the
// software implementation.
type Cipher interface {
	// Encrypt128 encrypts a single 16 byte block. dst and src must both be
	// 16 bytes; they may be the same slice but must not partially overlap.
	Encrypt128(key AES128Key, dst, src []byte) error

	// CMAC computes the AES-CMAC over b.
	CMAC(key AES128Key, b []byte) ([16]byte, error)
}

// SoftCipher implements Cipher in software using crypto/aes and
// jacobsa/crypto.
type SoftCipher struct{}

// Encrypt128 implements Cipher.
func (SoftCipher) Encrypt128(key AES128Key, dst, src []byte) error {
	if len(dst) != 16 || len(src) != 16 {
		return errors.New("lorawan: block-size of 16 bytes is expected")
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}
	block.Encrypt(dst, src)
	return nil
}

// CMAC implements Cipher.
func (SoftCipher) CMAC(key AES128Key, b []byte) ([16]byte, error) {
	var out [16]byte
	hash, err := cmac.New(key[:])
	if err != nil {
		return out, err
	}
	if _, err = hash.Write(b); err != nil {
		return out, err
	}
	hb := hash.Sum([]byte{})
	if len(hb) != len(out) {
		return out, errors.New("lorawan: the hash did not return 16 bytes")
	}
	copy(out[:], hb)
	return out, nil
}
