// Package store provides persistence for the device session and the
// DevNonce counter: an in-memory store for embedded use and tests, and a
// redis-backed store for fleet simulators. Session snapshots can be
// protected at rest by wrapping the session keys under the AppKey.
package store

import (
	"sync"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/device"
)

// SessionStore persists device session snapshots.
type SessionStore interface {
	// SaveSession stores the session snapshot of the given device.
	SaveSession(devEUI lorawan.EUI64, s *device.Session) error

	// GetSession returns the stored session of the given device, or nil
	// when none is stored.
	GetSession(devEUI lorawan.EUI64) (*device.Session, error)

	// DeleteSession removes the stored session of the given device.
	DeleteSession(devEUI lorawan.EUI64) error
}

// NonceStore persists the per-device DevNonce counter. It implements the
// device.NonceStore capability when bound to a device with Nonces.
type NonceStore interface {
	// NextDevNonce increments and persists the DevNonce counter of the
	// given device.
	NextDevNonce(devEUI lorawan.EUI64) (lorawan.DevNonce, error)
}

// boundNonceStore adapts a NonceStore to the single-device
// device.NonceStore capability.
type boundNonceStore struct {
	store  NonceStore
	devEUI lorawan.EUI64
}

// Nonces binds a NonceStore to a device, yielding the device.NonceStore
// capability.
func Nonces(s NonceStore, devEUI lorawan.EUI64) device.NonceStore {
	return &boundNonceStore{store: s, devEUI: devEUI}
}

// NextDevNonce implements device.NonceStore.
func (b *boundNonceStore) NextDevNonce() (lorawan.DevNonce, error) {
	return b.store.NextDevNonce(b.devEUI)
}

// MemoryStore is an in-memory SessionStore and NonceStore. On embedded
// targets the snapshot bytes would be flushed to non-volatile memory; the
// in-memory form is used by tests and simulators.
type MemoryStore struct {
	sync.Mutex
	sessions map[lorawan.EUI64][]byte
	nonces   map[lorawan.EUI64]lorawan.DevNonce
	wrapper  *KeyWrapper
}

// NewMemoryStore returns an empty MemoryStore. The wrapper is optional;
// when given, the session keys are wrapped at rest.
func NewMemoryStore(wrapper *KeyWrapper) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[lorawan.EUI64][]byte),
		nonces:   make(map[lorawan.EUI64]lorawan.DevNonce),
		wrapper:  wrapper,
	}
}

// SaveSession implements SessionStore.
func (m *MemoryStore) SaveSession(devEUI lorawan.EUI64, s *device.Session) error {
	b, err := marshalSession(s, m.wrapper)
	if err != nil {
		return err
	}

	m.Lock()
	defer m.Unlock()
	m.sessions[devEUI] = b
	return nil
}

// GetSession implements SessionStore.
func (m *MemoryStore) GetSession(devEUI lorawan.EUI64) (*device.Session, error) {
	m.Lock()
	b, ok := m.sessions[devEUI]
	m.Unlock()
	if !ok {
		return nil, nil
	}
	return unmarshalSession(b, m.wrapper)
}

// DeleteSession implements SessionStore.
func (m *MemoryStore) DeleteSession(devEUI lorawan.EUI64) error {
	m.Lock()
	defer m.Unlock()
	delete(m.sessions, devEUI)
	return nil
}

// NextDevNonce implements NonceStore.
func (m *MemoryStore) NextDevNonce(devEUI lorawan.EUI64) (lorawan.DevNonce, error) {
	m.Lock()
	defer m.Unlock()
	m.nonces[devEUI]++
	return m.nonces[devEUI], nil
}

// marshalSession encodes the session, wrapping the keys when a wrapper is
// configured.
func marshalSession(s *device.Session, wrapper *KeyWrapper) ([]byte, error) {
	if wrapper == nil {
		return s.MarshalBinary()
	}
	return wrapper.WrapSession(s)
}

// unmarshalSession decodes a stored session.
func unmarshalSession(b []byte, wrapper *KeyWrapper) (*device.Session, error) {
	var s device.Session
	if wrapper == nil {
		if err := s.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return &s, nil
	}
	return wrapper.UnwrapSession(b)
}
