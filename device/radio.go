package device

import (
	"context"
	"time"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/band"
)

// TxConfig holds the radio configuration for a transmission.
type TxConfig struct {
	Frequency  uint32
	DataRate   band.DataRate
	TxPowerDBm int
}

// RxMode defines how a receive window is closed.
type RxMode int

// Possible receive modes.
const (
	// RxModeSingle closes the window after the configured number of
	// preamble symbols without detection.
	RxModeSingle RxMode = iota

	// RxModeContinuous keeps the receiver open until it is commanded to
	// standby (Class C).
	RxModeContinuous
)

// RxConfig holds the radio configuration for a receive window.
type RxConfig struct {
	Frequency     uint32
	DataRate      band.DataRate
	Mode          RxMode
	SymbolTimeout int // preamble symbols, single mode only
}

// RxInfo describes a received frame.
type RxInfo struct {
	Len  int
	RSSI int
	SNR  int8 // dB, rounded
}

// Timing reports the per-radio timing corrections. The MAC subtracts these
// when arming a receive window.
type Timing struct {
	// TxToRx is the turnaround time from TX-done to a primed receiver.
	TxToRx time.Duration

	// RxWindow is the receiver precharge time: how long before the
	// expected preamble the window must open.
	RxWindow time.Duration
}

// Radio is the blocking PHY capability used by Device. All operations are
// single-shot and non-reentrant; Tx and Rx block until completion and may be
// canceled through the context, leaving the radio in standby.
type Radio interface {
	// ConfigureTx prepares the radio for a transmission.
	ConfigureTx(cfg TxConfig) error

	// Tx transmits the given frame and returns the TX-done timestamp.
	Tx(ctx context.Context, frame []byte) (time.Time, error)

	// ConfigureRx prepares the radio for reception.
	ConfigureRx(cfg RxConfig) error

	// Rx receives a single frame into buf. The window closes on the
	// configured symbol timeout, on the deadline (zero deadline means no
	// deadline, continuous mode), or on a received frame, whichever
	// happens first. ErrRxTimeout is returned when the window closed
	// without a frame.
	Rx(ctx context.Context, buf []byte, deadline time.Time) (RxInfo, error)

	// Standby aborts any operation in progress and idles the radio.
	Standby() error

	// Sleep puts the radio in its lowest power mode.
	Sleep() error

	// Timing returns the timing corrections of this radio.
	Timing() Timing
}

// RadioCommander is the non-blocking PHY capability used by EventDevice.
// Commands return immediately; completions are fed back to HandleEvent as
// radio events.
type RadioCommander interface {
	// ConfigureTx prepares the radio for a transmission.
	ConfigureTx(cfg TxConfig) error

	// StartTx starts transmitting the given frame. Completion is
	// reported through a PhyEvent of kind PhyTxDone.
	StartTx(frame []byte) error

	// ConfigureRx prepares the radio for reception.
	ConfigureRx(cfg RxConfig) error

	// StartRx opens the receiver. Completions are reported through radio
	// events of kind PhyPreambleDetected, PhyRxDone or PhyRxTimeout.
	StartRx() error

	// Standby aborts any operation in progress and idles the radio.
	Standby() error

	// Timing returns the timing corrections of this radio.
	Timing() Timing
}

// PhyEventKind enumerates the radio completions fed into HandleEvent.
type PhyEventKind int

// Possible radio event kinds.
const (
	PhyTxDone PhyEventKind = iota
	PhyPreambleDetected
	PhyRxDone
	PhyRxTimeout
	PhyError
)

// PhyEvent is a radio completion.
type PhyEvent struct {
	Kind PhyEventKind

	// Timestamp of the completion (TX-done time for PhyTxDone).
	Timestamp time.Time

	// Frame and RxInfo are set for PhyRxDone.
	Frame  []byte
	RxInfo RxInfo

	// Err is set for PhyError.
	Err error
}

// Timer is the wall-clock capability.
type Timer interface {
	// Now returns the current instant.
	Now() time.Time

	// DelayUntil blocks until the given instant or until the context is
	// canceled.
	DelayUntil(ctx context.Context, t time.Time) error
}

// Rand is the random source capability.
type Rand = band.Rand

// NonceStore persists the DevNonce counter across resets, as required by the
// LoRaWAN 1.0.4 join anti-replay rules.
type NonceStore interface {
	// NextDevNonce increments and persists the DevNonce counter and
	// returns the value to use for the next join-request.
	NextDevNonce() (lorawan.DevNonce, error)
}
