package device

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/band"
	"github.com/lorastack/lorawan/gps"
)

// Config holds the capabilities and credentials of a device stack.
type Config struct {
	Band       band.Band
	Radio      Radio
	Timer      Timer
	Rand       Rand
	Cipher     lorawan.Cipher
	NonceStore NonceStore
	Class      Class
	OTAA       OTAA

	// TxPowerDBm is the EIRP used at TXPower index 0 (default 14).
	TxPowerDBm int

	// Battery reports the battery level for DevStatusAns (optional).
	Battery func() uint8
}

// Device is the blocking realization of the MAC layer. Join, Send and
// SendRecv suspend only at the radio and timer capability calls; canceling
// the context at a suspension point commands the radio to standby and
// leaves the session unchanged unless the transmission had already
// completed.
type Device struct {
	core  *macCore
	radio Radio
	timer Timer
	busy  bool
}

// New returns a Device for the given configuration.
func New(cfg Config) (*Device, error) {
	if cfg.Band == nil || cfg.Radio == nil || cfg.Timer == nil || cfg.Rand == nil || cfg.NonceStore == nil {
		return nil, errors.New("device: Band, Radio, Timer, Rand and NonceStore are required")
	}
	if cfg.Cipher == nil {
		cfg.Cipher = lorawan.SoftCipher{}
	}
	return &Device{
		core:  newMacCore(cfg.Band, cfg.Cipher, cfg.Rand, cfg.NonceStore, cfg.Class, cfg.OTAA, cfg.TxPowerDBm, cfg.Battery),
		radio: cfg.Radio,
		timer: cfg.Timer,
	}, nil
}

// step applies an event to the transition table.
func (d *Device) step(e Event) Action {
	next, action := Transition(d.core.state, e)
	d.core.state = next
	return action
}

// Join runs the OTAA join procedure: transmit a join-request, listen in
// both join receive windows and derive a new session from the join-accept.
// On failure the DevNonce is still consumed and persisted.
func (d *Device) Join(ctx context.Context) error {
	if d.busy {
		return ErrBusy
	}
	d.busy = true
	defer func() { d.busy = false }()

	// a new join discards any previous session
	d.core.session = nil
	d.core.state = StateIdle

	d.step(EventJoinRequested)
	txCfg, err := d.core.buildJoinRequest()
	if err != nil {
		d.core.state = StateIdle
		return err
	}

	txDone, err := d.transmit(ctx, txCfg)
	if err != nil {
		d.step(EventRadioError)
		return err
	}
	d.step(EventTxDone)

	delay1, delay2 := d.core.rxDelays()
	for _, window := range []struct {
		delay time.Duration
		cfg   func() (RxConfig, error)
	}{
		{delay1, d.core.rx1Config},
		{delay2, d.core.rx2Config},
	} {
		rxCfg, err := window.cfg()
		if err != nil {
			d.step(EventRadioError)
			return err
		}

		frame, _, err := d.receiveWindow(ctx, rxCfg, txDone, window.delay)
		switch {
		case err == ErrRxTimeout:
			d.step(EventWindowExpired)
			continue
		case err != nil:
			d.step(EventRadioError)
			return err
		}

		d.step(EventPreambleDetected)
		if d.core.processJoinAccept(frame) {
			d.step(EventFrameAccepted)
			return d.enterReady()
		}
		d.step(EventFrameRejected)
	}

	// both windows closed without a valid join-accept
	d.radio.Sleep()
	return ErrNoJoinAccept
}

// Send transmits an uplink and listens in both receive windows. The
// returned response carries the downlink, when one was received.
//
// When the queued mac-command answers leave no room for the user payload
// the uplink is still sent (answers only) and ErrPayloadTooLarge is
// returned together with the response.
func (d *Device) Send(ctx context.Context, fPort uint8, data []byte, confirmed bool) (SendResponse, error) {
	if d.busy {
		return SendResponse{}, ErrBusy
	}
	d.busy = true
	defer func() { d.busy = false }()

	if d.core.session == nil {
		return SendResponse{}, ErrNoSession
	}
	if d.core.session.Expired() {
		return SendResponse{}, ErrSessionExpired
	}

	d.step(EventSendRequested)
	txCfg, dropped, err := d.core.buildUplink(fPort, data, confirmed)
	if err != nil {
		d.core.state = StateReady
		return SendResponse{}, err
	}

	if d.core.class == ClassC {
		// leave continuous reception for the uplink
		if err := d.radio.Standby(); err != nil {
			d.step(EventRadioError)
			return SendResponse{}, errors.Wrap(err, "radio standby")
		}
	}

	txDone, err := d.transmit(ctx, txCfg)
	if err != nil {
		d.step(EventRadioError)
		d.enterReady()
		return SendResponse{}, err
	}
	// the frame is on air: the frame-counter is committed even when no
	// downlink follows
	d.core.commitUplink()
	d.step(EventTxDone)

	var downlink *Downlink
	delay1, delay2 := d.core.rxDelays()
	for _, window := range []struct {
		delay time.Duration
		cfg   func() (RxConfig, error)
	}{
		{delay1, d.core.rx1Config},
		{delay2, d.core.rx2Config},
	} {
		rxCfg, err := window.cfg()
		if err != nil {
			d.step(EventRadioError)
			d.enterReady()
			return SendResponse{}, err
		}

		frame, info, err := d.receiveWindow(ctx, rxCfg, txDone, window.delay)
		switch {
		case err == ErrRxTimeout:
			d.step(EventWindowExpired)
			continue
		case err != nil:
			d.step(EventRadioError)
			d.enterReady()
			return SendResponse{}, err
		}

		d.step(EventPreambleDetected)
		dl, ok := d.core.processDownlink(frame, info, rxCfg.DataRate.SpreadFactor)
		if ok {
			// a valid downlink in RX1 skips RX2
			d.step(EventFrameAccepted)
			downlink = dl
			break
		}
		d.step(EventFrameRejected)
	}

	if err := d.enterReady(); err != nil {
		return SendResponse{Downlink: downlink}, err
	}

	switch {
	case confirmed && (downlink == nil || !downlink.Ack):
		return SendResponse{Downlink: downlink}, ErrNoAck
	case dropped:
		return SendResponse{Downlink: downlink}, ErrPayloadTooLarge
	default:
		return SendResponse{Downlink: downlink}, nil
	}
}

// SendRecv is Send with the downlink payload copied into rxBuf. It returns
// the number of bytes copied.
func (d *Device) SendRecv(ctx context.Context, fPort uint8, data []byte, confirmed bool, rxBuf []byte) (SendResponse, int, error) {
	resp, err := d.Send(ctx, fPort, data, confirmed)
	n := 0
	if resp.Downlink != nil {
		n = copy(rxBuf, resp.Downlink.Payload)
	}
	return resp, n, err
}

// AwaitDownlink blocks in Class C continuous reception until a valid
// downlink arrives or the context is canceled. Frames received between
// uplinks are delivered in arrival order, one per call.
func (d *Device) AwaitDownlink(ctx context.Context) (*Downlink, error) {
	if d.busy {
		return nil, ErrBusy
	}
	if d.core.class != ClassC {
		return nil, errors.New("device: continuous reception requires Class C")
	}
	if d.core.session == nil {
		return nil, ErrNoSession
	}
	d.busy = true
	defer func() { d.busy = false }()

	rxCfg, err := d.core.rxcConfig()
	if err != nil {
		return nil, err
	}

	for {
		info, err := d.radio.Rx(ctx, d.core.buf[:], time.Time{})
		switch {
		case err == ErrRxTimeout:
			continue
		case err != nil:
			d.step(EventRadioError)
			d.radio.Standby()
			return nil, err
		}

		d.step(EventPreambleDetected)
		dl, ok := d.core.processDownlink(d.core.buf[:info.Len], info, rxCfg.DataRate.SpreadFactor)
		if !ok {
			d.step(EventFrameRejected)
			continue
		}
		d.step(EventFrameAccepted)
		return dl, nil
	}
}

// InstallABP installs an activation-by-personalization session.
func (d *Device) InstallABP(p ABPParams) error {
	if d.busy {
		return ErrBusy
	}
	defaults := d.core.band.GetDefaults()
	d.core.session = newABPSession(p, uint8(defaults.ReceiveDelay1/time.Second), defaults.RX2Frequency, uint8(defaults.RX2DataRate))
	d.core.state = StateReady
	return d.enterReady()
}

// Session returns a snapshot of the active session (nil without one). The
// snapshot includes the mutable channel state and round-trips through
// RestoreSession.
func (d *Device) Session() *Session {
	if d.core.session == nil {
		return nil
	}
	d.core.syncChannelState()
	s := *d.core.session
	return &s
}

// RestoreSession restores a previously persisted session.
func (d *Device) RestoreSession(s *Session) error {
	if d.busy {
		return ErrBusy
	}
	copied := *s
	d.core.session = &copied
	if err := d.core.restoreChannelState(); err != nil {
		return err
	}
	d.core.state = StateReady
	return d.enterReady()
}

// Reset discards the active session.
func (d *Device) Reset() {
	d.core.session = nil
	d.core.state = StateIdle
	d.radio.Sleep()
}

// RequestLinkCheck queues a LinkCheckReq on the next uplink.
func (d *Device) RequestLinkCheck() {
	d.core.cmds.queue(lorawan.MACCommand{CID: lorawan.LinkCheckReq}, false)
}

// RequestDeviceTime queues a DeviceTimeReq on the next uplink.
func (d *Device) RequestDeviceTime() {
	d.core.cmds.queue(lorawan.MACCommand{CID: lorawan.DeviceTimeReq}, false)
}

// LinkCheck returns the result of the last LinkCheckAns (nil when none was
// received).
func (d *Device) LinkCheck() *LinkCheck {
	return d.core.cmds.linkCheck
}

// DeviceTime returns the network time of the last DeviceTimeAns (zero time
// when none was received).
func (d *Device) DeviceTime() (gps.Time, bool) {
	if d.core.cmds.deviceTime == nil {
		return gps.Time{}, false
	}
	return gps.NewTimeFromTimeSinceGPSEpoch(*d.core.cmds.deviceTime), true
}

// transmit configures the radio and transmits the frame in the frame
// buffer, returning the TX-done timestamp.
func (d *Device) transmit(ctx context.Context, cfg TxConfig) (time.Time, error) {
	if err := d.radio.ConfigureTx(cfg); err != nil {
		d.radio.Standby()
		return time.Time{}, errors.Wrap(err, "radio configure tx")
	}
	txDone, err := d.radio.Tx(ctx, d.core.buf[:d.core.txFrameLen])
	if err != nil {
		d.radio.Standby()
		return time.Time{}, errors.Wrap(err, "radio tx")
	}
	return txDone, nil
}

// receiveWindow arms a single receive window relative to the TX-done
// timestamp, applying the radio timing corrections, and waits for its
// outcome.
func (d *Device) receiveWindow(ctx context.Context, cfg RxConfig, txDone time.Time, delay time.Duration) ([]byte, RxInfo, error) {
	open, deadline, symbols := windowTiming(txDone, delay, cfg, d.radio.Timing())
	cfg.SymbolTimeout = symbols

	if err := d.timer.DelayUntil(ctx, open); err != nil {
		d.radio.Standby()
		return nil, RxInfo{}, errors.Wrap(err, "timer delay")
	}
	if err := d.radio.ConfigureRx(cfg); err != nil {
		d.radio.Standby()
		return nil, RxInfo{}, errors.Wrap(err, "radio configure rx")
	}

	info, err := d.radio.Rx(ctx, d.core.buf[:], deadline)
	if err == ErrRxTimeout {
		return nil, RxInfo{}, ErrRxTimeout
	}
	if err != nil {
		d.radio.Standby()
		return nil, RxInfo{}, errors.Wrap(err, "radio rx")
	}
	return d.core.buf[:info.Len], info, nil
}

// enterReady arms Class C continuous reception, or puts the radio to sleep
// for Class A.
func (d *Device) enterReady() error {
	d.core.state = StateReady
	if d.core.class != ClassC || d.core.session == nil {
		return d.radio.Sleep()
	}

	rxCfg, err := d.core.rxcConfig()
	if err != nil {
		return err
	}
	if err := d.radio.ConfigureRx(rxCfg); err != nil {
		return errors.Wrap(err, "radio configure rx")
	}
	return nil
}
