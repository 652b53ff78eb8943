package device

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lorastack/lorawan"
)

// EventKind enumerates the inputs of the non-blocking driver.
type EventKind int

// Possible event kinds.
const (
	// EventKindNewSession requests an OTAA join.
	EventKindNewSession EventKind = iota

	// EventKindSendData requests a data uplink.
	EventKindSendData

	// EventKindRadio reports a radio completion.
	EventKindRadio

	// EventKindTimeout reports that the timeout returned by a previous
	// HandleEvent call fired.
	EventKindTimeout
)

// SendParams holds the parameters of an EventKindSendData event.
type SendParams struct {
	FPort     uint8
	Data      []byte
	Confirmed bool
}

// StackEvent is an input to HandleEvent.
type StackEvent struct {
	Kind  EventKind
	Send  SendParams
	Radio PhyEvent
}

// ResponseKind enumerates the outcomes reported by HandleEvent.
type ResponseKind int

// Possible response kinds.
const (
	// ResponseNone: no transaction resolved by this event.
	ResponseNone ResponseKind = iota

	// ResponseJoinComplete: a session was established.
	ResponseJoinComplete

	// ResponseJoinFailed: both join windows closed without a valid
	// join-accept.
	ResponseJoinFailed

	// ResponseRxComplete: the uplink exchange finished; Downlink is set
	// when one was received.
	ResponseRxComplete

	// ResponseNoAck: a confirmed uplink received no acknowledgment.
	ResponseNoAck

	// ResponseDownlinkReceived: a Class C downlink arrived outside an
	// exchange.
	ResponseDownlinkReceived

	// ResponseError: the operation failed; Err is set.
	ResponseError
)

// Response is the outcome of a HandleEvent call.
type Response struct {
	Kind     ResponseKind
	Downlink *Downlink
	Err      error
}

// EventDevice is the non-blocking realization of the MAC layer. The caller
// owns the event loop: radio interrupts and timer expirations are fed into
// HandleEvent, which never blocks and returns the next timeout to arm (nil
// cancels any pending timeout).
//
// EventDevice reduces to the same transition table as Device.
type EventDevice struct {
	core  *macCore
	radio RadioCommander

	txDone      time.Time
	window      int // 1 or 2
	waitingOpen bool
	rxDeadline  time.Time
	rxCfg       RxConfig
}

// NewEventDevice returns an EventDevice for the given configuration. The
// Radio and Timer fields of the configuration are ignored; the radio is
// commanded through the given RadioCommander.
func NewEventDevice(cfg Config, radio RadioCommander) (*EventDevice, error) {
	if cfg.Band == nil || cfg.Rand == nil || cfg.NonceStore == nil || radio == nil {
		return nil, errors.New("device: Band, Rand, NonceStore and a RadioCommander are required")
	}
	if cfg.Cipher == nil {
		cfg.Cipher = lorawan.SoftCipher{}
	}
	return &EventDevice{
		core:  newMacCore(cfg.Band, cfg.Cipher, cfg.Rand, cfg.NonceStore, cfg.Class, cfg.OTAA, cfg.TxPowerDBm, cfg.Battery),
		radio: radio,
	}, nil
}

// InstallABP installs an activation-by-personalization session.
func (d *EventDevice) InstallABP(p ABPParams) error {
	if d.inFlight() {
		return ErrBusy
	}
	defaults := d.core.band.GetDefaults()
	d.core.session = newABPSession(p, uint8(defaults.ReceiveDelay1/time.Second), defaults.RX2Frequency, uint8(defaults.RX2DataRate))
	d.core.state = StateReady
	return d.armClassC()
}

// Session returns a snapshot of the active session (nil without one).
func (d *EventDevice) Session() *Session {
	if d.core.session == nil {
		return nil
	}
	d.core.syncChannelState()
	s := *d.core.session
	return &s
}

// State returns the current protocol state.
func (d *EventDevice) State() State {
	return d.core.state
}

func (d *EventDevice) inFlight() bool {
	return d.core.state != StateIdle && d.core.state != StateReady
}

// HandleEvent advances the state machine with the given event. It runs to
// completion without blocking and returns the outcome together with the
// next timeout to arm. A non-nil timeout supersedes any previously armed
// one; a nil timeout cancels it.
func (d *EventDevice) HandleEvent(ev StackEvent) (Response, *time.Time) {
	switch ev.Kind {
	case EventKindNewSession:
		return d.handleJoinRequest()
	case EventKindSendData:
		return d.handleSendData(ev.Send)
	case EventKindTimeout:
		return d.handleTimeout()
	case EventKindRadio:
		return d.handleRadioEvent(ev.Radio)
	default:
		return Response{Kind: ResponseError, Err: errors.Errorf("device: unknown event kind %d", ev.Kind)}, nil
	}
}

func (d *EventDevice) handleJoinRequest() (Response, *time.Time) {
	if d.inFlight() {
		return Response{Kind: ResponseError, Err: ErrBusy}, nil
	}

	d.core.session = nil
	d.core.state = StateIdle
	d.step(EventJoinRequested)

	txCfg, err := d.core.buildJoinRequest()
	if err != nil {
		d.core.state = StateIdle
		return Response{Kind: ResponseError, Err: err}, nil
	}
	if err := d.startTx(txCfg); err != nil {
		d.step(EventRadioError)
		return Response{Kind: ResponseError, Err: err}, nil
	}
	return Response{}, nil
}

func (d *EventDevice) handleSendData(p SendParams) (Response, *time.Time) {
	if d.inFlight() {
		return Response{Kind: ResponseError, Err: ErrBusy}, nil
	}
	if d.core.session == nil {
		return Response{Kind: ResponseError, Err: ErrNoSession}, nil
	}
	if d.core.session.Expired() {
		return Response{Kind: ResponseError, Err: ErrSessionExpired}, nil
	}

	d.step(EventSendRequested)
	txCfg, _, err := d.core.buildUplink(p.FPort, p.Data, p.Confirmed)
	if err != nil {
		d.core.state = StateReady
		return Response{Kind: ResponseError, Err: err}, nil
	}

	if d.core.class == ClassC {
		if err := d.radio.Standby(); err != nil {
			d.step(EventRadioError)
			return Response{Kind: ResponseError, Err: errors.Wrap(err, "radio standby")}, nil
		}
	}
	if err := d.startTx(txCfg); err != nil {
		d.step(EventRadioError)
		return Response{Kind: ResponseError, Err: err}, nil
	}
	return Response{}, nil
}

func (d *EventDevice) startTx(cfg TxConfig) error {
	if err := d.radio.ConfigureTx(cfg); err != nil {
		d.radio.Standby()
		return errors.Wrap(err, "radio configure tx")
	}
	if err := d.radio.StartTx(d.core.buf[:d.core.txFrameLen]); err != nil {
		d.radio.Standby()
		return errors.Wrap(err, "radio start tx")
	}
	return nil
}

func (d *EventDevice) handleTimeout() (Response, *time.Time) {
	if d.waitingOpen {
		// the window opens now: arm the receiver, the next timeout is
		// the wall-clock window deadline
		d.waitingOpen = false
		if err := d.radio.ConfigureRx(d.rxCfg); err != nil {
			return d.recover(errors.Wrap(err, "radio configure rx"))
		}
		if err := d.radio.StartRx(); err != nil {
			return d.recover(errors.Wrap(err, "radio start rx"))
		}
		deadline := d.rxDeadline
		return Response{}, &deadline
	}

	// the wall-clock deadline closed the window
	d.radio.Standby()
	return d.windowClosed()
}

func (d *EventDevice) handleRadioEvent(ev PhyEvent) (Response, *time.Time) {
	switch ev.Kind {
	case PhyTxDone:
		d.txDone = ev.Timestamp
		d.core.commitUplink()
		d.step(EventTxDone)
		return d.scheduleWindow(1)

	case PhyPreambleDetected:
		// hold the window: the symbol timeout completes the frame, the
		// wall-clock deadline is canceled
		d.step(EventPreambleDetected)
		return Response{}, nil

	case PhyRxTimeout:
		return d.windowClosed()

	case PhyRxDone:
		return d.frameReceived(ev)

	case PhyError:
		return d.recover(errors.Wrap(ev.Err, "radio"))

	default:
		return Response{Kind: ResponseError, Err: errors.Errorf("device: unknown radio event %d", ev.Kind)}, nil
	}
}

// scheduleWindow computes the timing of the given receive window and
// returns its open instant as the next timeout.
func (d *EventDevice) scheduleWindow(window int) (Response, *time.Time) {
	d.window = window

	cfgFn := d.core.rx1Config
	delay1, delay2 := d.core.rxDelays()
	delay := delay1
	if window == 2 {
		cfgFn = d.core.rx2Config
		delay = delay2
	}

	cfg, err := cfgFn()
	if err != nil {
		return d.recover(err)
	}

	open, deadline, symbols := windowTiming(d.txDone, delay, cfg, d.radio.Timing())
	cfg.SymbolTimeout = symbols
	d.rxCfg = cfg
	d.rxDeadline = deadline
	d.waitingOpen = true
	return Response{}, &open
}

// windowClosed handles a window that closed without an accepted frame.
func (d *EventDevice) windowClosed() (Response, *time.Time) {
	if d.core.state == StateReady || d.core.state == StateReceivingRxC {
		// a Class C reception that did not complete; re-arm
		d.step(EventWindowExpired)
		return Response{}, d.rearmClassC()
	}

	action := d.step(EventWindowExpired)
	switch action {
	case ActionScheduleRx2:
		return d.scheduleWindow(2)
	case ActionFailJoin:
		d.radio.Standby()
		return Response{Kind: ResponseJoinFailed, Err: ErrNoJoinAccept}, nil
	case ActionCompleteExchange:
		return d.completeExchange(nil)
	default:
		return Response{}, nil
	}
}

// frameReceived runs the downlink demux on a received frame.
func (d *EventDevice) frameReceived(ev PhyEvent) (Response, *time.Time) {
	// radios that do not report preamble detection deliver RxDone from
	// the waiting state directly
	switch d.core.state {
	case StateWaitingJoinRx1, StateWaitingJoinRx2, StateWaitingRx1, StateWaitingRx2, StateReady:
		d.step(EventPreambleDetected)
	}

	switch d.core.state {
	case StateReceivingJoinRx1, StateReceivingJoinRx2:
		if d.core.processJoinAccept(ev.Frame) {
			d.step(EventFrameAccepted)
			return Response{Kind: ResponseJoinComplete}, d.rearmClassC()
		}
		action := d.step(EventFrameRejected)
		if action == ActionScheduleRx2 {
			return d.scheduleWindow(2)
		}
		d.radio.Standby()
		return Response{Kind: ResponseJoinFailed, Err: ErrNoJoinAccept}, nil

	case StateReceivingRx1, StateReceivingRx2:
		dl, ok := d.core.processDownlink(ev.Frame, ev.RxInfo, d.rxCfg.DataRate.SpreadFactor)
		if ok {
			d.step(EventFrameAccepted)
			return d.completeExchange(dl)
		}
		action := d.step(EventFrameRejected)
		if action == ActionScheduleRx2 {
			return d.scheduleWindow(2)
		}
		return d.completeExchange(nil)

	case StateReceivingRxC:
		dl, ok := d.core.processDownlink(ev.Frame, ev.RxInfo, d.rxCfg.DataRate.SpreadFactor)
		if !ok {
			d.step(EventFrameRejected)
			return Response{}, d.rearmClassC()
		}
		d.step(EventFrameAccepted)
		return Response{Kind: ResponseDownlinkReceived, Downlink: dl}, d.rearmClassC()

	default:
		return Response{}, nil
	}
}

// completeExchange resolves the uplink exchange.
func (d *EventDevice) completeExchange(dl *Downlink) (Response, *time.Time) {
	d.core.state = StateReady
	timeout := d.rearmClassC()

	if d.core.txConfirmed && (dl == nil || !dl.Ack) {
		return Response{Kind: ResponseNoAck, Downlink: dl, Err: ErrNoAck}, timeout
	}
	if d.core.payloadDrop {
		return Response{Kind: ResponseRxComplete, Downlink: dl, Err: ErrPayloadTooLarge}, timeout
	}
	return Response{Kind: ResponseRxComplete, Downlink: dl}, timeout
}

// recover commands the radio to standby and resolves the in-flight
// operation with the error.
func (d *EventDevice) recover(err error) (Response, *time.Time) {
	d.radio.Standby()
	d.step(EventRadioError)
	return Response{Kind: ResponseError, Err: err}, nil
}

// rearmClassC re-enters continuous reception for Class C devices. It
// returns nil: continuous reception has no deadline.
func (d *EventDevice) rearmClassC() *time.Time {
	if err := d.armClassC(); err != nil {
		d.radio.Standby()
	}
	return nil
}

func (d *EventDevice) armClassC() error {
	if d.core.class != ClassC || d.core.session == nil {
		return nil
	}
	cfg, err := d.core.rxcConfig()
	if err != nil {
		return err
	}
	d.rxCfg = cfg
	if err := d.radio.ConfigureRx(cfg); err != nil {
		return err
	}
	return d.radio.StartRx()
}

func (d *EventDevice) step(e Event) Action {
	next, action := Transition(d.core.state, e)
	d.core.state = next
	return action
}
