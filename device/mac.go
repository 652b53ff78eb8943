package device

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/airtime"
	"github.com/lorastack/lorawan/band"
)

// Class defines the device class.
type Class int

// Supported device classes.
const (
	ClassA Class = iota
	ClassC
)

// OTAA holds the over-the-air activation credentials. They are immutable
// for the lifetime of the device.
type OTAA struct {
	DevEUI  lorawan.EUI64
	JoinEUI lorawan.EUI64
	AppKey  lorawan.AES128Key
}

// Downlink is a downlink delivered to the caller. The payload is a decrypted
// copy of the FRMPayload; it does not alias the internal frame buffer.
type Downlink struct {
	Port     uint8
	Payload  []byte
	Ack      bool
	FPending bool
	RSSI     int
	SNR      int8
}

// SendResponse is the result of a completed uplink exchange.
type SendResponse struct {
	// Downlink is nil when both receive windows closed without a frame.
	Downlink *Downlink
}

// frameBufSize is the size of the single TX/RX frame buffer, matching the
// largest regional max PHY payload.
const frameBufSize = 256

// macCore holds the state shared by the blocking and the non-blocking
// driver: credentials, session, mac-command engine, the frame buffer and
// the metadata of the transaction in flight.
type macCore struct {
	band       band.Band
	cipher     lorawan.Cipher
	rand       Rand
	nonceStore NonceStore
	class      Class
	otaa       OTAA
	txPowerDBm int

	state   State
	session *Session
	cmds    macCommandEngine

	// buf is the single TX/RX frame buffer. It is owned exclusively by
	// the MAC while a transaction is in flight; TX and RX alias it,
	// never concurrently.
	buf [frameBufSize]byte

	// transaction in flight
	txFreq      uint32
	txDR        int
	txFrameLen  int
	txConfirmed bool
	txIsJoin    bool
	txDevNonce  lorawan.DevNonce
	sentAnswers []lorawan.MACCommand
	payloadDrop bool

	// ackPending is set when a ConfirmedDataDown was admitted and
	// cleared by the next uplink, which carries the ACK bit.
	ackPending bool

	// last downlink radio metadata, feeds DevStatusAns.
	lastSNR int8
	lastSF  int
}

func newMacCore(bnd band.Band, cipher lorawan.Cipher, rng Rand, nonces NonceStore, class Class, otaa OTAA, txPowerDBm int, battery func() uint8) *macCore {
	if txPowerDBm == 0 {
		txPowerDBm = 14
	}
	return &macCore{
		band:       bnd,
		cipher:     cipher,
		rand:       rng,
		nonceStore: nonces,
		class:      class,
		otaa:       otaa,
		txPowerDBm: txPowerDBm,
		state:      StateIdle,
		cmds:       macCommandEngine{battery: battery},
	}
}

// buildJoinRequest selects a join channel, draws the next DevNonce and
// builds the join-request frame into the frame buffer.
func (c *macCore) buildJoinRequest() (TxConfig, error) {
	ch, dr, err := c.band.GetJoinChannel(c.rand)
	if err != nil {
		return TxConfig{}, err
	}
	drInfo, err := c.band.GetDataRate(dr)
	if err != nil {
		return TxConfig{}, err
	}

	devNonce, err := c.nonceStore.NextDevNonce()
	if err != nil {
		return TxConfig{}, errors.Wrap(err, "get next DevNonce")
	}

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{MType: lorawan.JoinRequest, Major: lorawan.LoRaWANR1},
		MACPayload: &lorawan.JoinRequestPayload{
			JoinEUI:  c.otaa.JoinEUI,
			DevEUI:   c.otaa.DevEUI,
			DevNonce: devNonce,
		},
	}
	if err := phy.SetJoinRequestMIC(c.cipher, c.otaa.AppKey); err != nil {
		return TxConfig{}, err
	}
	frame, err := phy.MarshalBinary()
	if err != nil {
		return TxConfig{}, err
	}

	c.txFreq = ch.Frequency
	c.txDR = dr
	c.txIsJoin = true
	c.txDevNonce = devNonce
	c.txFrameLen = copy(c.buf[:], frame)

	return TxConfig{
		Frequency:  ch.Frequency,
		DataRate:   drInfo,
		TxPowerDBm: c.txPowerDBm,
	}, nil
}

// buildUplink builds a data uplink into the frame buffer. When the queued
// mac-command answers leave no room for the user payload, the payload is
// dropped (the answers are not) and the second return value is true.
func (c *macCore) buildUplink(fPort uint8, data []byte, confirmed bool) (TxConfig, bool, error) {
	if c.session == nil {
		return TxConfig{}, false, ErrNoSession
	}
	if c.session.Expired() {
		return TxConfig{}, false, ErrSessionExpired
	}

	dr := int(c.session.TxDataRate)
	ch, err := c.band.GetTxChannel(c.rand, dr)
	if err != nil {
		return TxConfig{}, false, err
	}
	drInfo, err := c.band.GetDataRate(dr)
	if err != nil {
		return TxConfig{}, false, err
	}
	maxSize, err := c.band.GetMaxPayloadSize(dr)
	if err != nil {
		return TxConfig{}, false, err
	}

	answers := c.cmds.uplinkAnswers(15)
	ansLen := 0
	for _, a := range answers {
		ansLen += a.Size()
	}

	dropped := false
	if len(data) > maxSize.N-ansLen {
		// the answers take precedence over the user payload
		data = nil
		dropped = true
	}

	mType := lorawan.UnconfirmedDataUp
	if confirmed {
		mType = lorawan.ConfirmedDataUp
	}

	macPL := &lorawan.MACPayload{
		FHDR: lorawan.FHDR{
			DevAddr: c.session.DevAddr,
			FCtrl: lorawan.FCtrl{
				ADR: true,
				ACK: c.ackPending,
			},
			FCnt:  c.session.FCntUp,
			FOpts: answers,
		},
	}
	if len(data) > 0 {
		macPL.FPort = &fPort
		macPL.FRMPayload = data
	}

	phy := lorawan.PHYPayload{
		MHDR:       lorawan.MHDR{MType: mType, Major: lorawan.LoRaWANR1},
		MACPayload: macPL,
	}

	if len(data) > 0 {
		key := c.session.AppSKey
		if fPort == 0 {
			key = c.session.NwkSKey
		}
		if err := phy.EncryptFRMPayload(c.cipher, key); err != nil {
			return TxConfig{}, false, err
		}
	}
	if err := phy.SetUplinkDataMIC(c.cipher, c.session.NwkSKey); err != nil {
		return TxConfig{}, false, err
	}
	frame, err := phy.MarshalBinary()
	if err != nil {
		return TxConfig{}, false, err
	}

	txPower := c.txPowerDBm
	if offset, err := c.band.GetTXPowerOffset(int(c.session.TxPowerIndex)); err == nil {
		txPower += offset
	}

	c.txFreq = ch.Frequency
	c.txDR = dr
	c.txIsJoin = false
	c.txConfirmed = confirmed
	c.sentAnswers = answers
	c.payloadDrop = dropped
	c.txFrameLen = copy(c.buf[:], frame)

	return TxConfig{
		Frequency:  ch.Frequency,
		DataRate:   drInfo,
		TxPowerDBm: txPower,
	}, dropped, nil
}

// commitUplink finalizes a completed transmission: the uplink
// frame-counter advances and the transmitted mac-command answers are
// dequeued.
func (c *macCore) commitUplink() {
	if c.txIsJoin || c.session == nil {
		return
	}
	c.session.CommitUplink()
	c.cmds.onUplinkSent(c.sentAnswers)
	c.sentAnswers = nil
	c.ackPending = false
}

// rx1Config computes the RX1 window radio configuration for the
// transaction in flight.
func (c *macCore) rx1Config() (RxConfig, error) {
	rx1DROffset := 0
	if !c.txIsJoin && c.session != nil {
		rx1DROffset = int(c.session.RX1DROffset)
	}
	freq, dr, err := c.band.GetRX1Params(c.txFreq, c.txDR, rx1DROffset)
	if err != nil {
		return RxConfig{}, err
	}
	drInfo, err := c.band.GetDataRate(dr)
	if err != nil {
		return RxConfig{}, err
	}
	return RxConfig{
		Frequency: freq,
		DataRate:  drInfo,
		Mode:      RxModeSingle,
	}, nil
}

// rx2Config computes the RX2 window radio configuration.
func (c *macCore) rx2Config() (RxConfig, error) {
	defaults := c.band.GetDefaults()
	freq, dr := defaults.RX2Frequency, defaults.RX2DataRate
	if !c.txIsJoin && c.session != nil {
		freq, dr = c.session.RX2Frequency, int(c.session.RX2DataRate)
	}
	drInfo, err := c.band.GetDataRate(dr)
	if err != nil {
		return RxConfig{}, err
	}
	return RxConfig{
		Frequency: freq,
		DataRate:  drInfo,
		Mode:      RxModeSingle,
	}, nil
}

// rxcConfig computes the Class C continuous receive configuration (RX2
// parameters).
func (c *macCore) rxcConfig() (RxConfig, error) {
	defaults := c.band.GetDefaults()
	freq, dr := defaults.RX2Frequency, defaults.RX2DataRate
	if c.session != nil {
		freq, dr = c.session.RX2Frequency, int(c.session.RX2DataRate)
	}
	drInfo, err := c.band.GetDataRate(dr)
	if err != nil {
		return RxConfig{}, err
	}
	return RxConfig{
		Frequency: freq,
		DataRate:  drInfo,
		Mode:      RxModeContinuous,
	}, nil
}

// rxDelays returns the delays (relative to TX-done) of the RX1 and RX2
// windows of the transaction in flight.
func (c *macCore) rxDelays() (time.Duration, time.Duration) {
	defaults := c.band.GetDefaults()
	if c.txIsJoin {
		return defaults.JoinAcceptDelay1, defaults.JoinAcceptDelay2
	}

	delay1 := defaults.ReceiveDelay1
	if c.session != nil && c.session.RXDelay > 0 {
		delay1 = time.Duration(c.session.RXDelay) * time.Second
	}
	return delay1, delay1 + time.Second
}

// windowTiming computes the open instant, wall-clock deadline and symbol
// timeout of a receive window, applying the radio timing corrections.
func windowTiming(txDone time.Time, delay time.Duration, cfg RxConfig, timing Timing) (time.Time, time.Time, int) {
	symbolDuration := airtime.SymbolDuration(cfg.DataRate.SpreadFactor, cfg.DataRate.Bandwidth)
	if cfg.DataRate.Modulation == band.FSKModulation {
		symbolDuration = time.Millisecond
	}

	open := txDone.Add(delay - timing.TxToRx - timing.RxWindow)

	symbols := 8
	if symbolDuration > 0 {
		symbols += int(timing.RxWindow / symbolDuration)
	}

	deadline := open.Add(timing.RxWindow + time.Duration(symbols+2)*symbolDuration)
	return open, deadline, symbols
}

// processJoinAccept validates and applies a join-accept frame. It returns
// false when the frame must be treated as "nothing received".
func (c *macCore) processJoinAccept(frame []byte) bool {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(frame); err != nil {
		return false
	}
	if phy.MHDR.MType != lorawan.JoinAccept {
		return false
	}
	if err := phy.DecryptJoinAcceptPayload(c.cipher, c.otaa.AppKey); err != nil {
		return false
	}
	if ok, err := phy.ValidateJoinAcceptMIC(c.cipher, c.otaa.AppKey); err != nil || !ok {
		return false
	}

	jaPL, ok := phy.MACPayload.(*lorawan.JoinAcceptPayload)
	if !ok {
		return false
	}

	nwkSKey, appSKey, err := lorawan.DeriveSessionKeys(c.cipher, c.otaa.AppKey, jaPL.AppNonce, jaPL.NetID, c.txDevNonce)
	if err != nil {
		return false
	}

	defaults := c.band.GetDefaults()
	rxDelay := jaPL.RXDelay & 0x0f
	if rxDelay == 0 {
		rxDelay = 1
	}

	c.session = &Session{
		DevAddr:      jaPL.DevAddr,
		NwkSKey:      nwkSKey,
		AppSKey:      appSKey,
		RXDelay:      rxDelay,
		RX1DROffset:  jaPL.DLSettings.RX1DROffset,
		RX2DataRate:  jaPL.DLSettings.RX2DataRate,
		RX2Frequency: defaults.RX2Frequency,
		TxDataRate:   uint8(defaults.JoinDataRate),
	}

	if jaPL.CFList != nil {
		// a bad CFList does not invalidate the join
		if err := c.band.IngestCFList(*jaPL.CFList); err != nil {
			c.session.ExtraChannels = nil
		}
	}
	c.syncChannelState()
	return true
}

// processDownlink validates a data downlink against the session and, when
// admitted, applies its mac-commands and returns the decrypted payload.
func (c *macCore) processDownlink(frame []byte, info RxInfo, rxSF int) (*Downlink, bool) {
	if c.session == nil {
		return nil, false
	}

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(frame); err != nil {
		return nil, false
	}
	if phy.MHDR.MType != lorawan.UnconfirmedDataDown && phy.MHDR.MType != lorawan.ConfirmedDataDown {
		return nil, false
	}

	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return nil, false
	}
	if macPL.FHDR.DevAddr != c.session.DevAddr {
		return nil, false
	}

	fullFCnt, ok := c.session.ValidateFCntDown(uint16(macPL.FHDR.FCnt))
	if !ok {
		return nil, false
	}

	// the MIC is computed over the full 32 bit frame-counter
	macPL.FHDR.FCnt = fullFCnt
	if ok, err := phy.ValidateDownlinkDataMIC(c.cipher, c.session.NwkSKey); err != nil || !ok {
		return nil, false
	}

	var payload []byte
	var cmds []lorawan.MACCommand
	if macPL.FPort != nil {
		key := c.session.AppSKey
		if *macPL.FPort == 0 {
			key = c.session.NwkSKey
		}
		if err := phy.DecryptFRMPayload(c.cipher, key); err != nil {
			return nil, false
		}
		if *macPL.FPort == 0 {
			var err error
			cmds, err = lorawan.DecodeMACCommands(false, macPL.FRMPayload)
			if err != nil {
				return nil, false
			}
		} else {
			payload = macPL.FRMPayload
		}
	}
	if len(macPL.FHDR.FOpts) > 0 {
		cmds = append(macPL.FHDR.FOpts, cmds...)
	}

	// frame admitted: commit the counter, resolve the sticky answers and
	// apply the mac-commands
	c.session.CommitDownlink(fullFCnt)
	c.lastSNR = info.SNR
	c.lastSF = rxSF
	c.cmds.onDownlinkReceived()
	c.cmds.handleDownlinkCommands(cmds, c.session, c.band, info.SNR, rxSF)
	c.syncChannelState()

	if phy.MHDR.MType == lorawan.ConfirmedDataDown {
		c.ackPending = true
	}

	dl := &Downlink{
		Ack:      macPL.FHDR.FCtrl.ACK,
		FPending: macPL.FHDR.FCtrl.FPending,
		RSSI:     info.RSSI,
		SNR:      info.SNR,
	}
	if macPL.FPort != nil && *macPL.FPort > 0 {
		dl.Port = *macPL.FPort
		dl.Payload = payload
	}
	return dl, true
}

// syncChannelState mirrors the mutable band channel state into the session
// so that a persisted session can be restored together with it.
func (c *macCore) syncChannelState() {
	if c.session == nil {
		return
	}
	c.session.ExtraChannels = nil
	for _, ch := range c.band.GetExtraUplinkChannels() {
		c.session.ExtraChannels = append(c.session.ExtraChannels, ExtraChannel{
			Frequency: ch.Frequency,
			MinDR:     uint8(ch.MinDR),
			MaxDR:     uint8(ch.MaxDR),
		})
	}
	c.session.EnabledChannels = nil
	for _, i := range c.band.GetEnabledUplinkChannels() {
		c.session.EnabledChannels = append(c.session.EnabledChannels, uint16(i))
	}
}

// restoreChannelState re-applies a restored session's channel state to the
// band.
func (c *macCore) restoreChannelState() error {
	if c.session == nil {
		return nil
	}
	for _, ch := range c.session.ExtraChannels {
		c.band.AddExtraUplinkChannel(ch.Frequency, int(ch.MinDR), int(ch.MaxDR))
	}
	if len(c.session.EnabledChannels) > 0 {
		channels := make([]int, 0, len(c.session.EnabledChannels))
		for _, i := range c.session.EnabledChannels {
			channels = append(channels, int(i))
		}
		return c.band.SetEnabledUplinkChannels(channels)
	}
	return nil
}
