package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/band"
)

type testRand struct{}

func (testRand) Uint32() uint32 { return 0 }

type testTimer struct {
	now time.Time
}

func (t *testTimer) Now() time.Time {
	return t.now
}

func (t *testTimer) DelayUntil(ctx context.Context, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if at.After(t.now) {
		t.now = at
	}
	return nil
}

type testNonces struct {
	n lorawan.DevNonce
}

func (s *testNonces) NextDevNonce() (lorawan.DevNonce, error) {
	s.n++
	return s.n, nil
}

// simRadio is a virtual-time radio: transmissions complete immediately and
// the test schedules the frames delivered in each receive window.
type simRadio struct {
	timer *testTimer

	txCfg   TxConfig
	rxCfg   RxConfig
	lastTx  []byte
	txCount int

	// onTx lets the test build the downlink after observing the uplink.
	onTx func(frame []byte)

	// frames delivered in the RX1 / RX2 window of the current exchange
	// (nil: the window times out).
	rx1Frame []byte
	rx2Frame []byte

	// frames delivered in Class C continuous reception, in order.
	rxcFrames [][]byte

	window  int
	standby int
}

func (r *simRadio) ConfigureTx(cfg TxConfig) error {
	r.txCfg = cfg
	return nil
}

func (r *simRadio) Tx(ctx context.Context, frame []byte) (time.Time, error) {
	r.lastTx = append([]byte(nil), frame...)
	r.txCount++
	r.window = 0
	if r.onTx != nil {
		r.onTx(r.lastTx)
	}
	return r.timer.now, nil
}

func (r *simRadio) ConfigureRx(cfg RxConfig) error {
	r.rxCfg = cfg
	if cfg.Mode == RxModeSingle {
		r.window++
	}
	return nil
}

func (r *simRadio) Rx(ctx context.Context, buf []byte, deadline time.Time) (RxInfo, error) {
	if r.rxCfg.Mode == RxModeContinuous {
		if len(r.rxcFrames) == 0 {
			return RxInfo{}, context.Canceled
		}
		frame := r.rxcFrames[0]
		r.rxcFrames = r.rxcFrames[1:]
		n := copy(buf, frame)
		return RxInfo{Len: n, RSSI: -60, SNR: 7}, nil
	}

	var frame []byte
	switch r.window {
	case 1:
		frame = r.rx1Frame
	case 2:
		frame = r.rx2Frame
	}
	if frame == nil {
		return RxInfo{}, ErrRxTimeout
	}
	n := copy(buf, frame)
	return RxInfo{Len: n, RSSI: -60, SNR: 7}, nil
}

func (r *simRadio) Standby() error {
	r.standby++
	return nil
}

func (r *simRadio) Sleep() error {
	return nil
}

func (r *simRadio) Timing() Timing {
	return Timing{TxToRx: 50 * time.Microsecond, RxWindow: 2 * time.Millisecond}
}

// network is the test's network-server side: it derives the same session
// keys and builds wire-exact downlinks with the codec under test.
type network struct {
	t       *testing.T
	appKey  lorawan.AES128Key
	nwkSKey lorawan.AES128Key
	appSKey lorawan.AES128Key
	devAddr lorawan.DevAddr
}

func (n *network) joinAccept(joinRequest []byte) []byte {
	assert := require.New(n.t)

	var req lorawan.PHYPayload
	assert.NoError(req.UnmarshalBinary(joinRequest))
	assert.Equal(lorawan.JoinRequest, req.MHDR.MType)
	jrPL, ok := req.MACPayload.(*lorawan.JoinRequestPayload)
	assert.True(ok)
	ok, err := req.ValidateJoinRequestMIC(lorawan.SoftCipher{}, n.appKey)
	assert.NoError(err)
	assert.True(ok)

	appNonce := lorawan.AppNonce{1, 1, 1}
	netID := lorawan.NetID{1, 1, 1}
	n.devAddr = lorawan.DevAddr{1, 2, 3, 4}
	n.nwkSKey, n.appSKey, err = lorawan.DeriveSessionKeys(lorawan.SoftCipher{}, n.appKey, appNonce, netID, jrPL.DevNonce)
	assert.NoError(err)

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{MType: lorawan.JoinAccept, Major: lorawan.LoRaWANR1},
		MACPayload: &lorawan.JoinAcceptPayload{
			AppNonce: appNonce,
			NetID:    netID,
			DevAddr:  n.devAddr,
			RXDelay:  1,
		},
	}
	assert.NoError(phy.SetJoinAcceptMIC(lorawan.SoftCipher{}, n.appKey))
	assert.NoError(phy.EncryptJoinAcceptPayload(n.appKey))
	b, err := phy.MarshalBinary()
	assert.NoError(err)
	return b
}

type downlinkParams struct {
	fCnt      uint32
	fPort     *uint8
	payload   []byte
	ack       bool
	confirmed bool
	fOpts     []lorawan.MACCommand
}

func (n *network) downlink(p downlinkParams) []byte {
	assert := require.New(n.t)

	mType := lorawan.UnconfirmedDataDown
	if p.confirmed {
		mType = lorawan.ConfirmedDataDown
	}
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{MType: mType, Major: lorawan.LoRaWANR1},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: n.devAddr,
				FCtrl:   lorawan.FCtrl{ACK: p.ack},
				FCnt:    p.fCnt,
				FOpts:   p.fOpts,
			},
			FPort:      p.fPort,
			FRMPayload: p.payload,
		},
	}
	if p.fPort != nil && len(p.payload) > 0 {
		key := n.appSKey
		if *p.fPort == 0 {
			key = n.nwkSKey
		}
		assert.NoError(phy.EncryptFRMPayload(lorawan.SoftCipher{}, key))
	}
	assert.NoError(phy.SetDownlinkDataMIC(lorawan.SoftCipher{}, n.nwkSKey))
	b, err := phy.MarshalBinary()
	assert.NoError(err)
	return b
}

func newTestDevice(t *testing.T, region band.Name, class Class) (*Device, *simRadio, *network) {
	assert := require.New(t)

	bnd, err := band.GetConfig(region, lorawan.DwellTimeNoLimit)
	assert.NoError(err)

	timer := &testTimer{now: time.Unix(1700000000, 0)}
	radio := &simRadio{timer: timer}
	appKey := lorawan.AES128Key{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}

	d, err := New(Config{
		Band:       bnd,
		Radio:      radio,
		Timer:      timer,
		Rand:       testRand{},
		NonceStore: &testNonces{},
		Class:      class,
		OTAA: OTAA{
			DevEUI:  lorawan.EUI64{3, 3, 3, 3, 3, 3, 3, 3},
			JoinEUI: lorawan.EUI64{2, 2, 2, 2, 2, 2, 2, 2},
			AppKey:  appKey,
		},
	})
	assert.NoError(err)

	return d, radio, &network{t: t, appKey: appKey}
}

func installABP(t *testing.T, d *Device, nw *network, fCntUp, fCntDown uint32) {
	assert := require.New(t)

	nw.devAddr = lorawan.DevAddr{1, 2, 3, 4}
	nw.nwkSKey = lorawan.AES128Key{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	nw.appSKey = lorawan.AES128Key{3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3}

	assert.NoError(d.InstallABP(ABPParams{
		DevAddr:  nw.devAddr,
		NwkSKey:  nw.nwkSKey,
		AppSKey:  nw.appSKey,
		FCntUp:   fCntUp,
		FCntDown: fCntDown,
	}))
}

// OTAA happy path: join-accept in RX1, one unconfirmed uplink with an empty
// exchange.
func TestOTAAHappyPath(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassA)

	radio.onTx = func(frame []byte) {
		radio.rx1Frame = nw.joinAccept(frame)
	}
	assert.NoError(d.Join(context.Background()))

	sess := d.Session()
	assert.NotNil(sess)
	assert.Equal(lorawan.DevAddr{1, 2, 3, 4}, sess.DevAddr)
	assert.Equal(nw.nwkSKey, sess.NwkSKey)
	assert.Equal(nw.appSKey, sess.AppSKey)
	assert.Equal(uint32(0), sess.FCntUp)

	// single unconfirmed uplink on port 2, no downlink
	radio.onTx = nil
	radio.rx1Frame = nil
	radio.rx2Frame = nil

	resp, err := d.Send(context.Background(), 2, []byte("ping"), false)
	assert.NoError(err)
	assert.Nil(resp.Downlink)
	assert.Equal(uint32(1), d.Session().FCntUp)

	// the uplink decrypts on the network side
	var phy lorawan.PHYPayload
	assert.NoError(phy.UnmarshalBinary(radio.lastTx))
	ok, err := phy.ValidateUplinkDataMIC(lorawan.SoftCipher{}, nw.nwkSKey)
	assert.NoError(err)
	assert.True(ok)
	assert.NoError(phy.DecryptFRMPayload(lorawan.SoftCipher{}, nw.appSKey))
	macPL := phy.MACPayload.(*lorawan.MACPayload)
	assert.Equal([]byte("ping"), macPL.FRMPayload)
	assert.Equal(uint8(2), *macPL.FPort)
}

// A join-accept with a bad MIC closes the window silently and the join
// fails after RX2.
func TestJoinInvalidMIC(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassA)

	radio.onTx = func(frame []byte) {
		accept := nw.joinAccept(frame)
		accept[len(accept)-1] ^= 0xff
		radio.rx1Frame = accept
	}
	err := d.Join(context.Background())
	assert.Equal(ErrNoJoinAccept, err)
	assert.Nil(d.Session())
	assert.Equal(2, radio.window)
}

// Confirmed uplink: RX1 closes without preamble, RX2 delivers the ACK.
func TestConfirmedUplinkAckInRX2(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassA)
	installABP(t, d, nw, 0, 0)

	radio.rx2Frame = nw.downlink(downlinkParams{fCnt: 5, ack: true})

	resp, err := d.Send(context.Background(), 2, []byte("data"), true)
	assert.NoError(err)
	assert.NotNil(resp.Downlink)
	assert.True(resp.Downlink.Ack)
	assert.Equal(2, radio.window)

	sess := d.Session()
	assert.Equal(uint32(1), sess.FCntUp)
	assert.Equal(uint32(6), sess.FCntDown)
}

// Confirmed uplink with no downlink in either window: ErrNoAck with the
// frame-counter still incremented.
func TestConfirmedUplinkNoAck(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassA)
	installABP(t, d, nw, 0, 0)
	_ = radio

	resp, err := d.Send(context.Background(), 2, []byte("data"), true)
	assert.Equal(ErrNoAck, err)
	assert.Nil(resp.Downlink)
	assert.Equal(uint32(1), d.Session().FCntUp)
}

// LinkADRReq: the mask is applied atomically and the next uplink carries a
// LinkADRAns with all three bits set.
func TestLinkADRReq(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.US915, ClassA)
	installABP(t, d, nw, 0, 0)

	var chMask lorawan.ChMask
	for i := 8; i < 16; i++ {
		chMask[i] = true
	}
	radio.rx1Frame = nw.downlink(downlinkParams{
		fCnt: 0,
		fOpts: []lorawan.MACCommand{
			{CID: lorawan.LinkADRReq, Payload: &lorawan.LinkADRReqPayload{
				DataRate:   3,
				TXPower:    2,
				ChMask:     chMask,
				Redundancy: lorawan.Redundancy{ChMaskCntl: 0, NbRep: 1},
			}},
		},
	})

	resp, err := d.Send(context.Background(), 2, []byte("x"), false)
	assert.NoError(err)
	assert.NotNil(resp.Downlink)

	sess := d.Session()
	assert.Equal(uint8(3), sess.TxDataRate)
	assert.Equal(uint8(2), sess.TxPowerIndex)

	// channels 0-7 were masked out
	enabled := d.core.band.GetEnabledUplinkChannels()
	assert.NotContains(enabled, 0)
	assert.Contains(enabled, 8)
	assert.Contains(enabled, 16)

	// the next uplink answers with all three ACK bits
	radio.rx1Frame = nil
	_, err = d.Send(context.Background(), 2, []byte("y"), false)
	assert.NoError(err)

	var phy lorawan.PHYPayload
	assert.NoError(phy.UnmarshalBinary(radio.lastTx))
	macPL := phy.MACPayload.(*lorawan.MACPayload)
	assert.Len(macPL.FHDR.FOpts, 1)
	assert.Equal(lorawan.LinkADRAns, macPL.FHDR.FOpts[0].CID)
	ans := macPL.FHDR.FOpts[0].Payload.(*lorawan.LinkADRAnsPayload)
	assert.True(ans.ChannelMaskACK)
	assert.True(ans.DataRateACK)
	assert.True(ans.PowerACK)

	// answered once: the third uplink carries no FOpts
	_, err = d.Send(context.Background(), 2, []byte("z"), false)
	assert.NoError(err)
	assert.NoError(phy.UnmarshalBinary(radio.lastTx))
	macPL = phy.MACPayload.(*lorawan.MACPayload)
	assert.Len(macPL.FHDR.FOpts, 0)
}

// An invalid channel-mask leaves the band state untouched and clears the
// channel-mask and data-rate ACK bits.
func TestLinkADRReqInvalidMask(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassA)
	installABP(t, d, nw, 0, 0)

	var chMask lorawan.ChMask
	for i := 8; i < 16; i++ {
		chMask[i] = true // EU868 only has channels 0-2
	}
	radio.rx1Frame = nw.downlink(downlinkParams{
		fCnt: 0,
		fOpts: []lorawan.MACCommand{
			{CID: lorawan.LinkADRReq, Payload: &lorawan.LinkADRReqPayload{
				DataRate:   3,
				TXPower:    2,
				ChMask:     chMask,
				Redundancy: lorawan.Redundancy{ChMaskCntl: 0, NbRep: 1},
			}},
		},
	})

	_, err := d.Send(context.Background(), 2, []byte("x"), false)
	assert.NoError(err)

	sess := d.Session()
	assert.Equal(uint8(0), sess.TxDataRate)
	assert.Equal([]int{0, 1, 2}, d.core.band.GetEnabledUplinkChannels())

	radio.rx1Frame = nil
	_, err = d.Send(context.Background(), 2, []byte("y"), false)
	assert.NoError(err)

	var phy lorawan.PHYPayload
	assert.NoError(phy.UnmarshalBinary(radio.lastTx))
	macPL := phy.MACPayload.(*lorawan.MACPayload)
	assert.Len(macPL.FHDR.FOpts, 1)
	ans := macPL.FHDR.FOpts[0].Payload.(*lorawan.LinkADRAnsPayload)
	assert.False(ans.ChannelMaskACK)
}

// Frame-counter exhaustion: the last usable counter value sends, the next
// send reports an expired session.
func TestFCntExhaustion(t *testing.T) {
	assert := require.New(t)
	d, _, nw := newTestDevice(t, band.EU868, ClassA)
	installABP(t, d, nw, 0xFFFFFFFE, 0)

	_, err := d.Send(context.Background(), 2, []byte("last"), false)
	assert.NoError(err)
	assert.Equal(uint32(0xFFFFFFFF), d.Session().FCntUp)

	_, err = d.Send(context.Background(), 2, []byte("one too many"), false)
	assert.Equal(ErrSessionExpired, err)
}

// A downlink replaying an old frame-counter is never delivered.
func TestDownlinkReplayDropped(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassA)
	installABP(t, d, nw, 0, 0)

	radio.rx1Frame = nw.downlink(downlinkParams{fCnt: 5, ack: false})
	resp, err := d.Send(context.Background(), 2, []byte("a"), false)
	assert.NoError(err)
	assert.NotNil(resp.Downlink)
	assert.Equal(uint32(6), d.Session().FCntDown)

	// same frame again: replay, both windows close empty
	resp, err = d.Send(context.Background(), 2, []byte("b"), false)
	assert.NoError(err)
	assert.Nil(resp.Downlink)
	assert.Equal(uint32(6), d.Session().FCntDown)
}

// Class C: frames received between uplinks are delivered in arrival order.
func TestClassCDownlinks(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassC)
	installABP(t, d, nw, 0, 0)

	fPort := uint8(7)
	radio.rxcFrames = [][]byte{
		nw.downlink(downlinkParams{fCnt: 0, fPort: &fPort, payload: []byte("first")}),
		nw.downlink(downlinkParams{fCnt: 1, fPort: &fPort, payload: []byte("second")}),
	}

	dl, err := d.AwaitDownlink(context.Background())
	assert.NoError(err)
	assert.Equal([]byte("first"), dl.Payload)
	assert.Equal(uint8(7), dl.Port)

	dl, err = d.AwaitDownlink(context.Background())
	assert.NoError(err)
	assert.Equal([]byte("second"), dl.Payload)

	assert.Equal(uint32(2), d.Session().FCntDown)
	assert.Equal(RxModeContinuous, radio.rxCfg.Mode)
}

// The session snapshot round-trips through a persisted restore.
func TestSessionSnapshotRestore(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.EU868, ClassA)
	installABP(t, d, nw, 10, 3)

	_, err := d.Send(context.Background(), 2, []byte("x"), false)
	assert.NoError(err)

	snap := d.Session()
	b, err := snap.MarshalBinary()
	assert.NoError(err)

	d2, _, _ := newTestDevice(t, band.EU868, ClassA)
	var restored Session
	assert.NoError(restored.UnmarshalBinary(b))
	assert.NoError(d2.RestoreSession(&restored))
	assert.Equal(snap, d2.Session())

	_ = radio
}

// Queued answers take precedence over the user payload.
func TestPayloadTooLarge(t *testing.T) {
	assert := require.New(t)
	d, radio, nw := newTestDevice(t, band.US915, ClassA)
	installABP(t, d, nw, 0, 0)

	// DR0 on US915 allows 11 bytes; a queued RXParamSetupAns (sticky)
	// plus 10 payload bytes exceed it
	radio.rx1Frame = nw.downlink(downlinkParams{
		fCnt: 0,
		fOpts: []lorawan.MACCommand{
			{CID: lorawan.RXParamSetupReq, Payload: &lorawan.RXParamSetupReqPayload{
				Frequency:  923300000,
				DLSettings: lorawan.DLSettings{RX2DataRate: 8, RX1DROffset: 0},
			}},
		},
	})
	_, err := d.Send(context.Background(), 2, []byte("x"), false)
	assert.NoError(err)

	radio.rx1Frame = nil
	resp, err := d.Send(context.Background(), 2, []byte("0123456789"), false)
	assert.Equal(ErrPayloadTooLarge, err)
	assert.Nil(resp.Downlink)

	// the answers went out, the payload did not
	var phy lorawan.PHYPayload
	assert.NoError(phy.UnmarshalBinary(radio.lastTx))
	macPL := phy.MACPayload.(*lorawan.MACPayload)
	assert.Len(macPL.FHDR.FOpts, 1)
	assert.Equal(lorawan.RXParamSetupAns, macPL.FHDR.FOpts[0].CID)
	assert.Nil(macPL.FPort)
}

// Send without a session.
func TestSendWithoutSession(t *testing.T) {
	assert := require.New(t)
	d, _, _ := newTestDevice(t, band.EU868, ClassA)

	_, err := d.Send(context.Background(), 2, []byte("x"), false)
	assert.Equal(ErrNoSession, err)
}
