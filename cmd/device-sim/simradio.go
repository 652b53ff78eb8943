package main

import (
	"context"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/device"
)

// simRadio is a virtual radio backed by an in-process network server: join
// requests are accepted, confirmed uplinks acknowledged and every uplink
// has a chance of scheduling an echo downlink in RX1.
type simRadio struct {
	appKey  lorawan.AES128Key
	nwkSKey lorawan.AES128Key
	appSKey lorawan.AES128Key
	devAddr lorawan.DevAddr

	fCntDown uint32
	pending  []byte
	rxMode   device.RxMode
}

func newSimRadio(appKey lorawan.AES128Key) *simRadio {
	return &simRadio{appKey: appKey}
}

func (r *simRadio) ConfigureTx(cfg device.TxConfig) error {
	log.WithFields(log.Fields{
		"freq": cfg.Frequency,
		"sf":   cfg.DataRate.SpreadFactor,
		"bw":   cfg.DataRate.Bandwidth,
	}).Debug("radio: configure tx")
	return nil
}

func (r *simRadio) Tx(ctx context.Context, frame []byte) (time.Time, error) {
	r.pending = nil

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(frame); err != nil {
		return time.Now(), nil
	}

	switch phy.MHDR.MType {
	case lorawan.JoinRequest:
		r.pending = r.buildJoinAccept(phy)
	case lorawan.UnconfirmedDataUp, lorawan.ConfirmedDataUp:
		r.pending = r.buildDownlink(phy)
	}
	return time.Now(), nil
}

func (r *simRadio) ConfigureRx(cfg device.RxConfig) error {
	r.rxMode = cfg.Mode
	return nil
}

func (r *simRadio) Rx(ctx context.Context, buf []byte, deadline time.Time) (device.RxInfo, error) {
	if r.pending == nil {
		if r.rxMode == device.RxModeContinuous {
			<-ctx.Done()
			return device.RxInfo{}, ctx.Err()
		}
		return device.RxInfo{}, device.ErrRxTimeout
	}

	n := copy(buf, r.pending)
	r.pending = nil
	return device.RxInfo{
		Len:  n,
		RSSI: -40 - rand.Intn(60),
		SNR:  int8(10 - rand.Intn(20)),
	}, nil
}

func (r *simRadio) Standby() error {
	return nil
}

func (r *simRadio) Sleep() error {
	return nil
}

func (r *simRadio) Timing() device.Timing {
	return device.Timing{
		TxToRx:   80 * time.Microsecond,
		RxWindow: 3 * time.Millisecond,
	}
}

func (r *simRadio) buildJoinAccept(req lorawan.PHYPayload) []byte {
	jrPL, ok := req.MACPayload.(*lorawan.JoinRequestPayload)
	if !ok {
		return nil
	}
	if ok, err := req.ValidateJoinRequestMIC(lorawan.SoftCipher{}, r.appKey); err != nil || !ok {
		log.Warning("network: join-request MIC invalid")
		return nil
	}

	appNonce := lorawan.AppNonce{byte(rand.Intn(256)), byte(rand.Intn(256)), byte(rand.Intn(256))}
	netID := lorawan.NetID{0, 0, 1}
	r.devAddr = lorawan.DevAddr{byte(rand.Intn(256)), byte(rand.Intn(256)), byte(rand.Intn(256)), byte(rand.Intn(256))}
	r.fCntDown = 0

	var err error
	r.nwkSKey, r.appSKey, err = lorawan.DeriveSessionKeys(lorawan.SoftCipher{}, r.appKey, appNonce, netID, jrPL.DevNonce)
	if err != nil {
		return nil
	}

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{MType: lorawan.JoinAccept, Major: lorawan.LoRaWANR1},
		MACPayload: &lorawan.JoinAcceptPayload{
			AppNonce: appNonce,
			NetID:    netID,
			DevAddr:  r.devAddr,
			RXDelay:  1,
		},
	}
	if err := phy.SetJoinAcceptMIC(lorawan.SoftCipher{}, r.appKey); err != nil {
		return nil
	}
	if err := phy.EncryptJoinAcceptPayload(r.appKey); err != nil {
		return nil
	}
	b, err := phy.MarshalBinary()
	if err != nil {
		return nil
	}
	log.Debug("network: join accepted")
	return b
}

func (r *simRadio) buildDownlink(up lorawan.PHYPayload) []byte {
	macPL, ok := up.MACPayload.(*lorawan.MACPayload)
	if !ok || macPL.FHDR.DevAddr != r.devAddr {
		return nil
	}
	if ok, err := up.ValidateUplinkDataMIC(lorawan.SoftCipher{}, r.nwkSKey); err != nil || !ok {
		log.Warning("network: uplink MIC invalid")
		return nil
	}

	confirmed := up.MHDR.MType == lorawan.ConfirmedDataUp
	echo := confirmed || rand.Intn(4) == 0
	if !echo {
		return nil
	}

	fPort := uint8(2)
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{MType: lorawan.UnconfirmedDataDown, Major: lorawan.LoRaWANR1},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: r.devAddr,
				FCtrl:   lorawan.FCtrl{ACK: confirmed},
				FCnt:    r.fCntDown,
			},
			FPort:      &fPort,
			FRMPayload: []byte("echo"),
		},
	}
	if err := phy.EncryptFRMPayload(lorawan.SoftCipher{}, r.appSKey); err != nil {
		return nil
	}
	if err := phy.SetDownlinkDataMIC(lorawan.SoftCipher{}, r.nwkSKey); err != nil {
		return nil
	}
	b, err := phy.MarshalBinary()
	if err != nil {
		return nil
	}
	r.fCntDown++
	return b
}
