package device

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/band"
	"github.com/lorastack/lorawan/sensitivity"
)

// LinkCheck holds the result of the last LinkCheckAns.
type LinkCheck struct {
	Margin       uint8
	GatewayCount uint8
}

// queuedAnswer is a mac-command answer awaiting the next uplink. Sticky
// answers are retained until any downlink acknowledges them implicitly.
type queuedAnswer struct {
	cmd    lorawan.MACCommand
	sticky bool
}

// macCommandEngine decodes downlink mac-commands, mutates the session and
// band state and queues the mandated uplink answers in receipt order.
type macCommandEngine struct {
	answers []queuedAnswer

	battery func() uint8

	linkCheck  *LinkCheck
	deviceTime *time.Duration // since the GPS epoch
}

// queue appends an answer. A sticky answer replaces a previously queued
// answer with the same CID.
func (e *macCommandEngine) queue(cmd lorawan.MACCommand, sticky bool) {
	if sticky {
		for i := range e.answers {
			if e.answers[i].cmd.CID == cmd.CID {
				e.answers[i] = queuedAnswer{cmd: cmd, sticky: true}
				return
			}
		}
	}
	e.answers = append(e.answers, queuedAnswer{cmd: cmd, sticky: sticky})
}

// uplinkAnswers returns the queued answers that fit in room bytes, in
// receipt order.
func (e *macCommandEngine) uplinkAnswers(room int) []lorawan.MACCommand {
	var out []lorawan.MACCommand
	used := 0
	for _, a := range e.answers {
		if used+a.cmd.Size() > room {
			break
		}
		used += a.cmd.Size()
		out = append(out, a.cmd)
	}
	return out
}

// onUplinkSent removes the non-sticky answers that were included in the
// uplink. Sticky answers stay queued until a downlink is received.
func (e *macCommandEngine) onUplinkSent(sent []lorawan.MACCommand) {
	kept := e.answers[:0]
	for _, a := range e.answers {
		included := false
		for _, s := range sent {
			if s.CID == a.cmd.CID {
				included = true
				break
			}
		}
		if !included || a.sticky {
			kept = append(kept, a)
		}
	}
	e.answers = kept
}

// onDownlinkReceived drops the sticky answers: any downlink after the
// uplink that carried them acknowledges them implicitly.
func (e *macCommandEngine) onDownlinkReceived() {
	kept := e.answers[:0]
	for _, a := range e.answers {
		if !a.sticky {
			kept = append(kept, a)
		}
	}
	e.answers = kept
}

// handleDownlinkCommands processes the decoded downlink mac-commands in
// receipt order, mutating the session and band state and queuing the
// answers.
func (e *macCommandEngine) handleDownlinkCommands(cmds []lorawan.MACCommand, sess *Session, bnd band.Band, snr int8, spreadFactor int) {
	for _, cmd := range cmds {
		switch cmd.CID {
		case lorawan.LinkCheckAns:
			pl, ok := cmd.Payload.(*lorawan.LinkCheckAnsPayload)
			if !ok {
				continue
			}
			e.linkCheck = &LinkCheck{Margin: pl.Margin, GatewayCount: pl.GwCnt}

		case lorawan.LinkADRReq:
			pl, ok := cmd.Payload.(*lorawan.LinkADRReqPayload)
			if !ok {
				continue
			}
			ans := bnd.ApplyLinkADR(*pl)
			if ans.ChannelMaskACK && ans.DataRateACK && ans.PowerACK {
				sess.TxDataRate = pl.DataRate
				sess.TxPowerIndex = pl.TXPower
			}
			e.queue(lorawan.MACCommand{CID: lorawan.LinkADRAns, Payload: &ans}, false)

		case lorawan.DutyCycleReq:
			pl, ok := cmd.Payload.(*lorawan.DutyCycleReqPayload)
			if !ok {
				continue
			}
			sess.MaxDutyCycle = pl.MaxDCycle
			e.queue(lorawan.MACCommand{CID: lorawan.DutyCycleAns}, false)

		case lorawan.RXParamSetupReq:
			pl, ok := cmd.Payload.(*lorawan.RXParamSetupReqPayload)
			if !ok {
				continue
			}
			ans := bnd.ValidateRXParams(pl.Frequency, int(pl.DLSettings.RX2DataRate), int(pl.DLSettings.RX1DROffset))
			if ans.ChannelACK && ans.RX2DataRateACK && ans.RX1DROffsetACK {
				sess.RX1DROffset = pl.DLSettings.RX1DROffset
				sess.RX2DataRate = pl.DLSettings.RX2DataRate
				sess.RX2Frequency = pl.Frequency
			}
			e.queue(lorawan.MACCommand{CID: lorawan.RXParamSetupAns, Payload: &ans}, true)

		case lorawan.DevStatusReq:
			battery := uint8(255) // unable to measure
			if e.battery != nil {
				battery = e.battery()
			}
			e.queue(lorawan.MACCommand{CID: lorawan.DevStatusAns, Payload: &lorawan.DevStatusAnsPayload{
				Battery: battery,
				Margin:  demodulationMargin(snr, spreadFactor),
			}}, false)

		case lorawan.NewChannelReq:
			pl, ok := cmd.Payload.(*lorawan.NewChannelReqPayload)
			if !ok {
				continue
			}
			ans := bnd.ApplyNewChannel(*pl)
			e.queue(lorawan.MACCommand{CID: lorawan.NewChannelAns, Payload: &ans}, false)

		case lorawan.RXTimingSetupReq:
			pl, ok := cmd.Payload.(*lorawan.RXTimingSetupReqPayload)
			if !ok {
				continue
			}
			delay := pl.Delay
			if delay == 0 {
				delay = 1
			}
			sess.RXDelay = delay
			e.queue(lorawan.MACCommand{CID: lorawan.RXTimingSetupAns}, true)

		case lorawan.TXParamSetupReq:
			pl, ok := cmd.Payload.(*lorawan.TXParamSetupReqPayload)
			if !ok {
				continue
			}
			bnd.SetUplinkDwellTime(pl.UplinkDwellTime)
			e.queue(lorawan.MACCommand{CID: lorawan.TXParamSetupAns}, false)

		case lorawan.DLChannelReq:
			pl, ok := cmd.Payload.(*lorawan.DLChannelReqPayload)
			if !ok {
				continue
			}
			ans := bnd.ApplyDLChannel(*pl)
			e.queue(lorawan.MACCommand{CID: lorawan.DLChannelAns, Payload: &ans}, true)

		case lorawan.DeviceTimeAns:
			pl, ok := cmd.Payload.(*lorawan.DeviceTimeAnsPayload)
			if !ok {
				continue
			}
			t := pl.TimeSinceGPSEpoch
			e.deviceTime = &t

		default:
			log.WithField("cid", cmd.CID).Warning("ignoring unsupported mac-command")
		}
	}
}

// demodulationMargin converts the SNR of the last downlink into the 6 bit
// DevStatusAns margin, relative to the demodulation floor of the spreading
// factor it was received with.
func demodulationMargin(snr int8, spreadFactor int) int8 {
	margin := float32(snr) - sensitivity.DemodulationFloor(spreadFactor)
	switch {
	case margin < -32:
		return -32
	case margin > 31:
		return 31
	default:
		return int8(margin)
	}
}
