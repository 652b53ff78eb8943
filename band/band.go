// Package band provides the regional channel plans and data-rate policy for
// LoRaWAN end-devices: join/uplink channel selection, RX1/RX2 parameter
// computation, CFList ingestion and LinkADRReq evaluation.
package band

import (
	"errors"
	"fmt"
	"time"

	"github.com/lorastack/lorawan"
)

// Name defines the band-name type.
type Name string

// Available ISM bands (by common name).
const (
	EU868   Name = "EU868"
	EU433   Name = "EU433"
	US915   Name = "US915"
	AU915   Name = "AU915"
	AS923   Name = "AS923"
	AS923_2 Name = "AS923-2"
	AS923_3 Name = "AS923-3"
	AS923_4 Name = "AS923-4"
	IN865   Name = "IN865"
	CN470   Name = "CN470"
)

// Modulation defines the modulation type.
type Modulation string

// Possible modulation types.
const (
	LoRaModulation Modulation = "LORA"
	FSKModulation  Modulation = "FSK"
)

// DataRate defines the modulation parameters of a data-rate index.
type DataRate struct {
	uplink       bool
	downlink     bool
	Modulation   Modulation `json:"modulation"`
	SpreadFactor int        `json:"spreadFactor,omitempty"` // used for LoRa
	Bandwidth    int        `json:"bandwidth,omitempty"`    // in kHz, used for LoRa
	BitRate      int        `json:"bitRate,omitempty"`      // bits per second, used for FSK
}

// MaxPayloadSize defines the max payload size.
type MaxPayloadSize struct {
	M int // The maximum MACPayload size length
	N int // The maximum application payload length in the absence of the optional FOpt control field
}

// Channel defines the channel structure.
type Channel struct {
	Frequency uint32 // frequency in Hz
	MinDR     int
	MaxDR     int
	enabled   bool
	custom    bool // configured through the CFList or NewChannelReq
}

// Defaults defines the default values defined by a band.
type Defaults struct {
	// RX2Frequency defines the fixed frequency for the RX2 receive window.
	RX2Frequency uint32

	// RX2DataRate defines the fixed data-rate for the RX2 receive window.
	RX2DataRate int

	// JoinDataRate defines the data-rate used for join-requests.
	JoinDataRate int

	// MaxFCntGap defines the MAX_FCNT_GAP default value.
	MaxFCntGap uint32

	// ReceiveDelay1 defines the RECEIVE_DELAY1 default value.
	ReceiveDelay1 time.Duration

	// ReceiveDelay2 defines the RECEIVE_DELAY2 default value.
	ReceiveDelay2 time.Duration

	// JoinAcceptDelay1 defines the JOIN_ACCEPT_DELAY1 default value.
	JoinAcceptDelay1 time.Duration

	// JoinAcceptDelay2 defines the JOIN_ACCEPT_DELAY2 default value.
	JoinAcceptDelay2 time.Duration
}

// Rand is the random source used for channel selection.
type Rand interface {
	Uint32() uint32
}

// Errors returned by the band package.
var (
	ErrChannelDoesNotExist = errors.New("lorawan/band: channel does not exist")
	ErrNoChannelAvailable  = errors.New("lorawan/band: no channel is available for the requested data-rate")
	ErrInvalidDataRate     = errors.New("lorawan/band: invalid data-rate")
)

// Band defines the interface of a regional channel plan as seen from the
// device. A Band holds mutable channel state (CFList, NewChannelReq,
// LinkADRReq) and is owned by a single device stack.
type Band interface {
	// Name returns the name of the band.
	Name() string

	// GetDefaults returns the band defaults.
	GetDefaults() Defaults

	// GetDataRate returns the modulation parameters for the given
	// data-rate index.
	GetDataRate(dr int) (DataRate, error)

	// GetMaxPayloadSize returns the max-payload size for the given
	// data-rate index.
	GetMaxPayloadSize(dr int) (MaxPayloadSize, error)

	// GetTXPowerOffset returns the TX power offset (in dB, relative to
	// the band's max EIRP) for the given TXPower index.
	GetTXPowerOffset(txPower int) (int, error)

	// GetJoinChannel selects a channel and data-rate for a join-request.
	// Fixed channel-plan bands honor the configured join-bias sub-band.
	GetJoinChannel(rng Rand) (Channel, int, error)

	// GetTxChannel selects an enabled uplink channel supporting the given
	// data-rate.
	GetTxChannel(rng Rand, dr int) (Channel, error)

	// GetRX1Params returns the RX1 frequency and data-rate given the
	// uplink frequency, uplink data-rate and RX1 data-rate offset.
	GetRX1Params(txFreq uint32, txDR, rx1DROffset int) (uint32, int, error)

	// GetUplinkDwellTime returns the uplink dwell-time limit.
	GetUplinkDwellTime() lorawan.DwellTime

	// SetUplinkDwellTime sets the uplink dwell-time limit
	// (TXParamSetupReq).
	SetUplinkDwellTime(dt lorawan.DwellTime)

	// SetJoinBias restricts join attempts to the given 8-channel sub-band
	// (1..8) until a full rotation within the sub-band has been made.
	// Only supported by fixed channel-plan bands.
	SetJoinBias(subBand int) error

	// IngestCFList applies the CFList from a join-accept: extra channels
	// for dynamic plans, a channel-mask for fixed plans.
	IngestCFList(cfList lorawan.CFList) error

	// ApplyLinkADR evaluates a LinkADRReq against the current band state.
	// The band state is only mutated when all three acknowledgments are
	// positive.
	ApplyLinkADR(pl lorawan.LinkADRReqPayload) lorawan.LinkADRAnsPayload

	// ApplyNewChannel creates or modifies an extra channel
	// (NewChannelReq). Only supported by dynamic channel-plan bands.
	ApplyNewChannel(pl lorawan.NewChannelReqPayload) lorawan.NewChannelAnsPayload

	// ApplyDLChannel overrides the RX1 downlink frequency of an uplink
	// channel (DLChannelReq). Only supported by dynamic channel-plan
	// bands.
	ApplyDLChannel(pl lorawan.DLChannelReqPayload) lorawan.DLChannelAnsPayload

	// ValidateRXParams validates the RXParamSetupReq parameters.
	ValidateRXParams(rx2Freq uint32, rx2DR, rx1DROffset int) lorawan.RXParamSetupAnsPayload

	// GetEnabledUplinkChannels returns the enabled uplink channel indices.
	GetEnabledUplinkChannels() []int

	// SetEnabledUplinkChannels enables exactly the given uplink channel
	// indices (used when restoring a persisted session).
	SetEnabledUplinkChannels(channels []int) error

	// GetExtraUplinkChannels returns the channels added through the
	// CFList or NewChannelReq (used when persisting a session).
	GetExtraUplinkChannels() []Channel

	// AddExtraUplinkChannel re-adds an extra channel (used when restoring
	// a persisted session).
	AddExtraUplinkChannel(frequency uint32, minDR, maxDR int)

	// GetNbTrans returns the number of transmissions per uplink as set by
	// the last accepted LinkADRReq.
	GetNbTrans() uint8
}

// band implements the state and behavior shared by all channel plans. The
// per-region types embed it and override where the regional parameters
// require.
type band struct {
	name             string
	fixedPlan        bool
	dataRates        map[int]DataRate
	maxPayloadSize   map[int]MaxPayloadSize
	rx1DataRateTable map[int][]int
	txPowerOffsets   []int
	defaults         Defaults
	channels         []Channel
	downlinkFreqs    map[int]uint32 // DLChannelReq overrides, by uplink channel index
	dwellTime        lorawan.DwellTime
	nbTrans          uint8

	joinBias         int // preferred 8-channel sub-band (1..8), fixed plans only
	joinBiasAttempts int
}

func (b *band) Name() string {
	return b.name
}

func (b *band) GetDefaults() Defaults {
	return b.defaults
}

func (b *band) GetDataRate(dr int) (DataRate, error) {
	d, ok := b.dataRates[dr]
	if !ok {
		return DataRate{}, ErrInvalidDataRate
	}
	return d, nil
}

func (b *band) GetMaxPayloadSize(dr int) (MaxPayloadSize, error) {
	ps, ok := b.maxPayloadSize[dr]
	if !ok {
		return MaxPayloadSize{}, ErrInvalidDataRate
	}
	return ps, nil
}

func (b *band) GetTXPowerOffset(txPower int) (int, error) {
	if txPower < 0 || txPower > len(b.txPowerOffsets)-1 {
		return 0, errors.New("lorawan/band: invalid tx-power")
	}
	return b.txPowerOffsets[txPower], nil
}

func (b *band) GetUplinkDwellTime() lorawan.DwellTime {
	return b.dwellTime
}

func (b *band) SetUplinkDwellTime(dt lorawan.DwellTime) {
	b.dwellTime = dt
}

func (b *band) GetNbTrans() uint8 {
	if b.nbTrans == 0 {
		return 1
	}
	return b.nbTrans
}

func (b *band) SetJoinBias(subBand int) error {
	if !b.fixedPlan {
		return errors.New("lorawan/band: band does not support a join-bias sub-band")
	}
	if subBand < 1 || subBand > 8 {
		return errors.New("lorawan/band: sub-band must be in the range 1 - 8")
	}
	b.joinBias = subBand
	b.joinBiasAttempts = 0
	return nil
}

// enabledChannels returns the enabled channel indices supporting dr
// (dr < 0 matches any data-rate).
func (b *band) enabledChannels(dr int) []int {
	var out []int
	for i, c := range b.channels {
		if !c.enabled {
			continue
		}
		if dr >= 0 && (dr < c.MinDR || dr > c.MaxDR) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func (b *band) GetTxChannel(rng Rand, dr int) (Channel, error) {
	channels := b.enabledChannels(dr)
	if len(channels) == 0 {
		return Channel{}, ErrNoChannelAvailable
	}
	return b.channels[channels[int(rng.Uint32()%uint32(len(channels)))]], nil
}

func (b *band) GetJoinChannel(rng Rand) (Channel, int, error) {
	joinDR := b.defaults.JoinDataRate

	if b.fixedPlan && b.joinBias != 0 && b.joinBiasAttempts < 8 {
		// rotate within the preferred sub-band before falling back to
		// the full hop sequence
		idx := (b.joinBias-1)*8 + b.joinBiasAttempts%8
		b.joinBiasAttempts++
		if idx < len(b.channels) {
			return b.channels[idx], joinDR, nil
		}
	}

	channels := b.enabledChannels(joinDR)
	if len(channels) == 0 {
		return Channel{}, 0, ErrNoChannelAvailable
	}
	return b.channels[channels[int(rng.Uint32()%uint32(len(channels)))]], joinDR, nil
}

// GetRX1Params implements the dynamic channel-plan behavior: the downlink
// uses the uplink frequency (or its DLChannelReq override) and the data-rate
// shifted down by the RX1 data-rate offset. Fixed channel-plan bands
// override this.
func (b *band) GetRX1Params(txFreq uint32, txDR, rx1DROffset int) (uint32, int, error) {
	dr, err := b.getRX1DataRate(txDR, rx1DROffset)
	if err != nil {
		return 0, 0, err
	}

	freq := txFreq
	for i, c := range b.channels {
		if c.Frequency != txFreq {
			continue
		}
		if f, ok := b.downlinkFreqs[i]; ok {
			freq = f
		}
		break
	}
	return freq, dr, nil
}

func (b *band) getRX1DataRate(txDR, rx1DROffset int) (int, error) {
	offsetSlice, ok := b.rx1DataRateTable[txDR]
	if !ok {
		return 0, ErrInvalidDataRate
	}
	if rx1DROffset < 0 || rx1DROffset > len(offsetSlice)-1 {
		return 0, errors.New("lorawan/band: invalid RX1 data-rate offset")
	}
	return offsetSlice[rx1DROffset], nil
}

func (b *band) ValidateRXParams(rx2Freq uint32, rx2DR, rx1DROffset int) lorawan.RXParamSetupAnsPayload {
	var ans lorawan.RXParamSetupAnsPayload

	if dr, ok := b.dataRates[rx2DR]; ok && dr.downlink {
		ans.RX2DataRateACK = true
	}
	if rx1DROffset >= 0 && rx1DROffset <= b.maxRX1DROffset() {
		ans.RX1DROffsetACK = true
	}
	if rx2Freq >= 100000000 {
		ans.ChannelACK = true
	}
	return ans
}

func (b *band) maxRX1DROffset() int {
	max := 0
	for _, s := range b.rx1DataRateTable {
		if len(s)-1 > max {
			max = len(s) - 1
		}
	}
	return max
}

func (b *band) IngestCFList(cfList lorawan.CFList) error {
	if b.fixedPlan {
		pl, ok := cfList.Payload.(*lorawan.CFListChannelMaskPayload)
		if !ok || cfList.CFListType != lorawan.CFListChannelMask {
			return errors.New("lorawan/band: channel-mask CFList expected")
		}
		return b.applyChannelMasks(pl.ChannelMasks)
	}

	pl, ok := cfList.Payload.(*lorawan.CFListChannelPayload)
	if !ok || cfList.CFListType != lorawan.CFListChannel {
		return errors.New("lorawan/band: channel CFList expected")
	}

	for _, freq := range pl.Channels {
		if freq == 0 {
			continue
		}
		b.addChannel(Channel{
			Frequency: freq,
			MinDR:     0,
			MaxDR:     5,
			enabled:   true,
			custom:    true,
		})
	}
	return nil
}

// addChannel appends or replaces (same frequency) a custom channel.
func (b *band) addChannel(c Channel) {
	for i := range b.channels {
		if b.channels[i].custom && b.channels[i].Frequency == c.Frequency {
			b.channels[i] = c
			return
		}
	}
	b.channels = append(b.channels, c)
}

// applyChannelMasks enables / disables channels from the CFList
// channel-masks of a fixed channel-plan.
func (b *band) applyChannelMasks(masks []lorawan.ChMask) error {
	enabled := make([]bool, len(b.channels))
	for i, m := range masks {
		for j, on := range m {
			ch := i*16 + j
			if ch >= len(b.channels) {
				if on {
					return ErrChannelDoesNotExist
				}
				continue
			}
			enabled[ch] = on
		}
	}

	any := false
	for _, on := range enabled {
		if on {
			any = true
			break
		}
	}
	if !any {
		return errors.New("lorawan/band: channel-mask disables all channels")
	}

	for i := range b.channels {
		b.channels[i].enabled = enabled[i]
	}
	return nil
}

func (b *band) ApplyNewChannel(pl lorawan.NewChannelReqPayload) lorawan.NewChannelAnsPayload {
	var ans lorawan.NewChannelAnsPayload
	if b.fixedPlan {
		// fixed plans do not implement NewChannelReq
		return ans
	}

	if pl.MinDR <= pl.MaxDR {
		_, okMin := b.dataRates[int(pl.MinDR)]
		_, okMax := b.dataRates[int(pl.MaxDR)]
		if okMin && okMax {
			ans.DataRateRangeOK = true
		}
	}
	if pl.Freq == 0 || pl.Freq >= 100000000 {
		ans.ChannelFrequencyOK = true
	}

	if !ans.DataRateRangeOK || !ans.ChannelFrequencyOK {
		return ans
	}

	idx := int(pl.ChIndex)
	switch {
	case idx < len(b.channels) && !b.channels[idx].custom:
		// the default channels can not be modified
		ans.ChannelFrequencyOK = false
		ans.DataRateRangeOK = false
	case idx < len(b.channels):
		b.channels[idx] = Channel{
			Frequency: pl.Freq,
			MinDR:     int(pl.MinDR),
			MaxDR:     int(pl.MaxDR),
			enabled:   pl.Freq != 0,
			custom:    true,
		}
	case idx == len(b.channels):
		b.channels = append(b.channels, Channel{
			Frequency: pl.Freq,
			MinDR:     int(pl.MinDR),
			MaxDR:     int(pl.MaxDR),
			enabled:   pl.Freq != 0,
			custom:    true,
		})
	default:
		ans.ChannelFrequencyOK = false
		ans.DataRateRangeOK = false
	}
	return ans
}

func (b *band) ApplyDLChannel(pl lorawan.DLChannelReqPayload) lorawan.DLChannelAnsPayload {
	var ans lorawan.DLChannelAnsPayload
	if b.fixedPlan {
		return ans
	}

	if int(pl.ChIndex) < len(b.channels) && b.channels[pl.ChIndex].Frequency != 0 {
		ans.UplinkFrequencyExists = true
	}
	if pl.Freq >= 100000000 {
		ans.ChannelFrequencyOK = true
	}

	if ans.UplinkFrequencyExists && ans.ChannelFrequencyOK {
		if b.downlinkFreqs == nil {
			b.downlinkFreqs = make(map[int]uint32)
		}
		b.downlinkFreqs[int(pl.ChIndex)] = pl.Freq
	}
	return ans
}

func (b *band) ApplyLinkADR(pl lorawan.LinkADRReqPayload) lorawan.LinkADRAnsPayload {
	var ans lorawan.LinkADRAnsPayload

	enabled, err := b.channelMaskForLinkADR(pl)
	if err == nil {
		ans.ChannelMaskACK = true
	}

	if dr, ok := b.dataRates[int(pl.DataRate)]; ok && dr.uplink && enabled != nil {
		// the data-rate must be supported by at least one channel that
		// remains enabled
		for i, on := range enabled {
			if on && int(pl.DataRate) >= b.channels[i].MinDR && int(pl.DataRate) <= b.channels[i].MaxDR {
				ans.DataRateACK = true
				break
			}
		}
	}

	if int(pl.TXPower) < len(b.txPowerOffsets) {
		ans.PowerACK = true
	}

	// all three acknowledgments must be positive for any change to apply
	if !ans.ChannelMaskACK || !ans.DataRateACK || !ans.PowerACK {
		return ans
	}

	for i := range b.channels {
		b.channels[i].enabled = enabled[i]
	}
	b.nbTrans = pl.Redundancy.NbRep
	return ans
}

// channelMaskForLinkADR computes the channel enabled-state that would result
// from the given LinkADRReq without mutating the band.
func (b *band) channelMaskForLinkADR(pl lorawan.LinkADRReqPayload) ([]bool, error) {
	enabled := make([]bool, len(b.channels))
	for i, c := range b.channels {
		enabled[i] = c.enabled
	}

	cntl := int(pl.Redundancy.ChMaskCntl)
	switch {
	case !b.fixedPlan && cntl == 0:
		for i, on := range pl.ChMask {
			if i >= len(b.channels) {
				if on {
					return nil, ErrChannelDoesNotExist
				}
				continue
			}
			enabled[i] = on
		}
	case !b.fixedPlan && cntl == 6:
		for i := range enabled {
			enabled[i] = true
		}
	case b.fixedPlan && cntl <= 5:
		for i, on := range pl.ChMask {
			ch := cntl*16 + i
			if ch >= len(b.channels) {
				if on {
					return nil, ErrChannelDoesNotExist
				}
				continue
			}
			enabled[ch] = on
		}
	case b.fixedPlan && cntl == 6:
		// all 125 kHz channels on, the mask applies to the 500 kHz
		// channels
		for i := 0; i < 64 && i < len(enabled); i++ {
			enabled[i] = true
		}
		for i, on := range pl.ChMask {
			if 64+i < len(enabled) {
				enabled[64+i] = on
			}
		}
	case b.fixedPlan && cntl == 7:
		// all 125 kHz channels off, the mask applies to the 500 kHz
		// channels
		for i := 0; i < 64 && i < len(enabled); i++ {
			enabled[i] = false
		}
		for i, on := range pl.ChMask {
			if 64+i < len(enabled) {
				enabled[64+i] = on
			}
		}
	default:
		return nil, fmt.Errorf("lorawan/band: invalid ChMaskCntl %d", cntl)
	}

	for _, on := range enabled {
		if on {
			return enabled, nil
		}
	}
	return nil, errors.New("lorawan/band: channel-mask disables all channels")
}

func (b *band) GetEnabledUplinkChannels() []int {
	return b.enabledChannels(-1)
}

func (b *band) SetEnabledUplinkChannels(channels []int) error {
	enabled := make([]bool, len(b.channels))
	for _, c := range channels {
		if c < 0 || c >= len(b.channels) {
			return ErrChannelDoesNotExist
		}
		enabled[c] = true
	}
	for i := range b.channels {
		b.channels[i].enabled = enabled[i]
	}
	return nil
}

func (b *band) AddExtraUplinkChannel(frequency uint32, minDR, maxDR int) {
	b.addChannel(Channel{
		Frequency: frequency,
		MinDR:     minDR,
		MaxDR:     maxDR,
		enabled:   frequency != 0,
		custom:    true,
	})
}

func (b *band) GetExtraUplinkChannels() []Channel {
	var out []Channel
	for _, c := range b.channels {
		if c.custom {
			out = append(out, c)
		}
	}
	return out
}

// GetConfig returns the band configuration for the given band. The
// dwell-time argument only affects the bands that implement uplink
// dwell-time limits (AS923, AU915).
func GetConfig(name Name, dt lorawan.DwellTime) (Band, error) {
	switch name {
	case EU868:
		return newEU868Band()
	case EU433:
		return newEU433Band()
	case US915:
		return newUS915Band()
	case AU915:
		return newAU915Band(dt)
	case AS923, AS923_2, AS923_3, AS923_4:
		return newAS923Band(name, dt)
	case IN865:
		return newIN865Band()
	case CN470:
		return newCN470Band()
	default:
		return nil, fmt.Errorf("lorawan/band: band %s is undefined", name)
	}
}
