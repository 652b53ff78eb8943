package band

import (
	"time"

	"github.com/lorastack/lorawan"
)

type au915Band struct {
	band
}

// GetRX1Params implements the AU915 downlink mapping: the RX1 channel is
// 923.3 MHz + 600 kHz * (uplink channel mod 8).
func (b *au915Band) GetRX1Params(txFreq uint32, txDR, rx1DROffset int) (uint32, int, error) {
	dr, err := b.getRX1DataRate(txDR, rx1DROffset)
	if err != nil {
		return 0, 0, err
	}

	upChan := -1
	for i, c := range b.channels {
		if c.Frequency == txFreq {
			upChan = i
			break
		}
	}
	if upChan == -1 {
		return 0, 0, ErrChannelDoesNotExist
	}

	return 923300000 + uint32(upChan%8)*600000, dr, nil
}

func newAU915Band(dt lorawan.DwellTime) (Band, error) {
	maxPayloadSize := map[int]MaxPayloadSize{
		0:  {M: 59, N: 51},
		1:  {M: 59, N: 51},
		2:  {M: 59, N: 51},
		3:  {M: 123, N: 115},
		4:  {M: 250, N: 242},
		5:  {M: 250, N: 242},
		6:  {M: 250, N: 242},
		8:  {M: 61, N: 53},
		9:  {M: 137, N: 129},
		10: {M: 250, N: 242},
		11: {M: 250, N: 242},
		12: {M: 250, N: 242},
		13: {M: 250, N: 242},
	}
	joinDR := 0
	if dt == lorawan.DwellTime400ms {
		maxPayloadSize = map[int]MaxPayloadSize{
			2:  {M: 19, N: 11},
			3:  {M: 61, N: 53},
			4:  {M: 133, N: 125},
			5:  {M: 250, N: 242},
			6:  {M: 250, N: 242},
			8:  {M: 61, N: 53},
			9:  {M: 137, N: 129},
			10: {M: 250, N: 242},
			11: {M: 250, N: 242},
			12: {M: 250, N: 242},
			13: {M: 250, N: 242},
		}
		joinDR = 2
	}

	b := au915Band{
		band: band{
			name:      "AU915",
			fixedPlan: true,
			dataRates: map[int]DataRate{
				0:  {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 125, uplink: true},
				1:  {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 125, uplink: true},
				2:  {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125, uplink: true},
				3:  {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125, uplink: true},
				4:  {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125, uplink: true},
				5:  {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125, uplink: true},
				6:  {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500, uplink: true},
				8:  {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 500, downlink: true},
				9:  {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 500, downlink: true},
				10: {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 500, downlink: true},
				11: {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 500, downlink: true},
				12: {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500, downlink: true},
				13: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 500, downlink: true},
			},
			maxPayloadSize: maxPayloadSize,
			rx1DataRateTable: map[int][]int{
				0: {8, 8, 8, 8, 8, 8},
				1: {9, 8, 8, 8, 8, 8},
				2: {10, 9, 8, 8, 8, 8},
				3: {11, 10, 9, 8, 8, 8},
				4: {12, 11, 10, 9, 8, 8},
				5: {13, 12, 11, 10, 9, 8},
				6: {13, 13, 12, 11, 10, 9},
			},
			txPowerOffsets: []int{0, -2, -4, -6, -8, -10, -12, -14, -16, -18, -20},
			defaults: Defaults{
				RX2Frequency:     923300000,
				RX2DataRate:      8,
				JoinDataRate:     joinDR,
				MaxFCntGap:       16384,
				ReceiveDelay1:    time.Second,
				ReceiveDelay2:    time.Second * 2,
				JoinAcceptDelay1: time.Second * 5,
				JoinAcceptDelay2: time.Second * 6,
			},
			channels:  au915Channels(),
			dwellTime: dt,
		},
	}
	return &b, nil
}

// au915Channels returns the 64 125 kHz uplink channels (DR 0-5) and the
// 8 500 kHz uplink channels (DR 6).
func au915Channels() []Channel {
	var out []Channel
	for i := 0; i < 64; i++ {
		out = append(out, Channel{
			Frequency: uint32(915200000 + i*200000),
			MinDR:     0,
			MaxDR:     5,
			enabled:   true,
		})
	}
	for i := 0; i < 8; i++ {
		out = append(out, Channel{
			Frequency: uint32(915900000 + i*1600000),
			MinDR:     6,
			MaxDR:     6,
			enabled:   true,
		})
	}
	return out
}
