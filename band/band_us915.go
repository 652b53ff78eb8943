package band

import "time"

type us915Band struct {
	band
}

// GetRX1Params implements the US915 downlink mapping: the RX1 channel is
// 923.3 MHz + 600 kHz * (uplink channel mod 8).
func (b *us915Band) GetRX1Params(txFreq uint32, txDR, rx1DROffset int) (uint32, int, error) {
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

func newUS915Band() (Band, error) {
	b := us915Band{
		band: band{
			name:      "US915",
			fixedPlan: true,
			dataRates: map[int]DataRate{
				0:  {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125, uplink: true},
				1:  {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125, uplink: true},
				2:  {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125, uplink: true},
				3:  {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125, uplink: true},
				4:  {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500, uplink: true},
				8:  {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 500, downlink: true},
				9:  {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 500, downlink: true},
				10: {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 500, downlink: true},
				11: {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 500, downlink: true},
				12: {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 500, downlink: true},
				13: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 500, downlink: true},
			},
			maxPayloadSize: map[int]MaxPayloadSize{
				0:  {M: 19, N: 11},
				1:  {M: 61, N: 53},
				2:  {M: 133, N: 125},
				3:  {M: 250, N: 242},
				4:  {M: 250, N: 242},
				8:  {M: 41, N: 33},
				9:  {M: 117, N: 109},
				10: {M: 230, N: 222},
				11: {M: 230, N: 222},
				12: {M: 230, N: 222},
				13: {M: 230, N: 222},
			},
			rx1DataRateTable: map[int][]int{
				0: {10, 9, 8, 8},
				1: {11, 10, 9, 8},
				2: {12, 11, 10, 9},
				3: {13, 12, 11, 10},
				4: {13, 13, 12, 11},
			},
			txPowerOffsets: []int{0, -2, -4, -6, -8, -10, -12, -14, -16, -18, -20, -22, -24, -26, -28},
			defaults: Defaults{
				RX2Frequency:     923300000,
				RX2DataRate:      8,
				JoinDataRate:     0,
				MaxFCntGap:       16384,
				ReceiveDelay1:    time.Second,
				ReceiveDelay2:    time.Second * 2,
				JoinAcceptDelay1: time.Second * 5,
				JoinAcceptDelay2: time.Second * 6,
			},
			channels: us915Channels(),
		},
	}
	return &b, nil
}

// us915Channels returns the 64 125 kHz uplink channels (DR 0-3) and the
// 8 500 kHz uplink channels (DR 4).
func us915Channels() []Channel {
	var out []Channel
	for i := 0; i < 64; i++ {
		out = append(out, Channel{
			Frequency: uint32(902300000 + i*200000),
			MinDR:     0,
			MaxDR:     3,
			enabled:   true,
		})
	}
	for i := 0; i < 8; i++ {
		out = append(out, Channel{
			Frequency: uint32(903000000 + i*1600000),
			MinDR:     4,
			MaxDR:     4,
			enabled:   true,
		})
	}
	return out
}
