package band

import "time"

type cn470Band struct {
	band
}

// GetRX1Params implements the CN470 downlink mapping: the RX1 channel is
// 500.3 MHz + 200 kHz * (uplink channel mod 48).
func (b *cn470Band) GetRX1Params(txFreq uint32, txDR, rx1DROffset int) (uint32, int, error) {
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

	return 500300000 + uint32(upChan%48)*200000, dr, nil
}

func newCN470Band() (Band, error) {
	b := cn470Band{
		band: band{
			name:      "CN470",
			fixedPlan: true,
			dataRates: map[int]DataRate{
				0: {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 125, uplink: true, downlink: true},
				1: {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 125, uplink: true, downlink: true},
				2: {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125, uplink: true, downlink: true},
				3: {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125, uplink: true, downlink: true},
				4: {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125, uplink: true, downlink: true},
				5: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125, uplink: true, downlink: true},
			},
			maxPayloadSize: map[int]MaxPayloadSize{
				0: {M: 59, N: 51},
				1: {M: 59, N: 51},
				2: {M: 59, N: 51},
				3: {M: 123, N: 115},
				4: {M: 250, N: 242},
				5: {M: 250, N: 242},
			},
			rx1DataRateTable: map[int][]int{
				0: {0, 0, 0, 0, 0, 0},
				1: {1, 0, 0, 0, 0, 0},
				2: {2, 1, 0, 0, 0, 0},
				3: {3, 2, 1, 0, 0, 0},
				4: {4, 3, 2, 1, 0, 0},
				5: {5, 4, 3, 2, 1, 0},
			},
			txPowerOffsets: []int{0, -2, -4, -6, -8, -10, -12, -14},
			defaults: Defaults{
				RX2Frequency:     505300000,
				RX2DataRate:      0,
				JoinDataRate:     0,
				MaxFCntGap:       16384,
				ReceiveDelay1:    time.Second,
				ReceiveDelay2:    time.Second * 2,
				JoinAcceptDelay1: time.Second * 5,
				JoinAcceptDelay2: time.Second * 6,
			},
			channels: cn470Channels(),
		},
	}
	return &b, nil
}

// cn470Channels returns the 96 125 kHz uplink channels.
func cn470Channels() []Channel {
	var out []Channel
	for i := 0; i < 96; i++ {
		out = append(out, Channel{
			Frequency: uint32(470300000 + i*200000),
			MinDR:     0,
			MaxDR:     5,
			enabled:   true,
		})
	}
	return out
}
