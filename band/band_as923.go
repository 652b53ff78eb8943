package band

import (
	"time"

	"github.com/lorastack/lorawan"
)

type as923Band struct {
	band
}

// as923FrequencyOffsets defines the frequency offset (in Hz, relative to the
// AS923 group 1 frequencies) of the AS923 groups.
var as923FrequencyOffsets = map[Name]int64{
	AS923:   0,
	AS923_2: -1800000,
	AS923_3: -6600000,
	AS923_4: -5900000,
}

func newAS923Band(name Name, dt lorawan.DwellTime) (Band, error) {
	offset := as923FrequencyOffsets[name]

	maxPayloadSize := map[int]MaxPayloadSize{
		0: {M: 59, N: 51},
		1: {M: 59, N: 51},
		2: {M: 59, N: 51},
		3: {M: 123, N: 115},
		4: {M: 250, N: 242},
		5: {M: 250, N: 242},
		6: {M: 250, N: 242},
		7: {M: 250, N: 242},
	}
	if dt == lorawan.DwellTime400ms {
		maxPayloadSize = map[int]MaxPayloadSize{
			2: {M: 19, N: 11},
			3: {M: 61, N: 53},
			4: {M: 133, N: 125},
			5: {M: 250, N: 242},
			6: {M: 250, N: 242},
			7: {M: 250, N: 242},
		}
	}

	joinDR := 2
	if dt == lorawan.DwellTimeNoLimit {
		joinDR = 0
	}

	return &as923Band{
		band: band{
			name: string(name),
			dataRates: map[int]DataRate{
				0: {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 125, uplink: true, downlink: true},
				1: {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 125, uplink: true, downlink: true},
				2: {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125, uplink: true, downlink: true},
				3: {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125, uplink: true, downlink: true},
				4: {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125, uplink: true, downlink: true},
				5: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125, uplink: true, downlink: true},
				6: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 250, uplink: true, downlink: true},
				7: {Modulation: FSKModulation, BitRate: 50000, uplink: true, downlink: true},
			},
			maxPayloadSize: maxPayloadSize,
			// offsets 6 and 7 shift the RX1 data-rate up
			rx1DataRateTable: map[int][]int{
				0: {0, 0, 0, 0, 0, 0, 1, 2},
				1: {1, 0, 0, 0, 0, 0, 2, 3},
				2: {2, 1, 0, 0, 0, 0, 3, 4},
				3: {3, 2, 1, 0, 0, 0, 4, 5},
				4: {4, 3, 2, 1, 0, 0, 5, 6},
				5: {5, 4, 3, 2, 1, 0, 6, 7},
				6: {6, 5, 4, 3, 2, 1, 7, 7},
				7: {7, 6, 5, 4, 3, 2, 7, 7},
			},
			txPowerOffsets: []int{0, -2, -4, -6, -8, -10, -12, -14},
			defaults: Defaults{
				RX2Frequency:     uint32(int64(923200000) + offset),
				RX2DataRate:      2,
				JoinDataRate:     joinDR,
				MaxFCntGap:       16384,
				ReceiveDelay1:    time.Second,
				ReceiveDelay2:    time.Second * 2,
				JoinAcceptDelay1: time.Second * 5,
				JoinAcceptDelay2: time.Second * 6,
			},
			channels: []Channel{
				{Frequency: uint32(int64(923200000) + offset), MinDR: 0, MaxDR: 5, enabled: true},
				{Frequency: uint32(int64(923400000) + offset), MinDR: 0, MaxDR: 5, enabled: true},
			},
			dwellTime: dt,
		},
	}, nil
}
