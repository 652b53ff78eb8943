package band

import "time"

type in865Band struct {
	band
}

func newIN865Band() (Band, error) {
	return &in865Band{
		band: band{
			name: "IN865",
			dataRates: map[int]DataRate{
				0: {Modulation: LoRaModulation, SpreadFactor: 12, Bandwidth: 125, uplink: true, downlink: true},
				1: {Modulation: LoRaModulation, SpreadFactor: 11, Bandwidth: 125, uplink: true, downlink: true},
				2: {Modulation: LoRaModulation, SpreadFactor: 10, Bandwidth: 125, uplink: true, downlink: true},
				3: {Modulation: LoRaModulation, SpreadFactor: 9, Bandwidth: 125, uplink: true, downlink: true},
				4: {Modulation: LoRaModulation, SpreadFactor: 8, Bandwidth: 125, uplink: true, downlink: true},
				5: {Modulation: LoRaModulation, SpreadFactor: 7, Bandwidth: 125, uplink: true, downlink: true},
				7: {Modulation: FSKModulation, BitRate: 50000, uplink: true, downlink: true},
			},
			maxPayloadSize: map[int]MaxPayloadSize{
				0: {M: 59, N: 51},
				1: {M: 59, N: 51},
				2: {M: 59, N: 51},
				3: {M: 123, N: 115},
				4: {M: 250, N: 242},
				5: {M: 250, N: 242},
				7: {M: 250, N: 242},
			},
			rx1DataRateTable: map[int][]int{
				0: {0, 0, 0, 0, 0, 0, 1, 2},
				1: {1, 0, 0, 0, 0, 0, 2, 3},
				2: {2, 1, 0, 0, 0, 0, 3, 4},
				3: {3, 2, 1, 0, 0, 0, 4, 5},
				4: {4, 3, 2, 1, 0, 0, 5, 5},
				5: {5, 4, 3, 2, 1, 0, 5, 7},
				7: {7, 5, 5, 4, 3, 2, 7, 7},
			},
			txPowerOffsets: []int{0, -2, -4, -6, -8, -10, -12, -14, -16, -18, -20},
			defaults: Defaults{
				RX2Frequency:     866550000,
				RX2DataRate:      2,
				JoinDataRate:     0,
				MaxFCntGap:       16384,
				ReceiveDelay1:    time.Second,
				ReceiveDelay2:    time.Second * 2,
				JoinAcceptDelay1: time.Second * 5,
				JoinAcceptDelay2: time.Second * 6,
			},
			channels: []Channel{
				{Frequency: 865062500, MinDR: 0, MaxDR: 5, enabled: true},
				{Frequency: 865402500, MinDR: 0, MaxDR: 5, enabled: true},
				{Frequency: 865985000, MinDR: 0, MaxDR: 5, enabled: true},
			},
		},
	}, nil
}
