// Package airtime implements the LoRa time-on-air formula as defined by
// the Semtech LoRa design guide. The MAC layer uses SymbolDuration to derive
// the symbol timeouts of the receive windows.
package airtime

import (
	"errors"
	"math"
	"time"
)

// CodingRate defines the coding-rate type.
type CodingRate int

// Available coding-rates. LoRaWAN uses 4/5 for all data-rates.
const (
	CodingRate45 CodingRate = 1
	CodingRate46 CodingRate = 2
	CodingRate47 CodingRate = 3
	CodingRate48 CodingRate = 4
)

// SymbolDuration returns the duration of a single LoRa symbol. The
// bandwidth is given in kHz.
func SymbolDuration(sf, bandwidth int) time.Duration {
	return time.Duration((1 << uint(sf)) * 1000000 / bandwidth)
}

// PreambleDuration returns the duration of the preamble
// (preambleNumber + 4.25 symbols).
func PreambleDuration(symbolDuration time.Duration, preambleNumber int) time.Duration {
	return time.Duration((100*preambleNumber)+425) * symbolDuration / 100
}

// PayloadSymbols returns the number of symbols that make up the packet
// payload and header.
func PayloadSymbols(payloadSize, sf int, codingRate CodingRate, headerEnabled, lowDataRateOptimization bool) (int, error) {
	if codingRate < CodingRate45 || codingRate > CodingRate48 {
		return 0, errors.New("airtime: codingRate must be between 1 - 4")
	}

	var de, h float64
	if lowDataRateOptimization {
		de = 1
	}
	if !headerEnabled {
		h = 1
	}

	pl := float64(payloadSize)
	spreadingFactor := float64(sf)
	cr := float64(codingRate)

	a := 8*pl - 4*spreadingFactor + 28 + 16 - 20*h
	b := 4 * (spreadingFactor - 2*de)

	return int(8 + math.Max(math.Ceil(a/b)*(cr+4), 0)), nil
}

// TimeOnAir returns the total frame duration for a LoRa modulated frame.
// The bandwidth is given in kHz.
func TimeOnAir(payloadSize, sf, bandwidth, preambleNumber int, codingRate CodingRate, headerEnabled, lowDataRateOptimization bool) (time.Duration, error) {
	symbolDuration := SymbolDuration(sf, bandwidth)

	payloadSymbols, err := PayloadSymbols(payloadSize, sf, codingRate, headerEnabled, lowDataRateOptimization)
	if err != nil {
		return 0, err
	}

	return PreambleDuration(symbolDuration, preambleNumber) + time.Duration(payloadSymbols)*symbolDuration, nil
}
