package lorawan

import "errors"

// txParamSetupEIRPTable maps the 4 bit coded MaxEIRP field of the
// TXParamSetupReq mac-command to dBm values.
var txParamSetupEIRPTable = [16]float32{
	8, 10, 12, 13, 14, 16, 18, 20, 21, 24, 26, 27, 29, 30, 33, 36,
}

// GetTXParamSetupEIRPIndex returns the coded value that is closest to the
// given EIRP (dBm), without exceeding it.
func GetTXParamSetupEIRPIndex(eirp float32) uint8 {
	var out uint8
	for i, e := range txParamSetupEIRPTable {
		if e > eirp {
			break
		}
		out = uint8(i)
	}
	return out
}

// GetTXParamSetupEIRP returns the EIRP (dBm) for the coded value.
func GetTXParamSetupEIRP(index uint8) (float32, error) {
	if int(index) > len(txParamSetupEIRPTable)-1 {
		return 0, errors.New("lorawan: invalid eirp index")
	}
	return txParamSetupEIRPTable[index], nil
}
