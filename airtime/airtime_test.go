package airtime

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSymbolDuration(t *testing.T) {
	tests := []struct {
		SF               int
		Bandwidth        int
		ExpectedDuration time.Duration
	}{
		{SF: 12, Bandwidth: 125, ExpectedDuration: time.Duration(32768 * 1000)},
		{SF: 9, Bandwidth: 125, ExpectedDuration: time.Duration(4096 * 1000)},
		{SF: 9, Bandwidth: 500, ExpectedDuration: time.Duration(1024 * 1000)},
	}

	Convey("Given a test-table", t, func() {
		for i, test := range tests {
			Convey(fmt.Sprintf("Test: %d", i), func() {
				So(SymbolDuration(test.SF, test.Bandwidth), ShouldEqual, test.ExpectedDuration)
			})
		}
	})
}

func TestPreambleDuration(t *testing.T) {
	Convey("Given a SF12BW125 symbol duration and 8 preamble symbols", t, func() {
		d := PreambleDuration(SymbolDuration(12, 125), 8)

		Convey("Then the preamble duration is 401.408 ms", func() {
			So(d, ShouldEqual, time.Duration(401408*1000))
		})
	})
}

func TestPayloadSymbols(t *testing.T) {
	Convey("Given a test-table", t, func() {
		tests := []struct {
			PayloadSize             int
			SF                      int
			CodingRate              CodingRate
			HeaderEnabled           bool
			LowDataRateOptimization bool
			ExpectedNumber          int
		}{
			{PayloadSize: 13, SF: 12, CodingRate: CodingRate45, HeaderEnabled: true, ExpectedNumber: 23},
			{PayloadSize: 13, SF: 12, CodingRate: CodingRate46, HeaderEnabled: true, ExpectedNumber: 26},
			{PayloadSize: 13, SF: 12, CodingRate: CodingRate45, HeaderEnabled: false, ExpectedNumber: 18},
			{PayloadSize: 50, SF: 12, CodingRate: CodingRate45, HeaderEnabled: true, LowDataRateOptimization: true, ExpectedNumber: 58},
		}

		for i, test := range tests {
			Convey(fmt.Sprintf("Test: %d", i), func() {
				num, err := PayloadSymbols(test.PayloadSize, test.SF, test.CodingRate, test.HeaderEnabled, test.LowDataRateOptimization)
				So(err, ShouldBeNil)
				So(num, ShouldEqual, test.ExpectedNumber)
			})
		}
	})
}

func TestTimeOnAir(t *testing.T) {
	Convey("Given a 13 byte SF12BW125 frame with an 8 symbol preamble", t, func() {
		d, err := TimeOnAir(13, 12, 125, 8, CodingRate45, true, false)

		Convey("Then the time on air is 1155.072 ms", func() {
			So(err, ShouldBeNil)
			So(d, ShouldEqual, time.Duration(1155072*1000))
		})
	})
}
