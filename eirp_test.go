package lorawan

import (
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGetTXParamSetupEIRPIndex(t *testing.T) {
	Convey("Given a set of EIRP values", t, func() {
		tests := []struct {
			EIRP          float32
			ExpectedIndex uint8
		}{
			{8, 0},
			{12, 2},
			{13.5, 3},
			{36, 15},
			{40, 15},
		}

		for _, tst := range tests {
			Convey(fmt.Sprintf("Then the expected index is returned for EIRP %v", tst.EIRP), func() {
				So(GetTXParamSetupEIRPIndex(tst.EIRP), ShouldEqual, tst.ExpectedIndex)
			})
		}
	})
}

func TestGetTXParamSetupEIRP(t *testing.T) {
	Convey("Given a coded index", t, func() {
		Convey("Then the expected EIRP is returned", func() {
			eirp, err := GetTXParamSetupEIRP(5)
			So(err, ShouldBeNil)
			So(eirp, ShouldEqual, 16)
		})

		Convey("Then an out of range index returns an error", func() {
			_, err := GetTXParamSetupEIRP(16)
			So(err, ShouldNotBeNil)
		})
	})
}
