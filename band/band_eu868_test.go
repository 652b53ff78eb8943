package band

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/lorastack/lorawan"
)

type testRand struct {
	values []uint32
	i      int
}

func (r *testRand) Uint32() uint32 {
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[r.i%len(r.values)]
	r.i++
	return v
}

func TestEU868Band(t *testing.T) {
	Convey("Given the EU868 band is selected", t, func() {
		band, err := GetConfig(EU868, lorawan.DwellTimeNoLimit)
		So(err, ShouldBeNil)

		Convey("Then GetDefaults returns the expected value", func() {
			So(band.GetDefaults(), ShouldResemble, Defaults{
				RX2Frequency:     869525000,
				RX2DataRate:      0,
				JoinDataRate:     0,
				MaxFCntGap:       16384,
				ReceiveDelay1:    time.Second,
				ReceiveDelay2:    time.Second * 2,
				JoinAcceptDelay1: time.Second * 5,
				JoinAcceptDelay2: time.Second * 6,
			})
		})

		Convey("Then GetDataRate returns SF12BW125 for DR0", func() {
			dr, err := band.GetDataRate(0)
			So(err, ShouldBeNil)
			So(dr.Modulation, ShouldEqual, LoRaModulation)
			So(dr.SpreadFactor, ShouldEqual, 12)
			So(dr.Bandwidth, ShouldEqual, 125)
		})

		Convey("Then GetJoinChannel selects one of the default channels at DR0", func() {
			ch, dr, err := band.GetJoinChannel(&testRand{values: []uint32{1}})
			So(err, ShouldBeNil)
			So(dr, ShouldEqual, 0)
			So(ch.Frequency, ShouldEqual, 868300000)
		})

		Convey("Then GetRX1Params mirrors the uplink frequency", func() {
			freq, dr, err := band.GetRX1Params(868100000, 5, 0)
			So(err, ShouldBeNil)
			So(freq, ShouldEqual, 868100000)
			So(dr, ShouldEqual, 5)
		})

		Convey("Then GetRX1Params applies the RX1 data-rate offset", func() {
			_, dr, err := band.GetRX1Params(868100000, 5, 2)
			So(err, ShouldBeNil)
			So(dr, ShouldEqual, 3)
		})

		Convey("When ingesting a CFList with two extra channels", func() {
			So(band.IngestCFList(lorawan.CFList{
				CFListType: lorawan.CFListChannel,
				Payload: &lorawan.CFListChannelPayload{
					Channels: [5]uint32{867100000, 867300000},
				},
			}), ShouldBeNil)

			Convey("Then the channels are selectable for uplink", func() {
				So(band.GetEnabledUplinkChannels(), ShouldResemble, []int{0, 1, 2, 3, 4})

				ch, err := band.GetTxChannel(&testRand{values: []uint32{3}}, 0)
				So(err, ShouldBeNil)
				So(ch.Frequency, ShouldEqual, 867100000)
			})

			Convey("Then GetExtraUplinkChannels returns them", func() {
				extra := band.GetExtraUplinkChannels()
				So(extra, ShouldHaveLength, 2)
				So(extra[0].Frequency, ShouldEqual, 867100000)
				So(extra[1].Frequency, ShouldEqual, 867300000)
			})
		})

		Convey("When applying a DLChannelReq for channel 0", func() {
			ans := band.ApplyDLChannel(lorawan.DLChannelReqPayload{ChIndex: 0, Freq: 869100000})
			So(ans.UplinkFrequencyExists, ShouldBeTrue)
			So(ans.ChannelFrequencyOK, ShouldBeTrue)

			Convey("Then RX1 for that uplink channel moves to the new frequency", func() {
				freq, _, err := band.GetRX1Params(868100000, 0, 0)
				So(err, ShouldBeNil)
				So(freq, ShouldEqual, 869100000)
			})
		})

		Convey("When applying a NewChannelReq", func() {
			ans := band.ApplyNewChannel(lorawan.NewChannelReqPayload{
				ChIndex: 3,
				Freq:    867500000,
				MinDR:   0,
				MaxDR:   5,
			})
			So(ans.ChannelFrequencyOK, ShouldBeTrue)
			So(ans.DataRateRangeOK, ShouldBeTrue)
			So(band.GetEnabledUplinkChannels(), ShouldResemble, []int{0, 1, 2, 3})
		})

		Convey("Then a NewChannelReq for a default channel is refused", func() {
			ans := band.ApplyNewChannel(lorawan.NewChannelReqPayload{
				ChIndex: 0,
				Freq:    867500000,
				MinDR:   0,
				MaxDR:   5,
			})
			So(ans.ChannelFrequencyOK, ShouldBeFalse)
			So(ans.DataRateRangeOK, ShouldBeFalse)
		})

		Convey("Then ValidateRXParams acknowledges valid parameters", func() {
			ans := band.ValidateRXParams(869525000, 3, 2)
			So(ans, ShouldResemble, lorawan.RXParamSetupAnsPayload{
				ChannelACK:     true,
				RX2DataRateACK: true,
				RX1DROffsetACK: true,
			})
		})

		Convey("Then SetJoinBias is refused on a dynamic plan", func() {
			So(band.SetJoinBias(2), ShouldNotBeNil)
		})
	})
}
