package band

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/lorastack/lorawan"
)

func TestUS915Band(t *testing.T) {
	Convey("Given the US915 band is selected", t, func() {
		band, err := GetConfig(US915, lorawan.DwellTimeNoLimit)
		So(err, ShouldBeNil)

		Convey("Then it exposes 72 uplink channels", func() {
			So(band.GetEnabledUplinkChannels(), ShouldHaveLength, 72)
		})

		Convey("Then GetRX1Params maps to 923.3 MHz + 600 kHz * (ch % 8)", func() {
			// uplink channel 0 (902.3 MHz) at DR0 with offset 0
			freq, dr, err := band.GetRX1Params(902300000, 0, 0)
			So(err, ShouldBeNil)
			So(freq, ShouldEqual, 923300000)
			So(dr, ShouldEqual, 10)

			// uplink channel 9 maps to downlink channel 1
			freq, dr, err = band.GetRX1Params(904100000, 3, 1)
			So(err, ShouldBeNil)
			So(freq, ShouldEqual, 923900000)
			So(dr, ShouldEqual, 12)
		})

		Convey("Then GetRX2Defaults point at 923.3 MHz DR8", func() {
			defaults := band.GetDefaults()
			So(defaults.RX2Frequency, ShouldEqual, 923300000)
			So(defaults.RX2DataRate, ShouldEqual, 8)
		})

		Convey("Given a join-bias sub-band", func() {
			So(band.SetJoinBias(2), ShouldBeNil)

			Convey("Then the first eight join attempts rotate within sub-band 2", func() {
				rng := &testRand{values: []uint32{42}}
				for i := 0; i < 8; i++ {
					ch, dr, err := band.GetJoinChannel(rng)
					So(err, ShouldBeNil)
					So(dr, ShouldEqual, 0)
					So(ch.Frequency, ShouldEqual, uint32(903900000+i*200000))
				}

				Convey("And the ninth attempt falls back to the full hop sequence", func() {
					ch, _, err := band.GetJoinChannel(&testRand{values: []uint32{0}})
					So(err, ShouldBeNil)
					So(ch.Frequency, ShouldEqual, 902300000)
				})
			})
		})

		Convey("When applying a LinkADRReq with ChMaskCntl 7", func() {
			var mask lorawan.ChMask
			mask[0] = true // 500 kHz channel 64
			ans := band.ApplyLinkADR(lorawan.LinkADRReqPayload{
				DataRate:   4,
				TXPower:    0,
				ChMask:     mask,
				Redundancy: lorawan.Redundancy{ChMaskCntl: 7, NbRep: 1},
			})

			Convey("Then all 125 kHz channels are off and channel 64 is on", func() {
				So(ans.ChannelMaskACK, ShouldBeTrue)
				So(ans.DataRateACK, ShouldBeTrue)
				So(ans.PowerACK, ShouldBeTrue)
				So(band.GetEnabledUplinkChannels(), ShouldResemble, []int{64})
			})
		})

		Convey("When ingesting a channel-mask CFList enabling sub-band 1", func() {
			var masks []lorawan.ChMask
			var m0 lorawan.ChMask
			for i := 0; i < 8; i++ {
				m0[i] = true
			}
			masks = append(masks, m0, lorawan.ChMask{}, lorawan.ChMask{}, lorawan.ChMask{}, lorawan.ChMask{})

			So(band.IngestCFList(lorawan.CFList{
				CFListType: lorawan.CFListChannelMask,
				Payload:    &lorawan.CFListChannelMaskPayload{ChannelMasks: masks},
			}), ShouldBeNil)

			So(band.GetEnabledUplinkChannels(), ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7})
		})

		Convey("Then a channel CFList is refused on a fixed plan", func() {
			So(band.IngestCFList(lorawan.CFList{
				CFListType: lorawan.CFListChannel,
				Payload:    &lorawan.CFListChannelPayload{},
			}), ShouldNotBeNil)
		})
	})
}
