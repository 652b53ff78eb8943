package lorawan

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLinkADRReqPayload(t *testing.T) {
	Convey("Given a LinkADRReq payload (DR=3, TXPower=2, ChMask=0xFF00, ChMaskCntl=0, NbRep=1)", t, func() {
		var chMask ChMask
		for i := 8; i < 16; i++ {
			chMask[i] = true
		}
		pl := LinkADRReqPayload{
			DataRate:   3,
			TXPower:    2,
			ChMask:     chMask,
			Redundancy: Redundancy{ChMaskCntl: 0, NbRep: 1},
		}

		Convey("Then MarshalBinary returns the expected bytes", func() {
			b, err := pl.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0x32, 0x00, 0xff, 0x01})
		})

		Convey("Then UnmarshalBinary returns the same payload", func() {
			b, err := pl.MarshalBinary()
			So(err, ShouldBeNil)

			var pl2 LinkADRReqPayload
			So(pl2.UnmarshalBinary(b), ShouldBeNil)
			So(pl2, ShouldResemble, pl)
		})
	})
}

func TestDecodeMACCommands(t *testing.T) {
	Convey("Given the bytes of a downlink LinkADRReq followed by a RXTimingSetupReq", t, func() {
		b := []byte{
			byte(LinkADRReq), 0x32, 0x00, 0xff, 0x01,
			byte(RXTimingSetupReq), 0x03,
		}

		Convey("Then DecodeMACCommands decodes both commands", func() {
			cmds, err := DecodeMACCommands(false, b)
			So(err, ShouldBeNil)
			So(cmds, ShouldHaveLength, 2)
			So(cmds[0].CID, ShouldEqual, LinkADRReq)
			So(cmds[1].CID, ShouldEqual, RXTimingSetupReq)
			So(cmds[1].Payload, ShouldResemble, &RXTimingSetupReqPayload{Delay: 3})
		})

		Convey("Then EncodeMACCommands returns the original bytes", func() {
			cmds, err := DecodeMACCommands(false, b)
			So(err, ShouldBeNil)

			b2, err := EncodeMACCommands(cmds)
			So(err, ShouldBeNil)
			So(b2, ShouldResemble, b)
		})
	})

	Convey("Given a truncated mac-command payload", t, func() {
		b := []byte{byte(LinkADRReq), 0x32}

		Convey("Then DecodeMACCommands returns an error", func() {
			_, err := DecodeMACCommands(false, b)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDLSettings(t *testing.T) {
	Convey("Given a DLSettings with RX2DataRate=8 and RX1DROffset=3", t, func() {
		s := DLSettings{RX2DataRate: 8, RX1DROffset: 3}

		Convey("Then MarshalBinary returns []byte{0x38}", func() {
			b, err := s.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0x38})
		})

		Convey("Then UnmarshalBinary returns the same settings", func() {
			var s2 DLSettings
			So(s2.UnmarshalBinary([]byte{0x38}), ShouldBeNil)
			So(s2, ShouldResemble, s)
		})
	})
}

func TestChMask(t *testing.T) {
	Convey("Given a ChMask with channels 0, 1 and 15 set", t, func() {
		var m ChMask
		m[0] = true
		m[1] = true
		m[15] = true

		Convey("Then MarshalBinary returns []byte{0x03, 0x80}", func() {
			b, err := m.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0x03, 0x80})
		})

		Convey("Then UnmarshalBinary returns the same mask", func() {
			var m2 ChMask
			So(m2.UnmarshalBinary([]byte{0x03, 0x80}), ShouldBeNil)
			So(m2, ShouldResemble, m)
		})
	})
}

func TestDevStatusAnsPayload(t *testing.T) {
	Convey("Given a DevStatusAns with a negative margin", t, func() {
		pl := DevStatusAnsPayload{Battery: 200, Margin: -10}

		Convey("Then MarshalBinary and UnmarshalBinary round-trip", func() {
			b, err := pl.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{200, 54})

			var pl2 DevStatusAnsPayload
			So(pl2.UnmarshalBinary(b), ShouldBeNil)
			So(pl2, ShouldResemble, pl)
		})
	})
}
