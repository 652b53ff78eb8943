package lorawan

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDeriveSessionKeys(t *testing.T) {
	Convey("Given an AppKey, AppNonce, NetID and DevNonce", t, func() {
		appKey := AES128Key{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
		appNonce := AppNonce{1, 1, 1}
		netID := NetID{1, 1, 1}
		devNonce := DevNonce(0x0102)

		Convey("Then DeriveSessionKeys returns the expected session keys", func() {
			nwkSKey, appSKey, err := DeriveSessionKeys(SoftCipher{}, appKey, appNonce, netID, devNonce)
			So(err, ShouldBeNil)
			So(nwkSKey.String(), ShouldEqual, "9dc65c632e0a7bdb0b56d624300ce15b")
			So(appSKey.String(), ShouldEqual, "bfcef7dafad94b27da131ca649377523")
		})

		Convey("Then a different DevNonce derives different keys", func() {
			nwkSKey, appSKey, err := DeriveSessionKeys(SoftCipher{}, appKey, appNonce, netID, devNonce+1)
			So(err, ShouldBeNil)
			So(nwkSKey.String(), ShouldNotEqual, "9dc65c632e0a7bdb0b56d624300ce15b")
			So(appSKey.String(), ShouldNotEqual, "bfcef7dafad94b27da131ca649377523")
		})
	})
}
