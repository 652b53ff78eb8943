package lorawan

// DeriveSessionKeys derives the NwkSKey and AppSKey from the join material
// per the LoRaWAN 1.0.x specification:
//
//	NwkSKey = aes128_encrypt(AppKey, 0x01 | AppNonce | NetID | DevNonce | pad16)
//	AppSKey = aes128_encrypt(AppKey, 0x02 | AppNonce | NetID | DevNonce | pad16)
//
// All multi-byte fields are in their on-air (little endian) byte order.
func DeriveSessionKeys(cipher Cipher, appKey AES128Key, appNonce AppNonce, netID NetID, devNonce DevNonce) (nwkSKey, appSKey AES128Key, err error) {
	block := make([]byte, 16)

	b, err := appNonce.MarshalBinary()
	if err != nil {
		return nwkSKey, appSKey, err
	}
	copy(block[1:4], b)

	b, err = netID.MarshalBinary()
	if err != nil {
		return nwkSKey, appSKey, err
	}
	copy(block[4:7], b)

	b, err = devNonce.MarshalBinary()
	if err != nil {
		return nwkSKey, appSKey, err
	}
	copy(block[7:9], b)

	block[0] = 0x01
	if err = cipher.Encrypt128(appKey, nwkSKey[:], block); err != nil {
		return nwkSKey, appSKey, err
	}

	block[0] = 0x02
	if err = cipher.Encrypt128(appKey, appSKey[:], block); err != nil {
		return nwkSKey, appSKey, err
	}

	return nwkSKey, appSKey, nil
}
