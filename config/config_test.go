package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/band"
	"github.com/lorastack/lorawan/device"
)

func TestLoad(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "device.yaml")
	assert.NoError(os.WriteFile(path, []byte(`
region: US915
class: C
activation: otaa
join_sub_band: 2
tx_power_dbm: 20
otaa:
  dev_eui: "0303030303030303"
  join_eui: "0202020202020202"
  app_key: "01010101010101010101010101010101"
`), 0o600))

	cfg, err := Load(path)
	assert.NoError(err)
	assert.Equal(band.US915, cfg.Region)
	assert.Equal(device.ClassC, cfg.DeviceClass())
	assert.Equal(2, cfg.JoinSubBand)
	assert.Equal(20, cfg.TxPowerDBm)
	assert.Equal(lorawan.DwellTimeNoLimit, cfg.DwellTime())

	otaa, err := cfg.OTAA.Parse()
	assert.NoError(err)
	assert.Equal(lorawan.EUI64{3, 3, 3, 3, 3, 3, 3, 3}, otaa.DevEUI)
	assert.Equal(lorawan.EUI64{2, 2, 2, 2, 2, 2, 2, 2}, otaa.JoinEUI)
	assert.Equal(lorawan.AES128Key{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, otaa.AppKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	assert := require.New(t)

	path := filepath.Join(t.TempDir(), "device.yaml")
	assert.NoError(os.WriteFile(path, []byte("class: B\nactivation: otaa\n"), 0o600))

	_, err := Load(path)
	assert.Error(err)
}

func TestABPParse(t *testing.T) {
	assert := require.New(t)

	abp := ABPConfig{
		DevAddr:  "01020304",
		NwkSKey:  "02020202020202020202020202020202",
		AppSKey:  "03030303030303030303030303030303",
		FCntUp:   10,
		FCntDown: 3,
	}
	params, err := abp.Parse()
	assert.NoError(err)
	assert.Equal(lorawan.DevAddr{1, 2, 3, 4}, params.DevAddr)
	assert.Equal(uint32(10), params.FCntUp)
	assert.Equal(uint32(3), params.FCntDown)
}
