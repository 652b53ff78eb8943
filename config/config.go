// Package config loads the device provisioning configuration from a YAML
// file: region, device class, activation credentials and radio tuning.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lorastack/lorawan"
	"github.com/lorastack/lorawan/band"
	"github.com/lorastack/lorawan/device"
)

// OTAAConfig holds the over-the-air activation credentials as hex strings.
type OTAAConfig struct {
	DevEUI  string `yaml:"dev_eui"`
	JoinEUI string `yaml:"join_eui"`
	AppKey  string `yaml:"app_key"`
}

// Parse decodes the credentials.
func (c OTAAConfig) Parse() (device.OTAA, error) {
	var out device.OTAA
	if err := out.DevEUI.UnmarshalText([]byte(c.DevEUI)); err != nil {
		return out, errors.Wrap(err, "parse dev_eui")
	}
	if err := out.JoinEUI.UnmarshalText([]byte(c.JoinEUI)); err != nil {
		return out, errors.Wrap(err, "parse join_eui")
	}
	if err := out.AppKey.UnmarshalText([]byte(c.AppKey)); err != nil {
		return out, errors.Wrap(err, "parse app_key")
	}
	return out, nil
}

// ABPConfig holds the activation-by-personalization credentials as hex
// strings.
type ABPConfig struct {
	DevAddr  string `yaml:"dev_addr"`
	NwkSKey  string `yaml:"nwk_s_key"`
	AppSKey  string `yaml:"app_s_key"`
	FCntUp   uint32 `yaml:"f_cnt_up"`
	FCntDown uint32 `yaml:"f_cnt_down"`
}

// Parse decodes the credentials.
func (c ABPConfig) Parse() (device.ABPParams, error) {
	var out device.ABPParams
	if err := out.DevAddr.UnmarshalText([]byte(c.DevAddr)); err != nil {
		return out, errors.Wrap(err, "parse dev_addr")
	}
	if err := out.NwkSKey.UnmarshalText([]byte(c.NwkSKey)); err != nil {
		return out, errors.Wrap(err, "parse nwk_s_key")
	}
	if err := out.AppSKey.UnmarshalText([]byte(c.AppSKey)); err != nil {
		return out, errors.Wrap(err, "parse app_s_key")
	}
	out.FCntUp = c.FCntUp
	out.FCntDown = c.FCntDown
	return out, nil
}

// Config is the device provisioning configuration.
type Config struct {
	// Region selects the regional channel plan (EU868, US915, ...).
	Region band.Name `yaml:"region"`

	// Class selects the device class (A or C).
	Class string `yaml:"class"`

	// Activation selects "otaa" or "abp".
	Activation string `yaml:"activation"`

	OTAA OTAAConfig `yaml:"otaa"`
	ABP  ABPConfig  `yaml:"abp"`

	// JoinSubBand restricts US915/AU915 join attempts to the given
	// 8-channel sub-band (1..8, 0 disables the bias).
	JoinSubBand int `yaml:"join_sub_band"`

	// DwellTime400ms enables the 400 ms uplink dwell-time limit
	// (AS923/AU915).
	DwellTime400ms bool `yaml:"dwell_time_400ms"`

	// TxPowerDBm is the EIRP used at TXPower index 0.
	TxPowerDBm int `yaml:"tx_power_dbm"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Region:     band.EU868,
		Class:      "A",
		Activation: "otaa",
		TxPowerDBm: 14,
	}
}

// Load reads and validates the configuration from the given YAML file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read configuration file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse configuration file")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Class != "A" && c.Class != "C" {
		return errors.Errorf("config: unsupported class %q", c.Class)
	}
	if c.Activation != "otaa" && c.Activation != "abp" {
		return errors.Errorf("config: unsupported activation %q", c.Activation)
	}
	if c.JoinSubBand < 0 || c.JoinSubBand > 8 {
		return errors.New("config: join_sub_band must be in the range 0 - 8")
	}
	return nil
}

// DeviceClass maps the configured class to the device package constant.
func (c Config) DeviceClass() device.Class {
	if c.Class == "C" {
		return device.ClassC
	}
	return device.ClassA
}

// DwellTime maps the dwell-time flag to the lorawan constant.
func (c Config) DwellTime() lorawan.DwellTime {
	if c.DwellTime400ms {
		return lorawan.DwellTime400ms
	}
	return lorawan.DwellTimeNoLimit
}
