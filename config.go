package lostik

import (
	"fmt"
	"strconv"
	"strings"
)

// Parameter is the name of a radio parameter, as used with "radio set" and
// "radio get".
type Parameter string

// The radio parameters.
const (
	ParamModulation      Parameter = "mod"
	ParamFrequency       Parameter = "freq"
	ParamPower           Parameter = "pwr"
	ParamSpreadingFactor Parameter = "sf"
	ParamCodingRate      Parameter = "cr"
	ParamBandwidth       Parameter = "bw"
	ParamCRC             Parameter = "crc"
	ParamIQInversion     Parameter = "iqi"
	ParamSyncWord        Parameter = "sync"
	ParamWatchdog        Parameter = "wdt"
)

// NetworkParameters must be identical on all nodes sharing a link. They are
// written in this order.
var NetworkParameters = []Parameter{
	ParamFrequency,
	ParamModulation,
	ParamCRC,
	ParamIQInversion,
	ParamSyncWord,
	ParamSpreadingFactor,
	ParamBandwidth,
}

// NodeParameters may differ per node. They are written after the network
// parameters, in this order.
var NodeParameters = []Parameter{
	ParamPower,
	ParamCodingRate,
	ParamWatchdog,
}

var validators = map[Parameter]func(string) error{
	ParamModulation:      oneOf("lora", "fsk"),
	ParamFrequency:       inRange(902000000, 928000000),
	ParamPower:           inRange(2, 20),
	ParamSpreadingFactor: oneOf("sf7", "sf8", "sf9", "sf10", "sf11", "sf12"),
	ParamCodingRate:      oneOf("4/5", "4/6", "4/7", "4/8"),
	ParamBandwidth:       oneOf("125", "250", "500"),
	ParamCRC:             oneOf("on", "off"),
	ParamIQInversion:     oneOf("on", "off"),
	ParamSyncWord:        hexByte,
	ParamWatchdog:        inRange(0, 4294967295),
}

// ValidateParameter checks value against the valid range or values of
// parameter.
func ValidateParameter(parameter Parameter, value string) error {
	validate, ok := validators[parameter]

	if !ok {
		return fmt.Errorf("%w: unknown parameter '%s'", ErrInvalidParam, parameter)
	}

	if err := validate(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParam, parameter, err)
	}

	return nil
}

func oneOf(values ...string) func(string) error {
	return func(value string) error {
		for _, v := range values {
			if v == value {
				return nil
			}
		}

		return fmt.Errorf("'%s' is not one of %s", value, strings.Join(values, ", "))
	}
}

func inRange(min, max uint64) func(string) error {
	return func(value string) error {
		v, err := strconv.ParseUint(value, 10, 64)

		if err != nil {
			return fmt.Errorf("'%s' is not a number", value)
		}

		if v < min || v > max {
			return fmt.Errorf("%d is not in range [%d, %d]", v, min, max)
		}

		return nil
	}
}

func hexByte(value string) error {
	if len(value) == 0 || len(value) > 2 {
		return fmt.Errorf("'%s' is not a single hex byte", value)
	}

	if _, err := strconv.ParseUint(value, 16, 8); err != nil {
		return fmt.Errorf("'%s' is not a single hex byte", value)
	}

	return nil
}

// Setting is a single parameter assignment.
type Setting struct {
	Parameter Parameter
	Value     string
}

// RadioConfig holds all parameters written to the radio at startup.
type RadioConfig struct {
	Modulation      string `yaml:"modulation" json:"modulation"`
	Frequency       uint32 `yaml:"frequency" json:"frequency"`
	Power           int    `yaml:"power" json:"power"`
	SpreadingFactor string `yaml:"spreadingFactor" json:"spreadingFactor"`
	CodingRate      string `yaml:"codingRate" json:"codingRate"`
	Bandwidth       int    `yaml:"bandwidth" json:"bandwidth"`
	CRC             bool   `yaml:"crc" json:"crc"`
	IQInversion     bool   `yaml:"iqInversion" json:"iqInversion"`
	SyncWord        string `yaml:"syncWord" json:"syncWord"`

	// Watchdog is the watchdog timer time-out in milliseconds. Zero disables
	// the watchdog.
	Watchdog uint32 `yaml:"watchdog" json:"watchdog"`
}

// DefaultRadioConfig returns the device defaults for a US915 LoStik.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		Modulation:      "lora",
		Frequency:       923300000,
		Power:           2,
		SpreadingFactor: "sf12",
		CodingRate:      "4/5",
		Bandwidth:       125,
		CRC:             true,
		IQInversion:     false,
		SyncWord:        "34",
		Watchdog:        15000,
	}
}

// Get returns the value of parameter in device notation.
func (c RadioConfig) Get(parameter Parameter) string {
	switch parameter {
	case ParamModulation:
		return c.Modulation
	case ParamFrequency:
		return strconv.FormatUint(uint64(c.Frequency), 10)
	case ParamPower:
		return strconv.Itoa(c.Power)
	case ParamSpreadingFactor:
		return c.SpreadingFactor
	case ParamCodingRate:
		return c.CodingRate
	case ParamBandwidth:
		return strconv.Itoa(c.Bandwidth)
	case ParamCRC:
		return onOff(c.CRC)
	case ParamIQInversion:
		return onOff(c.IQInversion)
	case ParamSyncWord:
		return c.SyncWord
	case ParamWatchdog:
		return strconv.FormatUint(uint64(c.Watchdog), 10)
	}

	return ""
}

// Set parameter from a value in device notation.
func (c *RadioConfig) Set(parameter Parameter, value string) error {
	if err := ValidateParameter(parameter, value); err != nil {
		return err
	}

	switch parameter {
	case ParamModulation:
		c.Modulation = value
	case ParamFrequency:
		v, _ := strconv.ParseUint(value, 10, 32)
		c.Frequency = uint32(v)
	case ParamPower:
		c.Power, _ = strconv.Atoi(value)
	case ParamSpreadingFactor:
		c.SpreadingFactor = value
	case ParamCodingRate:
		c.CodingRate = value
	case ParamBandwidth:
		c.Bandwidth, _ = strconv.Atoi(value)
	case ParamCRC:
		c.CRC = value == "on"
	case ParamIQInversion:
		c.IQInversion = value == "on"
	case ParamSyncWord:
		c.SyncWord = value
	case ParamWatchdog:
		v, _ := strconv.ParseUint(value, 10, 32)
		c.Watchdog = uint32(v)
	}

	return nil
}

// NetworkSettings returns the network parameter assignments.
func (c RadioConfig) NetworkSettings() []Setting {
	return c.settings(NetworkParameters)
}

// NodeSettings returns the node parameter assignments.
func (c RadioConfig) NodeSettings() []Setting {
	return c.settings(NodeParameters)
}

func (c RadioConfig) settings(parameters []Parameter) []Setting {
	settings := make([]Setting, 0, len(parameters))

	for _, p := range parameters {
		settings = append(settings, Setting{Parameter: p, Value: c.Get(p)})
	}

	return settings
}

// Validate checks every parameter.
func (c RadioConfig) Validate() error {
	for _, s := range append(c.NetworkSettings(), c.NodeSettings()...) {
		if err := ValidateParameter(s.Parameter, s.Value); err != nil {
			return err
		}
	}

	return nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}

	return "off"
}
