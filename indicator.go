package lostik

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LED is one of the two status LEDs of the LoStik.
type LED int

// The LEDs.
const (
	LEDRx LED = iota
	LEDTx
)

func (l LED) String() string {
	if l == LEDTx {
		return "tx"
	}

	return "rx"
}

// LEDState is the state of a LED.
type LEDState bool

// The LED states.
const (
	LEDOff LEDState = false
	LEDOn  LEDState = true
)

func (s LEDState) String() string {
	if s == LEDOn {
		return "on"
	}

	return "off"
}

// Indicator drives the status LEDs. It is purely observational: the result
// never gates protocol logic.
type Indicator interface {
	SetLed(ctx context.Context, led LED, state LEDState) bool
}

type indicatorKey struct {
	led   LED
	state LEDState
}

// GPIO10 is the blue rx LED, GPIO11 the red tx LED.
var indicatorCommands = map[indicatorKey]Command{
	{LEDRx, LEDOff}: {Verb: "sys set pindig", Arg: "GPIO10 0"},
	{LEDRx, LEDOn}:  {Verb: "sys set pindig", Arg: "GPIO10 1"},
	{LEDTx, LEDOff}: {Verb: "sys set pindig", Arg: "GPIO11 0"},
	{LEDTx, LEDOn}:  {Verb: "sys set pindig", Arg: "GPIO11 1"},
}

// SetLed switches a status LED. Failures are logged, never returned.
func (r *Radio) SetLed(ctx context.Context, led LED, state LEDState) bool {
	command, ok := indicatorCommands[indicatorKey{led, state}]

	if !ok {
		log.Warnf("No command for %s LED %s.", led, state)
		return false
	}

	response, err := r.Exchange(ctx, command)

	if err != nil {
		log.Warnf("Unable to switch %s LED %s: %v", led, state, err)
		return false
	}

	if response.Type != ResponseOk {
		log.Warnf("Unable to switch %s LED %s: unexpected response '%s'", led, state, response.Raw)
		return false
	}

	return true
}

// SetAll switches both LEDs.
func (r *Radio) SetAll(ctx context.Context, state LEDState) bool {
	rx := r.SetLed(ctx, LEDRx, state)
	tx := r.SetLed(ctx, LEDTx, state)

	return rx && tx
}

// NopIndicator is an Indicator without LEDs.
type NopIndicator struct{}

// SetLed does nothing and reports success.
func (NopIndicator) SetLed(context.Context, LED, LEDState) bool {
	return true
}
