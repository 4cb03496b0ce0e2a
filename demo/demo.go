// Package demo transmits fixed messages with a range of modulation settings,
// to compare time on air and range.
package demo

import (
	"context"
	"strconv"
	"time"

	lostik "github.com/basilfx/go-lostik"

	log "github.com/sirupsen/logrus"
)

// Variant is a combination of modulation settings.
type Variant struct {
	SpreadingFactor string
	CodingRate      string
	Bandwidth       int
}

func (v Variant) String() string {
	return v.SpreadingFactor + " " + v.CodingRate + " " + strconv.Itoa(v.Bandwidth) + "kHz"
}

// Settings returns the assignments of the variant.
func (v Variant) Settings() []lostik.Setting {
	return []lostik.Setting{
		{Parameter: lostik.ParamSpreadingFactor, Value: v.SpreadingFactor},
		{Parameter: lostik.ParamCodingRate, Value: v.CodingRate},
		{Parameter: lostik.ParamBandwidth, Value: strconv.Itoa(v.Bandwidth)},
	}
}

// DefaultVariants use the longest range settings, with the lowest and highest
// coding rate.
var DefaultVariants = []Variant{
	{SpreadingFactor: "sf12", CodingRate: "4/5", Bandwidth: 125},
	{SpreadingFactor: "sf12", CodingRate: "4/8", Bandwidth: 125},
}

// DefaultMessages are a short message of 63 bytes and a message of the maximum
// payload size.
var DefaultMessages = [][]byte{
	[]byte("['1','K7CTC','K2SEC','We arrived at camp... Weather is great!']"),
	[]byte("Lorem ipsum dolor sit amet, consectetur adipiscing elit. Ut augue augue, " +
		"volutpat quis nisi vitae, venenatis vestibulum justo. Phasellus neque nisi, " +
		"eleifend sed enim eu, imperdiet faucibus orci. Nam ut lectus velit. Aliquam " +
		"vel orci a massa semper metus."),
}

// Result is the outcome of one transmission.
type Result struct {
	Variant Variant
	Message []byte
	Elapsed time.Duration
	Err     error
}

// Run transmits every message with every variant. A failed transmission is
// part of the results; the returned error is fatal. Each result is passed to
// report as soon as it is known, if not nil.
func Run(ctx context.Context, radio *lostik.Radio, variants []Variant, messages [][]byte, report func(Result)) ([]Result, error) {
	var results []Result

	for _, variant := range variants {
		log.Infof("Writing settings for %s.", variant)

		if err := radio.WriteSettings(ctx, variant.Settings()); err != nil {
			return results, err
		}

		for _, message := range messages {
			result, err := transmit(ctx, radio, variant, message)

			if err != nil {
				return results, err
			}

			if report != nil {
				report(result)
			}

			results = append(results, result)
		}
	}

	return results, nil
}

func transmit(ctx context.Context, radio *lostik.Radio, variant Variant, message []byte) (Result, error) {
	result := Result{Variant: variant, Message: message}

	radio.SetLed(ctx, lostik.LEDTx, lostik.LEDOn)
	defer radio.SetLed(ctx, lostik.LEDTx, lostik.LEDOff)

	if err := radio.Transmit(ctx, message); err != nil {
		if lostik.IsFatal(err) || ctx.Err() != nil {
			return result, err
		}

		result.Err = err

		return result, nil
	}

	start := time.Now()

	for {
		response, err := radio.AwaitEvent(ctx, nil)

		if err != nil {
			return result, err
		}

		switch response.Type {
		case lostik.ResponseRadioTxOk:
			result.Elapsed = time.Since(start)
			return result, nil
		case lostik.ResponseRadioError:
			result.Err = &lostik.DeviceError{Code: lostik.ErrTransmitFailure, Response: response.Raw}
			return result, nil
		default:
			log.Warnf("Ignoring unexpected line while transmitting: '%s'", response.Raw)
		}
	}
}
