package pingpong

import (
	"fmt"
	"strings"
	"time"
)

// PingMarker is the payload of a ping.
const PingMarker = "Ping!"

// UnknownSignal is the RSSI and SNR of a frame when the device could not be
// queried. The device reports the same value before the first frame.
const UnknownSignal = -128

// Frame is a received frame. It lives only as long as the event that carries
// it.
type Frame struct {
	Payload []byte
	Text    string

	// RSSI in dBm.
	RSSI int

	// SNR in dB.
	SNR int

	Arrival time.Time
}

// Quality returns a coarse bar of the signal strength.
func (f Frame) Quality() string {
	switch {
	case f.RSSI > -50:
		return "[########]"
	case f.RSSI < -85:
		return "[        ]"
	default:
		return "[####    ]"
	}
}

// IsPing reports whether the frame is a ping.
func (f Frame) IsPing() bool {
	return f.Text == PingMarker
}

// Schema is the format of a pong payload.
type Schema string

// The pong schemas.
const (
	// SchemaBasic embeds RSSI and SNR.
	SchemaBasic Schema = "basic"

	// SchemaTimestamped embeds the arrival time, RSSI and SNR.
	SchemaTimestamped Schema = "timestamped"
)

// ParseSchema returns the schema named s. An empty string is SchemaBasic.
func ParseSchema(s string) (Schema, error) {
	switch Schema(strings.ToLower(s)) {
	case "", SchemaBasic:
		return SchemaBasic, nil
	case SchemaTimestamped:
		return SchemaTimestamped, nil
	}

	return SchemaBasic, fmt.Errorf("unknown pong schema '%s'", s)
}

// Reply returns the pong payload for a received ping.
func (s Schema) Reply(ping Frame) []byte {
	if s == SchemaTimestamped {
		return []byte(fmt.Sprintf("['%d'],['%d'],['%d']", ping.Arrival.UnixMilli(), ping.RSSI, ping.SNR))
	}

	return []byte(fmt.Sprintf("Pong!  RSSI: %ddBm  SNR: %ddB", ping.RSSI, ping.SNR))
}
