// Package report contains the sinks of link events.
package report

import (
	"github.com/basilfx/go-lostik/pingpong"

	log "github.com/sirupsen/logrus"
)

// Logger reports link events to a logrus logger, for the operator.
type Logger struct {
	logger log.FieldLogger
}

// NewLogger returns a Logger. A nil logger selects the standard logger.
func NewLogger(logger log.FieldLogger) *Logger {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Logger{logger: logger}
}

// Report implements pingpong.Reporter.
func (l *Logger) Report(event pingpong.Event) {
	entry := l.logger.WithField("role", event.Role)

	switch event.Kind {
	case pingpong.EventListening:
		entry.Debugf("Listening.")
	case pingpong.EventBusy:
		entry.Warnf("Device busy, halting receive.")
	case pingpong.EventWatchdog:
		entry.Infof("Radio watchdog timer time-out.")
	case pingpong.EventFrame:
		f := event.Frame
		entry.WithFields(log.Fields{
			"rssi": f.RSSI,
			"snr":  f.SNR,
		}).Infof("Received '%s'  RSSI: %ddBm  SNR: %ddB  %s", f.Text, f.RSSI, f.SNR, f.Quality())
	case pingpong.EventPing:
		f := event.Frame
		entry.WithFields(log.Fields{
			"rssi": f.RSSI,
			"snr":  f.SNR,
		}).Infof("Ping! Pong! Heard a ping, now sending a pong.")
	case pingpong.EventDecodeError:
		entry.Warnf("Dropped frame with raw data '%s': %v", event.Raw, event.Err)
	case pingpong.EventTxStarted:
		entry.Infof("Transmitting '%s'.", event.Payload)
	case pingpong.EventTxDone:
		entry.Infof("Transmit done, time on air: %dms", event.Elapsed.Milliseconds())
	case pingpong.EventTxFailed:
		entry.Errorf("Transmit of '%s' failed: %v", event.Payload, event.Err)
	default:
		entry.Debugf("Unknown event %s.", event.Kind)
	}
}
