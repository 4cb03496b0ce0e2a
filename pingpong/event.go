package pingpong

import (
	"time"
)

// EventKind identifies what happened on the link.
type EventKind int

// The event kinds.
const (
	EventListening EventKind = iota
	EventBusy
	EventWatchdog
	EventFrame
	EventPing
	EventDecodeError
	EventTxStarted
	EventTxDone
	EventTxFailed
)

var eventKindNames = map[EventKind]string{
	EventListening:   "listening",
	EventBusy:        "busy",
	EventWatchdog:    "watchdog",
	EventFrame:       "frame",
	EventPing:        "ping",
	EventDecodeError: "decode-error",
	EventTxStarted:   "tx-started",
	EventTxDone:      "tx-done",
	EventTxFailed:    "tx-failed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}

	return "unknown"
}

// Event is handed to the Reporter for everything the operator should see.
type Event struct {
	Kind EventKind
	Role Role
	Time time.Time

	// Frame is set for EventFrame and EventPing.
	Frame *Frame

	// Payload is the transmitted payload of the tx events.
	Payload []byte

	// Raw is the raw line or hex data of EventDecodeError.
	Raw string

	// Elapsed is the time on air of EventTxDone.
	Elapsed time.Duration

	// Err is set for EventDecodeError and EventTxFailed.
	Err error
}

// Reporter receives link events. It is called from the goroutine that runs the
// machine, and should not block.
type Reporter interface {
	Report(event Event)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(event Event)

// Report calls f.
func (f ReporterFunc) Report(event Event) {
	f(event)
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}
