// Package emulator provides an in-memory LoStik that speaks the text protocol
// of the real device. It is meant for tests and for running the tools without
// hardware.
package emulator

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/acomagu/bufpipe"
	lostik "github.com/basilfx/go-lostik"

	log "github.com/sirupsen/logrus"
)

// Version is the reply to "sys get ver".
const Version = "RN2903 1.0.5 Nov 06 2018 10:45:27"

// DefaultSignal is the RSSI and SNR reported before any frame was received.
const DefaultSignal = -128

// Event is emitted by the device while a receive window is armed.
type Event struct {
	Line string
	RSSI int
	SNR  int
}

// Frame returns the event of a received frame. The payload is hex encoded in
// upper case, like the device does.
func Frame(payload []byte, rssi int, snr int) Event {
	return Event{
		Line: "radio_rx  " + strings.ToUpper(hex.EncodeToString(payload)),
		RSSI: rssi,
		SNR:  snr,
	}
}

// WatchdogExpiry returns the event of an expired watchdog timer.
func WatchdogExpiry() Event {
	return Event{Line: "radio_err"}
}

// Line returns an event that emits line as-is.
func Line(line string) Event {
	return Event{Line: line}
}

// Option configures a Device.
type Option func(*Device)

// WithWatchdog makes the device emit "radio_err" when a receive window stays
// silent for the configured watchdog time-out.
func WithWatchdog() Option {
	return func(d *Device) {
		d.watchdog = true
	}
}

// WithAirtime delays "radio_tx_ok" by airtime.
func WithAirtime(airtime time.Duration) Option {
	return func(d *Device) {
		d.airtime = airtime
	}
}

// WithPeer simulates a remote node that sends payload every interval while a
// receive window is armed.
func WithPeer(payload []byte, interval time.Duration, rssi int, snr int) Option {
	return func(d *Device) {
		d.peer = &peer{event: Frame(payload, rssi, snr), interval: interval}
	}
}

// WithReceiving starts the device in a receive window, as if left there by an
// earlier run.
func WithReceiving() Option {
	return func(d *Device) {
		d.receiving = true
	}
}

type peer struct {
	event    Event
	interval time.Duration
}

// Device represents an emulated LoStik.
type Device struct {
	out1 io.ReadCloser
	in1  io.WriteCloser

	out2 io.ReadCloser
	in2  io.WriteCloser

	lock sync.Mutex

	params    map[lostik.Parameter]string
	overrides map[string]string
	pins      map[string]string

	receiving  bool
	generation int
	rssi       int
	snr        int
	muted      bool

	events        []Event
	txResults     []string
	commands      []string
	transmissions [][]byte

	watchdog bool
	airtime  time.Duration
	peer     *peer
}

// New returns an initialized emulated device.
func New(options ...Option) *Device {
	d := &Device{
		params:    map[lostik.Parameter]string{},
		overrides: map[string]string{},
		pins:      map[string]string{},
		rssi:      DefaultSignal,
		snr:       DefaultSignal,
	}

	config := lostik.DefaultRadioConfig()

	for _, s := range append(config.NetworkSettings(), config.NodeSettings()...) {
		d.params[s.Parameter] = s.Value
	}

	for _, option := range options {
		option(d)
	}

	d.out1, d.in1 = bufpipe.New(nil)
	d.out2, d.in2 = bufpipe.New(nil)

	// Start emulation.
	go d.emulate()

	return d
}

// QueueEvents schedules events, one per receive window, in order. A window
// without a queued event stays armed.
func (d *Device) QueueEvents(events ...Event) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.events = append(d.events, events...)
}

// QueueTxResults schedules the completion lines of the next transmissions.
// Without one, a transmission completes with "radio_tx_ok".
func (d *Device) QueueTxResults(results ...string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.txResults = append(d.txResults, results...)
}

// Override replies with reply to command, instead of the emulated reply.
func (d *Device) Override(command string, reply string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.overrides[command] = reply
}

// Mute stops the device from replying.
func (d *Device) Mute(muted bool) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.muted = muted
}

// Commands returns all commands received, in order.
func (d *Device) Commands() []string {
	d.lock.Lock()
	defer d.lock.Unlock()

	return append([]string{}, d.commands...)
}

// Transmissions returns all payloads that were accepted for transmission.
func (d *Device) Transmissions() [][]byte {
	d.lock.Lock()
	defer d.lock.Unlock()

	return append([][]byte{}, d.transmissions...)
}

// Parameter returns the current value of a radio parameter.
func (d *Device) Parameter(parameter lostik.Parameter) string {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.params[parameter]
}

// Pin returns the last value written to a GPIO pin.
func (d *Device) Pin(pin string) string {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.pins[pin]
}

// Receiving reports whether a receive window is armed.
func (d *Device) Receiving() bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.receiving
}

func (d *Device) emulate() {
	scanner := bufio.NewScanner(d.out2)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			continue
		}

		d.lock.Lock()
		d.commands = append(d.commands, line)

		if !d.muted {
			d.handle(line)
		}

		d.lock.Unlock()
	}
}

// handle must be called with the lock held.
func (d *Device) handle(line string) {
	if reply, ok := d.overrides[line]; ok {
		d.emit(reply)
		return
	}

	fields := strings.Fields(line)

	switch {
	case line == "mac pause":
		d.emit(strconv.FormatInt(lostik.PauseSentinel, 10))
	case line == "sys get ver":
		d.emit(Version)
	case len(fields) == 5 && fields[0] == "sys" && fields[1] == "set" && fields[2] == "pindig":
		d.setPin(fields[3], fields[4])
	case line == "radio rx 0":
		d.receive()
	case line == "radio rxstop":
		d.receiving = false
		d.generation++
		d.emit("ok")
	case len(fields) == 3 && fields[0] == "radio" && fields[1] == "tx":
		d.transmit(fields[2])
	case len(fields) == 3 && fields[0] == "radio" && fields[1] == "get":
		d.get(fields[2])
	case len(fields) == 4 && fields[0] == "radio" && fields[1] == "set":
		d.set(lostik.Parameter(fields[2]), fields[3])
	default:
		d.emit("invalid_param")
	}
}

func (d *Device) setPin(pin string, value string) {
	if (pin != "GPIO10" && pin != "GPIO11") || (value != "0" && value != "1") {
		d.emit("invalid_param")
		return
	}

	d.pins[pin] = value
	d.emit("ok")
}

func (d *Device) get(name string) {
	switch name {
	case "rssi":
		d.emit(strconv.Itoa(d.rssi))
	case "snr":
		d.emit(strconv.Itoa(d.snr))
	default:
		value, ok := d.params[lostik.Parameter(name)]

		if !ok {
			d.emit("invalid_param")
			return
		}

		d.emit(value)
	}
}

func (d *Device) set(parameter lostik.Parameter, value string) {
	if err := lostik.ValidateParameter(parameter, value); err != nil {
		d.emit("invalid_param")
		return
	}

	d.params[parameter] = value
	d.emit("ok")
}

func (d *Device) receive() {
	if d.receiving {
		d.emit("busy")
		return
	}

	d.receiving = true
	d.generation++
	d.emit("ok")

	if len(d.events) > 0 {
		event := d.events[0]
		d.events = d.events[1:]
		d.complete(event)
		return
	}

	var next *Event
	var delay time.Duration

	if d.watchdog {
		if wdt, _ := strconv.Atoi(d.params[lostik.ParamWatchdog]); wdt > 0 {
			expiry := WatchdogExpiry()
			next, delay = &expiry, time.Duration(wdt)*time.Millisecond
		}
	}

	if d.peer != nil && (next == nil || d.peer.interval < delay) {
		next, delay = &d.peer.event, d.peer.interval
	}

	if next != nil {
		d.after(delay, func() {
			if d.receiving {
				d.complete(*next)
			}
		})
	}
}

// complete ends the receive window with event.
func (d *Device) complete(event Event) {
	d.receiving = false

	if strings.HasPrefix(event.Line, "radio_rx") {
		d.rssi = event.RSSI
		d.snr = event.SNR
	}

	d.emit(event.Line)
}

func (d *Device) transmit(data string) {
	if d.receiving {
		d.emit("busy")
		return
	}

	payload, err := hex.DecodeString(data)

	if err != nil || len(payload) == 0 || len(payload) > lostik.MaxPayloadSize {
		d.emit("invalid_param")
		return
	}

	d.transmissions = append(d.transmissions, payload)
	d.generation++
	d.emit("ok")

	result := "radio_tx_ok"

	if len(d.txResults) > 0 {
		result = d.txResults[0]
		d.txResults = d.txResults[1:]
	}

	if d.airtime == 0 {
		d.emit(result)
		return
	}

	d.after(d.airtime, func() {
		d.emit(result)
	})
}

// after runs fn with the lock held, unless another command arrived first.
func (d *Device) after(delay time.Duration, fn func()) {
	generation := d.generation

	time.AfterFunc(delay, func() {
		d.lock.Lock()
		defer d.lock.Unlock()

		if d.generation == generation {
			fn()
		}
	})
}

func (d *Device) emit(line string) {
	if _, err := d.in1.Write([]byte(line + "\r\n")); err != nil {
		log.Debugf("Emulator write failed: %v", err)
	}
}

// Read implements the read method.
func (d *Device) Read(p []byte) (n int, err error) {
	return d.out1.Read(p)
}

// Write implements the write method.
func (d *Device) Write(p []byte) (n int, err error) {
	return d.in2.Write(p)
}

// Close will close the emulated device.
func (d *Device) Close() error {
	d.lock.Lock()
	d.generation++
	d.lock.Unlock()

	d.out1.Close()
	d.in1.Close()

	d.out2.Close()
	d.in2.Close()

	return nil
}

// String returns a short description, for logging.
func (d *Device) String() string {
	return fmt.Sprintf("emulated %s", Version)
}
