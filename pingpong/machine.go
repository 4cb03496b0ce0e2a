// Package pingpong implements a two node connectivity test on top of a LoStik.
//
// One node has the ping role and transmits a ping each time the watchdog of
// its radio expires. The other node has the pong role and replies to every ping
// with the signal quality it measured.
package pingpong

import (
	"context"
	"errors"
	"time"

	lostik "github.com/basilfx/go-lostik"

	log "github.com/sirupsen/logrus"
)

// Radio is the subset of lostik.Radio that the machine drives.
type Radio interface {
	EnterContinuousReceive(ctx context.Context) error
	HaltReceive(ctx context.Context) error
	Transmit(ctx context.Context, payload []byte) error
	AwaitEvent(ctx context.Context, progress func()) (lostik.Response, error)
	QueryRSSI(ctx context.Context) (int, error)
	QuerySNR(ctx context.Context) (int, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the clock that timestamps frames and transmissions.
func WithClock(clock Clock) Option {
	return func(m *Machine) {
		m.clock = clock
	}
}

// WithReporter sets the receiver of link events.
func WithReporter(reporter Reporter) Option {
	return func(m *Machine) {
		m.reporter = reporter
	}
}

// WithSchema sets the pong payload schema.
func WithSchema(schema Schema) Option {
	return func(m *Machine) {
		m.schema = schema
	}
}

// WithProgress sets a callback that is invoked periodically while waiting for
// the device.
func WithProgress(progress func()) Option {
	return func(m *Machine) {
		m.progress = progress
	}
}

// WithIndicator sets the status LEDs. By default, the radio drives them if it
// implements lostik.Indicator.
func WithIndicator(indicator lostik.Indicator) Option {
	return func(m *Machine) {
		m.indicator = indicator
	}
}

// Machine is the link state machine. It is not safe for concurrent use.
type Machine struct {
	radio     Radio
	indicator lostik.Indicator
	role      Role
	schema    Schema
	clock     Clock
	reporter  Reporter
	progress  func()

	state State
}

// New returns a machine for role that drives radio.
func New(radio Radio, role Role, options ...Option) *Machine {
	m := &Machine{
		radio:    radio,
		role:     role,
		schema:   SchemaBasic,
		clock:    systemClock{},
		reporter: nopReporter{},
	}

	if indicator, ok := radio.(lostik.Indicator); ok {
		m.indicator = indicator
	} else {
		m.indicator = lostik.NopIndicator{}
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// Role returns the role of the machine.
func (m *Machine) Role() Role {
	return m.role
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Run steps the machine until ctx is done, or a fatal error occurs. It returns
// nil when stopped by ctx.
func (m *Machine) Run(ctx context.Context) error {
	log.WithField("role", m.role).Infof("Starting link.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := m.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if lostik.IsFatal(err) {
				return err
			}

			log.Warnf("Recovered from error: %v", err)
		}
	}
}

// Step arms a receive window and handles the event that ends it. Most device
// errors are handled here. A returned error is fatal, ctx's, or a halt that
// got no reply.
func (m *Machine) Step(ctx context.Context) error {
	armed, err := m.listen(ctx)

	if err != nil || !armed {
		return err
	}

	response, err := m.radio.AwaitEvent(ctx, m.progress)

	if err != nil {
		return err
	}

	switch response.Type {
	case lostik.ResponseRadioError:
		return m.watchdog(ctx)
	case lostik.ResponseRadioRx:
		return m.receive(ctx, response)
	case lostik.ResponseBusy:
		m.report(Event{Kind: EventBusy, Raw: response.Raw})
		return m.halt(ctx)
	}

	// Any line may have ended the window, for instance a garbled completion
	// line. The next step re-arms, which halts first if the window is still
	// open.
	log.Warnf("Unexpected line while listening: '%s'", response.Raw)

	return nil
}

// listen arms a continuous receive window. It returns false if the device was
// not ready, after bringing it back to idle.
func (m *Machine) listen(ctx context.Context) (bool, error) {
	m.setState(StateListening)

	err := m.radio.EnterContinuousReceive(ctx)

	if err == nil {
		m.indicator.SetLed(ctx, lostik.LEDRx, lostik.LEDOn)
		m.report(Event{Kind: EventListening})

		return true, nil
	}

	if lostik.IsFatal(err) || ctx.Err() != nil {
		return false, err
	}

	if errors.Is(err, lostik.ErrBusy) {
		// A receive or transmit is still running, for instance left by an
		// earlier run. The next step re-arms.
		m.report(Event{Kind: EventBusy, Err: err})
		return false, m.halt(ctx)
	}

	// The window may be armed all the same.
	log.Warnf("Unable to enter continuous receive: %v", err)

	return false, m.halt(ctx)
}

func (m *Machine) halt(ctx context.Context) error {
	if err := m.radio.HaltReceive(ctx); err != nil {
		return err
	}

	m.indicator.SetLed(ctx, lostik.LEDRx, lostik.LEDOff)

	return nil
}

func (m *Machine) watchdog(ctx context.Context) error {
	m.report(Event{Kind: EventWatchdog})

	if m.role != RolePing {
		// The device is idle now. The next step re-arms.
		return nil
	}

	return m.transmit(ctx, []byte(PingMarker))
}

func (m *Machine) receive(ctx context.Context, response lostik.Response) error {
	arrival := m.clock.Now()

	// The device only holds the values of the last frame, so query them before
	// anything else.
	rssi, err := m.query(ctx, m.radio.QueryRSSI)

	if err != nil {
		return err
	}

	snr, err := m.query(ctx, m.radio.QuerySNR)

	if err != nil {
		return err
	}

	payload, err := lostik.DecodePayload(response.Data)

	if err == nil {
		_, err = lostik.DecodeText(payload)
	}

	if err != nil {
		log.Warnf("Dropping undecodable frame '%s': %v", response.Data, err)
		m.report(Event{Kind: EventDecodeError, Raw: response.Data, Err: err})

		return nil
	}

	frame := &Frame{
		Payload: payload,
		Text:    string(payload),
		RSSI:    rssi,
		SNR:     snr,
		Arrival: arrival,
	}

	if m.role == RolePong && frame.IsPing() {
		m.report(Event{Kind: EventPing, Frame: frame})
		return m.transmit(ctx, m.schema.Reply(*frame))
	}

	m.report(Event{Kind: EventFrame, Frame: frame})

	return nil
}

// query returns UnknownSignal if the device gave no usable answer.
func (m *Machine) query(ctx context.Context, fn func(context.Context) (int, error)) (int, error) {
	value, err := fn(ctx)

	if err != nil {
		if lostik.IsFatal(err) || ctx.Err() != nil {
			return 0, err
		}

		log.Warnf("Unable to query signal quality: %v", err)

		return UnknownSignal, nil
	}

	return value, nil
}

// transmit sends payload and waits for the result. Receive is always halted
// first; there is no retry. The machine is back in StateListening when it
// returns, and the next step re-arms.
func (m *Machine) transmit(ctx context.Context, payload []byte) error {
	defer m.setState(StateListening)

	if err := m.halt(ctx); err != nil {
		if lostik.IsFatal(err) || ctx.Err() != nil {
			return err
		}

		m.report(Event{Kind: EventTxFailed, Payload: payload, Err: err})

		return nil
	}

	m.setState(StateAwaitingTxAck)

	if err := m.radio.Transmit(ctx, payload); err != nil {
		if lostik.IsFatal(err) || ctx.Err() != nil {
			return err
		}

		m.report(Event{Kind: EventTxFailed, Payload: payload, Err: err})

		return nil
	}

	sent := m.clock.Now()

	m.setState(StateTransmitting)
	m.indicator.SetLed(ctx, lostik.LEDTx, lostik.LEDOn)
	m.report(Event{Kind: EventTxStarted, Payload: payload})

	defer m.indicator.SetLed(ctx, lostik.LEDTx, lostik.LEDOff)

	response, err := m.radio.AwaitEvent(ctx, m.progress)

	if err != nil {
		return err
	}

	switch response.Type {
	case lostik.ResponseRadioTxOk:
		m.report(Event{Kind: EventTxDone, Payload: payload, Elapsed: m.clock.Now().Sub(sent)})
		return nil
	case lostik.ResponseRadioError:
		m.report(Event{
			Kind:    EventTxFailed,
			Payload: payload,
			Err:     &lostik.DeviceError{Code: lostik.ErrTransmitFailure, Response: response.Raw},
		})
		return nil
	}

	m.report(Event{
		Kind:    EventTxFailed,
		Payload: payload,
		Err:     &lostik.DeviceError{Code: lostik.ErrTransmitFailure, Response: response.Raw, Err: lostik.ErrUnexpected},
	})

	return nil
}

func (m *Machine) setState(state State) {
	if m.state != state {
		log.WithFields(log.Fields{
			"role":  m.role,
			"state": state,
		}).Debugf("Link state changed from %s.", m.state)
	}

	m.state = state
}

func (m *Machine) report(event Event) {
	event.Role = m.role
	event.Time = m.clock.Now()

	m.reporter.Report(event)
}
