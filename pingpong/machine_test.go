package pingpong

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	lostik "github.com/basilfx/go-lostik"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// scriptedRadio replays events and records every call. It fails the test when
// a transmit is not preceded by an acknowledged halt.
type scriptedRadio struct {
	t     *testing.T
	clock *manualClock

	rxErrors []error
	events   []lostik.Response
	txErrors []error
	airtime  time.Duration
	rssi     int
	snr      int
	haltErr  error

	calls   []string
	halted  bool
	payload [][]byte
	leds    []string
}

func (r *scriptedRadio) EnterContinuousReceive(ctx context.Context) error {
	r.calls = append(r.calls, "rx")
	r.halted = false

	if len(r.rxErrors) > 0 {
		err := r.rxErrors[0]
		r.rxErrors = r.rxErrors[1:]
		return err
	}

	return nil
}

func (r *scriptedRadio) HaltReceive(ctx context.Context) error {
	r.calls = append(r.calls, "rxstop")

	if r.haltErr != nil {
		return r.haltErr
	}

	r.halted = true

	return nil
}

func (r *scriptedRadio) Transmit(ctx context.Context, payload []byte) error {
	r.calls = append(r.calls, "tx "+string(payload))

	require.True(r.t, r.halted, "transmit without acknowledged halt")
	require.Equal(r.t, "rxstop", r.calls[len(r.calls)-2], "transmit not immediately preceded by halt")

	r.halted = false

	if len(r.txErrors) > 0 {
		err := r.txErrors[0]
		r.txErrors = r.txErrors[1:]

		if err != nil {
			return err
		}
	}

	r.payload = append(r.payload, payload)

	return nil
}

func (r *scriptedRadio) AwaitEvent(ctx context.Context, progress func()) (lostik.Response, error) {
	if len(r.events) == 0 {
		return lostik.Response{}, &lostik.DeviceError{Code: lostik.ErrConnection, Err: lostik.ErrClosed}
	}

	response := r.events[0]
	r.events = r.events[1:]

	if progress != nil {
		progress()
	}

	if response.Type == lostik.ResponseRadioTxOk {
		r.clock.Advance(r.airtime)
	}

	return response, nil
}

func (r *scriptedRadio) QueryRSSI(ctx context.Context) (int, error) {
	r.calls = append(r.calls, "rssi")
	return r.rssi, nil
}

func (r *scriptedRadio) QuerySNR(ctx context.Context) (int, error) {
	r.calls = append(r.calls, "snr")
	return r.snr, nil
}

func (r *scriptedRadio) SetLed(ctx context.Context, led lostik.LED, state lostik.LEDState) bool {
	r.leds = append(r.leds, led.String()+" "+state.String())
	return true
}

func line(raw string) lostik.Response {
	return lostik.ParseResponse(raw)
}

func rx(text string) lostik.Response {
	return lostik.ParseResponse("radio_rx  " + hex.EncodeToString([]byte(text)))
}

type recorder struct {
	events []Event
}

func (r *recorder) Report(event Event) {
	r.events = append(r.events, event)
}

func (r *recorder) kinds() []EventKind {
	var kinds []EventKind

	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}

	return kinds
}

func (r *recorder) find(kind EventKind) *Event {
	for i := range r.events {
		if r.events[i].Kind == kind {
			return &r.events[i]
		}
	}

	return nil
}

func newMachine(t *testing.T, role Role, radio *scriptedRadio, options ...Option) (*Machine, *recorder) {
	radio.t = t

	if radio.clock == nil {
		radio.clock = &manualClock{now: time.Unix(1600000000, 0)}
	}

	r := &recorder{}
	m := New(radio, role, append([]Option{WithClock(radio.clock), WithReporter(r)}, options...)...)

	return m, r
}

func TestPingTransmitsOnWatchdog(t *testing.T) {
	radio := &scriptedRadio{
		events:  []lostik.Response{line("radio_err"), line("radio_tx_ok")},
		airtime: 1320 * time.Millisecond,
	}
	m, r := newMachine(t, RolePing, radio)

	require.NoError(t, m.Step(context.Background()))

	assert.Equal(t, []string{"rx", "rxstop", "tx Ping!"}, radio.calls)
	assert.Equal(t, [][]byte{[]byte(PingMarker)}, radio.payload)
	assert.Equal(t, StateListening, m.State())

	done := r.find(EventTxDone)
	require.NotNil(t, done)
	assert.Equal(t, 1320*time.Millisecond, done.Elapsed)

	assert.Equal(t, []string{"rx on", "rx off", "tx on", "tx off"}, radio.leds)

	// The next step listens again.
	radio.events = []lostik.Response{line("radio_err"), line("radio_tx_ok")}
	require.NoError(t, m.Step(context.Background()))
	assert.Len(t, radio.payload, 2)
}

func TestPongIgnoresWatchdog(t *testing.T) {
	radio := &scriptedRadio{events: []lostik.Response{line("radio_err")}}
	m, r := newMachine(t, RolePong, radio)

	require.NoError(t, m.Step(context.Background()))

	assert.Equal(t, []string{"rx"}, radio.calls)
	assert.Equal(t, []EventKind{EventListening, EventWatchdog}, r.kinds())
}

func TestPongRepliesToPing(t *testing.T) {
	radio := &scriptedRadio{
		events: []lostik.Response{rx("Ping!"), line("radio_tx_ok")},
		rssi:   -97,
		snr:    -6,
	}
	m, r := newMachine(t, RolePong, radio)

	require.NoError(t, m.Step(context.Background()))

	assert.Equal(t, []string{"rx", "rssi", "snr", "rxstop", "tx Pong!  RSSI: -97dBm  SNR: -6dB"}, radio.calls)

	ping := r.find(EventPing)
	require.NotNil(t, ping)
	assert.Equal(t, -97, ping.Frame.RSSI)
	assert.Equal(t, -6, ping.Frame.SNR)
	assert.NotNil(t, r.find(EventTxDone))
}

func TestPongRepliesWithTimestamp(t *testing.T) {
	clock := &manualClock{now: time.UnixMilli(1700000000123)}
	radio := &scriptedRadio{
		clock:  clock,
		events: []lostik.Response{rx("Ping!"), line("radio_tx_ok")},
		rssi:   -40,
		snr:    9,
	}
	m, _ := newMachine(t, RolePong, radio, WithSchema(SchemaTimestamped))

	require.NoError(t, m.Step(context.Background()))
	require.Len(t, radio.payload, 1)
	assert.Equal(t, "['1700000000123'],['-40'],['9']", string(radio.payload[0]))
}

func TestPongDoesNotReplyToOtherFrames(t *testing.T) {
	for _, text := range []string{"ping!", "Ping! ", "Pong!  RSSI: -40dBm  SNR: 9dB", "hello"} {
		t.Run(text, func(t *testing.T) {
			radio := &scriptedRadio{events: []lostik.Response{rx(text)}, rssi: -60, snr: 3}
			m, r := newMachine(t, RolePong, radio)

			require.NoError(t, m.Step(context.Background()))

			assert.Empty(t, radio.payload)
			assert.NotContains(t, radio.calls, "rxstop")

			frame := r.find(EventFrame)
			require.NotNil(t, frame)
			assert.Equal(t, text, frame.Frame.Text)
			assert.Equal(t, "[####    ]", frame.Frame.Quality())
		})
	}
}

func TestPingReportsFrames(t *testing.T) {
	radio := &scriptedRadio{events: []lostik.Response{rx("Pong!  RSSI: -40dBm  SNR: 9dB")}, rssi: -45, snr: 8}
	m, r := newMachine(t, RolePing, radio)

	require.NoError(t, m.Step(context.Background()))

	frame := r.find(EventFrame)
	require.NotNil(t, frame)
	assert.Equal(t, -45, frame.Frame.RSSI)
	assert.Equal(t, "[########]", frame.Frame.Quality())
	assert.Empty(t, radio.payload)
}

func TestMalformedFrameIsDropped(t *testing.T) {
	for name, response := range map[string]lostik.Response{
		"non-ascii": line("radio_rx  50C3A9"),
		"bad hex":   line("radio_rx  5G"),
	} {
		t.Run(name, func(t *testing.T) {
			radio := &scriptedRadio{events: []lostik.Response{response}}
			m, r := newMachine(t, RolePong, radio)

			require.NoError(t, m.Step(context.Background()))

			e := r.find(EventDecodeError)
			require.NotNil(t, e)
			assert.True(t, errors.Is(e.Err, lostik.ErrDecode))
			assert.Equal(t, response.Data, e.Raw)
			assert.Empty(t, radio.payload)
			assert.Equal(t, StateListening, m.State())
		})
	}
}

func TestBusyHaltsAndRearms(t *testing.T) {
	radio := &scriptedRadio{
		rxErrors: []error{&lostik.DeviceError{Code: lostik.ErrTransient, Err: lostik.ErrBusy}},
		events:   []lostik.Response{line("radio_err"), line("radio_tx_ok")},
	}
	m, r := newMachine(t, RolePing, radio)

	require.NoError(t, m.Step(context.Background()))
	assert.Equal(t, []string{"rx", "rxstop"}, radio.calls)
	assert.Equal(t, []EventKind{EventBusy}, r.kinds())

	require.NoError(t, m.Step(context.Background()))
	assert.Equal(t, []string{"rx", "rxstop", "rx", "rxstop", "tx Ping!"}, radio.calls)
}

func TestTransmitFailureReturnsToListening(t *testing.T) {
	radio := &scriptedRadio{events: []lostik.Response{line("radio_err"), line("radio_err")}}
	m, r := newMachine(t, RolePing, radio)

	require.NoError(t, m.Step(context.Background()))

	failed := r.find(EventTxFailed)
	require.NotNil(t, failed)
	assert.True(t, errors.Is(failed.Err, lostik.ErrTransmitFailure))
	assert.Nil(t, r.find(EventTxDone))
	assert.Equal(t, []string{"rx on", "rx off", "tx on", "tx off"}, radio.leds)

	// No retry until the next watchdog expiry.
	assert.Equal(t, []string{"rx", "rxstop", "tx Ping!"}, radio.calls)
}

func TestRejectedTransmitIsNotFatal(t *testing.T) {
	radio := &scriptedRadio{
		events:   []lostik.Response{line("radio_err")},
		txErrors: []error{&lostik.DeviceError{Code: lostik.ErrTransmitFailure, Err: lostik.ErrInvalidParam}},
	}
	m, r := newMachine(t, RolePing, radio)

	require.NoError(t, m.Step(context.Background()))
	assert.NotNil(t, r.find(EventTxFailed))
	assert.Equal(t, StateListening, m.State())
}

func TestDesynchronizedHaltIsFatal(t *testing.T) {
	radio := &scriptedRadio{
		events:  []lostik.Response{line("radio_err")},
		haltErr: &lostik.DeviceError{Code: lostik.ErrDesynchronized, Response: "busy"},
	}
	m, _ := newMachine(t, RolePing, radio)

	err := m.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, lostik.ErrDesynchronized))
	assert.Empty(t, radio.payload)
}

func TestTransmitStates(t *testing.T) {
	radio := &scriptedRadio{events: []lostik.Response{line("radio_err"), line("radio_tx_ok")}}

	var m *Machine
	var states []State

	m, _ = newMachine(t, RolePing, radio, WithReporter(ReporterFunc(func(event Event) {
		states = append(states, m.State())
	})))

	require.NoError(t, m.Step(context.Background()))

	// Listening, watchdog, tx-started and tx-done.
	assert.Equal(t, []State{StateListening, StateListening, StateTransmitting, StateTransmitting}, states)
	assert.Equal(t, StateListening, m.State())
}

func TestUnexpectedLineEndsWindow(t *testing.T) {
	for _, raw := range []string{"radio_r", "ok", "garbage"} {
		t.Run(raw, func(t *testing.T) {
			radio := &scriptedRadio{events: []lostik.Response{line(raw)}}
			m, r := newMachine(t, RolePing, radio)

			require.NoError(t, m.Step(context.Background()))
			assert.Equal(t, []string{"rx"}, radio.calls)
			assert.Equal(t, []EventKind{EventListening}, r.kinds())

			// The next step listens again, and the heartbeat continues.
			radio.events = []lostik.Response{line("radio_err"), line("radio_tx_ok")}

			require.NoError(t, m.Step(context.Background()))
			assert.Equal(t, []string{"rx", "rx", "rxstop", "tx Ping!"}, radio.calls)
			assert.NotNil(t, r.find(EventTxDone))
		})
	}
}

func TestUnexpectedLineFailsTransmit(t *testing.T) {
	radio := &scriptedRadio{events: []lostik.Response{line("radio_err"), line("radio_tx_o")}}
	m, r := newMachine(t, RolePing, radio)

	require.NoError(t, m.Step(context.Background()))

	failed := r.find(EventTxFailed)
	require.NotNil(t, failed)
	assert.True(t, errors.Is(failed.Err, lostik.ErrTransmitFailure))
	assert.Nil(t, r.find(EventTxDone))
	assert.Equal(t, StateListening, m.State())
	assert.Equal(t, []string{"rx on", "rx off", "tx on", "tx off"}, radio.leds)
}

func TestRejectedReceiveHalts(t *testing.T) {
	radio := &scriptedRadio{
		rxErrors: []error{&lostik.DeviceError{Code: lostik.ErrTransient, Response: "invalid_param", Err: lostik.ErrUnexpected}},
	}
	m, r := newMachine(t, RolePong, radio)

	require.NoError(t, m.Step(context.Background()))
	assert.Equal(t, []string{"rx", "rxstop"}, radio.calls)
	assert.Empty(t, r.kinds())
}

func TestSafetyAcrossInterleavings(t *testing.T) {
	lines := []string{"radio_rx  50696e6721", "radio_err", "busy", "radio_tx_ok"}

	for _, role := range []Role{RolePing, RolePong} {
		for _, a := range lines {
			for _, b := range lines {
				for _, c := range lines {
					radio := &scriptedRadio{events: []lostik.Response{line(a), line(b), line(c)}}
					m, _ := newMachine(t, role, radio)

					// The scripted radio fails the test on an unsafe transmit,
					// and closes the link when it runs out of events.
					err := m.Run(context.Background())

					require.Error(t, err)
					assert.True(t, errors.Is(err, lostik.ErrConnection))
				}
			}
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	radio := &scriptedRadio{}
	m, _ := newMachine(t, RolePong, radio)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, m.Run(ctx))
	assert.Empty(t, radio.calls)
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("PONG")
	require.NoError(t, err)
	assert.Equal(t, RolePong, role)

	_, err = ParseRole("pang")
	assert.Error(t, err)
}

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema("")
	require.NoError(t, err)
	assert.Equal(t, SchemaBasic, schema)

	schema, err = ParseSchema("timestamped")
	require.NoError(t, err)
	assert.Equal(t, SchemaTimestamped, schema)

	_, err = ParseSchema("xml")
	assert.Error(t, err)
}
