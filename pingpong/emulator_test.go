package pingpong_test

import (
	"context"
	"strings"
	"testing"
	"time"

	lostik "github.com/basilfx/go-lostik"
	"github.com/basilfx/go-lostik/emulator"
	"github.com/basilfx/go-lostik/pingpong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRadio(t *testing.T, options ...emulator.Option) (*lostik.Radio, *emulator.Device) {
	d := emulator.New(options...)
	l := lostik.New()

	go l.Serve(d)

	t.Cleanup(func() {
		d.Close()
		<-l.Done()
	})

	return lostik.NewRadio(l, lostik.WithPollInterval(10*time.Millisecond)), d
}

// radioCommands returns the commands sent to the device, without LED commands.
func radioCommands(d *emulator.Device) []string {
	var commands []string

	for _, c := range d.Commands() {
		if !strings.HasPrefix(c, "sys set pindig") {
			commands = append(commands, c)
		}
	}

	return commands
}

func stopAfter(cancel context.CancelFunc, kind pingpong.EventKind, events *[]pingpong.Event) pingpong.Reporter {
	return pingpong.ReporterFunc(func(event pingpong.Event) {
		*events = append(*events, event)

		if event.Kind == kind {
			cancel()
		}
	})
}

func TestPingOverEmulator(t *testing.T) {
	r, d := newRadio(t, emulator.WithWatchdog(), emulator.WithAirtime(20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := lostik.DefaultRadioConfig()
	config.Watchdog = 50

	require.NoError(t, r.Initialize(ctx, config))

	var events []pingpong.Event
	m := pingpong.New(r, pingpong.RolePing, pingpong.WithReporter(stopAfter(cancel, pingpong.EventTxDone, &events)))

	require.NoError(t, m.Run(ctx))

	assert.Equal(t, [][]byte{[]byte(pingpong.PingMarker)}, d.Transmissions())

	commands := radioCommands(d)
	require.GreaterOrEqual(t, len(commands), 4)
	assert.Equal(t, []string{"radio rx 0", "radio rxstop", "radio tx 50696e6721"}, commands[len(commands)-3:])

	last := events[len(events)-1]
	assert.Equal(t, pingpong.EventTxDone, last.Kind)
	assert.Greater(t, int64(last.Elapsed), int64(0))
}

func TestPongOverEmulator(t *testing.T) {
	r, d := newRadio(t)

	d.QueueEvents(
		emulator.Frame([]byte("hello"), -90, -3),
		emulator.Frame([]byte("Ping!"), -48, 6),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []pingpong.Event
	m := pingpong.New(r, pingpong.RolePong, pingpong.WithReporter(stopAfter(cancel, pingpong.EventTxDone, &events)))

	require.NoError(t, m.Run(ctx))

	require.Len(t, d.Transmissions(), 1)
	assert.Equal(t, "Pong!  RSSI: -48dBm  SNR: 6dB", string(d.Transmissions()[0]))

	assert.Equal(t, []string{
		"radio rx 0",
		"radio get rssi",
		"radio get snr",
		"radio rx 0",
		"radio get rssi",
		"radio get snr",
		"radio rxstop",
		"radio tx 506f6e67212020525353493a202d343864426d2020534e523a20366442",
	}, radioCommands(d))

	var frame *pingpong.Frame

	for _, e := range events {
		if e.Kind == pingpong.EventFrame {
			frame = e.Frame
		}
	}

	require.NotNil(t, frame)
	assert.Equal(t, "hello", frame.Text)
	assert.Equal(t, "[        ]", frame.Quality())
}

func TestPongRecoversFromBusy(t *testing.T) {
	r, d := newRadio(t, emulator.WithReceiving())

	d.QueueEvents(emulator.Frame([]byte("Ping!"), -60, 2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []pingpong.Event
	m := pingpong.New(r, pingpong.RolePong, pingpong.WithReporter(stopAfter(cancel, pingpong.EventTxDone, &events)))

	require.NoError(t, m.Run(ctx))

	assert.Equal(t, pingpong.EventBusy, events[0].Kind)
	assert.Equal(t, []string{"radio rx 0", "radio rxstop", "radio rx 0"}, radioCommands(d)[:3])
	assert.Len(t, d.Transmissions(), 1)
}

func TestPingRecoversFromGarbledLines(t *testing.T) {
	r, d := newRadio(t, emulator.WithWatchdog(), emulator.WithAirtime(20*time.Millisecond))

	// The first window ends with a truncated line, the first transmission
	// with a garbled result.
	d.QueueEvents(emulator.Line("radio_r"))
	d.QueueTxResults("radio_tx_o")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := lostik.DefaultRadioConfig()
	config.Watchdog = 50

	require.NoError(t, r.Initialize(ctx, config))

	var events []pingpong.Event
	m := pingpong.New(r, pingpong.RolePing, pingpong.WithReporter(stopAfter(cancel, pingpong.EventTxDone, &events)))

	require.NoError(t, m.Run(ctx))
	require.NotEmpty(t, events)
	assert.Equal(t, pingpong.EventTxDone, events[len(events)-1].Kind)

	var kinds []pingpong.EventKind

	for _, e := range events {
		if e.Kind == pingpong.EventWatchdog || e.Kind == pingpong.EventTxFailed || e.Kind == pingpong.EventTxDone {
			kinds = append(kinds, e.Kind)
		}
	}

	// One ping per watchdog expiry.
	assert.Equal(t, []pingpong.EventKind{
		pingpong.EventWatchdog,
		pingpong.EventTxFailed,
		pingpong.EventWatchdog,
		pingpong.EventTxDone,
	}, kinds)
	assert.Len(t, d.Transmissions(), 2)

	commands := radioCommands(d)

	for i, c := range commands {
		if strings.HasPrefix(c, "radio tx ") {
			require.Greater(t, i, 0)
			assert.Equal(t, "radio rxstop", commands[i-1])
		}
	}

	assert.Equal(t, pingpong.StateListening, m.State())
}
