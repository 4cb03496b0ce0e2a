package lostik

import (
	"bufio"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/acomagu/bufpipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeStream connects a link to a test that plays the device.
type pipeStream struct {
	io.Reader
	io.Writer
}

func newLink(t *testing.T) (*Link, *bufio.Reader, io.WriteCloser) {
	hostIn, deviceOut := bufpipe.New(nil)
	deviceIn, hostOut := bufpipe.New(nil)

	l := New()

	go l.Serve(pipeStream{Reader: hostIn, Writer: hostOut})

	t.Cleanup(func() {
		deviceOut.Close()
		hostOut.Close()
		<-l.Done()
	})

	return l, bufio.NewReader(deviceIn), deviceOut
}

func TestLinkSendTerminatesWithCRLF(t *testing.T) {
	l, device, _ := newLink(t)

	require.NoError(t, l.Send(Command{Verb: "radio get", Arg: "sf"}))

	line, err := device.ReadString('\n')

	require.NoError(t, err)
	assert.Equal(t, "radio get sf\r\n", line)
}

func TestLinkReadLine(t *testing.T) {
	l, _, device := newLink(t)

	_, err := device.Write([]byte("ok\r\n\r\nradio_tx_ok\r\n"))
	require.NoError(t, err)

	line, err := l.ReadLine(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", line)

	// Empty lines are skipped.
	line, err = l.ReadLine(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "radio_tx_ok", line)
}

func TestLinkReadLineTimeout(t *testing.T) {
	l, _, _ := newLink(t)

	start := time.Now()
	_, err := l.ReadLine(context.Background(), 50*time.Millisecond)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, IsFatal(err))
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestLinkReadLineCancel(t *testing.T) {
	l, _, _ := newLink(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.ReadLine(ctx, time.Second)

	assert.Equal(t, context.Canceled, err)
}

func TestLinkClosedByDevice(t *testing.T) {
	l, _, device := newLink(t)

	_, err := device.Write([]byte("ok\r\n"))
	require.NoError(t, err)
	device.Close()

	<-l.Done()

	// Lines received before closing are still handed out.
	line, err := l.ReadLine(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", line)

	_, err = l.ReadLine(context.Background(), time.Second)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.True(t, IsFatal(err))

	err = l.Send(cmdMacPause)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.True(t, errors.Is(l.Err(), io.EOF))
}

func TestLinkStopsWhenDeviceCloses(t *testing.T) {
	l, _, device := newLink(t)

	// Give the reader task time to block.
	time.Sleep(20 * time.Millisecond)

	device.Close()

	select {
	case <-l.Done():
		assert.True(t, errors.Is(l.Err(), io.EOF))
	case <-time.After(time.Second):
		t.Fatal("link still running after device closed")
	}
}

func TestLinkListener(t *testing.T) {
	l, device, deviceOut := newLink(t)

	id, traffic := l.Register()

	require.NoError(t, l.Send(cmdSysGetVer))
	_, err := device.ReadString('\n')
	require.NoError(t, err)

	_, err = deviceOut.Write([]byte("RN2903 1.0.5\r\n"))
	require.NoError(t, err)

	// Both tasks notify, so the order is not fixed.
	assert.ElementsMatch(t, []Traffic{
		{Outgoing: true, Line: "sys get ver"},
		{Line: "RN2903 1.0.5"},
	}, []Traffic{<-traffic, <-traffic})

	l.Unregister(id)

	_, ok := <-traffic
	assert.False(t, ok)
}

func TestLinkDrain(t *testing.T) {
	l, _, device := newLink(t)

	_, err := device.Write([]byte("a\r\nb\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(l.lines) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"a", "b"}, l.Drain())
	assert.Empty(t, l.Drain())
}
