package lostik

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/basilfx/go-utilities/taskrunner"
	"github.com/twinj/uuid"

	log "github.com/sirupsen/logrus"
)

// Listener identifies a traffic listener of a link.
type Listener uuid.UUID

// DefaultReadTimeout is the time ReadLine waits for a line, unless configured
// otherwise.
const DefaultReadTimeout = 2 * time.Second

// WriterChannelSize is the number of commands that can be queued for writing.
const WriterChannelSize = 32

// LineChannelSize is the number of received lines that are buffered for
// ReadLine.
const LineChannelSize = 64

// ListenerChannelSize is the size of the channel that is created for each
// listener.
const ListenerChannelSize = 32

// Traffic is a copy of a line that passed the link, handed to listeners.
type Traffic struct {
	Outgoing bool
	Line     string
}

// Link represents the line-oriented serial connection to a LoStik.
//
// Received lines are queued in order and consumed with ReadLine. Listeners
// receive a copy of all traffic, but may miss lines when they do not keep up.
type Link struct {
	stream io.ReadWriter

	taskRunner *taskrunner.TaskRunner

	writer    chan Command
	lines     chan string
	listeners map[Listener]chan Traffic
	lock      sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// New returns an initialized Link. Call Serve to start it.
func New() *Link {
	return &Link{
		writer:     make(chan Command, WriterChannelSize),
		lines:      make(chan string, LineChannelSize),
		listeners:  map[Listener]chan Traffic{},
		done:       make(chan struct{}),
		taskRunner: taskrunner.New(),
	}
}

// Register interest in link traffic.
func (l *Link) Register() (Listener, chan Traffic) {
	c := make(chan Traffic, ListenerChannelSize)
	id := Listener(uuid.NewV4())

	l.lock.Lock()
	defer l.lock.Unlock()

	l.listeners[id] = c

	return id, c
}

// Unregister interest in link traffic.
func (l *Link) Unregister(id Listener) {
	l.lock.Lock()
	defer l.lock.Unlock()

	c, ok := l.listeners[id]

	if !ok {
		return
	}

	delete(l.listeners, id)

	close(c)
}

// Send a command to the device. The command is terminated with CRLF by the
// writer. There is no retry.
func (l *Link) Send(command Command) error {
	select {
	case <-l.done:
		return newError(ErrConnection, command, "", l.closedErr())
	default:
	}

	select {
	case l.writer <- command:
		return nil
	default:
		return newError(ErrTransient, command, "", errors.New("writer channel full"))
	}
}

// ReadLine returns the next line received from the device, without line
// terminator. It waits at most timeout, or until ctx is done.
func (l *Link) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	// Lines received before the link closed are still handed out.
	select {
	case line := <-l.lines:
		return line, nil
	default:
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case line := <-l.lines:
		return line, nil
	case <-l.done:
		select {
		case line := <-l.lines:
			return line, nil
		default:
			return "", &DeviceError{Code: ErrConnection, Err: l.closedErr()}
		}
	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", err
		}

		return "", &DeviceError{Code: ErrTransient, Err: ErrTimeout}
	}
}

// Drain removes all lines that are queued, and returns them.
func (l *Link) Drain() []string {
	var lines []string

	for {
		select {
		case line := <-l.lines:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

// Done returns a channel that is closed once the link stopped.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns the reason the link stopped, or nil if it is still running.
func (l *Link) Err() error {
	select {
	case <-l.done:
		return l.closedErr()
	default:
		return nil
	}
}

// Serve a link. It blocks until the link is shut down, or the stream fails.
func (l *Link) Serve(stream io.ReadWriter) {
	l.stream = stream

	go func() {
		<-l.done
		l.Shutdown()
	}()

	l.taskRunner.RunWithCancel("Link.Writer", l.writerTask)
	l.taskRunner.RunWithCancel("Link.Reader", l.readerTask)

	// Wait for both goroutines to complete.
	l.taskRunner.Wait()

	l.close(nil)
}

// Shutdown the link. This does not close the underlying stream.
func (l *Link) Shutdown() {
	if l.taskRunner != nil {
		l.taskRunner.Cancel()
	}
}

func (l *Link) close(err error) {
	l.doneOnce.Do(func() {
		l.lock.Lock()
		l.err = err
		l.lock.Unlock()

		close(l.done)
	})
}

func (l *Link) closedErr() error {
	l.lock.RLock()
	defer l.lock.RUnlock()

	if l.err != nil {
		return l.err
	}

	return ErrClosed
}

func (l *Link) notify(traffic Traffic) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	for id, c := range l.listeners {
		select {
		case c <- traffic:
			continue
		default:
			log.Errorf("Channel of listener '%s' full.", id)
		}
	}
}
