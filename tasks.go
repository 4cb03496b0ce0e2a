package lostik

import (
	"bufio"
	"context"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

func (l *Link) writerTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Debugf("Writer task stopped.")
			return
		case command := <-l.writer:
			line := command.String()

			// Send to serial device.
			log.Debugf("Link outgoing: %s", line)

			_, err := l.stream.Write([]byte(line + "\r\n"))

			if err != nil {
				log.Errorf("Error while writing: %v", err)
				l.close(err)
				return
			}

			l.notify(Traffic{Outgoing: true, Line: line})
		}
	}
}

func (l *Link) readerTask(ctx context.Context) {
	scanner := bufio.NewScanner(l.stream)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			log.Infof("Reader task stopped.")
			return
		default:
			// Pass on.
		}

		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			continue
		}

		log.Debugf("Link incoming: %s", line)

		l.notify(Traffic{Line: line})

		// Hand over to the single consumer. Lines are never dropped, because
		// an asynchronous completion line must not get lost.
		select {
		case l.lines <- line:
		case <-ctx.Done():
			log.Infof("Reader task stopped.")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		log.Errorf("Error while reading: %v", err)
		l.close(err)
		return
	}

	log.Debugf("Reader task reached end of stream.")
	l.close(io.EOF)
}
