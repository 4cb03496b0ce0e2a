package report

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/basilfx/go-lostik/pingpong"
	"github.com/go-redis/redis/v8"

	log "github.com/sirupsen/logrus"
)

// PublishTimeout bounds a single publish.
const PublishTimeout = 500 * time.Millisecond

// Record is the published representation of an event.
type Record struct {
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Time      int64  `json:"time"`
	Text      string `json:"text,omitempty"`
	Payload   string `json:"payload,omitempty"`
	RSSI      *int   `json:"rssi,omitempty"`
	SNR       *int   `json:"snr,omitempty"`
	Quality   string `json:"quality,omitempty"`
	ElapsedMs int64  `json:"elapsedMs,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewRecord converts event.
func NewRecord(event pingpong.Event) Record {
	r := Record{
		Kind: event.Kind.String(),
		Role: event.Role.String(),
		Time: event.Time.UnixMilli(),
	}

	if f := event.Frame; f != nil {
		rssi, snr := f.RSSI, f.SNR

		r.Text = f.Text
		r.Payload = hex.EncodeToString(f.Payload)
		r.RSSI = &rssi
		r.SNR = &snr
		r.Quality = f.Quality()
	}

	if len(event.Payload) > 0 {
		r.Text = string(event.Payload)
		r.Payload = hex.EncodeToString(event.Payload)
	}

	if event.Kind == pingpong.EventDecodeError {
		r.Payload = event.Raw
	}

	if event.Kind == pingpong.EventTxDone {
		r.ElapsedMs = event.Elapsed.Milliseconds()
	}

	if event.Err != nil {
		r.Error = event.Err.Error()
	}

	return r
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes events as JSON records on a channel.
type Redis struct {
	client  publisher
	closer  func() error
	channel string
}

// NewRedis returns a publisher connected to the server at address.
func NewRedis(address string, channel string) *Redis {
	client := redis.NewClient(&redis.Options{Addr: address})

	return &Redis{
		client:  client,
		closer:  client.Close,
		channel: channel,
	}
}

// Ping checks the connection to the server.
func (r *Redis) Ping(ctx context.Context) error {
	if client, ok := r.client.(*redis.Client); ok {
		return client.Ping(ctx).Err()
	}

	return nil
}

// Report implements pingpong.Reporter. Failures are logged.
func (r *Redis) Report(event pingpong.Event) {
	if event.Kind == pingpong.EventListening {
		return
	}

	data, err := json.Marshal(NewRecord(event))

	if err != nil {
		log.Errorf("Unable to encode %s event: %v", event.Kind, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		log.Warnf("Unable to publish %s event to '%s': %v", event.Kind, r.channel, err)
	}
}

// Close the connection.
func (r *Redis) Close() error {
	if r.closer == nil {
		return nil
	}

	return r.closer()
}
