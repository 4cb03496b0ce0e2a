package lostik

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// PauseSentinel is the reply to "mac pause" when the LoRaWAN stack is paused
// indefinitely.
const PauseSentinel = 4294967245

// DefaultPollInterval is the interval at which AwaitEvent reports progress
// while no line arrives.
const DefaultPollInterval = time.Second

// Radio offers the semantic operations of a LoStik on top of a Link. It owns
// the link for the lifetime of the process; there must be a single caller.
type Radio struct {
	link *Link

	timeout      time.Duration
	pollInterval time.Duration

	// Completion lines received during a synchronous exchange.
	pending []Response
}

// Option configures a Radio.
type Option func(*Radio)

// WithReadTimeout bounds every synchronous exchange.
func WithReadTimeout(timeout time.Duration) Option {
	return func(r *Radio) {
		r.timeout = timeout
	}
}

// WithPollInterval sets the progress interval of AwaitEvent.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Radio) {
		r.pollInterval = interval
	}
}

// NewRadio returns a Radio that talks over link.
func NewRadio(link *Link, options ...Option) *Radio {
	r := &Radio{
		link:         link,
		timeout:      DefaultReadTimeout,
		pollInterval: DefaultPollInterval,
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// Link returns the underlying link.
func (r *Radio) Link() *Link {
	return r.link
}

// Exchange sends command and waits for the single synchronous reply.
// Completion lines of a running receive or transmit that arrive in the
// meantime are kept for AwaitEvent.
func (r *Radio) Exchange(ctx context.Context, command Command) (Response, error) {
	// Other than completion lines, whatever is queued is a late or garbled
	// line from an earlier exchange.
	for _, line := range r.link.Drain() {
		if response := ParseResponse(line); response.Async() {
			r.keep(response, command)
			continue
		}

		log.Warnf("Discarding stale line before '%s': '%s'", command, line)
	}

	if err := r.link.Send(command); err != nil {
		return Response{}, err
	}

	deadline := time.Now().Add(r.timeout)

	for {
		line, err := r.link.ReadLine(ctx, time.Until(deadline))

		if err != nil {
			var deviceErr *DeviceError

			if errors.As(err, &deviceErr) && deviceErr.Command == "" {
				deviceErr.Command = command.String()
			}

			return Response{}, err
		}

		response := ParseResponse(line)

		if response.Async() {
			r.keep(response, command)
			continue
		}

		log.WithFields(log.Fields{
			"command":  command.String(),
			"response": response.Type,
		}).Debugf("Exchange completed: %s", response.Raw)

		return response, nil
	}
}

func (r *Radio) keep(response Response, command Command) {
	log.Debugf("Keeping '%s' received around '%s' for later.", response.Raw, command)

	r.pending = append(r.pending, response)
}

// SetParameter writes a radio parameter. It returns true if and only if the
// device replied "ok". The error is only set if no reply was received.
func (r *Radio) SetParameter(ctx context.Context, parameter Parameter, value string) (bool, error) {
	response, err := r.setParameter(ctx, parameter, value)

	if err != nil {
		return false, err
	}

	return response.Type == ResponseOk, nil
}

func (r *Radio) setParameter(ctx context.Context, parameter Parameter, value string) (Response, error) {
	return r.Exchange(ctx, Command{Verb: "radio set", Arg: string(parameter) + " " + value})
}

// GetParameter reads a radio parameter, as the literal reply.
func (r *Radio) GetParameter(ctx context.Context, parameter Parameter) (string, error) {
	response, err := r.Exchange(ctx, Command{Verb: "radio get", Arg: string(parameter)})

	if err != nil {
		return "", err
	}

	return response.Raw, nil
}

// PauseProtocolStack pauses the LoRaWAN stack, which is required to access
// the radio directly. Any reply other than PauseSentinel is an
// ErrProtocolInit.
func (r *Radio) PauseProtocolStack(ctx context.Context) error {
	response, err := r.Exchange(ctx, cmdMacPause)

	if err != nil {
		return err
	}

	if response.Type != ResponseNumericValue || response.Value != PauseSentinel {
		return newError(ErrProtocolInit, cmdMacPause, response.Raw, ErrUnexpected)
	}

	return nil
}

// EnterContinuousReceive arms a receive window without time limit. The window
// ends with a frame, or when the watchdog expires. A busy device yields an
// error that matches ErrBusy; the caller must halt and retry.
func (r *Radio) EnterContinuousReceive(ctx context.Context) error {
	response, err := r.Exchange(ctx, cmdRadioRx)

	if err != nil {
		return err
	}

	switch response.Type {
	case ResponseOk:
		return nil
	case ResponseBusy:
		return newError(ErrTransient, cmdRadioRx, response.Raw, ErrBusy)
	default:
		return newError(ErrTransient, cmdRadioRx, response.Raw, ErrUnexpected)
	}
}

// HaltReceive stops a receive window. Any reply other than "ok" means the
// device is out of step, which is an ErrDesynchronized.
func (r *Radio) HaltReceive(ctx context.Context) error {
	response, err := r.Exchange(ctx, cmdRadioRxStop)

	if err != nil {
		return err
	}

	if response.Type != ResponseOk {
		return newError(ErrDesynchronized, cmdRadioRxStop, response.Raw, ErrUnexpected)
	}

	return nil
}

// Transmit starts transmission of payload. It returns once the device
// acknowledged the command; the result follows as an event.
func (r *Radio) Transmit(ctx context.Context, payload []byte) error {
	data, err := EncodePayload(payload)

	if err != nil {
		return &DeviceError{Code: ErrTransmitFailure, Err: err}
	}

	command := Command{Verb: "radio tx", Arg: data}
	response, err := r.Exchange(ctx, command)

	if err != nil {
		return err
	}

	switch response.Type {
	case ResponseOk:
		return nil
	case ResponseInvalidParam:
		return newError(ErrTransmitFailure, command, response.Raw, ErrInvalidParam)
	case ResponseBusy:
		return newError(ErrTransient, command, response.Raw, ErrBusy)
	default:
		return newError(ErrTransmitFailure, command, response.Raw, ErrUnexpected)
	}
}

// AwaitEvent blocks until the next line arrives, which completes a receive or
// transmit. The device owns the time-out of both, so there is no deadline
// here; progress is called each poll interval without a line.
func (r *Radio) AwaitEvent(ctx context.Context, progress func()) (Response, error) {
	if len(r.pending) > 0 {
		response := r.pending[0]
		r.pending = r.pending[1:]

		return response, nil
	}

	for {
		line, err := r.link.ReadLine(ctx, r.pollInterval)

		if err != nil {
			if errors.Is(err, ErrTimeout) {
				if progress != nil {
					progress()
				}

				continue
			}

			return Response{}, err
		}

		return ParseResponse(line), nil
	}
}

// QueryRSSI returns the RSSI of the last received frame, in dBm. It must be
// called right after a frame, before any other command.
func (r *Radio) QueryRSSI(ctx context.Context) (int, error) {
	return r.queryInt(ctx, cmdRadioGetRSSI)
}

// QuerySNR returns the SNR of the last received frame, in dB. It must be
// called right after a frame, before any other command.
func (r *Radio) QuerySNR(ctx context.Context) (int, error) {
	return r.queryInt(ctx, cmdRadioGetSNR)
}

func (r *Radio) queryInt(ctx context.Context, command Command) (int, error) {
	response, err := r.Exchange(ctx, command)

	if err != nil {
		return 0, err
	}

	if response.Type != ResponseNumericValue {
		return 0, newError(ErrTransient, command, response.Raw, ErrUnexpected)
	}

	return int(response.Value), nil
}

// Version returns the firmware version string.
func (r *Radio) Version(ctx context.Context) (string, error) {
	response, err := r.Exchange(ctx, cmdSysGetVer)

	if err != nil {
		return "", err
	}

	return response.Raw, nil
}

// WriteSettings writes each setting in order. Any reply other than "ok" is an
// ErrProtocolInit.
func (r *Radio) WriteSettings(ctx context.Context, settings []Setting) error {
	for _, s := range settings {
		response, err := r.setParameter(ctx, s.Parameter, s.Value)

		if err != nil {
			return err
		}

		log.Infof("Set %s = %s: %s", s.Parameter, s.Value, response.Raw)

		if response.Type != ResponseOk {
			return &DeviceError{
				Code:     ErrProtocolInit,
				Command:  "radio set " + string(s.Parameter) + " " + s.Value,
				Response: response.Raw,
				Err:      ErrUnexpected,
			}
		}
	}

	return nil
}

// Configure writes the network settings, then the node settings of config.
// Writing the same config again yields the same result.
func (r *Radio) Configure(ctx context.Context, config RadioConfig) error {
	if err := config.Validate(); err != nil {
		return &DeviceError{Code: ErrProtocolInit, Err: err}
	}

	if err := r.WriteSettings(ctx, config.NetworkSettings()); err != nil {
		return err
	}

	return r.WriteSettings(ctx, config.NodeSettings())
}

// ReadConfig reads all radio parameters back from the device.
func (r *Radio) ReadConfig(ctx context.Context) (RadioConfig, error) {
	var config RadioConfig

	for _, p := range append(append([]Parameter{}, NetworkParameters...), NodeParameters...) {
		value, err := r.GetParameter(ctx, p)

		if err != nil {
			return config, err
		}

		if err := config.Set(p, value); err != nil {
			return config, &DeviceError{
				Code:     ErrTransient,
				Command:  "radio get " + string(p),
				Response: value,
				Err:      err,
			}
		}
	}

	return config, nil
}

// Initialize brings the device in a known state: LEDs off, LoRaWAN stack
// paused and config written. Both LEDs are on while writing. Every returned
// error is fatal.
func (r *Radio) Initialize(ctx context.Context, config RadioConfig) error {
	r.SetAll(ctx, LEDOff)

	if err := r.PauseProtocolStack(ctx); err != nil {
		return asProtocolInit(err)
	}

	log.Infof("LoRaWAN protocol stack paused.")

	r.SetAll(ctx, LEDOn)
	defer r.SetAll(ctx, LEDOff)

	if err := r.Configure(ctx, config); err != nil {
		return asProtocolInit(err)
	}

	log.Infof("Radio settings written.")

	return nil
}

// asProtocolInit turns a missing reply during startup into a fatal error.
func asProtocolInit(err error) error {
	var deviceErr *DeviceError

	if errors.As(err, &deviceErr) && deviceErr.Code == ErrTransient {
		return &DeviceError{
			Code:     ErrProtocolInit,
			Command:  deviceErr.Command,
			Response: deviceErr.Response,
			Err:      deviceErr.Err,
		}
	}

	return err
}

