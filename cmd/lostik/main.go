// lostik operates a Ronoth LoStik LoRa transceiver.
//
// Examples:
//
//	# Send a ping each time the watchdog expires (every 5 seconds)
//	lostik -port /dev/ttyUSB0 -ping -wdt 5000
//
//	# Reply to pings, with the arrival time in the reply
//	lostik -port /dev/ttyUSB1 -pong -schema timestamped
//
//	# Print the device configuration
//	lostik -mode dump
//
//	# Try the tool without hardware
//	lostik -simulate -pong
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	lostik "github.com/basilfx/go-lostik"
	"github.com/basilfx/go-lostik/emulator"
	"github.com/basilfx/go-lostik/logging"
	"github.com/basilfx/go-lostik/settings"

	log "github.com/sirupsen/logrus"
)

// The modes of operation.
const (
	ModePingPong = "pingpong"
	ModeDump     = "dump"
	ModeWrite    = "write"
	ModeDemo     = "demo"
)

type options struct {
	config   string
	mode     string
	ping     bool
	pong     bool
	simulate bool
	trace    bool
	progress bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var o options

	flag.StringVar(&o.config, "config", "", "Configuration file (.yaml, .yml, .json or .json5)")
	flag.StringVar(&o.mode, "mode", ModePingPong, "Mode: 'pingpong', 'dump', 'write' or 'demo'")
	flag.BoolVar(&o.ping, "ping", false, "Operate in ping mode. Transmit cycle is controlled by the watchdog time-out.")
	flag.BoolVar(&o.pong, "pong", false, "Operate in pong mode. Reply immediately upon receipt of a ping.")
	flag.BoolVar(&o.simulate, "simulate", false, "Use an emulated LoStik instead of the serial port")
	flag.BoolVar(&o.trace, "trace", false, "Log every line exchanged with the device")
	flag.BoolVar(&o.progress, "progress", false, "Print a dot while waiting for the device")

	port := flag.String("port", "", "LoStik serial port descriptor (default: /dev/ttyUSB0)")
	driver := flag.String("driver", "", "Serial driver: 'bugst' or 'tarm'")
	wdt := flag.String("wdt", "", "Watchdog timer time-out in milliseconds (range: 0 to 4294967295, default: 15000)")
	schema := flag.String("schema", "", "Pong payload schema: 'basic' or 'timestamped'")
	timeout := flag.Duration("timeout", 0, "Read timeout of a single command (default: 2s)")
	level := flag.String("log-level", "", "Log level (default: info)")
	redis := flag.String("redis", "", "Publish link events to the Redis server at this address")

	flag.Parse()

	s, err := settings.Load(o.config)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Flags override the configuration.
	var flagErr error

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			s.Serial.Port = *port
		case "driver":
			s.Serial.Driver = *driver
		case "wdt":
			if err := s.Radio.Set(lostik.ParamWatchdog, *wdt); err != nil {
				flagErr = err
			}
		case "schema":
			s.PingPong.Schema = *schema
		case "timeout":
			s.Serial.ReadTimeoutMs = int(*timeout / time.Millisecond)
		case "log-level":
			s.Log.Level = *level
		case "redis":
			s.Redis.Address = *redis
		}
	})

	if o.ping && o.pong {
		flagErr = fmt.Errorf("-ping and -pong are mutually exclusive")
	} else if o.ping {
		s.PingPong.Role = "ping"
	} else if o.pong {
		s.PingPong.Role = "pong"
	}

	if flagErr == nil {
		flagErr = s.Validate()
	}

	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", flagErr)
		flag.PrintDefaults()
		return 1
	}

	closer, err := logging.Setup(s.Log)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, o, s); err != nil {
		log.Errorf("%v", err)
		return 1
	}

	return 0
}

func execute(ctx context.Context, o options, s *settings.Settings) error {
	mode, ok := modes[o.mode]

	if !ok {
		return fmt.Errorf("invalid mode '%s'", o.mode)
	}

	if o.mode == ModePingPong && s.PingPong.Role == "" {
		return fmt.Errorf("select a role with -ping or -pong")
	}

	stream, err := open(o, s)

	if err != nil {
		return err
	}

	defer stream.Close()

	l := lostik.New()

	go l.Serve(stream)
	defer l.Shutdown()

	if o.trace {
		trace(l)
	}

	radio := lostik.NewRadio(l,
		lostik.WithReadTimeout(s.Serial.ReadTimeout()),
		lostik.WithPollInterval(s.Serial.PollInterval()))

	return mode(ctx, radio, o, s)
}

func open(o options, s *settings.Settings) (io.ReadWriteCloser, error) {
	if !o.simulate {
		log.Infof("Connecting to LoStik at %s.", s.Serial.Port)

		return lostik.Open(s.Serial.Port, lostik.Driver(s.Serial.Driver))
	}

	opts := []emulator.Option{emulator.WithWatchdog(), emulator.WithAirtime(time.Second)}

	if s.PingPong.Role == "pong" {
		opts = append(opts, emulator.WithPeer([]byte("Ping!"), 3*time.Second, -62, 7))
	}

	d := emulator.New(opts...)

	log.Infof("Connecting to %s.", d)

	return d, nil
}

// trace logs all traffic on the link, until the link stops.
func trace(l *lostik.Link) {
	id, traffic := l.Register()

	go func() {
		<-l.Done()
		l.Unregister(id)
	}()

	go func() {
		for t := range traffic {
			if t.Outgoing {
				log.Infof(">> %s", t.Line)
			} else {
				log.Infof("<< %s", t.Line)
			}
		}
	}()
}
