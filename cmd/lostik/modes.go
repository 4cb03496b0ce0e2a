package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	lostik "github.com/basilfx/go-lostik"
	"github.com/basilfx/go-lostik/demo"
	"github.com/basilfx/go-lostik/pingpong"
	"github.com/basilfx/go-lostik/report"
	"github.com/basilfx/go-lostik/settings"

	log "github.com/sirupsen/logrus"
)

type modeFunc func(ctx context.Context, radio *lostik.Radio, o options, s *settings.Settings) error

var modes = map[string]modeFunc{
	ModePingPong: runPingPong,
	ModeDump:     runDump,
	ModeWrite:    runWrite,
	ModeDemo:     runDemo,
}

func runPingPong(ctx context.Context, radio *lostik.Radio, o options, s *settings.Settings) error {
	role, err := pingpong.ParseRole(s.PingPong.Role)

	if err != nil {
		return err
	}

	schema, err := pingpong.ParseSchema(s.PingPong.Schema)

	if err != nil {
		return err
	}

	if err := radio.Initialize(ctx, s.Radio); err != nil {
		return err
	}

	reporters := report.Multi{report.NewLogger(nil)}

	if s.Redis.Address != "" {
		publisher := report.NewRedis(s.Redis.Address, s.Redis.Channel)
		defer publisher.Close()

		if err := publisher.Ping(ctx); err != nil {
			log.Warnf("Redis server at %s not reachable: %v", s.Redis.Address, err)
		}

		reporters = append(reporters, publisher)
	}

	opts := []pingpong.Option{
		pingpong.WithReporter(reporters),
		pingpong.WithSchema(schema),
	}

	if o.progress {
		opts = append(opts, pingpong.WithProgress(func() {
			fmt.Fprint(os.Stdout, ".")
		}))
	}

	return pingpong.New(radio, role, opts...).Run(ctx)
}

func runDump(ctx context.Context, radio *lostik.Radio, o options, s *settings.Settings) error {
	if err := radio.PauseProtocolStack(ctx); err != nil {
		return err
	}

	radio.SetAll(ctx, lostik.LEDOn)
	defer radio.SetAll(ctx, lostik.LEDOff)

	version, err := radio.Version(ctx)

	if err != nil {
		return err
	}

	config, err := radio.ReadConfig(ctx)

	if err != nil {
		return err
	}

	snr, err := radio.QuerySNR(ctx)

	if err != nil {
		return err
	}

	rssi, err := radio.QueryRSSI(ctx)

	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Version:\t%s\n", version)

	for _, p := range lostik.NetworkParameters {
		fmt.Fprintf(w, "%s:\t%s\n", p, config.Get(p))
	}

	for _, p := range lostik.NodeParameters {
		fmt.Fprintf(w, "%s:\t%s\n", p, config.Get(p))
	}

	fmt.Fprintf(w, "Last SNR:\t%ddB\n", snr)
	fmt.Fprintf(w, "Last RSSI:\t%ddBm\n", rssi)

	return w.Flush()
}

func runWrite(ctx context.Context, radio *lostik.Radio, o options, s *settings.Settings) error {
	if err := radio.Initialize(ctx, s.Radio); err != nil {
		return err
	}

	log.Infof("Settings written. They are lost when the LoStik is power cycled.")

	return nil
}

func runDemo(ctx context.Context, radio *lostik.Radio, o options, s *settings.Settings) error {
	if err := radio.Initialize(ctx, s.Radio); err != nil {
		return err
	}

	_, err := demo.Run(ctx, radio, demo.DefaultVariants, demo.DefaultMessages, func(r demo.Result) {
		fields := log.Fields{"variant": r.Variant.String(), "size": len(r.Message)}

		if r.Err != nil {
			log.WithFields(fields).Errorf("Transmit failed: %v", r.Err)
			return
		}

		log.WithFields(fields).Infof("Transmit done, time on air: %dms", r.Elapsed.Milliseconds())
	})

	return err
}
