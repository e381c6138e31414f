// Command neurolink runs the real-time EEG attention pipeline: it reads the
// two-channel sample stream from a serial device, classifies attention
// direction per analysis window, and appends the per-window records to the
// configured sinks.
//
// Usage:
//
//	neurolink [flags] [endpoint]
//
// The optional positional endpoint overrides serial.port from the
// configuration ("auto" enables device discovery). Exit codes: 0 on clean
// shutdown, 1 on unrecoverable source failure, 2 on bad invocation or
// configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visiona/neurolink/internal/acquire"
	"github.com/visiona/neurolink/internal/config"
	"github.com/visiona/neurolink/internal/engine"
	"github.com/visiona/neurolink/internal/sink"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		durationS   = flag.Float64("duration", 0, "processing duration in seconds (0 = run until interrupted)")
		configPath  = flag.String("config", "", "path to a YAML configuration file")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
		mqttBroker  = flag.String("mqtt-broker", "", "publish window records to this MQTT broker (e.g. tcp://localhost:1883)")
		mqttTopic   = flag.String("mqtt-topic", "neurolink/records", "MQTT topic for window records")
		noCSV       = flag.Bool("no-csv", false, "disable the CSV metrics log")
		warmupS     = flag.Float64("warmup", 0, "measure sample-rate stability for this many seconds before processing")
		worker      = flag.Bool("worker", false, "run window analysis on a separate worker (one window outstanding)")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// .env is optional; it carries overrides like EEG_LINE_FREQ.
	if err := godotenv.Load(); err == nil {
		slog.Debug("main: loaded .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	cfg, err = cfg.ApplyEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	switch flag.NArg() {
	case 0:
	case 1:
		cfg.Serial.Port = flag.Arg(0)
	default:
		fmt.Fprintln(os.Stderr, "usage: neurolink [flags] [endpoint]")
		return 2
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	sinks := []sink.Sink{sink.NewConsole()}
	if cfg.Logging.EnableCSV && !*noCSV {
		csv, err := sink.NewCSV(cfg.Logging.Filename, cfg.Logging.FlushIntervalRecords)
		if err != nil {
			slog.Error("main: csv sink unavailable, continuing without it", "error", err)
		} else {
			sinks = append(sinks, csv)
		}
	}
	if *mqttBroker != "" {
		m, err := sink.NewMQTT(*mqttBroker, "neurolink", *mqttTopic)
		if err != nil {
			slog.Error("main: mqtt sink unavailable, continuing without it", "error", err)
		} else {
			sinks = append(sinks, m)
		}
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("main: metrics endpoint up", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				slog.Error("main: metrics server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := acquire.New(cfg.Serial, cfg.Signal.ADCMax)
	if err := source.Connect(ctx); err != nil {
		slog.Error("main: cannot open source", "error", err)
		return 1
	}

	if *warmupS > 0 {
		stats, err := source.Warmup(ctx, time.Duration(*warmupS*float64(time.Second)), cfg.Signal.SamplingRate)
		if err != nil {
			slog.Error("main: warmup failed", "error", err)
			source.Disconnect()
			return 1
		}
		if !stats.IsStable {
			slog.Warn("main: sample rate unstable, continuing anyway",
				"rate_mean", stats.RateMean,
				"expected", cfg.Signal.SamplingRate,
			)
		}
	}

	eng, err := engine.New(cfg, source, sink.NewMulti(sinks...), engine.Options{AsyncWorker: *worker})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	outcome := eng.Run(ctx, time.Duration(*durationS*float64(time.Second)))
	if outcome.Kind == engine.FatalError {
		slog.Error("main: run failed", "kind", outcome.ErrKind, "detail", outcome.Detail)
		return 1
	}
	slog.Info("main: run complete", "detail", outcome.Detail)
	return 0
}
