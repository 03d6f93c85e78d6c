// Command teslameter captures buffered field data from a Lake Shore F41/F71
// teslameter and writes it as CSV.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	teslameter "github.com/luhtfiimanal/go-teslameter"
	"github.com/luhtfiimanal/go-teslameter/internal/config"
	"github.com/luhtfiimanal/go-teslameter/internal/logging"
	"github.com/luhtfiimanal/go-teslameter/metrics"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "teslameter:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, list, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log.Level)
	defer log.Sync()

	connect := teslameter.ConnectConfig{
		SerialNumber:  cfg.Instrument.SerialNumber,
		Port:          cfg.Instrument.Port,
		BaudRate:      cfg.Instrument.BaudRate,
		Timeout:       cfg.Instrument.Timeout,
		NoFlowControl: cfg.Instrument.NoFlowControl,
	}

	if list {
		ports, err := teslameter.FindPorts(connect)
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Printf("%s\t%s:%s\t%s\n", p.Name, p.VID, p.PID, p.SerialNumber)
		}
		return nil
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, log)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	meter, err := teslameter.Connect(connect, teslameter.WithLogger(log), teslameter.WithMetrics(collector))
	if err != nil {
		return err
	}
	defer meter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := teslameter.BufferedOptions{
		Seconds:      cfg.Capture.Seconds,
		SampleRateMs: cfg.Capture.SampleRateMs,
		MaxPolls:     cfg.Capture.MaxPolls,
		MaxWallTime:  cfg.Capture.MaxWallTime,
	}

	var samples []teslameter.Sample
	if cfg.Capture.Output != "" {
		samples, err = meter.CaptureToFile(ctx, cfg.Capture.Output, opts)
	} else {
		opts.Output = os.Stdout
		samples, err = meter.BufferedData(ctx, opts)
	}
	if err != nil {
		var perr *teslameter.ProtocolError
		if errors.As(err, &perr) {
			for _, e := range perr.Entries {
				log.Error("instrument error", zap.Int("code", e.Code), zap.String("message", e.Message))
			}
		}
		return err
	}

	log.Info("capture complete",
		zap.String("model", meter.Identity.Model),
		zap.String("serial", meter.Identity.SerialNumber),
		zap.Int("samples", len(samples)))
	return nil
}

// parseFlags loads the config file named by --config, then applies any flags
// set explicitly on the command line.
func parseFlags(args []string) (*config.Config, bool, error) {
	fs := pflag.NewFlagSet("teslameter", pflag.ContinueOnError)
	path := fs.StringP("config", "c", "", "YAML configuration file")
	list := fs.Bool("list", false, "list connected teslameters and exit")
	serialNumber := fs.String("serial", "", "instrument serial number")
	port := fs.StringP("port", "p", "", "serial device path")
	timeout := fs.Duration("timeout", 0, "read timeout per response")
	seconds := fs.Float64P("seconds", "s", 0, "seconds of data to capture")
	rate := fs.IntP("rate", "r", 0, "sample rate in ms, a multiple of 10 (0 keeps the instrument setting)")
	output := fs.StringP("output", "o", "", "output file name without .csv (default stdout)")
	level := fs.String("log-level", "", "debug, info, warn or error")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg := config.Default()
	if *path != "" {
		loaded, err := config.Load(*path)
		if err != nil {
			return nil, false, err
		}
		cfg = loaded
	}

	if fs.Changed("serial") {
		cfg.Instrument.SerialNumber = *serialNumber
	}
	if fs.Changed("port") {
		cfg.Instrument.Port = *port
	}
	if fs.Changed("timeout") {
		cfg.Instrument.Timeout = *timeout
	}
	if fs.Changed("seconds") {
		cfg.Capture.Seconds = *seconds
	}
	if fs.Changed("rate") {
		cfg.Capture.SampleRateMs = *rate
	}
	if fs.Changed("output") {
		cfg.Capture.Output = *output
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *level
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = *metricsAddr
	}
	return cfg, *list, cfg.Validate()
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}
