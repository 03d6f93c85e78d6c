package teslameter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luhtfiimanal/go-teslameter/metrics"
)

const (
	averageCountCommand = "SENSE:AVERAGE:COUNT"
	fetchBufferQuery    = "FETC:BUFF:DC?"
	identityQuery       = "*IDN?"

	// tickMs is the unit of the averaging count, fixed by the hardware.
	tickMs = 10

	// defaultWallSlack is added to the requested duration to form the default
	// wall clock guard of a session.
	defaultWallSlack = 30 * time.Second
)

// Identity is the parsed *IDN? response.
type Identity struct {
	Manufacturer    string
	Model           string
	SerialNumber    string
	FirmwareVersion string
}

// ParseIdentity parses a "manufacturer,model,serial,firmware" response.
func ParseIdentity(response string) (Identity, error) {
	parts := strings.Split(strings.TrimSpace(response), ",")
	if len(parts) < 4 {
		return Identity{}, fmt.Errorf("unexpected identification %q", response)
	}
	return Identity{
		Manufacturer:    strings.TrimSpace(parts[0]),
		Model:           strings.TrimSpace(parts[1]),
		SerialNumber:    strings.TrimSpace(parts[2]),
		FirmwareVersion: strings.TrimSpace(parts[3]),
	}, nil
}

// Teslameter is a Lake Shore F41/F71 teslameter.
type Teslameter struct {
	*Instrument
	Identity Identity
}

// New wraps an open transport and identifies the instrument.
func New(t Transport, opts ...Option) (*Teslameter, error) {
	in := NewInstrument(t, opts...)
	idn, err := in.Query(identityQuery)
	if err != nil {
		return nil, err
	}
	identity, err := ParseIdentity(idn)
	if err != nil {
		return nil, err
	}
	in.log.Info("instrument identified",
		zap.String("model", identity.Model),
		zap.String("serial", identity.SerialNumber),
		zap.String("firmware", identity.FirmwareVersion))
	return &Teslameter{Instrument: in, Identity: identity}, nil
}

// BufferedOptions describes one buffered data session.
type BufferedOptions struct {
	// Seconds of data to collect, rounded to hundredths.
	Seconds float64
	// SampleRateMs sets the sample interval, a positive multiple of 10 ms.
	// Zero keeps the instrument's current setting.
	SampleRateMs int
	// Output receives a CSV copy of the samples when set.
	Output io.Writer
	// MaxPolls bounds the number of buffer fetches. Zero means unbounded.
	MaxPolls int
	// MaxWallTime bounds the session length. Zero means the requested
	// duration plus 30 seconds.
	MaxWallTime time.Duration
}

func (o BufferedOptions) validate() error {
	switch {
	case o.Seconds < 0 || math.IsNaN(o.Seconds) || math.IsInf(o.Seconds, 0):
		return fmt.Errorf("invalid duration %v", o.Seconds)
	case o.SampleRateMs < 0:
		return fmt.Errorf("negative sample rate %d ms", o.SampleRateMs)
	case o.SampleRateMs%tickMs != 0:
		return fmt.Errorf("sample rate %d ms is not a multiple of %d ms", o.SampleRateMs, tickMs)
	}
	return nil
}

// durationMs rounds seconds to hundredths from the exact binary value, with
// exact ties going to even. 0.015 is stored just below 0.015 and so rounds to
// 10 ms, not 20.
func durationMs(seconds float64) int64 {
	hundredths, _ := strconv.ParseFloat(strconv.FormatFloat(seconds, 'f', 2, 64), 64)
	return int64(math.Round(hundredths*100)) * 10
}

// BufferedData collects Seconds worth of samples from the instrument's batch
// buffer. Elapsed times are n*rate/1000 for the n-th sample regardless of
// polling latency. On error no samples are returned.
func (t *Teslameter) BufferedData(ctx context.Context, opts BufferedOptions) (samples []Sample, err error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	targetMs := durationMs(opts.Seconds)

	rate, err := t.sampleRate(opts.SampleRateMs)
	if err != nil {
		return nil, err
	}

	// Drain whatever an earlier session left behind
	if _, err := t.QueryNoCheck(fetchBufferQuery); err != nil {
		return nil, err
	}

	log := t.log.With(zap.String("session", uuid.NewString()))
	start := time.Now()

	var sink *CSVWriter
	if opts.Output != nil {
		if sink, err = NewCSVWriter(opts.Output); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		defer func() {
			if ferr := sink.Flush(); ferr != nil && err == nil {
				samples, err = nil, fmt.Errorf("flush output: %w", ferr)
			}
		}()
	}

	wall := opts.MaxWallTime
	if wall <= 0 {
		wall = time.Duration(targetMs)*time.Millisecond + defaultWallSlack
	}
	deadline := start.Add(wall)

	log.Info("buffered data session started",
		zap.Int64("duration_ms", targetMs),
		zap.Int("sample_rate_ms", rate))

	samples = make([]Sample, 0, expectedSamples(targetMs, rate))
	for polls := 0; ; polls++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("buffered data: %w", err)
		}
		if (opts.MaxPolls > 0 && polls >= opts.MaxPolls) || time.Now().After(deadline) {
			log.Warn("buffered data session expired",
				zap.Int("polls", polls),
				zap.Int("samples", len(samples)))
			return nil, fmt.Errorf("%w after %d polls with %d samples", ErrSessionExpired, polls, len(samples))
		}

		response, err := t.QueryNoCheck(fetchBufferQuery)
		if err != nil {
			return nil, err
		}
		records, ok := splitRecords(response)
		t.metrics.Poll(len(records) == 0)
		if !ok {
			continue
		}

		for _, raw := range records {
			rec, err := parseRecord(raw)
			if err != nil {
				t.metrics.Error(metrics.ErrorRecord)
				return nil, err
			}

			elapsedMs := int64(len(samples)+1) * int64(rate)
			s := rec.sample(float64(elapsedMs) / 1000)
			samples = append(samples, s)
			t.metrics.Samples(1)

			if sink != nil {
				if err := sink.Write(s); err != nil {
					return nil, fmt.Errorf("write output: %w", err)
				}
			}

			if elapsedMs >= targetMs {
				t.metrics.Session(time.Since(start).Seconds())
				log.Info("buffered data session complete",
					zap.Int("samples", len(samples)),
					zap.Int("polls", polls+1))
				return samples, nil
			}
		}
	}
}

// CaptureToFile runs BufferedData with output to name+".csv", replacing any
// existing file. The file is closed on every exit path.
func (t *Teslameter) CaptureToFile(ctx context.Context, name string, opts BufferedOptions) (samples []Sample, err error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	f, err := os.Create(name + ".csv")
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			samples, err = nil, cerr
		}
	}()

	opts.Output = f
	return t.BufferedData(ctx, opts)
}

// sampleRate applies or reads back the averaging count and returns the sample
// interval in milliseconds. ms has already been validated.
func (t *Teslameter) sampleRate(ms int) (int, error) {
	if ms > 0 {
		if err := t.Command(fmt.Sprintf("%s %d", averageCountCommand, ms/tickMs)); err != nil {
			return 0, err
		}
		return ms, nil
	}

	response, err := t.Query(averageCountCommand + "?")
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseFloat(strings.TrimSpace(response), 64)
	if err != nil {
		return 0, fmt.Errorf("parse averaging count %q: %w", response, err)
	}
	rate := int(math.Round(count * tickMs))
	if rate <= 0 {
		return 0, errors.New("instrument reported a non-positive averaging count")
	}
	return rate, nil
}

func expectedSamples(targetMs int64, rate int) int {
	n := targetMs/int64(rate) + 1
	if n > 1<<16 {
		n = 1 << 16
	}
	return int(n)
}
