package teslameter

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/luhtfiimanal/go-teslameter/metrics"
)

const (
	// errorQuery is appended to checked instructions so the error buffer is
	// drained in the same round trip.
	errorQuery = ";:SYSTem:ERRor:ALL?"
	// noErrorReply is what errorQuery contributes to a clean response.
	noErrorReply = `;0,"No error"`
	noErrorText  = "No error"
)

// Transport is a line-oriented request/response channel. ReadLine returns ""
// with a nil error when its read timeout elapses. *serial.Port satisfies it.
type Transport interface {
	WriteLine(line string) error
	ReadLine() (string, error)
	Flush() error
	Close() error
}

// Option configures an Instrument.
type Option func(*Instrument)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(in *Instrument) {
		if log != nil {
			in.log = log
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(in *Instrument) { in.metrics = c }
}

// Instrument is the SCPI protocol engine shared by all XIP instruments. It
// owns its transport. Round trips are serialized, so an Instrument may be
// used from several goroutines.
type Instrument struct {
	mu        sync.Mutex
	transport Transport
	log       *zap.Logger
	metrics   *metrics.Collector
}

// NewInstrument wraps an already open transport.
func NewInstrument(t Transport, opts ...Option) *Instrument {
	in := &Instrument{
		transport: t,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Command sends an instruction and verifies that the instrument's error
// buffer is empty afterwards.
func (in *Instrument) Command(instruction string) error {
	response, err := in.roundTrip(metrics.KindCommand, instruction+errorQuery)
	if err != nil {
		return err
	}
	return in.check(instruction, response)
}

// CommandNoCheck sends an instruction without waiting for any response.
func (in *Instrument) CommandNoCheck(instruction string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.metrics.RoundTrip(metrics.KindCommand)
	in.log.Debug("scpi write", zap.String("instruction", instruction))
	if err := in.transport.WriteLine(instruction); err != nil {
		in.metrics.Error(metrics.ErrorConnection)
		return &ConnectionError{Op: "write", Msg: "transport failure", Err: err}
	}
	return nil
}

// Query sends an instruction, verifies the error buffer and returns the
// payload with the error buffer reply and line terminator removed.
func (in *Instrument) Query(instruction string) (string, error) {
	response, err := in.roundTrip(metrics.KindQuery, instruction+errorQuery)
	if err != nil {
		return "", err
	}
	if err := in.check(instruction, response); err != nil {
		return "", err
	}
	response = strings.ReplaceAll(response, noErrorReply, "")
	return strings.TrimRight(response, " \t\r\n"), nil
}

// QueryNoCheck sends an instruction and returns the raw response line with
// its terminator removed. An empty string means the read timed out.
func (in *Instrument) QueryNoCheck(instruction string) (string, error) {
	response, err := in.roundTrip(metrics.KindQuery, instruction)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(response, " \t\r\n"), nil
}

// Close releases the transport.
func (in *Instrument) Close() error {
	// Not under mu: a round trip may be blocked in ReadLine, and closing the
	// transport is what unblocks it.
	return in.transport.Close()
}

func (in *Instrument) roundTrip(kind, line string) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.metrics.RoundTrip(kind)
	in.log.Debug("scpi write", zap.String("instruction", line))
	if err := in.transport.WriteLine(line); err != nil {
		in.metrics.Error(metrics.ErrorConnection)
		return "", &ConnectionError{Op: "write", Msg: "transport failure", Err: err}
	}
	response, err := in.transport.ReadLine()
	if err != nil {
		in.metrics.Error(metrics.ErrorConnection)
		return "", &ConnectionError{Op: "read", Msg: "transport failure", Err: err}
	}
	in.log.Debug("scpi read", zap.String("response", response))
	return response, nil
}

// check is the error buffer test applied to every checked response.
func (in *Instrument) check(instruction, response string) error {
	if strings.TrimSpace(response) == "" {
		in.metrics.Error(metrics.ErrorConnection)
		return &ConnectionError{Op: instruction, Msg: "communication timed out"}
	}
	if strings.Contains(response, noErrorText) {
		return nil
	}

	segments := strings.Split(strings.TrimRight(response, "\r\n"), ";")
	report := segments[len(segments)-1]
	in.metrics.Error(metrics.ErrorProtocol)
	in.log.Warn("instrument reported error",
		zap.String("instruction", instruction),
		zap.String("report", report))
	return &ProtocolError{
		Instruction: instruction,
		Report:      report,
		Entries:     ParseErrorReport(report),
	}
}
