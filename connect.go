package teslameter

import (
	"errors"
	"strconv"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/luhtfiimanal/go-teslameter/serial"
)

// usbID is a USB vendor/product identifier pair.
type usbID struct {
	vid, pid uint16
}

// teslameterIDs are the F41 and F71 USB identifiers.
var teslameterIDs = []usbID{
	{0x1FB9, 0x0405},
	{0x1FB9, 0x0406},
}

const (
	defaultBaudRate = 115200
	defaultTimeout  = 2 * time.Second
	// settleDelay is how long a fresh connection is left alone before stale
	// input is discarded.
	settleDelay = 100 * time.Millisecond
)

// PortLister enumerates serial ports with their USB details.
type PortLister func() ([]*enumerator.PortDetails, error)

// ConnectConfig selects and configures the instrument to connect to. The
// zero value connects to the first teslameter found.
type ConnectConfig struct {
	// SerialNumber restricts discovery to one instrument.
	SerialNumber string
	// Port restricts discovery to one device path, e.g. /dev/ttyACM0.
	Port string

	BaudRate      int
	Timeout       time.Duration
	NoFlowControl bool

	// Lister overrides port enumeration.
	Lister PortLister
}

func (c *ConnectConfig) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = defaultBaudRate
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.Lister == nil {
		c.Lister = enumerator.GetDetailedPortsList
	}
}

// FindPorts returns the enumerated ports that match the teslameter USB
// identifiers and the Port and SerialNumber filters, in enumeration order.
func FindPorts(cfg ConnectConfig) ([]*enumerator.PortDetails, error) {
	cfg.applyDefaults()

	ports, err := cfg.Lister()
	if err != nil {
		return nil, &ConnectionError{Op: "discover", Msg: "port enumeration failed", Err: err}
	}

	var matches []*enumerator.PortDetails
	for _, p := range ports {
		if !isTeslameter(p) {
			continue
		}
		if cfg.Port != "" && p.Name != cfg.Port {
			continue
		}
		if cfg.SerialNumber != "" && p.SerialNumber != cfg.SerialNumber {
			continue
		}
		matches = append(matches, p)
	}
	return matches, nil
}

// Connect discovers a teslameter, opens its port and identifies it.
func Connect(cfg ConnectConfig, opts ...Option) (*Teslameter, error) {
	cfg.applyDefaults()

	candidates, err := FindPorts(cfg)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, p := range candidates {
		port, err := serial.Open(serial.Config{
			Device:      p.Name,
			BaudRate:    cfg.BaudRate,
			ReadTimeout: cfg.Timeout,
			FlowControl: !cfg.NoFlowControl,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := settle(port); err != nil {
			port.Close()
			errs = append(errs, err)
			continue
		}

		t, err := New(port, opts...)
		if err != nil {
			port.Close()
			return nil, err
		}
		t.log.Info("connected", zap.String("port", p.Name))
		return t, nil
	}

	return nil, &ConnectionError{
		Op:  "connect",
		Msg: "no instrument found with given parameters",
		Err: errors.Join(errs...),
	}
}

// settle sends a bare line break and discards anything a prior session left
// in the input queue.
func settle(t Transport) error {
	if err := t.WriteLine(""); err != nil {
		return err
	}
	time.Sleep(settleDelay)
	return t.Flush()
}

func isTeslameter(p *enumerator.PortDetails) bool {
	if p == nil || !p.IsUSB {
		return false
	}
	vid, err := strconv.ParseUint(p.VID, 16, 16)
	if err != nil {
		return false
	}
	pid, err := strconv.ParseUint(p.PID, 16, 16)
	if err != nil {
		return false
	}
	for _, id := range teslameterIDs {
		if id.vid == uint16(vid) && id.pid == uint16(pid) {
			return true
		}
	}
	return false
}
