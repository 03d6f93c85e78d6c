// Package serial is a Linux-only, line-oriented serial port transport for
// request/response instruments.
//
// Reads are poll-driven and unbuffered apart from bytes left over after a
// delimiter. A read that sees no complete line within
// Config.ReadTimeout returns an empty string and a nil error, mirroring how
// most instrument drivers detect a silent device. Close unblocks a pending
// ReadLine through a self-pipe.
//
// This package does **not** support Windows.
package serial

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by ReadLine and WriteLine once the port is closed.
var ErrClosed = errors.New("serial: port closed")

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device      string
	BaudRate    int
	Delimiter   string        // read delimiter, default "\n"
	Newline     string        // appended by WriteLine, default "\n"
	ReadTimeout time.Duration // 0 blocks until a line or Close
	FlowControl bool          // RTS/CTS hardware handshake
}

// Port provides low-latency, killable, line-oriented access to a Linux serial
// port. Reads and writes may run on different goroutines; concurrent readers
// must be serialized by the caller.
type Port struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd

	pending []byte
}

// Open opens a serial port using the provided Config.
// The port is configured for raw, low-latency, non-buffered operation.
func Open(cfg Config) (*Port, error) {
	if cfg.Delimiter == "" {
		cfg.Delimiter = "\n"
	}
	if cfg.Newline == "" {
		cfg.Newline = "\n"
	}
	baud, err := baudToUnix(cfg.BaudRate)
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	if cfg.FlowControl {
		termios.Cflag |= unix.CRTSCTS
	} else {
		termios.Cflag &^= unix.CRTSCTS
	}

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	// VMIN=1, VTIME=0: timeouts are handled by poll, not the line discipline
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Back to blocking mode now that config is done
	if err := syscall.SetNonblock(fd, false); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &Port{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		done:   make(chan struct{}),
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string {
	return p.config.Device
}

// WriteLine writes line followed by the configured newline.
func (p *Port) WriteLine(line string) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	_, err := p.file.WriteString(line + p.config.Newline)
	return err
}

// ReadLine reads a single line without its delimiter. It returns "" and a nil
// error when ReadTimeout elapses before a full line arrives; bytes of an
// incomplete line are kept for the next call.
func (p *Port) ReadLine() (string, error) {
	if line, ok := p.takeLine(); ok {
		return line, nil
	}

	var deadline time.Time
	if p.config.ReadTimeout > 0 {
		deadline = time.Now().Add(p.config.ReadTimeout)
	}

	buf := make([]byte, 4096)
	for {
		wait := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", nil
			}
			wait = int(remaining / time.Millisecond)
			if wait == 0 {
				wait = 1
			}
		}

		// Wait for data, the kill signal or the deadline
		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, wait)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return "", err
		}

		select {
		case <-p.done:
			return "", ErrClosed
		default:
		}
		if n == 0 {
			continue
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			var b [1]byte
			unix.Read(p.pipeR, b[:])
			return "", ErrClosed
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := p.file.Read(buf)
			if err != nil {
				return "", err
			}
			p.pending = append(p.pending, buf[:n]...)
			if line, ok := p.takeLine(); ok {
				return line, nil
			}
		}
	}
}

// Flush discards everything received but not yet read, both in the kernel
// input queue and in the partial-line buffer.
func (p *Port) Flush() error {
	p.pending = p.pending[:0]
	if err := unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flush input: %w", err)
	}
	return nil
}

// Close closes the serial port and unblocks any pending ReadLine call.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		// Wake up poll using self-pipe
		if p.pipeW > 0 {
			unix.Write(p.pipeW, []byte{1})
		}
		if p.file != nil {
			err = p.file.Close()
		}
		if p.pipeR > 0 {
			unix.Close(p.pipeR)
		}
		if p.pipeW > 0 {
			unix.Close(p.pipeW)
		}
	})
	return err
}

func (p *Port) takeLine() (string, bool) {
	idx := bytes.Index(p.pending, []byte(p.config.Delimiter))
	if idx < 0 {
		return "", false
	}
	line := string(p.pending[:idx])
	p.pending = p.pending[idx+len(p.config.Delimiter):]
	return line, true
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 0:
		return unix.B115200, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
}
