package teslameter

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

// fakeTransport answers each written line through reply. An empty reply
// queues nothing, so the next ReadLine times out.
type fakeTransport struct {
	mu      sync.Mutex
	reply   func(line string) string
	writes  []string
	queue   []string
	reads   int
	flushes int
	closed  bool
	readErr error
}

func (f *fakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.writes = append(f.writes, line)
	if f.reply != nil {
		if r := f.reply(line); r != "" {
			f.queue = append(f.queue, r)
		}
	}
	return nil
}

func (f *fakeTransport) ReadLine() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return "", f.readErr
	}
	if len(f.queue) == 0 {
		return "", nil
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r, nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	f.queue = nil
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// simulate serves SCPI lines written to the slave end of a pty from the
// master end until the master is closed.
func simulate(t *testing.T, handle func(line string) string) (master, slave *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	go func() {
		scanner := bufio.NewScanner(master)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			if r := handle(line); r != "" {
				if _, err := master.Write([]byte(r + "\r\n")); err != nil {
					return
				}
			}
		}
	}()
	return master, slave
}
