package serial

import (
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openPair(t *testing.T, timeout time.Duration) (*os.File, *Port) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err := Open(Config{
		Device:      slave.Name(),
		BaudRate:    115200,
		ReadTimeout: timeout,
	})
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })
	return master, port
}

func TestPort_BasicRead(t *testing.T) {
	master, port := openPair(t, time.Second)

	_, err := master.Write([]byte("hello\n"))
	require.NoError(t, err)

	line, err := port.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "hello", line)
}

func TestPort_ReadKeepsRemainder(t *testing.T) {
	master, port := openPair(t, time.Second)

	// Two responses in one burst, the second split across writes
	_, err := master.Write([]byte("0,\"No error\"\r\nLSCI,F7"))
	require.NoError(t, err)

	line, err := port.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "0,\"No error\"\r", line)

	_, err = master.Write([]byte("1,1234,1.0\n"))
	require.NoError(t, err)

	line, err = port.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "LSCI,F71,1234,1.0", line)
}

func TestPort_ReadTimeoutReturnsEmpty(t *testing.T) {
	_, port := openPair(t, 50*time.Millisecond)

	start := time.Now()
	line, err := port.ReadLine()
	require.NoError(t, err)
	require.Empty(t, line)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPort_WriteLine(t *testing.T) {
	master, port := openPair(t, time.Second)

	require.NoError(t, port.WriteLine("*IDN?"))

	buf := make([]byte, len("*IDN?\n"))
	n, err := master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, "*IDN?\n", string(buf))
}

func TestPort_Flush(t *testing.T) {
	master, port := openPair(t, 200*time.Millisecond)

	_, err := master.Write([]byte("stale\n"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, port.Flush())

	_, err = master.Write([]byte("fresh\n"))
	require.NoError(t, err)

	line, err := port.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "fresh", line)
}

func TestPort_CloseUnblocksRead(t *testing.T) {
	_, port := openPair(t, 0)

	done := make(chan error, 1)
	go func() {
		_, err := port.ReadLine()
		done <- err
	}()

	// Give the goroutine a chance to block in poll
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for ReadLine to exit after Close")
	}

	// Subsequent calls are no-ops
	require.NoError(t, port.Close())
	require.ErrorIs(t, port.WriteLine("x"), ErrClosed)
}

func TestPort_ErrorOnDisconnect(t *testing.T) {
	master, port := openPair(t, time.Second)

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	_, err := port.ReadLine()
	require.Error(t, err)
}

func TestOpen_RejectsUnknownBaud(t *testing.T) {
	_, err := Open(Config{Device: "/dev/null", BaudRate: 1234})
	require.Error(t, err)
}
