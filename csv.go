package teslameter

import (
	"bufio"
	"io"
	"strings"
)

// CSVWriter writes samples as comma separated rows under a SampleHeader
// header line. Values are written verbatim, without quoting.
type CSVWriter struct {
	w *bufio.Writer
}

// NewCSVWriter writes the header row to w and returns the writer.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: bufio.NewWriter(w)}
	if err := cw.writeRow(SampleHeader); err != nil {
		return nil, err
	}
	return cw, nil
}

// Write appends one sample row.
func (c *CSVWriter) Write(s Sample) error {
	return c.writeRow(s.Values())
}

// Flush writes any buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	return c.w.Flush()
}

func (c *CSVWriter) writeRow(values []string) error {
	if _, err := c.w.WriteString(strings.Join(values, ",")); err != nil {
		return err
	}
	return c.w.WriteByte('\n')
}
