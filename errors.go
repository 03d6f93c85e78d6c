package teslameter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSessionExpired is returned when a buffered data session hits its poll
// or wall clock guard before collecting the requested duration.
var ErrSessionExpired = errors.New("buffered data session expired")

// ConnectionError reports that the instrument could not be reached: no
// matching device, a transport failure, or an empty (timed out) response.
type ConnectionError struct {
	Op  string
	Msg string
	Err error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ErrorEntry is one (code, message) pair drained from the error buffer.
type ErrorEntry struct {
	Code    int
	Message string
}

// ProtocolError reports that the instrument's error buffer was not empty after
// a checked instruction.
type ProtocolError struct {
	Instruction string

	// Report is the final ';' segment of the response: the raw error buffer.
	Report  string
	Entries []ErrorEntry
}

func (e *ProtocolError) Error() string {
	return "scpi command error: " + e.Report
}

// RecordError reports a batch buffer record whose field count matches
// neither record shape.
type RecordError struct {
	Record string
	Fields int
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("malformed record %q: %d fields, want %d or %d", e.Record, e.Fields, shortRecordFields, fullRecordFields)
}

// ParseErrorReport splits an error buffer response such as
// `-113,"Undefined header",-222,"Data out of range"` into entries. Text that
// does not follow the code,"message" shape is returned as a single entry with
// code 0 and the raw text as message.
func ParseErrorReport(report string) []ErrorEntry {
	rest := strings.TrimSpace(report)
	var entries []ErrorEntry
	for rest != "" {
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			break
		}
		code, err := strconv.Atoi(strings.TrimSpace(rest[:comma]))
		if err != nil {
			break
		}
		rest = strings.TrimSpace(rest[comma+1:])
		if !strings.HasPrefix(rest, `"`) {
			break
		}
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			break
		}
		entries = append(entries, ErrorEntry{Code: code, Message: rest[1 : end+1]})
		rest = strings.TrimSpace(rest[end+2:])
		rest = strings.TrimPrefix(rest, ",")
	}
	if rest != "" || len(entries) == 0 {
		return []ErrorEntry{{Message: strings.TrimSpace(report)}}
	}
	return entries
}
