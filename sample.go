package teslameter

import (
	"strconv"
	"strings"
)

// Batch buffer wire format.
const (
	recordSeparator = ";"
	// Sub-field delimiters inside one record: date T hh:mm:ss+zh:zm,mag,x,y,z[,setpoint],state
	fieldDelimiters = "T:+,"

	// fullRecordFields is a record from an instrument with field control.
	fullRecordFields = 12
	// shortRecordFields is a record without the field control set point.
	shortRecordFields = 11

	noSetPoint = "0"
)

// SampleHeader names the Sample fields in output order.
var SampleHeader = []string{
	"time elapsed", "date", "hour", "minute", "second",
	"time zone hour", "time zone minute",
	"magnitude", "x", "y", "z",
	"field control set point", "input state",
}

// Sample is one buffered field reading. ElapsedTime is synthesized from the
// sample's position in the session and the sample rate; the remaining fields
// are the instrument's text verbatim.
type Sample struct {
	ElapsedTime          float64
	Date                 string
	Hour                 string
	Minute               string
	Second               string
	TimeZoneHour         string
	TimeZoneMinute       string
	Magnitude            string
	X                    string
	Y                    string
	Z                    string
	FieldControlSetPoint string
	InputState           string
}

// Values returns the sample as 13 strings in SampleHeader order.
func (s Sample) Values() []string {
	return []string{
		formatElapsed(s.ElapsedTime),
		s.Date, s.Hour, s.Minute, s.Second,
		s.TimeZoneHour, s.TimeZoneMinute,
		s.Magnitude, s.X, s.Y, s.Z,
		s.FieldControlSetPoint, s.InputState,
	}
}

// Field parses magnitude and the three axis components.
func (s Sample) Field() (magnitude, x, y, z float64, err error) {
	out := [4]float64{}
	for i, raw := range []string{s.Magnitude, s.X, s.Y, s.Z} {
		if out[i], err = strconv.ParseFloat(raw, 64); err != nil {
			return 0, 0, 0, 0, err
		}
	}
	return out[0], out[1], out[2], out[3], nil
}

// record is a normalized batch buffer record: always the full shape.
type record [fullRecordFields]string

// parseRecord splits one raw record on the field delimiters and normalizes it
// to the full shape. A short record gets "0" as set point, keeping the input
// state last.
func parseRecord(raw string) (record, error) {
	var r record
	fields := splitFields(raw)
	switch len(fields) {
	case fullRecordFields:
		copy(r[:], fields)
	case shortRecordFields:
		copy(r[:], fields[:shortRecordFields-1])
		r[fullRecordFields-2] = noSetPoint
		r[fullRecordFields-1] = fields[shortRecordFields-1]
	default:
		return r, &RecordError{Record: raw, Fields: len(fields)}
	}
	return r, nil
}

func (r record) sample(elapsed float64) Sample {
	return Sample{
		ElapsedTime:          elapsed,
		Date:                 r[0],
		Hour:                 r[1],
		Minute:               r[2],
		Second:               r[3],
		TimeZoneHour:         r[4],
		TimeZoneMinute:       r[5],
		Magnitude:            r[6],
		X:                    r[7],
		Y:                    r[8],
		Z:                    r[9],
		FieldControlSetPoint: r[10],
		InputState:           r[11],
	}
}

// splitFields splits on any delimiter, keeping empty fields.
func splitFields(raw string) []string {
	fields := make([]string, 0, fullRecordFields)
	start := 0
	for i := 0; i < len(raw); i++ {
		if strings.IndexByte(fieldDelimiters, raw[i]) >= 0 {
			fields = append(fields, raw[start:i])
			start = i + 1
		}
	}
	return append(fields, raw[start:])
}

// splitRecords splits a batch response into raw records. ok is false when the
// response holds no record separator at all.
func splitRecords(response string) (records []string, ok bool) {
	if !strings.Contains(response, recordSeparator) {
		return nil, false
	}
	trimmed := strings.TrimRight(response, recordSeparator)
	if trimmed == "" {
		return nil, true
	}
	return strings.Split(trimmed, recordSeparator), true
}

func formatElapsed(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
