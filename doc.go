// Package teslameter drives Lake Shore F41 and F71 teslameters over their USB
// serial port.
//
// Every checked instruction carries an error buffer query in the same round
// trip, so a failure surfaces as a *ProtocolError from the call that caused
// it, and a silent instrument surfaces as a *ConnectionError.
//
// Buffered data sessions poll the instrument's batch buffer and return one
// Sample per record. Elapsed time is derived from the sample rate and the
// sample's position, not from the wall clock.
//
// This package does **not** support Windows.
//
// Example usage:
//
//	meter, err := teslameter.Connect(teslameter.ConnectConfig{
//	    SerialNumber: "LSA12AB",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer meter.Close()
//
//	fmt.Println(meter.Identity.Model, meter.Identity.FirmwareVersion)
//
//	// Ten seconds of data at 100 Hz, mirrored to field.csv
//	samples, err := meter.CaptureToFile(ctx, "field", teslameter.BufferedOptions{
//	    Seconds:      10,
//	    SampleRateMs: 10,
//	})
//	if err != nil {
//	    var perr *teslameter.ProtocolError
//	    if errors.As(err, &perr) {
//	        log.Fatalf("instrument rejected the request: %s", perr.Report)
//	    }
//	    log.Fatal(err)
//	}
//	fmt.Println(len(samples), "samples")
package teslameter
