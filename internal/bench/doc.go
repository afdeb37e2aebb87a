// Package bench is the round-trip measurement engine.
//
// A [Harness] owns one publisher on the outbound topic and one subscriber on
// the inbound topic. [New] measures the clock overhead once; every [Harness.Run]
// then waits (first run only, or after [Harness.Rearm]) for the transport to
// report a matched endpoint, and performs the requested number of round trips:
//
//	h, err := bench.New(ctx, bench.Options{Participant: p})
//	ts, err := h.Run(ctx, 1024, 10000)
//
// Each round trip increments the sequence number, stamps the send time and
// publishes. The [Correlator], running on the transport's delivery goroutine,
// stamps the arrival, checks the echo against the message in flight and
// appends arrival - send - overhead to the run's samples before handing the
// outcome back to the driver. Only one message is in flight at a time.
//
// A run that does not record every sample fails with a [RunError] wrapping one
// of the package's sentinel errors. Successful runs are appended to
// [Harness.History] in execution order.
package bench
