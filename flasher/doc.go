// Package flasher implements the ECU reflashing executor: it takes a
// declarative flash script plus parsed firmware images and drives a
// sequential, checksum-verified transfer over a UDS request/response
// transport.
//
// # Overview
//
// A flash run proceeds through fixed phases:
//   - Load every configured firmware file into per-segment variables
//     (address, size, data, checksum)
//   - Announce the progress range from a step-unit estimate
//   - Execute the script's steps in order, splitting TransferData steps
//     into sequenced frames and validating every response
//   - Finish with a terminal outcome: success, failed, or stopped
//
// # Basic Usage
//
//	cfg, err := flasher.LoadConfig("flash.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	exec := flasher.New(transport, cfg, map[string]string{
//	    "app": "build/app.s19",
//	})
//
//	go exec.Run(context.Background())
//
//	for ev := range exec.Events() {
//	    switch ev := ev.(type) {
//	    case flasher.LogEvent:
//	        fmt.Printf("[%s] %s\n", ev.Source, ev.Message)
//	    case flasher.RangeEvent:
//	        bar.SetTotal(ev.Total)
//	    case flasher.ProgressEvent:
//	        bar.Set(ev.Current)
//	    case flasher.FinishEvent:
//	        fmt.Println("outcome:", ev.Outcome)
//	    }
//	}
//
// # External Data Tokens
//
// Send steps reference loaded firmware variables through tokens of the
// form "<file>_<field>[<index>]", where field is one of data, addr, size,
// or checksum and index selects the file's segment. Numeric fields are
// serialized big-endian with the configured parameter widths. Unresolvable
// tokens contribute no bytes; the truncated payload is then caught by the
// step's response validation rather than aborting resolution.
//
// # Cancellation
//
// Stop requests are cooperative: Stop (or context cancellation) is
// observed at the file, step, and frame loop boundaries. An in-flight
// request/response exchange finishes first; the transport's timeout is
// the only backstop for a hung exchange.
//
// # Threading
//
// Run executes on whatever goroutine calls it; all feedback flows through
// the single event channel, so UI or control code consumes events on its
// own loop without sharing state with the run.
package flasher
