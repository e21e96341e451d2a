// Package process provides utilities for managing external process lifecycle.
//
// It defines BaseProcess for common process start/stop behavior, the Stoppable
// interface, StopCloseAndNil for atomic cleanup, WaitReady and WaitReachable
// for polling-based readiness checks, and LogFiles for managing process
// stdout/stderr log files.
//
// Started processes are detached into their own session: they deliberately
// survive the launching process so a launcher restart does not take the
// running application down with it.
package process
