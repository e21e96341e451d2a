// Package netutil selects listen ports for launched processes.
// Its central type, PortRegistry, scans a configured port range with bind
// probes and tracks reserved ports across the process to prevent duplicate
// selection from the TOCTOU race between concurrent launches. Coordination
// with other processes happens through port lock files, not here.
package netutil
