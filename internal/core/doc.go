// Package core implements the launch state machine: pick a listen port,
// spawn the application process detached, poll until it is reachable, then
// persist a port lock claiming the port for this instance. It ties together
// the netutil port registry, the platform capabilities, the portlock
// records, and the process lifecycle helpers.
package core
