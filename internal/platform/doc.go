// Package platform abstracts the OS-specific process and port inspection
// primitives the launcher needs: which pids listen on a port, whether a
// pid is alive, what command it runs, and how to kill a process tree.
// Build tags select the implementation; Native returns it.
package platform
