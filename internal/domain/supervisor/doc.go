// Package supervisor spawns the browser, transition and desktop processes,
// watches their liveness and tears them down with escalating force.
//
// Targets are located by name across the working directory, the binary's
// directory, its parent and configured roots. A missing or unstartable
// target yields a SpawnError listing every path tried; the supervisor does
// not fall back on its own.
//
// Terminate sends SIGTERM to the child's process group, waits the grace
// period, then sends SIGKILL. It is a no-op on a process that has already
// exited.
package supervisor
