// Package main is the clouddesk desktop agent.
//
// The launcher spawns the agent alongside the desktop session. The agent
// keeps the operator's task list fresh from the remote task API, falls back
// to the last mailbox document when the API is unreachable, and serves the
// list to the desktop UI over /tasks and /stream.
//
// Flags:
//   - -auto-open-tasks: refresh right away instead of on the first timer tick
//   - -backup: archive existing mailbox backups before the first refresh
//   - -restore: reinstate the newest mailbox backup before the first refresh
//   - -exit-mode=terminate|keep: on exit, ask the launcher to return to the
//     browser and either stop or keep the desktop session
//
// Usage:
//
//	./desktop-agent -auto-open-tasks -exit-mode terminate
//
// Signals:
//   - SIGINT, SIGTERM: stop syncing, apply -exit-mode, exit
package main
