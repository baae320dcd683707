// Package tasksync keeps the desktop session's task list in step with the
// remote task API.
//
// Each refresh cycle walks Idle → Authenticating → Fetching and ends in
// Success or Fallback. Success replaces the displayed list and writes a
// cache snapshot to the mailbox. Fallback shows whatever the mailbox last
// held, or an explicit "no tasks" state when it holds nothing.
//
// Cycles run on a fixed timer, on RequestRefresh, and right after Submit.
// The focused task is tracked by id; only Advance or the focused task
// leaving the active set moves it.
package tasksync
