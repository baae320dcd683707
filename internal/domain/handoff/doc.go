// Package handoff implements the session handoff controller: the state
// machine that decides whether the browser or the desktop session owns the
// screen.
//
//	BrowserActive ──document──▶ TransitioningToDesktop ──ready──▶ DesktopActive
//	      ▲                                                          │
//	      └──────── TransitioningToBrowser ◀──exit desktop───────────┘
//
// Any state moves to Exiting on Quit, which terminates every owned process
// and purges the mailbox.
//
// Transitions are serialized by one lock. A trigger that arrives while a
// handoff is in flight is queued (depth one, latest wins) and replayed when
// the controller settles. Documents are remembered by id so a duplicate
// file event never spawns twice.
package handoff
