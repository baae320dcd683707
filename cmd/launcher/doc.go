// Package main is the clouddesk launcher.
//
// The launcher owns the screen. It starts the browser session, accepts
// producer documents on its local listener, and hands the screen to the
// desktop session when a document names a role:
//
//	Producer --POST /upload--> mailbox file --watch--> handoff controller
//	                                                      ├── browser_session
//	                                                      ├── transition_screen
//	                                                      └── desktop_manager --auto-open-tasks
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - An optional static file via -config or CLOUDDESK_CONFIG
//   - CLI flags (override both)
//
// Usage:
//
//	./launcher -port 8765 -mailbox /var/lib/clouddesk/mailbox
//
//	# Development mode (console logs, debug level)
//	./launcher -dev
//
// Signals:
//   - SIGINT, SIGTERM: terminate every child session, purge the mailbox, exit
package main
