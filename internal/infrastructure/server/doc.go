// Package server wires the components of each clouddesk process behind its
// local HTTP listener.
//
// Two processes are built from the same base (logger, metrics, tracer,
// mailbox store and the gin middleware chain):
//
//   - Launcher: process supervisor, schema normalizer and handoff
//     controller. Serves /upload, /status, /get-tasks, /session/* and
//     /stream, and watches the mailbox for new producer documents.
//   - Agent: remote task API client and task synchronizer for the desktop
//     session. Serves /tasks/*, /get-tasks and /stream, and forwards
//     /session/* to the launcher.
//
// Usage:
//
//	l, err := server.NewLauncher(cfg)
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//	return l.Run(ctx)
package server
