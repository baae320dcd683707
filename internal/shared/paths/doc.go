// Package paths provides the filesystem layout shared by the launcher and the
// processes it spawns.
//
// # Mailbox Layout
//
//	<cache>/clouddesk/mailbox/
//	  ├── task_data.json                       (active document)
//	  ├── task_data.json.notified_1735689600   (superseded copy)
//	  └── task_data.json.notified_1735689600.1 (second copy in the same second)
//
// # Spawn Targets
//
// Executables are located by trying, in order, the working directory, the
// directory of the running binary, that directory's parent, and any roots
// supplied by configuration. Scripts ending in .py or .sh are accepted when
// readable and are run through their interpreter.
//
//	dirs := paths.CandidateDirs(cfg.Supervisor.SearchRoots...)
//	path, tried, err := paths.FindExecutable("desktop_manager", dirs)
package paths
