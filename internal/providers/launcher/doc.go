// Package launcher is the desktop agent's client for the launcher's local
// control routes.
//
// The agent reports readiness once its first task view is up and asks the
// launcher to hand the screen back when the operator leaves the desktop:
//
//	c := launcher.NewClient(launcher.Config{BaseURL: cfg.Agent.LauncherURL})
//	_ = c.DesktopReady(ctx)
//	_ = c.ExitDesktop(ctx, true)
package launcher
