// Package taskapi is the client for the remote task API that holds the
// authoritative task list.
//
// Calls go through resty on top of a retryablehttp transport, are rate
// limited, and share one circuit breaker so a dead API fails fast. The bearer
// credential returned by Authenticate is kept as an oauth2.Token and attached
// to every later call until it expires or the server answers 401.
//
//	client := taskapi.NewClient(taskapi.Config{BaseURL: cfg.Remote.BaseURL})
//	if _, err := client.Authenticate(ctx, *user.Credentials); err != nil {
//	    // fall back to the mailbox snapshot
//	}
//	tasks, err := client.FetchTasks(ctx, "")
package taskapi
