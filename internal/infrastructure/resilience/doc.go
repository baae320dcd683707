/*
Package resilience provides a circuit breaker for calls to the remote task API.

While the remote side is failing the breaker opens and calls fail fast with
ErrCircuitOpen, letting the synchronizer drop straight to its cached tasks
instead of waiting out request timeouts.

# Usage

	breaker := resilience.New("task-api", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	tasks, err := resilience.Call(ctx, breaker, func(ctx context.Context) ([]Task, error) {
		return client.fetch(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open
*/
package resilience
