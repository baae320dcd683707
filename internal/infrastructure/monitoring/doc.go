/*
Package monitoring provides Prometheus metrics for the launcher.

# Overview

Metrics cover the inbound HTTP surface, the mailbox, remote task sync, the
process supervisor and the handoff controller. Each Metrics value owns its
own registry unless one is injected, so tests can create as many as they
like without duplicate registration panics.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", monitoring.Handler(metrics))

	timer := monitoring.NewTimer()
	// ... sync ...
	metrics.RecordSync("success", timer.Elapsed(), len(tasks))
*/
package monitoring
