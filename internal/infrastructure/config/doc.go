// Package config provides 12-factor configuration for the launcher.
//
// Values are layered: built-in defaults, then an optional TOML or YAML file
// named by CLOUDDESK_CONFIG, then environment variables. Each layer only
// overrides the keys it sets.
//
// Configuration Sections:
//   - Server: local inbound listener (port, host)
//   - Agent: desktop agent listener and the launcher URL it reports to
//   - Mailbox: hand-off directory, file name, watch debounce
//   - Remote: task API base URL, login type, timeout, retries, rate
//   - Sync: refresh interval and download timeout
//   - Supervisor: poll interval, termination grace, search roots
//   - Executables: spawn targets in fallback order
//   - Logging: log level and output format
//   - RateLimit: per-IP inbound rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Listening on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST
//   - AGENT_PORT, AGENT_HOST, LAUNCHER_URL
//   - MAILBOX_DIR, MAILBOX_FILE, MAILBOX_DEBOUNCE, MAILBOX_ARCHIVE_ON_PURGE
//   - REMOTE_API_URL, REMOTE_LOGIN_TYPE, REMOTE_TIMEOUT, REMOTE_RETRIES, REMOTE_RPS
//   - SYNC_INTERVAL, DOWNLOAD_TIMEOUT
//   - SUPERVISOR_POLL, SUPERVISOR_GRACE, DESKTOP_READY_TIMEOUT, SUPERVISOR_SEARCH_ROOTS
//   - BROWSER_TARGETS, DESKTOP_TARGETS, TRANSITION_TARGETS
//   - LOG_LEVEL, LOG_DEV, LOG_FILE
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
