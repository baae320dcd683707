// Package logging provides structured logging using uber/zap.
//
// Production mode writes JSON to stderr so that stdout stays free for child
// process output; development mode writes colored console lines.
//
// Every long-lived component takes a child logger:
//
//	logger, _ := logging.New(logging.Config{Level: "info", Process: "launcher"})
//	mlog := logger.Component("mailbox")
//	mlog.Info("document written", zap.String("path", path))
//	mlog.Warn("task count mismatch", zap.Int("declared", 3), zap.Int("actual", 2))
//
// Both servers mount LevelHandler at /log/level, so the level can be raised
// to debug on a running kiosk without a restart.
package logging
