package peer

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// pionLoggerFactory bridges pion's logging into slog, so the webrtc stack's
// internal logs share the process-wide handler and format. Trace maps onto
// Debug; slog has no lower level.
type pionLoggerFactory struct {
	base *slog.Logger
}

func (f pionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: f.base.With("scope", scope)}
}

type pionLogger struct {
	log *slog.Logger
}

func (l *pionLogger) Trace(msg string) { l.log.Debug(msg) }
func (l *pionLogger) Tracef(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Debug(msg string) { l.log.Debug(msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Info(msg string) { l.log.Info(msg) }
func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Warn(msg string) { l.log.Warn(msg) }
func (l *pionLogger) Warnf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *pionLogger) Error(msg string) { l.log.Error(msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
