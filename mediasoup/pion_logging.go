package mediasoup

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/pion/logging"
)

// pionLeveledLogger adapts a logr.Logger to pion/logging's LeveledLogger,
// the interface the teacher's dependency set already carries (SPEC_FULL.md
// §2): the Worker's stdout/stderr scanner writes worker subprocess log
// lines through it instead of hand-rolling another logging facade.
type pionLeveledLogger struct {
	logger logr.Logger
}

func newPionLeveledLogger(logger logr.Logger) logging.LeveledLogger {
	return &pionLeveledLogger{logger: logger}
}

func (l *pionLeveledLogger) Trace(msg string)                          { l.logger.V(1).Info(msg) }
func (l *pionLeveledLogger) Tracef(format string, args ...interface{}) { l.Trace(fmt.Sprintf(format, args...)) }
func (l *pionLeveledLogger) Debug(msg string)                          { l.logger.V(1).Info(msg) }
func (l *pionLeveledLogger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *pionLeveledLogger) Info(msg string)                           { l.logger.Info(msg) }
func (l *pionLeveledLogger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l *pionLeveledLogger) Warn(msg string)                           { l.logger.Info("warn: " + msg) }
func (l *pionLeveledLogger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *pionLeveledLogger) Error(msg string)                          { l.logger.Error(fmt.Errorf("%s", msg), "worker stderr") }
func (l *pionLeveledLogger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }
