package logger

import "github.com/sirupsen/logrus"

// LogrusLogger adapts a *logrus.Logger to DebugLogger, for deployments that
// want structured, leveled output instead of the bare stdlib logger.
type LogrusLogger struct {
	Log *logrus.Logger
}

func NewLogrusLogger() *LogrusLogger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.DebugLevel)
	return &LogrusLogger{Log: l}
}

func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.Log.Debugf(format, args...)
}
func (l *LogrusLogger) Infof(format string, args ...interface{}) {
	l.Log.Infof(format, args...)
}
func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.Log.Errorf(format, args...)
}
