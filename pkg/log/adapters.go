package log

import (
	"fmt"
	stdlog "log"
	"strings"
)

// StdLogger wraps logger in a standard library *log.Logger that writes at
// level. http.Server.ErrorLog is the main consumer.
func StdLogger(logger Logger, level Level) *stdlog.Logger {
	return stdlog.New(&levelWriter{logger: logger, level: level}, "", 0)
}

type levelWriter struct {
	logger Logger
	level  Level
}

func (w *levelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch w.level {
	case DebugLevel:
		w.logger.Debug(msg)
	case WarnLevel:
		w.logger.Warn(msg)
	case ErrorLevel:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}

// Printf adapts a Logger to printf-style sinks such as badger's logger.
type Printf struct {
	Logger Logger
	Prefix string
}

func (p Printf) Errorf(format string, args ...interface{}) {
	p.Logger.Error(p.Prefix + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p Printf) Warningf(format string, args ...interface{}) {
	p.Logger.Warn(p.Prefix + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p Printf) Infof(format string, args ...interface{}) {
	p.Logger.Debug(p.Prefix + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p Printf) Debugf(format string, args ...interface{}) {
	p.Logger.Debug(p.Prefix + strings.TrimSpace(fmt.Sprintf(format, args...)))
}
