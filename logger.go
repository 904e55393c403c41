package avctl

import "log"

var pkgLogger Logger = log.Default()

// Logger is the minimal logging interface used by the package. *log.Logger
// satisfies it, and so does the standard logger of most logging libraries
// (e.g. hclog's StandardLogger()).
type Logger interface {
	Printf(format string, v ...any)
}

// SetLogger replaces the package logger. Passing nil silences logging.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = discardLogger{}
	}
	pkgLogger = logger
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}
