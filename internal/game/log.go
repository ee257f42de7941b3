package game

import "log"

// Logger receives the engine's progress lines.
type Logger interface {
	Printf(format string, args ...any)
}

var logger Logger = log.Default()

// SetLogger replaces the engine logger. Passing nil restores the standard logger.
func SetLogger(l Logger) {
	if l == nil {
		l = log.Default()
	}
	logger = l
}
