// Package slogx holds the slog attribute helpers shared by every package.
package slogx

import (
	"fmt"
	"log/slog"
)

// KeyLoggerName is the attribute key carrying the component name of a logger.
const KeyLoggerName = "logger"

// Error returns an "error" attribute holding the error message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns an attribute with the string form of value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName returns the attribute naming the component a logger belongs to.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Component returns slog.Default() tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With(LoggerName(name))
}
