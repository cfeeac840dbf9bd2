// Package testutil holds helpers shared by the bot's test suites.
package testutil

import (
	"io"
	"log/slog"
)

// NopLogger returns a logger that discards everything. Suites wire it into
// the relay, broker, and dispatcher so command failures stay quiet in test
// output.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
