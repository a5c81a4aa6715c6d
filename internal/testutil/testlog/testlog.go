// Package testlog configures zerolog for tests.
package testlog

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start installs a debug-level global logger tagged with the test name and
// returns it. Output goes to stderr rather than t.Log because connection
// goroutines may still log after the test returns.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	out := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}
	logger := zerolog.New(out).Level(zerolog.DebugLevel).
		With().Str("test", t.Name()).Logger()
	log.Logger = logger
	return logger
}
