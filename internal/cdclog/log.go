// Package cdclog holds the process-wide zerolog.Logger used by the
// consolidation engine. If os.Stdout is a terminal, a ConsoleWriter is used
// for readable output, same as nproto/zlog.DefaultZLogger.
package cdclog

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh/terminal"
)

// Logger is the package-wide logger. SetLevel adjusts its level from the
// CLI's -log-level flag.
var Logger = newDefault()

func newDefault() zerolog.Logger {
	if terminal.IsTerminal(int(os.Stdout.Fd())) {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.InfoLevel).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and
// applies it to Logger. Unknown names fall back to info.
func SetLevel(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	Logger = Logger.Level(lvl)
}
