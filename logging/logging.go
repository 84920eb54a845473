package logging

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger zerolog.Logger
	once   sync.Once
)

// Get returns the process-wide logger. The simulation core is
// single-threaded, but the gui server logs from its own goroutine,
// so the logger is built once and shared.
func Get() zerolog.Logger {
	once.Do(func() {
		logLevel := zerolog.InfoLevel
		if os.Getenv("SIM_DEBUG") != "" {
			logLevel = zerolog.DebugLevel
		}

		console := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}

		logger = zerolog.New(console).Level(logLevel).With().Timestamp().Caller().Logger()
	})

	return logger
}
