package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

var (
	clientID     string
	clientIDOnce sync.Once

	// Async writer and logger, (re)built by Init and torn down by Flush
	logMu     sync.Mutex
	logWriter *diode.Writer
	logger    zerolog.Logger
	logReady  bool

	level  = zerolog.InfoLevel
	format = "text"

	// output is swapped in tests
	output io.Writer = os.Stderr
)

// Init configures level ("debug", "info", "warn", "error") and format ("text" or "json").
// It may be called again after Flush.
func Init(lvl, fmtName string) error {
	parsed := zerolog.InfoLevel
	if lvl != "" {
		var err error
		parsed, err = zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", lvl, err)
		}
	}
	fmtName = strings.ToLower(fmtName)
	if fmtName == "" {
		fmtName = "text"
	}
	if fmtName != "text" && fmtName != "json" {
		return fmt.Errorf("invalid log format %q (want text or json)", fmtName)
	}

	logMu.Lock()
	defer logMu.Unlock()
	closeWriterLocked()
	level = parsed
	format = fmtName
	buildLoggerLocked()
	return nil
}

// buildLoggerLocked creates the diode-backed logger. Caller holds logMu.
func buildLoggerLocked() {
	// Buffered, non-blocking: when the ring is full messages are dropped and counted
	w := diode.NewWriter(output, 1000, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "logging: dropped %d messages\n", missed)
	})
	logWriter = &w

	var sink io.Writer = w
	if format == "text" {
		sink = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	logger = zerolog.New(sink).Level(level).With().Timestamp().Str("client", GetClientID()).Logger()
	logReady = true
}

func closeWriterLocked() {
	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
	logReady = false
}

func current() *zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		buildLoggerLocked()
	}
	l := logger
	return &l
}

// GetClientID returns the identifier this process logs under
func GetClientID() string {
	clientIDOnce.Do(func() {
		// STREAMHOSTS_CLIENT_ID first, then HOSTNAME, then os.Hostname()
		clientID = os.Getenv("STREAMHOSTS_CLIENT_ID")
		if clientID == "" {
			clientID = os.Getenv("HOSTNAME")
		}
		if clientID == "" {
			hostname, _ := os.Hostname()
			if hostname != "" {
				clientID = hostname
			} else {
				clientID = "unknown"
			}
		}
	})
	return clientID
}

// Logf logs a formatted message at info level (async, non-blocking)
func Logf(format string, v ...interface{}) {
	current().Info().Msgf(format, v...)
}

// Log logs a message at info level (async, non-blocking)
func Log(v ...interface{}) {
	current().Info().Msg(fmt.Sprint(v...))
}

// Debugf logs a formatted message at debug level
func Debugf(format string, v ...interface{}) {
	current().Debug().Msgf(format, v...)
}

// Warnf logs a formatted message at warn level
func Warnf(format string, v ...interface{}) {
	current().Warn().Msgf(format, v...)
}

// Errorf logs a formatted message at error level
func Errorf(format string, v ...interface{}) {
	current().Error().Msgf(format, v...)
}

// Fatalf flushes pending messages, logs synchronously and exits
func Fatalf(format string, v ...interface{}) {
	Flush()
	l := zerolog.New(os.Stderr).With().Timestamp().Str("client", GetClientID()).Logger()
	l.Fatal().Msgf(format, v...)
}

// Flush waits for all pending log messages to be written
func Flush() {
	logMu.Lock()
	defer logMu.Unlock()
	closeWriterLocked()
}

// IsDebug reports whether debug messages are emitted
func IsDebug() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return level <= zerolog.DebugLevel
}
