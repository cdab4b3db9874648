package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger
type Logger struct {
	zerolog.Logger
}

// New creates the service logger. Development gets console output, test is
// silent and anything else writes JSON. An unparseable level falls back to info.
func New(serviceName, environment, level string) *Logger {
	var output io.Writer = os.Stdout

	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if environment == "test" {
		lvl = zerolog.Disabled
	}

	logger := zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{Logger: logger}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// WithComponent tags entries with the subsystem that wrote them
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", component).Logger(),
	}
}

// WithSession scopes entries to an import session and its (supplier, sales category)
func (l *Logger) WithSession(sessionID, supplierID, salesCategory string) *Logger {
	return &Logger{
		Logger: l.Logger.With().
			Str("session_id", sessionID).
			Str("supplier_id", supplierID).
			Str("sales_category", salesCategory).
			Logger(),
	}
}

// WithLot scopes entries to a lot and the operator acting on it
func (l *Logger) WithLot(lotID, userID string) *Logger {
	return &Logger{
		Logger: l.Logger.With().
			Str("lot_id", lotID).
			Str("user_id", userID).
			Logger(),
	}
}
