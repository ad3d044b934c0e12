package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

var (
	// Log is the global logger instance
	Log zerolog.Logger
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	// Default to console output with color
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}

	install(output, zerolog.InfoLevel)
}

// SetLevel sets the log level. Accepts zerolog level names; the server modes
// "debug" and "release" map to debug and info.
func SetLevel(levelStr string) {
	switch levelStr {
	case "release", "production":
		levelStr = "info"
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	Log = Log.Level(level)
	log.Logger = Log
}

// SetJSON switches the global logger to line-delimited JSON on w, for
// deployments where logs are shipped rather than read.
func SetJSON(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	install(w, Log.GetLevel())
}

func install(w io.Writer, level zerolog.Level) {
	Log = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()

	// Packages log through zerolog/log; keep it pointed at the same sink.
	log.Logger = Log
}
