package observ

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the process-wide logger. Pretty output uses zerolog's
// console writer; the default stays machine-readable JSON lines.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Log emits an info-level structured event with arbitrary context.
func Log(event string, kv map[string]any) {
	logger.Info().Fields(kv).Msg(event)
}

func Debug(event string, kv map[string]any) {
	logger.Debug().Fields(kv).Msg(event)
}

func Warn(event string, kv map[string]any) {
	logger.Warn().Fields(kv).Msg(event)
}

func Error(event string, err error, kv map[string]any) {
	logger.Error().Err(err).Fields(kv).Msg(event)
}
