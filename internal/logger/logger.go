package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger. Dev mode logs at debug level to a console writer.
func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Install makes logger the global logger and the fallback for zerolog.Ctx,
// and returns ctx carrying it.
func Install(ctx context.Context, logger zerolog.Logger) context.Context {
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger.WithContext(ctx)
}
