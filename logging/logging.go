// Package logging owns the process logger and the zerolog-backed LogNotifier
// handed to the FIM engine.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/cfg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger from configuration and installs it as the
// zerolog global. The returned closer releases the optional log file.
func Setup(config cfg.LoggingConfiguration, agentID uint64) (io.Closer, error) {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if config.Format == "json" {
		writer = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		writer = zerolog.MultiLevelWriter(writer, f)
		closer = f
	}

	gLog := zerolog.New(zerolog.SyncWriter(writer)).
		With().
		Timestamp().
		Uint64("agent_id", agentID).
		Logger()

	if config.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ZerologNotifier implements callback.LogNotifier on top of a zerolog.Logger.
// zerolog builds each event independently and the underlying writer is wrapped
// in a SyncWriter by Setup, so concurrent NotifyLog calls are safe.
type ZerologNotifier struct {
	logger zerolog.Logger
}

// NewZerologNotifier creates a notifier writing to logger, tagged with component.
func NewZerologNotifier(logger zerolog.Logger, component string) *ZerologNotifier {
	if component != "" {
		logger = logger.With().Str("component", component).Logger()
	}
	return &ZerologNotifier{logger: logger}
}

// NewGlobalNotifier creates a notifier on the process logger.
func NewGlobalNotifier(component string) *ZerologNotifier {
	return NewZerologNotifier(log.Logger, component)
}

// NotifyLog writes message at the zerolog level matching level.
// Critical has no zerolog equivalent that does not exit, so it is written at
// error level with critical=true.
func (z *ZerologNotifier) NotifyLog(level callback.Level, message string) {
	switch level {
	case callback.LevelDebug:
		z.logger.Debug().Msg(message)
	case callback.LevelInfo:
		z.logger.Info().Msg(message)
	case callback.LevelWarning:
		z.logger.Warn().Msg(message)
	case callback.LevelError:
		z.logger.Error().Msg(message)
	case callback.LevelCritical:
		z.logger.Error().Bool("critical", true).Msg(message)
	default:
		z.logger.Warn().Uint8("level", uint8(level)).Msg(message)
	}
}

// ZerologLevel maps a callback severity to the zerolog level used for it.
func ZerologLevel(level callback.Level) zerolog.Level {
	switch level {
	case callback.LevelDebug:
		return zerolog.DebugLevel
	case callback.LevelInfo:
		return zerolog.InfoLevel
	case callback.LevelWarning:
		return zerolog.WarnLevel
	case callback.LevelError, callback.LevelCritical:
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
