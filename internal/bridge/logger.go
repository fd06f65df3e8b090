package bridge

import (
	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// clientLogger adapts the whatsmeow logger interface to zerolog.
type clientLogger struct {
	log zerolog.Logger
}

// NewClientLogger wraps a zerolog logger for use by whatsmeow.
func NewClientLogger(log zerolog.Logger) waLog.Logger {
	return clientLogger{log: log.With().Str("component", "whatsmeow").Logger()}
}

func (l clientLogger) Errorf(msg string, args ...interface{}) { l.log.Error().Msgf(msg, args...) }
func (l clientLogger) Warnf(msg string, args ...interface{})  { l.log.Warn().Msgf(msg, args...) }
func (l clientLogger) Infof(msg string, args ...interface{})  { l.log.Info().Msgf(msg, args...) }

func (l clientLogger) Debugf(msg string, args ...interface{}) {
	// Skip debug logs to reduce noise
}

func (l clientLogger) Sub(module string) waLog.Logger {
	return clientLogger{log: l.log.With().Str("module", module).Logger()}
}

// quietLogger only logs errors, used during pairing to keep output clean.
type quietLogger struct {
	log zerolog.Logger
}

// NewQuietLogger wraps a zerolog logger, dropping everything below error.
func NewQuietLogger(log zerolog.Logger) waLog.Logger {
	return quietLogger{log: log}
}

func (l quietLogger) Errorf(msg string, args ...interface{}) { l.log.Error().Msgf(msg, args...) }
func (l quietLogger) Warnf(msg string, args ...interface{})  {}
func (l quietLogger) Infof(msg string, args ...interface{})  {}
func (l quietLogger) Debugf(msg string, args ...interface{}) {}
func (l quietLogger) Sub(module string) waLog.Logger         { return l }
