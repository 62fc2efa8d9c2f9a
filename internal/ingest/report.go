package ingest

import (
	"errors"

	"go.uber.org/zap"

	"airsafe_tracker/internal/airsafe"
)

// AlertKind tells the user why a fetch ended.
type AlertKind int

const (
	// AlertUnauthorized means the API rejected the token.
	AlertUnauthorized AlertKind = iota
	// AlertIngestion covers every other fatal failure.
	AlertIngestion
)

func (k AlertKind) String() string {
	if k == AlertUnauthorized {
		return "unauthorized"
	}
	return "ingestion_error"
}

// Reporter surfaces failures to the user.
type Reporter interface {
	// Alert reports a failure that ended the current fetch.
	Alert(kind AlertKind, err error)
	// Notice reports a recovered, per-unit failure such as a decode error.
	Notice(err error)
}

// Classify maps a fetch error to the alert shown to the user.
func Classify(err error) AlertKind {
	var authErr *airsafe.AuthorizationError
	if errors.As(err, &authErr) {
		return AlertUnauthorized
	}
	return AlertIngestion
}

// LogReporter reports through the global zap logger.
type LogReporter struct{}

func (LogReporter) Alert(kind AlertKind, err error) {
	switch kind {
	case AlertUnauthorized:
		zap.L().Error("unauthorized, token might be invalid", zap.Error(err))
	default:
		zap.L().Error("an error occurred while calling the endpoint", zap.Error(err))
	}
}

func (LogReporter) Notice(err error) {
	zap.L().Warn("an error occurred while parsing results", zap.Error(err))
}
