package ingest

import "errors"

// ErrUnknownCommand is returned by the simulator for a command type that is
// not in the vocabulary.
var ErrUnknownCommand = errors.New("ingest: unknown command type")

// ErrStopped is returned when enqueueing after Stop.
var ErrStopped = errors.New("ingest: stopped")

// StatusMessage is the body of a status topic.
type StatusMessage struct {
	Status string `json:"status"`
}

// FeedbackMessage is the body of a feedback topic.
type FeedbackMessage struct {
	Message string `json:"message"`
}

// Logger is the logging surface the ingest package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
