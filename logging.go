package main

import (
	"os"

	"github.com/rs/zerolog"
)

// relayLogger wraps a zerolog.Logger with the field set every relay
// component attaches (session id, remote IP, MAIL FROM, recipient). It's
// the concrete implementation behind every log call site in this repo —
// there's no separate logging interface to satisfy since only zerolog is
// ever wired in.
type relayLogger struct {
	l zerolog.Logger
}

func newRelayLogger(verbose bool) *relayLogger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
	return &relayLogger{l: l}
}

func (r *relayLogger) With(fields map[string]any) *relayLogger {
	ctx := r.l.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &relayLogger{l: ctx.Logger()}
}

func (r *relayLogger) Info(msg string, fields map[string]any) {
	r.event(r.l.Info(), fields).Msg(msg)
}

func (r *relayLogger) Warn(msg string, fields map[string]any) {
	r.event(r.l.Warn(), fields).Msg(msg)
}

func (r *relayLogger) Error(msg string, err error, fields map[string]any) {
	r.event(r.l.Error().Err(err), fields).Msg(msg)
}

func (r *relayLogger) event(e *zerolog.Event, fields map[string]any) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
