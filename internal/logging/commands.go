package logging

import (
	"errors"

	"github.com/OCAP2/placefinder/internal/dispatcher"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/rs/zerolog"
)

// CommandLogger writes dispatcher outcomes as zerolog events. It implements
// dispatcher.Recorder.
type CommandLogger struct {
	logger zerolog.Logger
}

// NewCommandLogger creates a CommandLogger writing to logger.
func NewCommandLogger(logger zerolog.Logger) *CommandLogger {
	return &CommandLogger{logger: logger}
}

// Record logs o. Failures are errors, drops are warnings, and results
// discarded as superseded are info since a newer command replaced them.
func (l *CommandLogger) Record(o dispatcher.Outcome) {
	outcome := o.Status()

	var ev *zerolog.Event
	switch {
	case errors.Is(o.Err, core.ErrSuperseded):
		outcome = "superseded"
		ev = l.logger.Info()
	case outcome == "dropped":
		ev = l.logger.Warn()
	case o.Err != nil:
		ev = l.logger.Error().Err(o.Err)
	default:
		ev = l.logger.Debug()
	}

	ev = ev.Str("command", o.Command).
		Str("outcome", outcome).
		Int("payloadBytes", o.PayloadBytes)
	if o.Async {
		ev = ev.Bool("async", true)
	}
	if !o.Queued && outcome != "dropped" {
		ev = ev.Dur("took", o.Duration)
	}
	ev.Msg("command " + outcome)
}
