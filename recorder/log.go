package recorder

import (
	"context"

	"github.com/squadracorsepolito/acmeview/internal"
	"github.com/squadracorsepolito/acmeview/view"
)

// Log writes every update to the logger at info level.
type Log struct {
	l *internal.Logger
}

func NewLog(l *internal.Logger) *Log {
	return &Log{l: l}
}

func (lg *Log) Init(_ context.Context) error {
	return nil
}

func (lg *Log) Write(_ context.Context, update view.Update) error {
	args := []any{
		"frame", update.FrameName,
		"signal", update.Signal,
		"value", update.Value,
		"state", update.State,
		"source", update.Source,
		"revision", update.Revision,
	}

	if update.Label != "" {
		args = append(args, "label", update.Label)
	}

	lg.l.Info("update", args...)

	return nil
}

func (lg *Log) Flush(_ context.Context) error {
	return nil
}

func (lg *Log) Close(_ context.Context) error {
	return nil
}
