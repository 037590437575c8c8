package logsink

import (
	"context"

	"github.com/projecteru2/core/log"
)

// NewLogger returns a Sink that writes runtime output to the process logger,
// stdout lines at info level and stderr lines at warn level.
func NewLogger(name string) Sink {
	return &logger{name: name}
}

type logger struct {
	name string
}

func (l *logger) OnLog(line string) {
	log.WithFunc(l.name).Infof(context.Background(), "%s", line)
}

func (l *logger) OnError(line string) {
	log.WithFunc(l.name).Warnf(context.Background(), "%s", line)
}
