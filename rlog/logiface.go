package rlog

import (
	"fmt"
	"io"

	"github.com/joeycumines/logiface"
	stumpy "github.com/joeycumines/stumpy"
)

// logifaceLogger adapts a github.com/joeycumines/logiface logger (backed by
// the stumpy JSON event implementation) to the rlog.Logger capability.
//
// This is the structured-logging option for embedders who want every
// reactor log line shaped as JSON by a battle-tested fluent builder rather
// than by DefaultLogger's built-in formatting.
type logifaceLogger struct {
	logger *logiface.Logger[*stumpy.Event]
}

// NewLogifaceLogger builds an rlog.Logger backed by logiface+stumpy, writing
// newline-delimited JSON to w at the given minimum level.
func NewLogifaceLogger(w io.Writer, level Level) Logger {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(toLogifaceLevel(level)),
	)
	return &logifaceLogger{logger: logger}
}

func toLogifaceLevel(level Level) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func (l *logifaceLogger) IsEnabled(level Level) bool {
	return l.logger.Level() >= toLogifaceLevel(level)
}

func (l *logifaceLogger) Log(entry Entry) {
	var b *logiface.Builder[*stumpy.Event]
	switch entry.Level {
	case LevelDebug:
		b = l.logger.Debug()
	case LevelInfo:
		b = l.logger.Info()
	case LevelWarn:
		b = l.logger.Warning()
	case LevelError:
		b = l.logger.Err()
	default:
		b = l.logger.Info()
	}
	if b == nil {
		return
	}

	b = b.Str(`category`, entry.Category)
	if entry.SelectorID != 0 {
		b = b.Int64(`selector`, entry.SelectorID)
	}
	if entry.EndpointID != 0 {
		b = b.Int64(`endpoint`, entry.EndpointID)
	}
	for k, v := range entry.Fields {
		b = b.Str(k, toString(v))
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return fmt.Sprint(v)
}
