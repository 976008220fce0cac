// Package logger wraps slog behind printf-style helpers so call sites stay
// one-liners. Output and level are swappable at runtime, which the ops API
// and tests both rely on.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"log/slog"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	levelVar slog.LevelVar
	base     atomic.Pointer[slog.Logger]
)

func init() {
	levelVar.Set(slog.LevelInfo)
	base.Store(newLogger(os.Stdout))
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{
		Level: &levelVar,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(timeLayout))
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput redirects all subsequent log lines to w.
func SetOutput(w io.Writer) {
	base.Store(newLogger(w))
}

// SetLevel sets the minimum level by name. Unknown names fall back to info.
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debugf(format string, v ...any) {
	base.Load().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	base.Load().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	base.Load().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	base.Load().Error(fmt.Sprintf(format, v...))
}
