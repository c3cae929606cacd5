package logger

import (
	"context"
	"log/slog"
	"os"
)

// Logger emits structured JSON logs tagged with the service name and hostname.
type Logger struct {
	service  string
	hostname string
	handler  *slog.Logger
}

func New(service string) *Logger {
	hostname, _ := os.Hostname()

	handler := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	return &Logger{
		service:  service,
		hostname: hostname,
		handler:  handler,
	}
}

func (l *Logger) Info(action, message string, fields map[string]any) {
	l.log(slog.LevelInfo, action, message, nil, fields)
}

func (l *Logger) Debug(action, message string, fields map[string]any) {
	l.log(slog.LevelDebug, action, message, nil, fields)
}

func (l *Logger) Error(action, message string, err error, fields map[string]any) {
	l.log(slog.LevelError, action, message, err, fields)
}

func (l *Logger) log(level slog.Level, action, message string, err error, fields map[string]any) {
	attrs := []slog.Attr{
		slog.String("service", l.service),
		slog.String("hostname", l.hostname),
		slog.String("action", action),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.handler.LogAttrs(context.TODO(), level, message, attrs...)
}
