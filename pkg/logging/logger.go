package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey struct{}

// slogLogger implements Logger on top of log/slog
type slogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

// NewLogger creates a Logger from the given configuration
func NewLogger(config LogConfig) (Logger, error) {
	var out io.Writer
	switch strings.ToLower(config.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "file":
		if config.FilePath == "" {
			return nil, fmt.Errorf("file_path is required when output is 'file'")
		}
		f, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	default:
		return nil, fmt.Errorf("unknown log output: %s", config.Output)
	}

	return NewWriterLogger(out, config), nil
}

// NewWriterLogger creates a Logger writing to w
func NewWriterLogger(w io.Writer, config LogConfig) Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.IncludeCaller,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &slogLogger{logger: slog.New(handler), ctx: context.Background()}
}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger {
	return &slogLogger{
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		ctx:    context.Background(),
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func toArgs(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}

func mapArgs(data map[string]interface{}) []any {
	args := make([]any, 0, len(data)*2)
	for k, v := range data {
		args = append(args, k, v)
	}
	return args
}

func (l *slogLogger) Debug(msg string, fields ...Field) {
	l.logger.DebugContext(l.ctx, msg, toArgs(fields)...)
}

func (l *slogLogger) Info(msg string, fields ...Field) {
	l.logger.InfoContext(l.ctx, msg, toArgs(fields)...)
}

func (l *slogLogger) Warn(msg string, fields ...Field) {
	l.logger.WarnContext(l.ctx, msg, toArgs(fields)...)
}

func (l *slogLogger) Error(msg string, fields ...Field) {
	l.logger.ErrorContext(l.ctx, msg, toArgs(fields)...)
}

func (l *slogLogger) WithFields(fields ...Field) Logger {
	return &slogLogger{logger: l.logger.With(toArgs(fields)...), ctx: l.ctx}
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	return &slogLogger{logger: l.logger, ctx: ctx}
}

func (l *slogLogger) LogRunEvent(pipelineID string, executionID string, event string, data map[string]interface{}) {
	l.logger.With("pipeline_id", pipelineID, "execution_id", executionID).
		InfoContext(l.ctx, event, mapArgs(data)...)
}

func (l *slogLogger) LogNodeEvent(pipelineID string, executionID string, nodeID string, event string, data map[string]interface{}) {
	l.logger.With("pipeline_id", pipelineID, "execution_id", executionID, "node_id", nodeID).
		DebugContext(l.ctx, event, mapArgs(data)...)
}

func (l *slogLogger) LogSystemEvent(event string, data map[string]interface{}) {
	l.logger.InfoContext(l.ctx, event, mapArgs(data)...)
}

// WithLogger returns a context carrying the logger
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return logger
	}
	return NewNopLogger()
}
