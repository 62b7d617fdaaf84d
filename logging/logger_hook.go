package logging

import (
	"log/slog"
)

// LoggerHook creates task-specific loggers by wrapping a base logger.
// This keeps the pipeline generic while allowing per-task log capture
// through custom implementations.
type LoggerHook interface {
	// LoggerForTask wraps the base logger to create a task-specific logger.
	LoggerForTask(baseLogger *slog.Logger, task string) *slog.Logger
}

// CapturingLoggerHook creates loggers that capture logs via CapturingHandler.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures all task logs.
func NewCapturingLoggerHook(collector *LogCollector) LoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// LoggerForTask creates a task-specific logger with capturing enabled.
// Each call wraps the base logger with a CapturingHandler that files
// records under the task name.
func (p *CapturingLoggerHook) LoggerForTask(baseLogger *slog.Logger, task string) *slog.Logger {
	capturingHandler := NewCapturingHandler(
		baseLogger.Handler(),
		p.collector,
		task,
	)
	return slog.New(capturingHandler)
}
