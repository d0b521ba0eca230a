package router

import (
	"context"
	"log/slog"
)

// Severity grades operator alerts.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alerter raises operator alerts. Production deployments plug a pager or
// chat webhook in here; the default writes structured log lines that alert
// pipelines scrape.
type Alerter interface {
	Alert(ctx context.Context, severity Severity, message string, args ...any)
}

// LogAlerter emits alerts through slog.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(ctx context.Context, severity Severity, message string, args ...any) {
	args = append([]any{"alert", true, "severity", string(severity)}, args...)
	if severity == SeverityCritical {
		a.logger.ErrorContext(ctx, message, args...)
		return
	}
	a.logger.WarnContext(ctx, message, args...)
}
