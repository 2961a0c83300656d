package dispatch

import (
	"context"

	"catalog/internal/apperr"

	"go.uber.org/zap"
)

// オペレーターへの通知
type Alert struct {
	EventID   string
	EventType string
	TenantID  string
	Handler   string
	Kind      apperr.Kind
	Attempts  int
	Outcome   Exhausted
	Err       error
}

type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlerter は alert=true 付きの Error ログとして出す
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger.Named("alert")}
}

func (a *LogAlerter) Alert(_ context.Context, al Alert) {
	a.logger.Error("event delivery gave up",
		zap.Bool("alert", true),
		zap.String("event_id", al.EventID),
		zap.String("event_type", al.EventType),
		zap.String("tenant_id", al.TenantID),
		zap.String("handler", al.Handler),
		zap.Stringer("kind", al.Kind),
		zap.Int("attempts", al.Attempts),
		zap.Stringer("outcome", al.Outcome),
		zap.Error(al.Err),
	)
}
