// Package notification delivers best-effort tenant notifications. Failures
// are logged, never propagated into the calling workflow.
package notification

import (
	"context"

	"go.uber.org/zap"
)

type WelcomeMessage struct {
	TenantName string
	Subdomain  string
	AdminEmail string
	PlanID     string
	Degraded   bool
}

type DowngradeMessage struct {
	TenantID      int64
	AdminEmail    string
	FromPlanID    string
	ToPlanID      string
	EffectiveDate string
	RefundAmount  string
}

type Sink interface {
	SendWelcome(ctx context.Context, msg WelcomeMessage) error
	SendDowngradeConfirmation(ctx context.Context, msg DowngradeMessage) error
}

type NoOpSink struct{}

func (s *NoOpSink) SendWelcome(ctx context.Context, msg WelcomeMessage) error { return nil }

func (s *NoOpSink) SendDowngradeConfirmation(ctx context.Context, msg DowngradeMessage) error {
	return nil
}

// LogSink records each notification through the structured logger. It stands
// in for an email provider until one is wired.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("notification")}
}

func (s *LogSink) SendWelcome(ctx context.Context, msg WelcomeMessage) error {
	s.log.Info("welcome notification",
		zap.String("tenant_name", msg.TenantName),
		zap.String("subdomain", msg.Subdomain),
		zap.String("admin_email", msg.AdminEmail),
		zap.String("plan_id", msg.PlanID),
		zap.Bool("degraded", msg.Degraded),
	)
	return nil
}

func (s *LogSink) SendDowngradeConfirmation(ctx context.Context, msg DowngradeMessage) error {
	s.log.Info("downgrade confirmation",
		zap.Int64("tenant_id", msg.TenantID),
		zap.String("admin_email", msg.AdminEmail),
		zap.String("from_plan", msg.FromPlanID),
		zap.String("to_plan", msg.ToPlanID),
		zap.String("effective_date", msg.EffectiveDate),
		zap.String("refund_amount", msg.RefundAmount),
	)
	return nil
}
