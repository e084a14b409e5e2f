package service

import (
	"context"

	"go.uber.org/zap"

	"filekeeper/internal/domain"
)

// ZapAuditSink writes audit events as structured entries on a dedicated
// "audit" logger.
type ZapAuditSink struct {
	log *zap.Logger
}

func NewZapAuditSink(log *zap.Logger) *ZapAuditSink {
	return &ZapAuditSink{log: log.Named("audit")}
}

func (s *ZapAuditSink) Record(_ context.Context, ev domain.AuditEvent) {
	fields := []zap.Field{
		zap.String("action", ev.Action),
		zap.Int64("actor_id", ev.ActorID),
		zap.String("actor", ev.Actor),
		zap.String("target", ev.Target),
		zap.Time("at", ev.Timestamp),
	}
	if len(ev.Detail) > 0 {
		fields = append(fields, zap.Any("detail", ev.Detail))
	}
	s.log.Info("audit", fields...)
}

func actorEvent(action string, actor *domain.Principal, target string) domain.AuditEvent {
	ev := domain.AuditEvent{Action: action, Target: target}
	if actor != nil {
		ev.ActorID = actor.ID
		ev.Actor = actor.Username
	} else {
		ev.Actor = "system"
	}
	return ev
}
