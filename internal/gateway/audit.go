package gateway

import (
	"context"
	"encoding/json"

	"paygate/internal/domain/auditlog"

	"go.uber.org/zap"
)

// Auditor records request/response pairs. Writes are idempotent per
// (event, subject) and never fail the calling operation.
type Auditor struct {
	logger *zap.SugaredLogger
}

func NewAuditor(logger *zap.SugaredLogger) *Auditor {
	return &Auditor{logger: logger}
}

func orderSubject(id int64) auditlog.Subject {
	return auditlog.Subject{Type: auditlog.SubjectOrder, ID: id}
}

func refundSubject(id int64) auditlog.Subject {
	return auditlog.Subject{Type: auditlog.SubjectRefund, ID: id}
}

func (a *Auditor) LogInternal(ctx context.Context, store auditlog.Store, event auditlog.Event, subject auditlog.Subject, payload any) {
	a.write(ctx, store, event, subject, map[string]any{"request": payload})
}

func (a *Auditor) LogExternal(ctx context.Context, store auditlog.Store, event auditlog.Event, subject auditlog.Subject, request, response any) {
	a.write(ctx, store, event, subject, map[string]any{"request": request, "response": response})
}

func (a *Auditor) write(ctx context.Context, store auditlog.Store, event auditlog.Event, subject auditlog.Subject, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Warnw("audit payload not serializable", "event", event.String(), "logger_type", subject.Type, "logger_id", subject.ID, "err", err)
		body = nil
	}

	inserted, err := store.InsertIfAbsent(ctx, &auditlog.Entry{
		Event:      event,
		LoggerID:   subject.ID,
		LoggerType: subject.Type,
		Context:    body,
	})
	if err != nil {
		a.logger.Errorw("audit write failed", "event", event.String(), "logger_type", subject.Type, "logger_id", subject.ID, "err", err)
		return
	}
	if !inserted {
		a.logger.Debugw("audit entry already recorded", "event", event.String(), "logger_type", subject.Type, "logger_id", subject.ID)
	}
}

// externalResult is the shape stored as the response half of an external
// audit entry.
type externalResult struct {
	Response *responseView `json:"response,omitempty"`
	Error    *errorView    `json:"error,omitempty"`
}

type responseView struct {
	ProviderRef string            `json:"provider_ref"`
	Status      string            `json:"status"`
	Data        map[string]string `json:"data,omitempty"`
	Raw         json.RawMessage   `json:"raw,omitempty"`
}

type errorView struct {
	Message   string `json:"message"`
	Ambiguous bool   `json:"ambiguous"`
}
