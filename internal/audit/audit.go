// Package audit records authorization-denial events.
//
// Every request the authorization guard turns away gets exactly one
// AuditEvent, fired synchronously into whatever Sink the guard was built
// with. A request the guard allows is not audited here — request-level
// access logging is the admission middleware's Observability log, a
// different concern with a different retention story.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/carplatform/admission/internal/logger"
)

// DecisionKind names which authorization check produced the event.
type DecisionKind string

const (
	DecisionRole       DecisionKind = "role"
	DecisionAnyRole    DecisionKind = "any_role"
	DecisionPermission DecisionKind = "permission"
)

// Event is one authorization-denial record: who was denied, on whose
// behalf, trying to do what, and why.
type Event struct {
	Timestamp      time.Time
	UserID         string
	TenantID       uuid.UUID
	RolesPresented []string
	Endpoint       string
	Decision       DecisionKind
	Requirement    string
	Reason         string
}

// Sink accepts AuditEvents. Emit must never block the request path for
// longer than writing to a local buffer or channel — a Sink backed by a
// slow external system is expected to do its own buffering or dispatch to
// a goroutine, not make Emit itself slow.
type Sink interface {
	Emit(Event)
}

// LogSink is the default Sink: it writes each event as a structured log
// line through the shared zerolog logger. Suitable standalone for small
// deployments; larger ones wrap or replace it with a Sink that forwards to
// the platform's external audit-log transport, an out-of-scope
// collaborator this package knows nothing about.
type LogSink struct{}

// NewLogSink builds the default logging Sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Emit(e Event) {
	logger.Authz().Warn().
		Time("timestamp", e.Timestamp).
		Str("user_id", e.UserID).
		Str("tenant_id", e.TenantID.String()).
		Strs("roles_presented", e.RolesPresented).
		Str("endpoint", e.Endpoint).
		Str("decision", string(e.Decision)).
		Str("requirement", e.Requirement).
		Str("reason", e.Reason).
		Msg("authorization denied")
}
