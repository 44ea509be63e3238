package audit

import (
	"context"

	"github.com/finchsec/authd/internal/auth"
	"github.com/finchsec/authd/internal/infrastructure/logging"
)

// Sink records session-lifecycle events as audit log entries. It implements
// auth.EventSink; write failures are logged and swallowed so auditing never
// fails the request that triggered it.
type Sink struct {
	repo   Repository
	logger *logging.Logger
}

// NewSink creates an audit sink over the repository.
func NewSink(repo Repository, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{repo: repo, logger: logger}
}

// Emit writes the event to the audit trail.
func (s *Sink) Emit(ctx context.Context, ev auth.Event) {
	entry := &AuditLog{
		Action:    ev.Action,
		UserID:    ev.UserID,
		FamilyID:  ev.FamilyID,
		Source:    "auth",
		Details:   ev.Details,
		CreatedAt: ev.At,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("writing audit entry failed", "action", ev.Action, "error", err)
	}
}
