package statement

import (
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
)

// Lifecycle actions.
const (
	ActionEdit    = "edit"
	ActionSave    = "save"
	ActionSend    = "send"
	ActionDiscard = "discard"
)

// Save moves a statement to saved. A draft becomes version 1; saving a
// saved or sent statement records an update and bumps the version. Sent
// statements stay sent.
func Save(s *domain.Statement, now time.Time) error {
	switch s.Status {
	case domain.StatementDraft:
		s.Status = domain.StatementSaved
		s.Version = 1
		s.CreatedAt = now
	case domain.StatementSaved, domain.StatementSent:
		s.Version++
	default:
		return &domain.ErrInvalidTransition{From: s.Status, Action: ActionSave}
	}
	s.Dirty = false
	s.UpdatedAt = now
	return nil
}

// MarkSent records that a statement was dispatched to recipient. Only
// persisted statements without pending edits can be sent. Sending is an
// update of the stored record and bumps the version.
func MarkSent(s *domain.Statement, recipient string, now time.Time) error {
	if s.Status == domain.StatementDraft || s.Dirty {
		return &domain.ErrInvalidTransition{From: s.Status, Action: ActionSend}
	}
	if recipient == "" {
		return &domain.ErrValidation{Field: "recipient", Message: "is required"}
	}
	s.Status = domain.StatementSent
	s.Version++
	s.SentTo = recipient
	sent := now
	s.SentAt = &sent
	s.UpdatedAt = now
	return nil
}

// CanDiscard reports whether a statement may be dropped along with its
// rows. Only drafts can.
func CanDiscard(s *domain.Statement) error {
	if s.Status != domain.StatementDraft {
		return &domain.ErrInvalidTransition{From: s.Status, Action: ActionDiscard}
	}
	return nil
}

// Recompute refolds s after its rows or owner cleaning fee changed.
// Persisted statements are flagged dirty until saved again.
func Recompute(s *domain.Statement, now time.Time) {
	s.Totals = WithOwnerCleaningFee(Recalculate(s.Rows), s.Totals.OwnerCleaningFee)
	if s.Status != domain.StatementDraft {
		s.Dirty = true
	}
	s.UpdatedAt = now
}
