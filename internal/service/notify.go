package service

import "github.com/google/uuid"

// Notifier receives committed payout events, e.g. to push them to dashboards.
// Implementations must not block.
type Notifier interface {
	Notify(professorID uuid.UUID, eventType string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(uuid.UUID, string, any) {}
