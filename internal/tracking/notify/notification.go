// Package notify carries register and manifest events out of the core.
//
// The service publishes to a Notifier; the Queue buffers and a Worker drains
// it into sinks (Kafka, websocket relay). Publishing never blocks and never
// fails the operation that produced the event.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"seanav/internal/tracking/models"
)

// Event names a notification.
type Event string

const (
	EventManifestCreated  Event = "manifest.created"
	EventRegisterCreated  Event = "register.created"
	EventRegisterResolved Event = "register.resolved"
)

// Notification is what sinks receive.
type Notification struct {
	Event       Event            `json:"event"`
	OccurredAt  time.Time        `json:"occurredAt"`
	ScopeID     uuid.UUID        `json:"scopeId"`
	Register    *models.Register `json:"register,omitempty"`
	Counterpart *models.Register `json:"counterpart,omitempty"`
	Manifest    *models.Manifest `json:"manifest,omitempty"`
}

// Key groups notifications of one person so partitioned sinks keep their
// order. Unauthorized registers fall back to the scope.
func (n Notification) Key() string {
	switch {
	case n.Register != nil && n.Register.PersonID != nil:
		return n.Register.PersonID.String()
	case n.Manifest != nil:
		return n.Manifest.PersonID.String()
	default:
		return n.ScopeID.String()
	}
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Publish(ctx context.Context, n Notification)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, Notification) {}

// Sink delivers one notification to an external transport.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}
