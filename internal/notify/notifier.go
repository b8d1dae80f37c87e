// Package notify fans breach events out to the configured notification
// sinks. Delivery is fire-and-forget: sink failures are logged, never
// propagated into the scan that produced the event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/domain"
)

// ErrNoSinks is returned when a Notifier has no registered sinks.
var ErrNoSinks = errors.New("notify: no sinks registered") //nolint:gochecknoglobals // sentinel error

// Event types published by this service.
const (
	EventEscalationBreached = "escalation.breached"
)

// Event is a notification payload describing an escalation state change.
type Event struct {
	Type         string                    `json:"type"`
	ContactID    string                    `json:"contactId"`
	EscalationID string                    `json:"escalationId"`
	Priority     domain.EscalationPriority `json:"priority"`
	Queue        string                    `json:"queue,omitempty"`
	SLADeadline  time.Time                 `json:"slaDeadline"`
	Message      string                    `json:"message"`
	OccurredAt   time.Time                 `json:"occurredAt"`
}

// BreachEvent builds the notification for a breached escalation.
func BreachEvent(esc *domain.Escalation, at time.Time) Event {
	return Event{
		Type:         EventEscalationBreached,
		ContactID:    esc.ContactID,
		EscalationID: esc.EscalationID,
		Priority:     esc.Priority,
		Queue:        esc.AssignedQueue,
		SLADeadline:  esc.SLADeadline,
		Message: fmt.Sprintf("[%s] escalation %s for contact %s breached its SLA deadline %s",
			esc.Priority, esc.EscalationID, esc.ContactID, esc.SLADeadline.UTC().Format(time.RFC3339)),
		OccurredAt: at,
	}
}

// Sink delivers one event to a destination.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Notifier dispatches events to every registered sink.
type Notifier struct {
	sinks []Sink
}

func New(sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks}
}

// Publish sends the event to all sinks. Individual sink failures are logged
// and do not stop delivery to the remaining sinks; an error is returned only
// when no sink accepted the event.
func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	if len(n.sinks) == 0 {
		return ErrNoSinks
	}

	delivered := 0
	var lastErr error
	for _, sink := range n.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("event_type", ev.Type).Str("contact_id", ev.ContactID).
				Msg("notification sink failed")
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("notify.Notifier.Publish: all sinks failed: %w", lastErr)
	}
	return nil
}
