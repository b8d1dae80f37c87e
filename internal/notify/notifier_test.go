package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/notify"
)

type recordingSink struct {
	events []notify.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev notify.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func breachedEscalation() *domain.Escalation {
	return &domain.Escalation{
		ContactID:     "abc123",
		EscalationID:  "esc-1",
		Type:          "negative_sentiment",
		Priority:      domain.PriorityHigh,
		Status:        domain.EscalationStatusBreached,
		SLADeadline:   time.Date(2025, 11, 8, 14, 0, 0, 0, time.UTC),
		AssignedQueue: "billing-escalations",
	}
}

func TestBreachEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 11, 8, 15, 0, 0, 0, time.UTC)
	ev := notify.BreachEvent(breachedEscalation(), at)

	assert.Equal(t, notify.EventEscalationBreached, ev.Type)
	assert.Equal(t, "abc123", ev.ContactID)
	assert.Equal(t, "esc-1", ev.EscalationID)
	assert.Equal(t, domain.PriorityHigh, ev.Priority)
	assert.Equal(t, "billing-escalations", ev.Queue)
	assert.Equal(t, at, ev.OccurredAt)
	assert.Contains(t, ev.Message, "esc-1")
	assert.Contains(t, ev.Message, "abc123")
	assert.Contains(t, ev.Message, "2025-11-08T14:00:00Z")
}

func TestNotifier_Publish_FansOut(t *testing.T) {
	t.Parallel()

	a := &recordingSink{}
	b := &recordingSink{}
	n := notify.New(a, b)

	ev := notify.BreachEvent(breachedEscalation(), time.Now())
	require.NoError(t, n.Publish(context.Background(), ev))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestNotifier_Publish_SinkFailureIsIsolated(t *testing.T) {
	t.Parallel()

	failing := &recordingSink{err: errors.New("slack down")}
	healthy := &recordingSink{}
	n := notify.New(failing, healthy)

	// One failing sink must not block delivery to the others.
	err := n.Publish(context.Background(), notify.BreachEvent(breachedEscalation(), time.Now()))
	require.NoError(t, err)
	assert.Len(t, healthy.events, 1)
}

func TestNotifier_Publish_AllSinksFailed(t *testing.T) {
	t.Parallel()

	cause := errors.New("slack down")
	n := notify.New(&recordingSink{err: cause}, &recordingSink{err: cause})

	err := n.Publish(context.Background(), notify.BreachEvent(breachedEscalation(), time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestNotifier_Publish_NoSinks(t *testing.T) {
	t.Parallel()

	err := notify.New().Publish(context.Background(), notify.Event{})
	assert.ErrorIs(t, err, notify.ErrNoSinks)
}

type capturePublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *capturePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.channel = channel
	p.payload = payload
	return nil
}

func TestPubSubSink_Publish(t *testing.T) {
	t.Parallel()

	pub := &capturePublisher{}
	sink := notify.NewPubSubSink(pub, "escalations:breached")

	at := time.Date(2025, 11, 8, 15, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Publish(context.Background(), notify.BreachEvent(breachedEscalation(), at)))

	assert.Equal(t, "escalations:breached", pub.channel)

	var decoded notify.Event
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, notify.EventEscalationBreached, decoded.Type)
	assert.Equal(t, "abc123", decoded.ContactID)
	assert.Equal(t, at, decoded.OccurredAt)
}

func TestPubSubSink_Publish_Error(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	sink := notify.NewPubSubSink(&capturePublisher{err: cause}, "escalations:breached")

	err := sink.Publish(context.Background(), notify.Event{})
	assert.ErrorIs(t, err, cause)
}
