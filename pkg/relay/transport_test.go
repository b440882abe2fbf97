package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"nonocoop/pkg/event"
	"nonocoop/pkg/fabric"
	"nonocoop/pkg/fabric/memory"
	"nonocoop/pkg/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type envelopeInbox struct {
	mu  sync.Mutex
	got []Envelope
}

func (i *envelopeInbox) handle(env Envelope) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.got = append(i.got, env)
}

func (i *envelopeInbox) snapshot() []Envelope {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Envelope(nil), i.got...)
}

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	env, err := DecodeEnvelope([]byte(`{"session":"s-1","from":"alice","role":"joining","seq":4,"event":{"kind":"occupy-field","column":2,"row":3}}`))
	require.NoError(t, err)
	require.Equal(t, Envelope{
		Session: "s-1",
		From:    "alice",
		Role:    session.RoleJoining,
		Seq:     4,
		Event:   event.OccupyField(2, 3),
	}, env)

	for _, payload := range []string{
		`not json`,
		`{"session":"s-1","from":"alice","role":"spectator"}`,
		`{"from":"alice","role":"joining"}`,
		`{"session":"s-1","role":"joining"}`,
	} {
		_, err := DecodeEnvelope([]byte(payload))
		require.ErrorIs(t, err, fabric.ErrMalformed, payload)
	}
}

func TestNewTransportRequiresChannel(t *testing.T) {
	_, err := NewTransport(nil, nil, nil)
	require.Error(t, err)
}

func TestTransportRoundTrip(t *testing.T) {
	hub := memory.NewHub()
	alice, bob := hub.Member("alice"), hub.Member("bob")
	t.Cleanup(func() { _ = alice.Close(); _ = bob.Close() })

	sender, err := NewTransport(alice, discardLogger(), nil)
	require.NoError(t, err)
	receiver, err := NewTransport(bob, discardLogger(), nil)
	require.NoError(t, err)
	require.Equal(t, "bob", receiver.LocalID())

	inbox := &envelopeInbox{}
	require.NoError(t, receiver.Subscribe("s-1", inbox.handle))
	t.Cleanup(func() { _ = receiver.Unsubscribe("s-1") })

	ctx := context.Background()
	require.NoError(t, sender.Publish(ctx, "s-1", session.RoleInitiating, event.FieldOccupied(1, 1)))
	require.NoError(t, sender.Publish(ctx, "s-1", session.RoleInitiating, event.SetFailCount(1)))
	// Sequence numbers are per session.
	require.NoError(t, sender.Publish(ctx, "s-2", session.RoleInitiating, event.SetFailCount(9)))

	require.Eventually(t, func() bool { return len(inbox.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	got := inbox.snapshot()
	require.Equal(t, Envelope{Session: "s-1", From: "alice", Role: session.RoleInitiating, Seq: 1, Event: event.FieldOccupied(1, 1)}, got[0])
	require.Equal(t, uint64(2), got[1].Seq)
	require.Equal(t, event.SetFailCount(1), got[1].Event)
}

func TestTransportDropsUndecodablePayloads(t *testing.T) {
	hub := memory.NewHub()
	alice, bob := hub.Member("alice"), hub.Member("bob")
	t.Cleanup(func() { _ = alice.Close(); _ = bob.Close() })

	metrics := NewMetrics(prometheus.NewRegistry())
	receiver, err := NewTransport(bob, discardLogger(), metrics)
	require.NoError(t, err)

	inbox := &envelopeInbox{}
	require.NoError(t, receiver.Subscribe("s-1", inbox.handle))
	t.Cleanup(func() { _ = receiver.Unsubscribe("s-1") })

	sender, err := NewTransport(alice, discardLogger(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, alice.Publish(ctx, fabric.SessionTopic("s-1"), []byte("garbage")))
	require.NoError(t, sender.Publish(ctx, "s-1", session.RoleJoining, event.OccupyField(0, 0)))

	require.Eventually(t, func() bool { return len(inbox.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, event.OccupyField(0, 0), inbox.snapshot()[0].Event)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Dropped.WithLabelValues(dropMalformed)))
}

func TestTransportPublishFailsWhenUnreachable(t *testing.T) {
	hub := memory.NewHub()
	alice := hub.Member("alice")
	t.Cleanup(func() { _ = alice.Close() })

	sender, err := NewTransport(alice, discardLogger(), nil)
	require.NoError(t, err)

	hub.SetReachable(false)
	err = sender.Publish(context.Background(), "s-1", session.RoleJoining, event.OccupyField(0, 0))
	require.ErrorIs(t, err, fabric.ErrTransport)
}

func TestTransportRejectsNilCallback(t *testing.T) {
	hub := memory.NewHub()
	alice := hub.Member("alice")
	t.Cleanup(func() { _ = alice.Close() })

	transport, err := NewTransport(alice, discardLogger(), nil)
	require.NoError(t, err)
	require.Error(t, transport.Subscribe("s-1", nil))
}
