package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oddsync/internal/bus"
)

// peer is one simulated process: its own store, reconciler and bus.
type peer struct {
	*fixture
	bus *bus.Bus
}

func newPeer(t *testing.T, hub *bus.MemoryHub, id string, opts ...Option) *peer {
	t.Helper()

	b := bus.New(hub, "odds-sync", bus.WithPeerID(id), bus.WithLogger(quietLogger()))
	f := newFixture(t, append([]Option{WithPublisher(b)}, opts...)...)
	b.Attach(f.rec, f.rec)
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = b.Close() })

	return &peer{fixture: f, bus: b}
}

func TestSync_CatchUpIsSuperset(t *testing.T) {
	hub := bus.NewMemoryHub()
	veteran := newPeer(t, hub, "veteran")
	_, err := veteran.rec.Ingest(context.Background(), "2x\n3x\n4x")
	require.NoError(t, err)

	newcomer := newPeer(t, hub, "newcomer")
	require.NoError(t, newcomer.rec.ReceiveRemote(remote(0, "own", 9, 0)))
	before := keysOf(newcomer.rec.Base())

	require.True(t, newcomer.rec.RequestSync())

	require.Eventually(t, func() bool {
		return len(newcomer.rec.Base()) == 4
	}, 2*time.Second, 5*time.Millisecond)

	after := keysOf(newcomer.rec.Base())
	assert.Subset(t, after, before)
	assert.Subset(t, after, keysOf(veteran.rec.Base()))
}

func TestSync_AnnouncedIngestReachesPeer(t *testing.T) {
	hub := bus.NewMemoryHub()
	sender := newPeer(t, hub, "sender", WithAnnounce(true))
	receiver := newPeer(t, hub, "receiver")

	_, err := sender.rec.Ingest(context.Background(), "2x\n3x")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(receiver.rec.Realtime()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// MultipleRecords arrive in order and are prepended one by one.
	assert.Equal(t, []float64{3, 2}, receiver.rec.Values(false))
	assert.Empty(t, sender.rec.Realtime())
}

func TestSync_ProbeSeesPeer(t *testing.T) {
	hub := bus.NewMemoryHub()
	a := newPeer(t, hub, "a")
	assert.False(t, a.bus.CheckOtherTabs(contextWithTimeout(t, 50*time.Millisecond)))

	newPeer(t, hub, "b")
	assert.True(t, a.bus.CheckOtherTabs(context.Background()))
}

func contextWithTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
