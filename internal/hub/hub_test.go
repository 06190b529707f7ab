package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/chess-relay/internal/session"
	"github.com/DoyleJ11/chess-relay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRoster struct {
	mu    sync.Mutex
	conns map[string][]session.ConnID
}

func (f *fakeRoster) Connections(sessionID string) []session.ConnID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.ConnID(nil), f.conns[sessionID]...)
}

func newTestHub(t *testing.T, roster Roster) *Hub {
	t.Helper()
	h := NewHub(context.Background(), roster, zap.NewNop(), 64)
	t.Cleanup(h.Shutdown)
	return h
}

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{}
	}
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no message within %v, got %+v", within, msg)
	case <-time.After(within):
	}
}

func TestHub_NotifyOthersSkipsSender(t *testing.T) {
	roster := &fakeRoster{conns: map[string][]session.ConnID{"ABC123": {"alice", "bob"}}}
	h := newTestHub(t, roster)

	alice := make(chan types.ServerMessage, 4)
	bob := make(chan types.ServerMessage, 4)
	h.Register("alice", alice)
	h.Register("bob", bob)

	h.NotifyOthers("ABC123", "alice", types.OpponentMove("ABC123", []byte(`{"from":"e2","to":"e4"}`)))

	got := recvMsg(t, bob, 100*time.Millisecond)
	assert.Equal(t, types.TypeOpponentMove, got.Type)
	assert.JSONEq(t, `{"from":"e2","to":"e4"}`, string(got.Move))
	recvNoMsg(t, alice, 50*time.Millisecond)
}

func TestHub_NotifySessionReachesEveryone(t *testing.T) {
	roster := &fakeRoster{conns: map[string][]session.ConnID{"ABC123": {"alice", "bob"}}}
	h := newTestHub(t, roster)

	alice := make(chan types.ServerMessage, 4)
	bob := make(chan types.ServerMessage, 4)
	stranger := make(chan types.ServerMessage, 4)
	h.Register("alice", alice)
	h.Register("bob", bob)
	h.Register("stranger", stranger)

	h.NotifySession("ABC123", types.Roster("ABC123", nil))

	assert.Equal(t, types.TypeRoster, recvMsg(t, alice, 100*time.Millisecond).Type)
	assert.Equal(t, types.TypeRoster, recvMsg(t, bob, 100*time.Millisecond).Type)
	recvNoMsg(t, stranger, 50*time.Millisecond)
}

func TestHub_NotifyOneUnknownConnectionIsIgnored(t *testing.T) {
	h := newTestHub(t, &fakeRoster{})

	out := make(chan types.ServerMessage, 1)
	h.Register("alice", out)

	h.NotifyOne("ghost", types.Error("nope"))
	h.NotifyOne("alice", types.Error("hello"))

	assert.Equal(t, "hello", recvMsg(t, out, 100*time.Millisecond).Message)
}

func TestHub_DropSlowClient(t *testing.T) {
	h := newTestHub(t, &fakeRoster{})

	out := make(chan types.ServerMessage, 1)
	h.Register("slow", out)

	h.NotifyOne("slow", types.Error("1"))
	h.NotifyOne("slow", types.Error("2"))

	require.Equal(t, 0, h.Clients(), "slow client should be dropped")

	// the buffered message is still readable, then the outbox is closed
	assert.Equal(t, "1", recvMsg(t, out, 100*time.Millisecond).Message)
	_, ok := <-out
	assert.False(t, ok)
}

func TestHub_UnregisterClosesOutbox(t *testing.T) {
	h := newTestHub(t, &fakeRoster{})

	out := make(chan types.ServerMessage, 1)
	h.Register("alice", out)
	require.Equal(t, 1, h.Clients())

	h.Unregister("alice")
	require.Equal(t, 0, h.Clients())

	_, ok := <-out
	assert.False(t, ok)

	// unregistering twice is harmless
	h.Unregister("alice")
	assert.Equal(t, 0, h.Clients())
}

func TestHub_ReRegisterClosesPreviousOutbox(t *testing.T) {
	h := newTestHub(t, &fakeRoster{})

	first := make(chan types.ServerMessage, 1)
	second := make(chan types.ServerMessage, 1)
	h.Register("alice", first)
	h.Register("alice", second)
	require.Equal(t, 1, h.Clients())

	_, ok := <-first
	assert.False(t, ok)
}

func TestHub_ShutdownClosesAllOutboxes(t *testing.T) {
	h := NewHub(context.Background(), &fakeRoster{}, zap.NewNop(), 8)

	a := make(chan types.ServerMessage, 1)
	b := make(chan types.ServerMessage, 1)
	h.Register("a", a)
	h.Register("b", b)
	require.Equal(t, 2, h.Clients())

	h.Inbox() <- ShutdownHub{}
	<-h.Done()

	_, okA := <-a
	_, okB := <-b
	assert.False(t, okA)
	assert.False(t, okB)

	// calls after shutdown must not block
	h.NotifyOne("a", types.Error("late"))
	assert.Equal(t, 0, h.Clients())
}
