package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/lucidflow/internal/events"
	"github.com/eldtechnologies/lucidflow/internal/models"
	"github.com/eldtechnologies/lucidflow/internal/store"
)

// countingStore wraps a MemoryStore and counts saves.
type countingStore struct {
	*store.MemoryStore
	mu    sync.Mutex
	saves int
	fail  error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *countingStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.saves++
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStore.Save(ctx, key, data)
}

func (s *countingStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newTestFlow(t *testing.T, st store.SessionStore) *Flow {
	t.Helper()
	return NewFlow("test-session", st, events.NewBus(), zerolog.Nop(), 20*time.Millisecond)
}

func node(id string, msgs ...models.Message) models.Node {
	return models.Node{ID: id, Data: models.NodeData{Label: id, ChatData: msgs}}
}

func edge(id, source, target string) models.Edge {
	return models.Edge{ID: id, Source: source, Target: target}
}

func TestAddNodeRejectsDuplicatesAndEmptyIDs(t *testing.T) {
	ctx := context.Background()
	f := newTestFlow(t, store.NewMemoryStore())

	require.NoError(t, f.AddNode(ctx, node("a")))
	assert.ErrorIs(t, f.AddNode(ctx, node("a")), ErrDuplicate)
	assert.ErrorIs(t, f.AddNode(ctx, node("")), ErrInvalid)
	assert.Equal(t, 1, f.NodeCount())
}

func TestAddEdgeRequiresLiveEndpoints(t *testing.T) {
	ctx := context.Background()
	f := newTestFlow(t, store.NewMemoryStore())
	require.NoError(t, f.AddNode(ctx, node("a")))

	err := f.AddEdge(ctx, edge("e1", "a", "ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.ListEdges())

	require.NoError(t, f.AddNode(ctx, node("b")))
	require.NoError(t, f.AddEdge(ctx, edge("e1", "a", "b")))
	assert.ErrorIs(t, f.AddEdge(ctx, edge("e1", "b", "a")), ErrDuplicate)
	assert.ErrorIs(t, f.AddEdge(ctx, models.Edge{ID: "e2", Source: "a"}), ErrInvalid)
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	ctx := context.Background()
	f := newTestFlow(t, store.NewMemoryStore())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.AddNode(ctx, node(id)))
	}
	require.NoError(t, f.AddEdge(ctx, edge("ab", "a", "b")))
	require.NoError(t, f.AddEdge(ctx, edge("ca", "c", "a")))
	require.NoError(t, f.AddEdge(ctx, edge("cb", "c", "b")))

	var removed events.NodeRemoved
	f.bus.Subscribe(func(ev events.Event) { removed = ev.(events.NodeRemoved) }, events.KindNodeRemoved)

	require.NoError(t, f.RemoveNode(ctx, "a"))

	edges := f.ListEdges()
	require.Len(t, edges, 1)
	assert.Equal(t, "cb", edges[0].ID)
	for _, e := range edges {
		assert.False(t, e.Touches("a"))
	}
	_, ok := f.FindNode("a")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"ab", "ca"}, removed.EdgesRemoved)

	// remaining nodes are still addressable after reindexing
	n, ok := f.FindNode("c")
	require.True(t, ok)
	assert.Equal(t, "c", n.ID)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	f := newTestFlow(t, st)

	require.NoError(t, f.RemoveNode(ctx, "ghost"))
	require.NoError(t, f.RemoveEdge(ctx, "ghost"))
	require.NoError(t, f.UpdateNodeChatData(ctx, "ghost", nil))
	assert.False(t, f.UpdateNodePosition("ghost", 1, 2))
	assert.Equal(t, 0, st.saveCount())
}

func TestStructuralMutationsPersistImmediately(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	f := newTestFlow(t, st)

	require.NoError(t, f.AddNode(ctx, node("a")))
	require.NoError(t, f.AddNode(ctx, node("b")))
	require.NoError(t, f.AddEdge(ctx, edge("ab", "a", "b")))
	require.NoError(t, f.UpdateNodeChatData(ctx, "a", []models.Message{{ID: "1", Sender: "user"}}))
	require.NoError(t, f.RemoveEdge(ctx, "ab"))
	assert.Equal(t, 5, st.saveCount())
}

func TestUpdateNodeChatDataReplaces(t *testing.T) {
	ctx := context.Background()
	f := newTestFlow(t, store.NewMemoryStore())
	require.NoError(t, f.AddNode(ctx, node("a", models.Message{ID: "old", Sender: "user", Message: models.StringPtr("old")})))

	fresh := []models.Message{{ID: "new", Sender: "model", Message: models.StringPtr("new")}}
	require.NoError(t, f.UpdateNodeChatData(ctx, "a", fresh))

	got, ok := f.NodeChatData("a")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)

	// the stored copy is independent of the caller's slice
	*fresh[0].Message = "mutated"
	got, _ = f.NodeChatData("a")
	assert.Equal(t, "new", got[0].Text())
}

func TestAppendNodeChatData(t *testing.T) {
	ctx := context.Background()
	f := newTestFlow(t, store.NewMemoryStore())
	require.NoError(t, f.AddNode(ctx, node("a", models.Message{ID: "1", Sender: "user"})))

	require.NoError(t, f.AppendNodeChatData(ctx, "a", models.Message{ID: "2", Sender: "model"}))
	got, _ := f.NodeChatData("a")
	assert.Len(t, got, 2)

	assert.ErrorIs(t, f.AppendNodeChatData(ctx, "ghost", models.Message{ID: "3"}), ErrNotFound)
}

func TestNodeChatDataUnknown(t *testing.T) {
	f := newTestFlow(t, store.NewMemoryStore())
	msgs, ok := f.NodeChatData("ghost")
	assert.False(t, ok)
	assert.Nil(t, msgs)
}

func TestPositionUpdatesAreDebounced(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	f := newTestFlow(t, st)
	require.NoError(t, f.AddNode(ctx, node("a")))
	base := st.saveCount()

	for i := 0; i < 10; i++ {
		require.True(t, f.UpdateNodePosition("a", float64(i), float64(i)))
	}
	assert.Equal(t, base, st.saveCount(), "no synchronous save on drag")

	require.Eventually(t, func() bool { return st.saveCount() == base+1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, base+1, st.saveCount(), "burst coalesced into one save")

	data, err := st.Load(ctx, f.Key())
	require.NoError(t, err)
	var sess models.Session
	require.NoError(t, json.Unmarshal(data, &sess))
	assert.Equal(t, models.Position{X: 9, Y: 9}, sess.Nodes[0].Position)
}

func TestStructuralSaveAbsorbsPendingPosition(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	f := newTestFlow(t, st)
	require.NoError(t, f.AddNode(ctx, node("a")))

	f.UpdateNodePosition("a", 5, 5)
	require.NoError(t, f.AddNode(ctx, node("b")))
	base := st.saveCount()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, base, st.saveCount())
}

func TestFlushWritesPendingSave(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	f := NewFlow("s", st, nil, zerolog.Nop(), time.Hour)
	require.NoError(t, f.AddNode(ctx, node("a")))
	base := st.saveCount()

	f.SetViewport(models.Viewport{X: 1, Y: 2, Zoom: 1.5})
	require.NoError(t, f.Flush(ctx))
	assert.Equal(t, base+1, st.saveCount())

	// nothing pending any more
	require.NoError(t, f.Flush(ctx))
	assert.Equal(t, base+1, st.saveCount())
}

func TestFailedDebouncedSaveIsRetriedOnClose(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	f := newTestFlow(t, st)
	require.NoError(t, f.AddNode(ctx, node("a")))
	base := st.saveCount()

	st.setFail(errors.New("connection reset"))
	require.True(t, f.UpdateNodePosition("a", 42, 7))
	require.Eventually(t, func() bool { return st.saveCount() > base }, time.Second, 5*time.Millisecond)
	require.Eventually(t, f.buffer.isPending, time.Second, 5*time.Millisecond, "failed write stays pending")

	st.setFail(nil)
	require.NoError(t, f.Close(ctx))

	data, err := st.Load(ctx, f.Key())
	require.NoError(t, err)
	var sess models.Session
	require.NoError(t, json.Unmarshal(data, &sess))
	assert.Equal(t, models.Position{X: 42, Y: 7}, sess.Nodes[0].Position)
}

func TestFailedExplicitSaveStaysPending(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	f := NewFlow("s", st, nil, zerolog.Nop(), time.Hour)
	require.NoError(t, f.AddNode(ctx, node("a")))

	st.setFail(errors.New("disk full"))
	f.SetViewport(models.Viewport{Zoom: 2})
	require.Error(t, f.Flush(ctx))
	assert.True(t, f.buffer.isPending())

	st.setFail(nil)
	require.NoError(t, f.Flush(ctx))
	assert.False(t, f.buffer.isPending())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	f := newTestFlow(t, st)

	msg := models.Message{
		ID:              "01",
		Sender:          "user",
		Message:         models.StringPtr("hello"),
		CreatedAt:       1700000000000,
		IsEnabledByNode: map[string]bool{"b": false},
	}
	a := node("a", msg)
	a.Position = models.Position{X: 10, Y: 20}
	a.Data.Agent = models.AgentInfo{SubType: "webpage", Watch: true, Source: "https://example.com"}
	require.NoError(t, f.AddNode(ctx, a))
	require.NoError(t, f.AddNode(ctx, node("b")))
	require.NoError(t, f.AddEdge(ctx, models.Edge{ID: "ab", Source: "a", Target: "b", Animated: true}))
	f.SetViewport(models.Viewport{X: 3, Y: 4, Zoom: 2})
	require.NoError(t, f.Save(ctx))

	restored := newTestFlow(t, st)
	found, err := restored.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, f.Snapshot(), restored.Snapshot())
}

func TestLoadMissingKeepsGraph(t *testing.T) {
	ctx := context.Background()
	f := newTestFlow(t, store.NewMemoryStore())
	f.nodes = append(f.nodes, node("a"))
	f.reindex()

	found, err := f.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, f.NodeCount())
}

func TestLoadDropsDanglingEdges(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	blob := `{"nodes":[{"id":"a","position":{"x":0,"y":0},"data":{"label":"a","agent":{"subType":""}}}],
		"edges":[{"id":"ax","source":"a","target":"x"}]}`
	require.NoError(t, st.Save(ctx, "test-session", []byte(blob)))

	f := newTestFlow(t, st)
	found, err := f.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, f.NodeCount())
	assert.Empty(t, f.ListEdges())
}

func TestLoadCorruptBlob(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(ctx, "test-session", []byte("{not json")))

	_, err := newTestFlow(t, st).Load(ctx)
	assert.ErrorIs(t, err, store.ErrPersistence)
}

func TestSaveFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	st.fail = errors.New("disk full")
	f := newTestFlow(t, st)

	err := f.AddNode(ctx, node("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestDeleteClearsGraph(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	f := newTestFlow(t, st)
	require.NoError(t, f.AddNode(ctx, node("a")))

	require.NoError(t, f.Delete(ctx))
	assert.Equal(t, 0, f.NodeCount())

	data, err := st.Load(ctx, f.Key())
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMutationEventsPublished(t *testing.T) {
	ctx := context.Background()
	f := newTestFlow(t, store.NewMemoryStore())

	var kinds []events.Kind
	f.bus.Subscribe(func(ev events.Event) { kinds = append(kinds, ev.Kind()) })

	require.NoError(t, f.AddNode(ctx, node("a")))
	assert.Equal(t, []events.Kind{events.KindNodeAdded, events.KindSessionSaved}, kinds)
}
