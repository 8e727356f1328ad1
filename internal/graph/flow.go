// Package graph owns the conversation topology of a session: nodes, edges,
// node-local chat data, and the persistence of all of it through a
// store.SessionStore.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/lucidflow/internal/events"
	"github.com/eldtechnologies/lucidflow/internal/metrics"
	"github.com/eldtechnologies/lucidflow/internal/models"
	"github.com/eldtechnologies/lucidflow/internal/store"
)

// DefaultDebounce is the quiet period before a position or viewport change
// is persisted.
const DefaultDebounce = 100 * time.Millisecond

// Flow is the in-memory graph of one session.
//
// Structural mutations (nodes, edges, chat data) are persisted before they
// return. Position and viewport updates go through a coalescing buffer and
// are persisted once the burst settles.
type Flow struct {
	key    string
	store  store.SessionStore
	bus    *events.Bus
	logger zerolog.Logger

	mu       sync.RWMutex
	nodes    []models.Node
	index    map[string]int
	edges    []models.Edge
	viewport *models.Viewport

	// saveMu serializes snapshot+write so a later snapshot never lands
	// before an earlier one.
	saveMu sync.Mutex
	buffer *saveBuffer
}

// NewFlow creates an empty flow persisted under key. A nil bus disables
// event publishing; a non-positive debounce uses DefaultDebounce.
func NewFlow(key string, st store.SessionStore, bus *events.Bus, logger zerolog.Logger, debounce time.Duration) *Flow {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	f := &Flow{
		key:    key,
		store:  st,
		bus:    bus,
		logger: logger.With().Str("session", key).Logger(),
		index:  make(map[string]int),
	}
	f.buffer = newSaveBuffer(debounce, f.flushBuffered)
	return f
}

// Key returns the session key the flow is persisted under.
func (f *Flow) Key() string { return f.key }

// AddNode inserts node and persists the session.
func (f *Flow) AddNode(ctx context.Context, node models.Node) error {
	if node.ID == "" {
		return fmt.Errorf("%w: node id is required", ErrInvalid)
	}

	f.mu.Lock()
	if _, ok := f.index[node.ID]; ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: node %q", ErrDuplicate, node.ID)
	}
	f.index[node.ID] = len(f.nodes)
	f.nodes = append(f.nodes, node.Clone())
	f.mu.Unlock()

	f.publish(events.NodeAdded{Session: f.key, NodeID: node.ID})
	return f.Save(ctx)
}

// RemoveNode deletes the node and every edge touching it, then persists.
// Removing an unknown node is a no-op.
func (f *Flow) RemoveNode(ctx context.Context, id string) error {
	f.mu.Lock()
	pos, ok := f.index[id]
	if !ok {
		f.mu.Unlock()
		return nil
	}

	f.nodes = append(f.nodes[:pos], f.nodes[pos+1:]...)
	f.reindex()

	var removed []string
	kept := f.edges[:0]
	for _, e := range f.edges {
		if e.Touches(id) {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	f.edges = kept
	f.mu.Unlock()

	f.logger.Debug().Str("node", id).Int("edges_removed", len(removed)).Msg("Node removed")
	f.publish(events.NodeRemoved{Session: f.key, NodeID: id, EdgesRemoved: removed})
	return f.Save(ctx)
}

// AddEdge inserts edge and persists. Both endpoints must exist.
func (f *Flow) AddEdge(ctx context.Context, edge models.Edge) error {
	if edge.ID == "" || edge.Source == "" || edge.Target == "" {
		return fmt.Errorf("%w: edge requires id, source and target", ErrInvalid)
	}

	f.mu.Lock()
	for _, e := range f.edges {
		if e.ID == edge.ID {
			f.mu.Unlock()
			return fmt.Errorf("%w: edge %q", ErrDuplicate, edge.ID)
		}
	}
	for _, end := range []string{edge.Source, edge.Target} {
		if _, ok := f.index[end]; !ok {
			f.mu.Unlock()
			return fmt.Errorf("%w: edge endpoint %q", ErrNotFound, end)
		}
	}
	f.edges = append(f.edges, edge)
	f.mu.Unlock()

	f.publish(events.EdgeAdded{Session: f.key, EdgeID: edge.ID, Source: edge.Source, Target: edge.Target})
	return f.Save(ctx)
}

// RemoveEdge deletes the edge and persists. Unknown ids are a no-op.
func (f *Flow) RemoveEdge(ctx context.Context, id string) error {
	f.mu.Lock()
	found := -1
	for i, e := range f.edges {
		if e.ID == id {
			found = i
			break
		}
	}
	if found < 0 {
		f.mu.Unlock()
		return nil
	}
	f.edges = append(f.edges[:found], f.edges[found+1:]...)
	f.mu.Unlock()

	f.publish(events.EdgeRemoved{Session: f.key, EdgeID: id})
	return f.Save(ctx)
}

// UpdateNodePosition moves a node and schedules a debounced save. It
// reports whether the node exists.
func (f *Flow) UpdateNodePosition(id string, x, y float64) bool {
	f.mu.Lock()
	pos, ok := f.index[id]
	if ok {
		f.nodes[pos].Position = models.Position{X: x, Y: y}
	}
	f.mu.Unlock()
	if !ok {
		return false
	}

	f.publish(events.NodeMoved{Session: f.key, NodeID: id, X: x, Y: y})
	f.scheduleSave()
	return true
}

// SetViewport records the canvas transform and schedules a debounced save.
func (f *Flow) SetViewport(v models.Viewport) {
	f.mu.Lock()
	f.viewport = &v
	f.mu.Unlock()

	f.scheduleSave()
}

// Viewport returns the saved canvas transform, if any.
func (f *Flow) Viewport() (models.Viewport, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.viewport == nil {
		return models.Viewport{}, false
	}
	return *f.viewport, true
}

// NodeChatData returns a copy of the node's messages. The second result is
// false when the node does not exist.
func (f *Flow) NodeChatData(id string) ([]models.Message, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pos, ok := f.index[id]
	if !ok {
		return nil, false
	}
	return models.CloneMessages(f.nodes[pos].Data.ChatData), true
}

// UpdateNodeChatData replaces the node's messages wholesale and persists.
// Unknown ids are a no-op.
func (f *Flow) UpdateNodeChatData(ctx context.Context, id string, msgs []models.Message) error {
	f.mu.Lock()
	pos, ok := f.index[id]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	f.nodes[pos].Data.ChatData = models.CloneMessages(msgs)
	n := len(msgs)
	f.mu.Unlock()

	f.publish(events.ChatDataUpdated{Session: f.key, NodeID: id, Messages: n})
	return f.Save(ctx)
}

// AppendNodeChatData adds one message to the end of the node's history
// and persists. Unlike UpdateNodeChatData, an unknown node is an error
// because the caller expects the message to be recorded.
func (f *Flow) AppendNodeChatData(ctx context.Context, id string, msg models.Message) error {
	f.mu.Lock()
	pos, ok := f.index[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: node %q", ErrNotFound, id)
	}
	f.nodes[pos].Data.ChatData = append(f.nodes[pos].Data.ChatData, msg.Clone())
	n := len(f.nodes[pos].Data.ChatData)
	f.mu.Unlock()

	f.publish(events.ChatDataUpdated{Session: f.key, NodeID: id, Messages: n})
	return f.Save(ctx)
}

// FindNode returns a copy of the node with the given id.
func (f *Flow) FindNode(id string) (models.Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pos, ok := f.index[id]
	if !ok {
		return models.Node{}, false
	}
	return f.nodes[pos].Clone(), true
}

// ListNodes returns copies of all nodes in insertion order.
func (f *Flow) ListNodes() []models.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]models.Node, len(f.nodes))
	for i, n := range f.nodes {
		out[i] = n.Clone()
	}
	return out
}

// ListEdges returns all edges in insertion order.
func (f *Flow) ListEdges() []models.Edge {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]models.Edge, len(f.edges))
	copy(out, f.edges)
	return out
}

// NodeCount returns the number of nodes.
func (f *Flow) NodeCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.nodes)
}

// ConnectedNodes returns the upstream closure of nodeID. See Upstream for
// ordering guarantees. An unknown node yields nil.
func (f *Flow) ConnectedNodes(nodeID string, includeSelf bool) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, ok := f.index[nodeID]; !ok {
		return nil
	}
	return Upstream(f.edges, nodeID, includeSelf)
}

// Snapshot returns a deep copy of the graph in its persisted shape.
func (f *Flow) Snapshot() models.Session {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() models.Session {
	sess := models.Session{
		Nodes: make([]models.Node, len(f.nodes)),
		Edges: make([]models.Edge, len(f.edges)),
	}
	for i, n := range f.nodes {
		sess.Nodes[i] = n.Clone()
	}
	copy(sess.Edges, f.edges)
	if f.viewport != nil {
		v := *f.viewport
		sess.Viewport = &v
	}
	return sess
}

// Save serializes the graph and writes it to the store, absorbing any
// pending debounced write. A failed write stays pending for Flush.
func (f *Flow) Save(ctx context.Context) error {
	f.buffer.take()

	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	f.mu.RLock()
	data, err := json.Marshal(f.snapshotLocked())
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: encode session %q: %v", store.ErrPersistence, f.key, err)
	}

	if err := f.store.Save(ctx, f.key, data); err != nil {
		f.buffer.restore()
		metrics.SessionSaves.WithLabelValues(f.store.Backend(), "error").Inc()
		f.logger.Error().Err(err).Msg("Failed to save session")
		return err
	}

	metrics.SessionSaves.WithLabelValues(f.store.Backend(), "ok").Inc()
	f.publish(events.SessionSaved{Session: f.key, Bytes: len(data)})
	return nil
}

// Load replaces the in-memory graph with the persisted session. It reports
// false when nothing is stored under the key, leaving the graph untouched.
//
// Duplicate node ids keep their first occurrence and edges whose endpoints
// are missing are dropped, so a hand-edited or partially written blob
// cannot break the graph invariants.
func (f *Flow) Load(ctx context.Context) (bool, error) {
	data, err := f.store.Load(ctx, f.key)
	if err != nil {
		metrics.SessionLoads.WithLabelValues(f.store.Backend(), "error").Inc()
		return false, err
	}
	if data == nil {
		metrics.SessionLoads.WithLabelValues(f.store.Backend(), "empty").Inc()
		return false, nil
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		metrics.SessionLoads.WithLabelValues(f.store.Backend(), "error").Inc()
		return false, fmt.Errorf("%w: decode session %q: %v", store.ErrPersistence, f.key, err)
	}

	f.buffer.take()

	f.mu.Lock()
	f.nodes = f.nodes[:0]
	f.index = make(map[string]int, len(sess.Nodes))
	for _, n := range sess.Nodes {
		if n.ID == "" {
			continue
		}
		if _, dup := f.index[n.ID]; dup {
			f.logger.Warn().Str("node", n.ID).Msg("Dropping duplicate node from stored session")
			continue
		}
		f.index[n.ID] = len(f.nodes)
		f.nodes = append(f.nodes, n)
	}
	f.edges = f.edges[:0]
	for _, e := range sess.Edges {
		_, srcOK := f.index[e.Source]
		_, dstOK := f.index[e.Target]
		if !srcOK || !dstOK {
			f.logger.Warn().Str("edge", e.ID).Msg("Dropping dangling edge from stored session")
			continue
		}
		f.edges = append(f.edges, e)
	}
	f.viewport = sess.Viewport
	nodes, edges := len(f.nodes), len(f.edges)
	f.mu.Unlock()

	metrics.SessionLoads.WithLabelValues(f.store.Backend(), "ok").Inc()
	f.publish(events.SessionLoaded{Session: f.key, Nodes: nodes, Edges: edges})
	return true, nil
}

// Delete removes the persisted session and clears the in-memory graph.
func (f *Flow) Delete(ctx context.Context) error {
	f.buffer.take()

	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	if err := f.store.Delete(ctx, f.key); err != nil {
		return err
	}
	f.reset()

	f.publish(events.SessionDeleted{Session: f.key})
	return nil
}

// Flush persists a pending debounced write immediately, if there is one.
func (f *Flow) Flush(ctx context.Context) error {
	if !f.buffer.isPending() {
		return nil
	}
	return f.Save(ctx)
}

// Close flushes pending writes. The flow must not be used afterwards.
func (f *Flow) Close(ctx context.Context) error {
	return f.Flush(ctx)
}

func (f *Flow) scheduleSave() {
	if f.buffer.schedule() {
		metrics.DebouncedWrites.Inc()
	}
}

// flushBuffered runs on the buffer's timer goroutine.
func (f *Flow) flushBuffered() {
	if err := f.Save(context.Background()); err != nil {
		f.logger.Warn().Err(err).Msg("Debounced save failed")
	}
}

// reset empties the in-memory graph without touching the store.
func (f *Flow) reset() {
	f.buffer.take()

	f.mu.Lock()
	f.nodes = nil
	f.index = make(map[string]int)
	f.edges = nil
	f.viewport = nil
	f.mu.Unlock()
}

func (f *Flow) reindex() {
	f.index = make(map[string]int, len(f.nodes))
	for i, n := range f.nodes {
		f.index[n.ID] = i
	}
}

func (f *Flow) publish(ev events.Event) {
	switch ev.Kind() {
	case events.KindSessionSaved, events.KindSessionLoaded, events.KindSessionDeleted:
	default:
		metrics.GraphMutations.WithLabelValues(string(ev.Kind())).Inc()
	}
	f.bus.Publish(ev)
}
