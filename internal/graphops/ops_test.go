package graphops

import (
	"sync"
	"testing"
	"time"

	"agora-backend/internal/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deltaRecorder struct {
	mu     sync.Mutex
	deltas []document.Delta
}

func (r *deltaRecorder) record(d document.Delta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, d)
}

func (r *deltaRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deltas)
}

func (r *deltaRecorder) all() []document.Delta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]document.Delta(nil), r.deltas...)
}

func newTestOps(t *testing.T) (*Ops, *document.Store, *deltaRecorder) {
	t.Helper()
	store := document.NewStore("doc-1", "r1")
	rec := &deltaRecorder{}
	ops := NewOps(store, rec.record)

	_, err := store.ApplyLocal(document.OriginRuntime, func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "root", Type: document.NodeStatement, Data: document.StatementData{Statement: "claim"}})
		tx.SetText("root", "claim")
		return nil
	})
	require.NoError(t, err)
	return ops, store, rec
}

func addPoint(t *testing.T, store *document.Store, id, content string) {
	t.Helper()
	_, err := store.ApplyLocal(document.OriginRuntime, func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: id, Type: document.NodePoint, Data: document.PointData{Content: content}})
		tx.SetText(id, content)
		return nil
	})
	require.NoError(t, err)
}

func TestChangeNodeTypeCarriesContent(t *testing.T) {
	ops, store, _ := newTestOps(t)
	_, err := store.ApplyLocal(document.OriginRuntime, func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "S", Type: document.NodeStatement, Data: document.StatementData{Statement: "A"}})
		tx.SetText("S", "A")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ops.ChangeNodeType("S", document.NodePoint))

	n, ok := store.Node("S")
	require.True(t, ok)
	assert.Equal(t, document.NodePoint, n.Type)
	assert.Equal(t, document.PointData{Content: "A"}, n.Data)
	assert.Equal(t, "A", store.TextContent("S"))
}

func TestChangeNodeTypeUnknownNode(t *testing.T) {
	ops, _, _ := newTestOps(t)
	assert.ErrorIs(t, ops.ChangeNodeType("ghost", document.NodePoint), ErrUnknownNode)
}

func TestConnectNegationByDefault(t *testing.T) {
	ops, store, rec := newTestOps(t)
	addPoint(t, store, "A", "a")
	addPoint(t, store, "C", "c")

	edge, err := ops.Connect("C", "A")
	require.NoError(t, err)
	assert.Equal(t, document.EdgeNegation, edge.Type)
	assert.Equal(t, "edge:negation:C->A", edge.ID)

	// Anchor created alongside.
	_, ok := store.Node(document.AnchorID(edge.ID))
	assert.True(t, ok)
	assert.Equal(t, 1, rec.count())
}

func TestConnectToRootIsStatementEdge(t *testing.T) {
	ops, store, _ := newTestOps(t)
	addPoint(t, store, "A", "a")

	edge, err := ops.Connect("A", "root")
	require.NoError(t, err)
	assert.Equal(t, document.EdgeStatement, edge.Type)
}

func TestConnectTitleEndpointIsOption(t *testing.T) {
	ops, store, _ := newTestOps(t)
	addPoint(t, store, "A", "a")
	_, err := store.ApplyLocal(document.OriginRuntime, func(tx *document.Txn) error {
		tx.PutNode(document.Node{ID: "T", Type: document.NodeTitle, Data: document.TitleData{Title: "t"}})
		return nil
	})
	require.NoError(t, err)

	edge, err := ops.Connect("T", "A")
	require.NoError(t, err)
	assert.Equal(t, document.EdgeOption, edge.Type)
}

// Re-issuing the same logical connection never creates a duplicate.
func TestConnectIdempotent(t *testing.T) {
	ops, store, _ := newTestOps(t)
	addPoint(t, store, "A", "a")
	addPoint(t, store, "C", "c")

	first, err := ops.Connect("C", "A")
	require.NoError(t, err)
	second, err := ops.Connect("C", "A")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.Edges(), 1)
}

func TestConnectSelf(t *testing.T) {
	ops, _, _ := newTestOps(t)
	_, err := ops.Connect("A", "A")
	assert.ErrorIs(t, err, ErrSelfConnection)
}

func TestMoveAnchorLocalImmediateBroadcastCoalesced(t *testing.T) {
	ops, store, rec := newTestOps(t)
	addPoint(t, store, "A", "a")
	addPoint(t, store, "C", "c")
	edge, err := ops.Connect("C", "A")
	require.NoError(t, err)
	before := rec.count()

	// A burst of moves within one frame.
	for i := 1; i <= 10; i++ {
		require.NoError(t, ops.MoveAnchor(edge.ID, float64(i*10), float64(i*10)))
	}

	// Local state reflects the last move immediately.
	n, ok := store.Node(document.AnchorID(edge.ID))
	require.True(t, ok)
	assert.Equal(t, document.Position{X: 100, Y: 100}, n.Position)

	// Far fewer broadcasts than moves: at most one per elapsed frame.
	time.Sleep(3 * Frame)
	assert.Less(t, rec.count()-before, 10)
	assert.GreaterOrEqual(t, rec.count()-before, 1)

	// The final value is never dropped.
	ops.FlushAnchor(edge.ID)
	deltas := rec.all()
	last := deltas[len(deltas)-1]
	require.NotEmpty(t, last.Nodes)
	assert.Equal(t, document.Position{X: 100, Y: 100}, last.Nodes[len(last.Nodes)-1].Node.Position)
}

// A drag ending on a sub-threshold move still broadcasts the final position
// without an explicit flush.
func TestMoveAnchorFinalSubPixelMoveShips(t *testing.T) {
	ops, store, rec := newTestOps(t)
	addPoint(t, store, "A", "a")
	addPoint(t, store, "C", "c")
	edge, err := ops.Connect("C", "A")
	require.NoError(t, err)

	require.NoError(t, ops.MoveAnchor(edge.ID, 50, 50))
	time.Sleep(2 * Frame)
	before := rec.count()

	// Final nudge below the move threshold.
	require.NoError(t, ops.MoveAnchor(edge.ID, 50.4, 50))
	time.Sleep(4 * Frame)

	require.Greater(t, rec.count(), before)
	deltas := rec.all()
	last := deltas[len(deltas)-1]
	require.NotEmpty(t, last.Nodes)
	assert.Equal(t, document.Position{X: 50.4, Y: 50}, last.Nodes[len(last.Nodes)-1].Node.Position)
}

// An anchor dragged through (10,20) to (30,40) ends at (30,40) in both
// local and shared state.
func TestMoveAnchorConvergesWithPeer(t *testing.T) {
	ops, store, rec := newTestOps(t)
	require.NoError(t, ops.SyncNodes(document.OriginRuntime, []document.Node{
		{ID: "A", Type: document.NodePoint, Data: document.PointData{Content: "a"}},
		{ID: "C", Type: document.NodePoint, Data: document.PointData{Content: "c"}},
	}))
	edge, err := ops.Connect("C", "A")
	require.NoError(t, err)

	require.NoError(t, ops.MoveAnchor(edge.ID, 10, 20))
	ops.FlushAnchor(edge.ID)
	require.NoError(t, ops.MoveAnchor(edge.ID, 30, 40))
	ops.FlushAnchor(edge.ID)

	peer := document.NewStore("doc-1", "r2")
	for _, d := range rec.all() {
		require.NoError(t, peer.ApplyRemote(d))
	}
	local, _ := store.Node(document.AnchorID(edge.ID))
	remote, ok := peer.Node(document.AnchorID(edge.ID))
	require.True(t, ok)
	assert.Equal(t, document.Position{X: 30, Y: 40}, local.Position)
	assert.Equal(t, document.Position{X: 30, Y: 40}, remote.Position)
}

func TestMoveAnchorNoAnchor(t *testing.T) {
	ops, _, _ := newTestOps(t)
	assert.ErrorIs(t, ops.MoveAnchor("ghost-edge", 1, 2), ErrNoAnchor)
}

func TestSanitizeStripsEphemeralFields(t *testing.T) {
	nodes := []document.Node{{
		ID: "A", Type: document.NodePoint, Data: document.PointData{Content: "a"},
		Selected: true, Dragging: true, EditedBy: "u1",
	}}
	edges := []document.Edge{{ID: "e", Type: document.EdgeNegation, Source: "A", Target: "B", Selected: true}}

	sn := SanitizeNodes(nodes)
	se := SanitizeEdges(edges)
	assert.False(t, sn[0].Selected)
	assert.False(t, sn[0].Dragging)
	assert.Empty(t, sn[0].EditedBy)
	assert.False(t, se[0].Selected)
	// Originals untouched.
	assert.True(t, nodes[0].Selected)
}
