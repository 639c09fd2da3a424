// Package graphops is the typed mutation layer over a document store. It is
// the only writer of shared graph state: every operation sanitizes what it
// writes and emits the delta for broadcast/persistence.
package graphops

import (
	"fmt"
	"sync"

	"agora-backend/internal/document"
)

// Ops wraps a document store with the graph operations the editor exposes.
// Broadcast (optional) receives every emitted delta; anchor moves are routed
// through a per-edge coalescer first.
type Ops struct {
	Store     *document.Store
	Broadcast func(document.Delta)

	mu        sync.Mutex
	coalescer map[string]*Coalescer
}

// NewOps builds an operation layer over a store.
func NewOps(store *document.Store, broadcast func(document.Delta)) *Ops {
	return &Ops{
		Store:     store,
		Broadcast: broadcast,
		coalescer: make(map[string]*Coalescer),
	}
}

func (o *Ops) emit(d document.Delta) {
	if o.Broadcast != nil && !d.Empty() {
		o.Broadcast(d)
	}
}

// ChangeNodeType transitions a node to a new type, carrying its text content
// into the new type's content field. Node record and text buffer are updated
// in one local transaction, so the change is atomic and later edits stay
// mergeable.
func (o *Ops) ChangeNodeType(nodeID string, newType document.NodeType) error {
	d, err := o.Store.ApplyLocal(document.OriginUser, func(tx *document.Txn) error {
		n, ok := tx.Node(nodeID)
		if !ok {
			return ErrUnknownNode
		}
		text := tx.Text(nodeID)
		if text == "" {
			text = document.Content(n.Data)
		}
		parentEdge := parentEdgeID(n.Data)

		switch newType {
		case document.NodeStatement:
			n.Data = document.StatementData{Statement: text}
		case document.NodePoint:
			n.Data = document.PointData{Content: text, ParentEdgeID: parentEdge}
		case document.NodeTitle:
			n.Data = document.TitleData{Title: text}
		case document.NodeObjection:
			n.Data = document.ObjectionData{Content: text, ParentEdgeID: parentEdge}
		default:
			return fmt.Errorf("cannot transition node to type %q", newType)
		}
		n.Type = newType
		tx.PutNode(n)
		tx.SetText(nodeID, text)
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(d)
	return nil
}

func parentEdgeID(d document.NodeData) string {
	switch v := d.(type) {
	case document.PointData:
		return v.ParentEdgeID
	case document.ObjectionData:
		return v.ParentEdgeID
	case document.EdgeAnchorData:
		return v.ParentEdgeID
	default:
		return ""
	}
}

// ConnectionType picks the relation type for a new connection: a title
// endpoint makes it an option, a connection into the root statement node is
// a statement edge, anything else is a negation.
func ConnectionType(source, target document.Node, rootID string) document.EdgeType {
	if source.Type == document.NodeTitle || target.Type == document.NodeTitle {
		return document.EdgeOption
	}
	if target.ID == rootID {
		return document.EdgeStatement
	}
	return document.EdgeNegation
}

// ConnectionID derives the edge id from the relation type and both endpoint
// handles. Re-issuing the same logical connection yields the same id.
func ConnectionID(typ document.EdgeType, sourceHandle, targetHandle string) string {
	return fmt.Sprintf("edge:%s:%s->%s", typ, sourceHandle, targetHandle)
}

// Connect creates a typed edge between two existing nodes, plus its anchor
// node at the midpoint. Re-issuing the same connection is a no-op that
// returns the existing edge.
func (o *Ops) Connect(sourceID, targetID string) (document.Edge, error) {
	if sourceID == targetID {
		return document.Edge{}, ErrSelfConnection
	}
	var out document.Edge
	d, err := o.Store.ApplyLocal(document.OriginUser, func(tx *document.Txn) error {
		source, ok := tx.Node(sourceID)
		if !ok {
			return ErrUnknownNode
		}
		target, ok := tx.Node(targetID)
		if !ok {
			return ErrUnknownNode
		}
		root, ok := tx.RootStatement()
		if !ok {
			return ErrNoRoot
		}

		typ := ConnectionType(source, target, root.ID)
		id := ConnectionID(typ, sourceID, targetID)
		if existing, ok := tx.Edge(id); ok {
			out = existing
			return nil
		}

		edge := document.Edge{ID: id, Type: typ, Source: sourceID, Target: targetID}
		tx.PutEdge(edge)
		tx.PutNode(document.Node{
			ID:   document.AnchorID(id),
			Type: document.NodeEdgeAnchor,
			Position: document.Position{
				X: (source.Position.X + target.Position.X) / 2,
				Y: (source.Position.Y + target.Position.Y) / 2,
			},
			Data: document.EdgeAnchorData{ParentEdgeID: id},
		})
		out = edge
		return nil
	})
	if err != nil {
		return document.Edge{}, err
	}
	o.emit(d)
	return out, nil
}

// MoveAnchor updates an edge anchor's position. Local state moves
// immediately; the broadcast is coalesced to at most one delta per frame,
// skipping sub-pixel jitter. FlushAnchor ships the final position.
func (o *Ops) MoveAnchor(edgeID string, x, y float64) error {
	anchorID := document.AnchorID(edgeID)
	d, err := o.Store.ApplyLocal(document.OriginUser, func(tx *document.Txn) error {
		n, ok := tx.Node(anchorID)
		if !ok {
			return ErrNoAnchor
		}
		n.Position = document.Position{X: x, Y: y}
		tx.PutNode(n)
		return nil
	})
	if err != nil {
		return err
	}
	o.anchorCoalescer(edgeID).Offer(document.Position{X: x, Y: y}, d)
	return nil
}

// FlushAnchor broadcasts the pending anchor position, if any. Call on drag
// end so the final value is never dropped.
func (o *Ops) FlushAnchor(edgeID string) {
	o.mu.Lock()
	co, ok := o.coalescer[edgeID]
	o.mu.Unlock()
	if ok {
		co.Flush()
	}
}

func (o *Ops) anchorCoalescer(edgeID string) *Coalescer {
	o.mu.Lock()
	defer o.mu.Unlock()
	co, ok := o.coalescer[edgeID]
	if !ok {
		co = NewCoalescer(o.emit)
		o.coalescer[edgeID] = co
	}
	return co
}

// SyncNodes writes a node array into the shared map in one transaction,
// stripping ephemeral fields first.
func (o *Ops) SyncNodes(origin document.Origin, nodes []document.Node) error {
	d, err := o.Store.ApplyLocal(origin, func(tx *document.Txn) error {
		for _, n := range SanitizeNodes(nodes) {
			tx.PutNode(n)
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(d)
	return nil
}

// SyncEdges writes an edge array into the shared map in one transaction,
// stripping ephemeral fields first.
func (o *Ops) SyncEdges(origin document.Origin, edges []document.Edge) error {
	d, err := o.Store.ApplyLocal(origin, func(tx *document.Txn) error {
		for _, e := range SanitizeEdges(edges) {
			tx.PutEdge(e)
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(d)
	return nil
}

// SanitizeNodes returns copies of nodes with session-local presentation
// fields cleared.
func SanitizeNodes(nodes []document.Node) []document.Node {
	out := make([]document.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Sanitized()
	}
	return out
}

// SanitizeEdges returns copies of edges with ephemeral fields cleared.
func SanitizeEdges(edges []document.Edge) []document.Edge {
	out := make([]document.Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Sanitized()
	}
	return out
}
