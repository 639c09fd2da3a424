package document

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrWrongDoc      = errors.New("delta addressed to a different document")
	ErrInvalidOrigin = errors.New("delta has an unknown origin tag")
)

type nodeRecord struct {
	Node      Node
	Clock     Clock
	Tombstone bool
}

type edgeRecord struct {
	Edge      Edge
	Clock     Clock
	Tombstone bool
}

// Store holds one document replica: LWW node/edge maps plus per-node text
// buffers. A Store is safe for concurrent use; each local transaction is
// applied synchronously before the next delta (local or remote).
//
// Writes whose dependencies have not arrived yet (an edge before its
// endpoint nodes, an anchor before its edge, a character before its left
// origin) are parked and integrated as soon as the dependency shows up, so
// replicas converge on the same multiset of deltas in any arrival order.
// Only malformed entries are dropped.
type Store struct {
	mu      sync.Mutex
	docID   string
	replica string
	lamport uint64
	charSeq uint64
	nodes   map[string]nodeRecord
	edges   map[string]edgeRecord
	text    map[string]*Text

	pendingEdges   []EdgeWrite
	pendingAnchors []NodeWrite
	pendingText    []TextOp
}

// NewStore creates an empty replica of a document.
func NewStore(docID, replica string) *Store {
	return &Store{
		docID:   docID,
		replica: replica,
		nodes:   make(map[string]nodeRecord),
		edges:   make(map[string]edgeRecord),
		text:    make(map[string]*Text),
	}
}

// DocID returns the document identity.
func (s *Store) DocID() string { return s.docID }

// Replica returns this replica's id.
func (s *Store) Replica() string { return s.replica }

// Txn collects the writes of one local transaction. Writes are staged inside
// the Txn and committed to the store only when the mutator returns nil; an
// erroring mutator leaves the store untouched. Obtained only through
// ApplyLocal; not valid after the mutator returns.
type Txn struct {
	s       *Store
	clock   Clock
	charSeq uint64
	delta   *Delta
	nodes   map[string]nodeRecord
	edges   map[string]edgeRecord
	text    map[string]*Text
}

func (t *Txn) nodeRecord(id string) (nodeRecord, bool) {
	if rec, ok := t.nodes[id]; ok {
		return rec, true
	}
	rec, ok := t.s.nodes[id]
	return rec, ok
}

func (t *Txn) edgeRecord(id string) (edgeRecord, bool) {
	if rec, ok := t.edges[id]; ok {
		return rec, true
	}
	rec, ok := t.s.edges[id]
	return rec, ok
}

// buffer returns the staged text buffer for a node, cloning the committed
// one on first touch.
func (t *Txn) buffer(nodeID string) *Text {
	if buf, ok := t.text[nodeID]; ok {
		return buf
	}
	var buf *Text
	if committed, ok := t.s.text[nodeID]; ok {
		buf = committed.clone()
	} else {
		buf = NewText()
	}
	t.text[nodeID] = buf
	return buf
}

// PutNode writes a whole node record. Ephemeral UI fields are stripped
// before the write reaches the shared map.
func (t *Txn) PutNode(n Node) {
	n = n.Sanitized()
	t.nodes[n.ID] = nodeRecord{Node: n, Clock: t.clock}
	t.delta.Nodes = append(t.delta.Nodes, NodeWrite{Clock: t.clock, Node: n})
}

// DeleteNode tombstones a node.
func (t *Txn) DeleteNode(id string) {
	rec, _ := t.nodeRecord(id)
	rec.Node.ID = id
	rec.Clock = t.clock
	rec.Tombstone = true
	t.nodes[id] = rec
	t.delta.Nodes = append(t.delta.Nodes, NodeWrite{Clock: t.clock, Tombstone: true, Node: Node{ID: id, Type: rec.Node.Type, Data: rec.Node.Data}})
}

// PutEdge writes a whole edge record, sanitized.
func (t *Txn) PutEdge(e Edge) {
	e = e.Sanitized()
	t.edges[e.ID] = edgeRecord{Edge: e, Clock: t.clock}
	t.delta.Edges = append(t.delta.Edges, EdgeWrite{Clock: t.clock, Edge: e})
}

// DeleteEdge tombstones an edge.
func (t *Txn) DeleteEdge(id string) {
	rec, _ := t.edgeRecord(id)
	rec.Edge.ID = id
	rec.Clock = t.clock
	rec.Tombstone = true
	t.edges[id] = rec
	t.delta.Edges = append(t.delta.Edges, EdgeWrite{Clock: t.clock, Tombstone: true, Edge: Edge{ID: id, Type: rec.Edge.Type, Source: rec.Edge.Source, Target: rec.Edge.Target}})
}

// Node returns the live node with the given id, staged writes included.
func (t *Txn) Node(id string) (Node, bool) {
	rec, ok := t.nodeRecord(id)
	if !ok || rec.Tombstone {
		return Node{}, false
	}
	return rec.Node, true
}

// Edge returns the live edge with the given id, staged writes included.
func (t *Txn) Edge(id string) (Edge, bool) {
	rec, ok := t.edgeRecord(id)
	if !ok || rec.Tombstone {
		return Edge{}, false
	}
	return rec.Edge, true
}

// RootStatement returns the board's root statement node as seen by this
// transaction. Ties resolve to the lexicographically smallest id, matching
// Store.RootStatement.
func (t *Txn) RootStatement() (Node, bool) {
	var best Node
	found := false
	consider := func(rec nodeRecord) {
		if rec.Tombstone || rec.Node.Type != NodeStatement {
			return
		}
		if !found || rec.Node.ID < best.ID {
			best = rec.Node
			found = true
		}
	}
	for id, rec := range t.s.nodes {
		if _, staged := t.nodes[id]; staged {
			continue
		}
		consider(rec)
	}
	for _, rec := range t.nodes {
		consider(rec)
	}
	return best, found
}

// Text returns the current merged text for a node, staged edits included.
func (t *Txn) Text(nodeID string) string {
	if buf, ok := t.text[nodeID]; ok {
		return buf.String()
	}
	if buf, ok := t.s.text[nodeID]; ok {
		return buf.String()
	}
	return ""
}

// SetText replaces a node's text, emitting character-level ops for the
// minimal middle edit (common prefix/suffix preserved) so concurrent edits
// to other parts of the text merge without loss.
func (t *Txn) SetText(nodeID, target string) {
	buf := t.buffer(nodeID)
	cur := []rune(buf.String())
	next := []rune(target)

	prefix := 0
	for prefix < len(cur) && prefix < len(next) && cur[prefix] == next[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(cur)-prefix && suffix < len(next)-prefix &&
		cur[len(cur)-1-suffix] == next[len(next)-1-suffix] {
		suffix++
	}

	ids := buf.ids()
	for i := prefix; i < len(cur)-suffix; i++ {
		id := ids[i]
		buf.Delete(id)
		t.delta.Text = append(t.delta.Text, TextOp{NodeID: nodeID, Op: TextDelete, ID: id})
	}

	after := CharID{}
	if prefix > 0 {
		after = ids[prefix-1]
	}
	for i := prefix; i < len(next)-suffix; i++ {
		t.charSeq++
		id := CharID{Replica: t.s.replica, Seq: t.charSeq}
		buf.Insert(id, after, next[i])
		t.delta.Text = append(t.delta.Text, TextOp{NodeID: nodeID, Op: TextInsert, ID: id, After: after, Ch: string(next[i])})
		after = id
	}
}

// ApplyLocal runs a mutator inside one local transaction and returns the
// delta to broadcast/persist. Writes commit atomically when the mutator
// returns nil and are discarded along with the delta when it errors. The
// caller decides when (and whether) to ship the delta.
func (s *Store) ApplyLocal(origin Origin, fn func(*Txn) error) (Delta, error) {
	if !origin.Valid() {
		return Delta{}, ErrInvalidOrigin
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &Txn{
		s:       s,
		clock:   Clock{Lamport: s.lamport + 1, Replica: s.replica},
		charSeq: s.charSeq,
		delta:   &Delta{DocID: s.docID, Replica: s.replica, Origin: origin},
		nodes:   make(map[string]nodeRecord),
		edges:   make(map[string]edgeRecord),
		text:    make(map[string]*Text),
	}
	if err := fn(txn); err != nil {
		return Delta{}, err
	}

	s.lamport = txn.clock.Lamport
	s.charSeq = txn.charSeq
	for id, rec := range txn.nodes {
		s.nodes[id] = rec
	}
	for id, rec := range txn.edges {
		s.edges[id] = rec
	}
	for id, buf := range txn.text {
		s.text[id] = buf
	}
	s.integrateLocked()
	return *txn.delta, nil
}

// ApplyRemote merges an incoming delta. Malformed entries (missing ids,
// multi-rune inserts, unknown ops) are dropped with a warning; entries whose
// dependencies have not arrived yet are parked and integrate once they do.
// The rest of the delta always applies. Never panics, never corrupts the
// maps.
func (s *Store) ApplyRemote(d Delta) error {
	if d.DocID != "" && d.DocID != s.docID {
		return ErrWrongDoc
	}
	if d.Origin != "" && !d.Origin.Valid() {
		return ErrInvalidOrigin
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range d.Nodes {
		if w.Node.ID == "" {
			s.warn(d, "node write without id")
			continue
		}
		// An anchor is only valid once its edge exists; park it until then.
		if !w.Tombstone && w.Node.Type == NodeEdgeAnchor {
			if StripAnchor(w.Node.ID) == w.Node.ID {
				s.warn(d, "anchor node id without anchor prefix")
				continue
			}
			s.pendingAnchors = append(s.pendingAnchors, w)
			continue
		}
		s.mergeNode(w)
	}
	for _, w := range d.Edges {
		if w.Edge.ID == "" {
			s.warn(d, "edge write without id")
			continue
		}
		s.pendingEdges = append(s.pendingEdges, w)
	}
	for _, op := range d.Text {
		switch op.Op {
		case TextInsert:
			if op.ID.IsZero() || len([]rune(op.Ch)) != 1 {
				s.warn(d, "malformed text insert")
				continue
			}
		case TextDelete:
			if op.ID.IsZero() {
				s.warn(d, "text delete without character id")
				continue
			}
		default:
			s.warn(d, "unknown text op")
			continue
		}
		s.pendingText = append(s.pendingText, op)
	}
	s.integrateLocked()
	return nil
}

// integrateLocked retries parked writes until a full pass makes no progress.
// Every dependency predicate is monotone (records are never removed, only
// tombstoned), so once a write integrates on one replica it integrates on
// every replica holding the same deltas, regardless of arrival order.
func (s *Store) integrateLocked() {
	for {
		progressed := false

		var edges []EdgeWrite
		for _, w := range s.pendingEdges {
			if !w.Tombstone && (!s.hasNode(w.Edge.Source) || !s.hasNode(w.Edge.Target)) {
				edges = append(edges, w)
				continue
			}
			s.mergeEdge(w)
			progressed = true
		}
		s.pendingEdges = edges

		var anchors []NodeWrite
		for _, w := range s.pendingAnchors {
			if !s.hasEdge(StripAnchor(w.Node.ID)) {
				anchors = append(anchors, w)
				continue
			}
			s.mergeNode(w)
			progressed = true
		}
		s.pendingAnchors = anchors

		var text []TextOp
		for _, op := range s.pendingText {
			if !s.applyTextLocked(op) {
				text = append(text, op)
				continue
			}
			progressed = true
		}
		s.pendingText = text

		if !progressed {
			return
		}
	}
}

// applyTextLocked integrates one text op; false means a dependency (the
// node, the left-origin character, the deleted character) is still missing.
func (s *Store) applyTextLocked(op TextOp) bool {
	if !s.hasNode(op.NodeID) {
		return false
	}
	buf, ok := s.text[op.NodeID]
	if !ok {
		buf = NewText()
		s.text[op.NodeID] = buf
	}
	switch op.Op {
	case TextInsert:
		return buf.Insert(op.ID, op.After, []rune(op.Ch)[0])
	case TextDelete:
		return buf.Delete(op.ID)
	}
	return false
}

func (s *Store) mergeNode(w NodeWrite) {
	existing, ok := s.nodes[w.Node.ID]
	if ok && !w.Clock.After(existing.Clock) {
		return
	}
	if w.Clock.Lamport > s.lamport {
		s.lamport = w.Clock.Lamport
	}
	s.nodes[w.Node.ID] = nodeRecord{Node: w.Node.Sanitized(), Clock: w.Clock, Tombstone: w.Tombstone}
}

func (s *Store) mergeEdge(w EdgeWrite) {
	existing, ok := s.edges[w.Edge.ID]
	if ok && !w.Clock.After(existing.Clock) {
		return
	}
	if w.Clock.Lamport > s.lamport {
		s.lamport = w.Clock.Lamport
	}
	s.edges[w.Edge.ID] = edgeRecord{Edge: w.Edge.Sanitized(), Clock: w.Clock, Tombstone: w.Tombstone}
}

func (s *Store) hasNode(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

func (s *Store) hasEdge(id string) bool {
	_, ok := s.edges[id]
	return ok
}

func (s *Store) warn(d Delta, msg string) {
	log.Warn().Str("doc_id", s.docID).Str("from_replica", d.Replica).Str("origin", string(d.Origin)).Msg("dropped delta entry: " + msg)
}

// Node returns the live node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.nodes[id]
	if !ok || rec.Tombstone {
		return Node{}, false
	}
	return rec.Node, true
}

// Edge returns the live edge with the given id.
func (s *Store) Edge(id string) (Edge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.edges[id]
	if !ok || rec.Tombstone {
		return Edge{}, false
	}
	return rec.Edge, true
}

// TextContent returns the merged text for a node.
func (s *Store) TextContent(nodeID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.text[nodeID]; ok {
		return buf.String()
	}
	return ""
}

// Nodes returns all live nodes sorted by id.
func (s *Store) Nodes() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveNodesLocked()
}

// Edges returns all live edges sorted by id.
func (s *Store) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveEdgesLocked()
}

func (s *Store) liveNodesLocked() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, rec := range s.nodes {
		if !rec.Tombstone {
			out = append(out, rec.Node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) liveEdgesLocked() []Edge {
	out := make([]Edge, 0, len(s.edges))
	for _, rec := range s.edges {
		if !rec.Tombstone {
			out = append(out, rec.Edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RootStatement returns the board's root statement node. If a merge ever
// produces several statement nodes, the lexicographically smallest id wins
// so the choice stays deterministic.
func (s *Store) RootStatement() (Node, bool) {
	for _, n := range s.Nodes() {
		if n.Type == NodeStatement {
			return n, true
		}
	}
	return Node{}, false
}

// TextEntry pairs a node id with its merged text in a snapshot.
type TextEntry struct {
	NodeID  string `json:"nodeId"`
	Content string `json:"content"`
}

// Snapshot is the point-in-time materialization of a document. Field order
// is fixed and all slices are sorted, so identical state yields identical
// bytes.
type Snapshot struct {
	DocID string      `json:"docId"`
	Nodes []Node      `json:"nodes"`
	Edges []Edge      `json:"edges"`
	Text  []TextEntry `json:"text"`
}

// Snapshot encodes the current live state deterministically. Parked writes
// are not part of the state and never appear.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		DocID: s.docID,
		Nodes: s.liveNodesLocked(),
		Edges: s.liveEdgesLocked(),
		Text:  []TextEntry{},
	}
	ids := make([]string, 0, len(s.text))
	for id := range s.text {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec, ok := s.nodes[id]
		if !ok || rec.Tombstone {
			continue
		}
		snap.Text = append(snap.Text, TextEntry{NodeID: id, Content: s.text[id].String()})
	}
	return json.Marshal(snap)
}

// DecodeSnapshot parses snapshot bytes.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
