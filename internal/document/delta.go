package document

import "encoding/json"

// Origin marks where a delta came from, so consumers can tell real edits
// from bookkeeping writes (e.g. recovery replay must not re-trigger
// autosave or re-broadcast).
type Origin string

const (
	OriginUser       Origin = "user"
	OriginRuntime    Origin = "runtime"
	OriginCheckpoint Origin = "checkpoint"
	OriginReplay     Origin = "replay"
)

// Valid reports whether o is a known origin tag.
func (o Origin) Valid() bool {
	switch o {
	case OriginUser, OriginRuntime, OriginCheckpoint, OriginReplay:
		return true
	}
	return false
}

// NodeWrite is a whole-record LWW write (or tombstone) of one node.
type NodeWrite struct {
	Clock     Clock `json:"clock"`
	Tombstone bool  `json:"tombstone,omitempty"`
	Node      Node  `json:"node"`
}

// EdgeWrite is a whole-record LWW write (or tombstone) of one edge.
type EdgeWrite struct {
	Clock     Clock `json:"clock"`
	Tombstone bool  `json:"tombstone,omitempty"`
	Edge      Edge  `json:"edge"`
}

// TextOp kinds.
const (
	TextInsert = "ins"
	TextDelete = "del"
)

// TextOp is a single character-level operation on a node's text buffer.
type TextOp struct {
	NodeID string `json:"nodeId"`
	Op     string `json:"op"`
	ID     CharID `json:"id"`
	After  CharID `json:"after,omitempty"`
	Ch     string `json:"ch,omitempty"`
}

// Delta is the unit of replication: the writes produced by one local
// transaction, tagged with its origin.
type Delta struct {
	DocID   string      `json:"docId"`
	Replica string      `json:"replica"`
	Origin  Origin      `json:"origin"`
	Nodes   []NodeWrite `json:"nodes,omitempty"`
	Edges   []EdgeWrite `json:"edges,omitempty"`
	Text    []TextOp    `json:"text,omitempty"`
}

// Empty reports whether the delta carries no writes.
func (d Delta) Empty() bool {
	return len(d.Nodes) == 0 && len(d.Edges) == 0 && len(d.Text) == 0
}

// Encode serializes the delta for the wire and the append-only log.
func (d Delta) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDelta parses an encoded delta.
func DecodeDelta(b []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(b, &d); err != nil {
		return Delta{}, err
	}
	return d, nil
}
