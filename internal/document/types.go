// Package document implements the replicated document store for argument
// boards: per-key last-writer-wins node/edge maps plus character-level
// mergeable text buffers. All mutation goes through ApplyLocal/ApplyRemote.
package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeType enumerates the node kinds a board can hold.
type NodeType string

const (
	NodeStatement  NodeType = "statement"
	NodePoint      NodeType = "point"
	NodeTitle      NodeType = "title"
	NodeObjection  NodeType = "objection"
	NodeEdgeAnchor NodeType = "edge_anchor"
)

// EdgeType enumerates relation kinds between nodes.
type EdgeType string

const (
	EdgeSupport   EdgeType = "support"
	EdgeNegation  EdgeType = "negation"
	EdgeObjection EdgeType = "objection"
	EdgeStatement EdgeType = "statement"
	EdgeOption    EdgeType = "option"
)

// AnchorPrefix prefixes the id of every edge-anchor node.
const AnchorPrefix = "anchor:"

// AnchorID returns the anchor node id for an edge.
func AnchorID(edgeID string) string {
	return AnchorPrefix + edgeID
}

// StripAnchor normalizes an id by removing the anchor prefix when present.
// This is the node-or-edge → security id mapping.
func StripAnchor(id string) string {
	return strings.TrimPrefix(id, AnchorPrefix)
}

// Position is a 2D canvas position.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is the tagged union of per-type node payloads.
type NodeData interface {
	isNodeData()
}

// StatementData is the payload of a statement node (the board's root claim).
type StatementData struct {
	Statement string `json:"statement"`
}

// PointData is the payload of a point node.
type PointData struct {
	Content      string `json:"content"`
	ParentEdgeID string `json:"parentEdgeId,omitempty"`
}

// TitleData is the payload of a title node.
type TitleData struct {
	Title string `json:"title"`
}

// ObjectionData is the payload of an objection node.
type ObjectionData struct {
	Content      string `json:"content"`
	ParentEdgeID string `json:"parentEdgeId,omitempty"`
}

// EdgeAnchorData is the payload of a synthetic edge-anchor node. It exists
// only to give an edge a draggable midpoint.
type EdgeAnchorData struct {
	ParentEdgeID string `json:"parentEdgeId"`
}

func (StatementData) isNodeData()  {}
func (PointData) isNodeData()      {}
func (TitleData) isNodeData()      {}
func (ObjectionData) isNodeData()  {}
func (EdgeAnchorData) isNodeData() {}

// Content returns the free-text content carried by a node payload, if any.
func Content(d NodeData) string {
	switch v := d.(type) {
	case StatementData:
		return v.Statement
	case PointData:
		return v.Content
	case TitleData:
		return v.Title
	case ObjectionData:
		return v.Content
	case EdgeAnchorData:
		return ""
	default:
		return ""
	}
}

// Node is a board graph node. Selected/Dragging/EditedBy are session-local
// presentation state and must never reach the shared maps or the wire.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`

	Selected bool   `json:"-"`
	Dragging bool   `json:"-"`
	EditedBy string `json:"-"`
}

// Sanitized returns a copy with all ephemeral UI fields cleared.
func (n Node) Sanitized() Node {
	n.Selected = false
	n.Dragging = false
	n.EditedBy = ""
	return n
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data"`
}

// MarshalJSON encodes the data union according to the node type.
func (n Node) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeJSON{ID: n.ID, Type: n.Type, Position: n.Position, Data: data})
}

// UnmarshalJSON decodes the data union according to the node type.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	n.ID = raw.ID
	n.Type = raw.Type
	n.Position = raw.Position
	n.Selected, n.Dragging, n.EditedBy = false, false, ""

	if len(raw.Data) == 0 {
		raw.Data = []byte("{}")
	}
	switch raw.Type {
	case NodeStatement:
		var d StatementData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		n.Data = d
	case NodePoint:
		var d PointData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		n.Data = d
	case NodeTitle:
		var d TitleData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		n.Data = d
	case NodeObjection:
		var d ObjectionData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		n.Data = d
	case NodeEdgeAnchor:
		var d EdgeAnchorData
		if err := json.Unmarshal(raw.Data, &d); err != nil {
			return err
		}
		n.Data = d
	case "":
		// Tombstone writes may carry no type.
		n.Data = nil
	default:
		return fmt.Errorf("unknown node type %q", raw.Type)
	}
	return nil
}

// Edge is a directed relation between two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Type   EdgeType `json:"type"`
	Source string   `json:"source"`
	Target string   `json:"target"`

	Selected bool `json:"-"`
}

// Sanitized returns a copy with ephemeral UI fields cleared.
func (e Edge) Sanitized() Edge {
	e.Selected = false
	return e
}

// Clock is per-key last-writer-wins metadata: a lamport timestamp plus the
// authoring replica id as the tiebreaker.
type Clock struct {
	Lamport uint64 `json:"lamport"`
	Replica string `json:"replica"`
}

// After reports whether c supersedes o under LWW ordering.
func (c Clock) After(o Clock) bool {
	if c.Lamport != o.Lamport {
		return c.Lamport > o.Lamport
	}
	return c.Replica > o.Replica
}
