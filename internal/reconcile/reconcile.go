// Package reconcile projects a document snapshot into the canonical graph
// and the set of tradable securities. Reconcile is a pure function of the
// snapshot bytes: identical input always yields identical output, so it is
// safe to cache and to re-invoke after partial failures.
package reconcile

import (
	"sort"

	"agora-backend/internal/document"
)

// SupportEdge is a support relation recorded purely as a tradable
// proposition, excluded from the argumentative edge list.
type SupportEdge struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Structure is the canonical graph derived from a snapshot.
type Structure struct {
	Nodes        []document.Node `json:"nodes"`
	Edges        []document.Edge `json:"edges"`
	SupportEdges []SupportEdge   `json:"supportEdges"`
}

// Result pairs the canonical structure with the derived security ids
// (sorted, de-duplicated).
type Result struct {
	Structure  Structure `json:"structure"`
	Securities []string  `json:"securities"`
}

// SecuritySet returns the securities as a membership set.
func (r Result) SecuritySet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Securities))
	for _, s := range r.Securities {
		set[s] = struct{}{}
	}
	return set
}

// Reconcile parses a snapshot and derives the canonical structure and
// security set. A snapshot with zero nodes yields an empty result, not an
// error.
func Reconcile(snapshot []byte) (Result, error) {
	snap, err := document.DecodeSnapshot(snapshot)
	if err != nil {
		return Result{}, err
	}

	out := Result{
		Structure: Structure{
			Nodes:        []document.Node{},
			Edges:        []document.Edge{},
			SupportEdges: []SupportEdge{},
		},
		Securities: []string{},
	}

	nodeSet := make(map[string]struct{}, len(snap.Nodes))
	rootID := ""
	for _, n := range snap.Nodes {
		nodeSet[n.ID] = struct{}{}
		// Snapshot nodes are sorted by id, so the first statement node is
		// the deterministic root choice.
		if rootID == "" && n.Type == document.NodeStatement {
			rootID = n.ID
		}
	}
	out.Structure.Nodes = append(out.Structure.Nodes, snap.Nodes...)

	secSet := make(map[string]struct{})
	for _, n := range snap.Nodes {
		secSet[document.StripAnchor(n.ID)] = struct{}{}
	}

	for _, e := range snap.Edges {
		typ := classify(e, rootID)
		if typ == document.EdgeSupport {
			_, fromOK := nodeSet[e.Source]
			_, toOK := nodeSet[e.Target]
			if !fromOK || !toOK {
				// Dangling support edge: dropped, reconciliation continues.
				continue
			}
			out.Structure.SupportEdges = append(out.Structure.SupportEdges, SupportEdge{
				Name: e.ID,
				From: e.Source,
				To:   e.Target,
			})
			secSet[document.StripAnchor(e.ID)] = struct{}{}
			continue
		}
		e.Type = typ
		out.Structure.Edges = append(out.Structure.Edges, e)
	}

	out.Securities = make([]string, 0, len(secSet))
	for s := range secSet {
		out.Securities = append(out.Securities, s)
	}
	sort.Strings(out.Securities)
	return out, nil
}

// classify applies the root-adjacency rule: edges touching the root
// statement node are options, never negations; everything else keeps its
// stored type.
func classify(e document.Edge, rootID string) document.EdgeType {
	if rootID != "" && (e.Source == rootID || e.Target == rootID) {
		if e.Type == document.EdgeSupport {
			return document.EdgeSupport
		}
		return document.EdgeOption
	}
	return e.Type
}
