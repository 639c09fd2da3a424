package graphops

import "errors"

var (
	ErrUnknownNode    = errors.New("Node not found")
	ErrNoAnchor       = errors.New("Edge has no anchor node")
	ErrSelfConnection = errors.New("Cannot connect a node to itself")
	ErrNoRoot         = errors.New("Board has no root statement node")
)
