// Package graph defines the property-graph executor contract the work-item,
// sprint, and resource services persist through, together with an in-memory
// implementation and a Neo4j-backed one.
package graph

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates a node or relationship endpoint does not exist.
	ErrNotFound = errors.New("graph: node not found")
	// ErrDuplicateID indicates a node with the same id already exists.
	ErrDuplicateID = errors.New("graph: duplicate node id")
	// ErrMissingID indicates node properties without the mandatory id.
	ErrMissingID = errors.New("graph: node properties missing id")
	// ErrInvalidQuery indicates a query that cannot be rendered or executed.
	ErrInvalidQuery = errors.New("graph: invalid query")
)

// Row is one query result: a flat property map. Executors normalize every
// result to this shape; callers never unwrap driver-specific envelopes.
type Row map[string]any

// Executor is the persistence contract for the property graph. Every value
// reaching the backing store is parameter-bound; implementations must not
// interpolate caller data into query text.
type Executor interface {
	// CreateNode stores a labelled node. props["id"] is mandatory and unique
	// across the graph.
	CreateNode(ctx context.Context, label string, props map[string]any) error

	// UpdateNode merges props into the node's existing properties. It never
	// touches relationships.
	UpdateNode(ctx context.Context, id string, props map[string]any) error

	// DeleteNode removes the node and all incident relationships.
	DeleteNode(ctx context.Context, id string) error

	// CreateRelationship merges a directed relationship on (from, to, type):
	// creating it on first use and updating props on repeats, never
	// duplicating. Missing endpoints yield ErrNotFound.
	CreateRelationship(ctx context.Context, fromID, toID, relType string, props map[string]any) error

	// RemoveRelationships deletes outgoing relationships of fromID. Empty
	// toID matches any target; empty relType matches any type.
	RemoveRelationships(ctx context.Context, fromID, toID, relType string) error

	// ExecuteQuery runs a parameterized query and returns normalized rows.
	ExecuteQuery(ctx context.Context, q Query) ([]Row, error)
}
