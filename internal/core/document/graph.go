package document

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNodeNotFound is returned when an edge or root names an unknown node.
var ErrNodeNotFound = errors.New("node not found")

// NodeID identifies a node within a single graph.
type NodeID uint64

// NodeType is the structural role of a node.
type NodeType int

const (
	NodeUnknown NodeType = iota
	NodeCatalog
	NodePages
	NodePage
	NodeFont
	NodeContentStream
	NodeOutline
	NodeMetadata
	NodeOther
)

var nodeTypeNames = map[NodeType]string{
	NodeUnknown:       "unknown",
	NodeCatalog:       "catalog",
	NodePages:         "pages",
	NodePage:          "page",
	NodeFont:          "font",
	NodeContentStream: "content_stream",
	NodeOutline:       "outline",
	NodeMetadata:      "metadata",
	NodeOther:         "other",
}

func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("node_type(%d)", int(t))
}

// MarshalText encodes the node type by name.
func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// EdgeKind labels the relation between two nodes.
type EdgeKind string

const (
	EdgeChild     EdgeKind = "child"
	EdgeReference EdgeKind = "reference"
)

// Node is a vertex of the document graph.
type Node struct {
	ID     NodeID     `json:"id"`
	Type   NodeType   `json:"type"`
	Value  Value      `json:"-"`
	Object *Reference `json:"object,omitempty"`
}

// Edge connects two nodes.
type Edge struct {
	From NodeID   `json:"from"`
	To   NodeID   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Graph is the node/edge store a document is assembled into.
type Graph interface {
	CreateNode(t NodeType, v Value) NodeID
	AssignObject(id NodeID, ref Reference) error
	SetRoot(id NodeID) error
	AddEdge(from, to NodeID, kind EdgeKind) error
	Root() (NodeID, bool)
	Node(id NodeID) (*Node, bool)
	Nodes() []*Node
	NodesByType(t NodeType) []*Node
	Edges() []Edge
	NodeCount() int
}

// MemoryGraph is an in-memory Graph. Node ids come from a counter owned by
// the graph, so building the same document twice yields the same ids.
type MemoryGraph struct {
	mu      sync.RWMutex
	nextID  NodeID
	nodes   map[NodeID]*Node
	order   []NodeID
	edges   []Edge
	root    NodeID
	hasRoot bool
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{nodes: make(map[NodeID]*Node)}
}

func (g *MemoryGraph) CreateNode(t NodeType, v Value) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := g.nextID
	g.nodes[id] = &Node{ID: id, Type: t, Value: v}
	g.order = append(g.order, id)
	return id
}

func (g *MemoryGraph) AssignObject(id NodeID, ref Reference) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("assign object %s: %w", ref, ErrNodeNotFound)
	}
	n.Object = &ref
	return nil
}

func (g *MemoryGraph) SetRoot(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("set root %d: %w", id, ErrNodeNotFound)
	}
	g.root = id
	g.hasRoot = true
	return nil
}

func (g *MemoryGraph) AddEdge(from, to NodeID, kind EdgeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("edge from %d: %w", from, ErrNodeNotFound)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("edge to %d: %w", to, ErrNodeNotFound)
	}
	g.edges = append(g.edges, Edge{From: from, To: to, Kind: kind})
	return nil
}

func (g *MemoryGraph) Root() (NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.root, g.hasRoot
}

func (g *MemoryGraph) Node(id NodeID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in creation order.
func (g *MemoryGraph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

func (g *MemoryGraph) NodesByType(t NodeType) []*Node {
	var nodes []*Node
	for _, n := range g.Nodes() {
		if n.Type == t {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (g *MemoryGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

func (g *MemoryGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
