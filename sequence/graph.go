package sequence

import (
	"sort"
	"time"

	"github.com/allbin/go-valve"
)

// NodeID identifies a step in a Sequence. IDs are never reused.
type NodeID int

// Node is a step placed on the editing canvas.
type Node struct {
	ID   NodeID
	Step Step
	X, Y float64

	order int
}

// Edge links a step to the one that runs after it.
type Edge struct {
	From NodeID
	To   NodeID
}

// Mode tells how a run order was derived.
type Mode int

const (
	ModeChain Mode = iota
	ModeLayout
)

func (m Mode) String() string {
	if m == ModeChain {
		return "chain"
	}
	return "layout"
}

// Run is a resolved, ordered list of steps.
type Run struct {
	Mode  Mode
	Nodes []Node
}

// Steps returns the steps in run order.
func (r Run) Steps() []Step {
	steps := make([]Step, len(r.Nodes))
	for i, n := range r.Nodes {
		steps[i] = n.Step
	}
	return steps
}

// Sequence is a set of steps linked into at most one chain. Every node has at
// most one successor and one predecessor, and the links never form a cycle.
// A Sequence is not safe for concurrent use; the Engine guards its own.
type Sequence struct {
	nodes  map[NodeID]*Node
	next   map[NodeID]NodeID
	prev   map[NodeID]NodeID
	lastID NodeID
	added  int
}

// New creates an empty sequence.
func New() *Sequence {
	return &Sequence{
		nodes: make(map[NodeID]*Node),
		next:  make(map[NodeID]NodeID),
		prev:  make(map[NodeID]NodeID),
	}
}

// Len returns the number of steps.
func (s *Sequence) Len() int {
	return len(s.nodes)
}

// Add places step at (x, y).
func (s *Sequence) Add(step Step, x, y float64) NodeID {
	s.lastID++
	s.added++
	s.nodes[s.lastID] = &Node{ID: s.lastID, Step: step, X: x, Y: y, order: s.added}
	return s.lastID
}

// Append places step on a new row below every existing step, which makes
// it last in layout order.
func (s *Sequence) Append(step Step) NodeID {
	y := 0.0
	for _, n := range s.nodes {
		if n.Y+1 > y {
			y = n.Y + 1
		}
	}
	return s.Add(step, 0, y)
}

// Node returns a copy of one node.
func (s *Sequence) Node(id NodeID) (Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns every node in layout order.
func (s *Sequence) Nodes() []Node {
	return s.layoutOrder()
}

// Edges returns every link, ordered by source ID.
func (s *Sequence) Edges() []Edge {
	edges := make([]Edge, 0, len(s.next))
	for from, to := range s.next {
		edges = append(edges, Edge{From: from, To: to})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].From < edges[j].From })
	return edges
}

// Update replaces the step of an existing node.
func (s *Sequence) Update(id NodeID, step Step) error {
	n, ok := s.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	n.Step = step
	return nil
}

// Move places a node at new layout coordinates.
func (s *Sequence) Move(id NodeID, x, y float64) error {
	n, ok := s.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	n.X, n.Y = x, y
	return nil
}

// MoveUp swaps a node with the one before it in layout order. The first node
// stays put.
func (s *Sequence) MoveUp(id NodeID) error {
	return s.swapWithNeighbour(id, -1)
}

// MoveDown swaps a node with the one after it in layout order.
func (s *Sequence) MoveDown(id NodeID) error {
	return s.swapWithNeighbour(id, 1)
}

func (s *Sequence) swapWithNeighbour(id NodeID, delta int) error {
	if _, ok := s.nodes[id]; !ok {
		return ErrUnknownNode
	}
	order := s.layoutOrder()
	for i, n := range order {
		if n.ID != id {
			continue
		}
		j := i + delta
		if j < 0 || j >= len(order) {
			return nil
		}
		a, b := s.nodes[id], s.nodes[order[j].ID]
		a.X, b.X = b.X, a.X
		a.Y, b.Y = b.Y, a.Y
		a.order, b.order = b.order, a.order
		return nil
	}
	return nil
}

// Remove deletes a node and every link touching it.
func (s *Sequence) Remove(id NodeID) error {
	if _, ok := s.nodes[id]; !ok {
		return ErrUnknownNode
	}
	if to, ok := s.next[id]; ok {
		delete(s.prev, to)
		delete(s.next, id)
	}
	if from, ok := s.prev[id]; ok {
		delete(s.next, from)
		delete(s.prev, id)
	}
	delete(s.nodes, id)
	return nil
}

// Clear removes every node and link.
func (s *Sequence) Clear() {
	s.nodes = make(map[NodeID]*Node)
	s.next = make(map[NodeID]NodeID)
	s.prev = make(map[NodeID]NodeID)
}

// Connect makes to run after from. Re-issuing an existing link is a no-op and
// a node that already leads somewhere else is re-pointed at to.
func (s *Sequence) Connect(from, to NodeID) error {
	if _, ok := s.nodes[from]; !ok {
		return ErrUnknownNode
	}
	if _, ok := s.nodes[to]; !ok {
		return ErrUnknownNode
	}
	if from == to {
		return ErrSelfLoop
	}
	if p, ok := s.prev[to]; ok {
		if p == from {
			return nil
		}
		return ErrDuplicateIncoming
	}
	if s.reaches(to, from) {
		return ErrCycle
	}

	if old, ok := s.next[from]; ok {
		delete(s.prev, old)
	}
	s.next[from] = to
	s.prev[to] = from
	return nil
}

// Disconnect removes the outgoing link of from, if any.
func (s *Sequence) Disconnect(from NodeID) error {
	if _, ok := s.nodes[from]; !ok {
		return ErrUnknownNode
	}
	if to, ok := s.next[from]; ok {
		delete(s.prev, to)
		delete(s.next, from)
	}
	return nil
}

// reaches walks successor links from start looking for target
func (s *Sequence) reaches(start, target NodeID) bool {
	cur := start
	for i := 0; i <= len(s.nodes); i++ {
		if cur == target {
			return true
		}
		n, ok := s.next[cur]
		if !ok {
			return false
		}
		cur = n
	}
	return false
}

// ResolveOrder computes the run order. A single chain through every node is
// followed as linked; anything else falls back to layout order: top to
// bottom, then left to right, then by insertion.
func (s *Sequence) ResolveOrder() (Run, error) {
	if len(s.nodes) == 0 {
		return Run{}, ErrEmptySequence
	}
	if chain, ok := s.chain(); ok {
		return Run{Mode: ModeChain, Nodes: chain}, nil
	}
	return Run{Mode: ModeLayout, Nodes: s.layoutOrder()}, nil
}

func (s *Sequence) chain() ([]Node, bool) {
	if len(s.next) != len(s.nodes)-1 {
		return nil, false
	}

	var heads []NodeID
	for id := range s.nodes {
		if _, ok := s.prev[id]; !ok {
			heads = append(heads, id)
		}
	}
	if len(heads) != 1 {
		return nil, false
	}

	visited := make(map[NodeID]bool, len(s.nodes))
	order := make([]Node, 0, len(s.nodes))
	for cur, ok := heads[0], true; ok; cur, ok = s.next[cur] {
		if visited[cur] {
			return nil, false
		}
		visited[cur] = true
		order = append(order, *s.nodes[cur])
	}
	if len(order) != len(s.nodes) {
		return nil, false
	}
	return order, true
}

func (s *Sequence) layoutOrder() []Node {
	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, *n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.order < b.order
	})
	return nodes
}

// Clone returns an independent copy.
func (s *Sequence) Clone() *Sequence {
	c := New()
	c.lastID = s.lastID
	c.added = s.added
	for id, n := range s.nodes {
		cp := *n
		c.nodes[id] = &cp
	}
	for k, v := range s.next {
		c.next[k] = v
	}
	for k, v := range s.prev {
		c.prev[k] = v
	}
	return c
}

// LoadDemo replaces the content with a short A/B alternation.
func (s *Sequence) LoadDemo() {
	s.Clear()
	for _, st := range []Step{
		{Position: valve.PositionA, Duration: time.Second},
		{Position: valve.PositionB, Duration: time.Second},
		{Position: valve.PositionA, Duration: 500 * time.Millisecond},
		{Position: valve.PositionB, Duration: 500 * time.Millisecond},
	} {
		s.Append(st)
	}
}
