// Package board is the client-side reconciler: it keeps a local entity
// set equal to what the server has accepted, applies inbound batches
// (including the inverse application undo requires), and builds outbound
// batches for local edits with optimistic local effect.
package board

import (
	"fmt"
	"sync"
	"time"

	"github.com/easeldraw/easel/backend/internal/schema"
)

// Node is one renderable item on the local surface. Identity is stable
// across modifies so UI state attached to a node survives edits.
type Node struct {
	ID         string
	Type       string
	Descriptor string
	Timestamp  int64
}

// Board holds the local entity set in z-order (later timestamps render
// above earlier ones) plus the current selection.
type Board struct {
	mu       sync.Mutex
	nodes    map[string]*Node
	order    []*Node
	selected map[string]bool
}

func New() *Board {
	return &Board{
		nodes:    make(map[string]*Node),
		selected: make(map[string]bool),
	}
}

func (b *Board) insertLocked(node *Node) {
	if existing, ok := b.nodes[node.ID]; ok {
		// Re-adding an id refreshes the node in place.
		existing.Descriptor = node.Descriptor
		existing.Type = node.Type
		existing.Timestamp = node.Timestamp
		return
	}
	b.nodes[node.ID] = node

	at := len(b.order)
	for i, other := range b.order {
		if other.Timestamp > node.Timestamp {
			at = i
			break
		}
	}
	b.order = append(b.order, nil)
	copy(b.order[at+1:], b.order[at:])
	b.order[at] = node
}

func (b *Board) removeLocked(id string) {
	node, ok := b.nodes[id]
	if !ok {
		return
	}
	delete(b.nodes, id)
	delete(b.selected, id)
	for i, other := range b.order {
		if other == node {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Get returns the node with the given id, or nil.
func (b *Board) Get(id string) *Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes[id]
}

// Nodes returns the entity set in z-order.
func (b *Board) Nodes() []*Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Node, len(b.order))
	copy(out, b.order)
	return out
}

func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.nodes)
}

// Select marks a node as having its edit UI open.
func (b *Board) Select(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nodes[id]; ok {
		b.selected[id] = true
	}
}

func (b *Board) IsSelected(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selected[id]
}

// Apply reconciles one inbound batch into the local entity set. Batches
// tagged as undo are applied as the opposite of their nominal operation,
// mirroring the server's inverse computation; redo replays the batch
// forward. Selection on any node an undo or redo touches is dropped
// first so no edit UI is left holding a removed node.
func (b *Board) Apply(batch *schema.Batch) {
	op := batch.Operation
	usePrevious := false

	switch batch.UndoState {
	case schema.UndoUndo:
		op = batch.Operation.Inverse()
		usePrevious = true
	case schema.UndoRedo:
		// Forward replay of the original batch.
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if batch.UndoState != schema.UndoNone {
		for _, entity := range batch.Entities {
			delete(b.selected, entity.ID)
		}
	}

	switch op {
	case schema.OpAdd:
		for _, entity := range batch.Entities {
			b.insertLocked(&Node{
				ID:         entity.ID,
				Type:       entity.Type,
				Descriptor: entity.Descriptor,
				Timestamp:  entity.Timestamp,
			})
		}

	case schema.OpDelete:
		for _, entity := range batch.Entities {
			delete(b.selected, entity.ID)
			b.removeLocked(entity.ID)
		}

	case schema.OpModify:
		for _, entity := range batch.Entities {
			delete(b.selected, entity.ID)
			node, ok := b.nodes[entity.ID]
			if !ok {
				continue
			}
			descriptor := entity.Descriptor
			if usePrevious && entity.PreviousDescriptor != "" {
				descriptor = entity.PreviousDescriptor
			}
			// In-place update preserves node identity.
			node.Descriptor = descriptor
		}
	}
}

// Reconciler builds outbound batches for local edits and applies them to
// the board optimistically, without waiting for a server ack.
type Reconciler struct {
	board    *Board
	username string
	roomID   int64

	mu      sync.Mutex
	counter int
}

func NewReconciler(board *Board, username string, roomID int64) *Reconciler {
	return &Reconciler{board: board, username: username, roomID: roomID}
}

func (r *Reconciler) Board() *Board {
	return r.board
}

// NewID mints a globally unique entity id under the single-writer
// assumption: no two clients share a username, counter and millisecond.
func (r *Reconciler) NewID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("%s/%d-%d", r.username, time.Now().UnixMilli(), r.counter)
	r.counter++
	return id
}

// Add creates nodes for the given shapes, inserts them locally and
// returns the batch to send.
func (r *Reconciler) Add(shapes []interface{}, types []string) (*schema.Batch, error) {
	if len(shapes) != len(types) {
		return nil, fmt.Errorf("shape/type count mismatch: %d vs %d", len(shapes), len(types))
	}

	now := time.Now().UnixMilli()
	batch := &schema.Batch{Operation: schema.OpAdd, UndoState: schema.UndoNone}
	for i, shape := range shapes {
		descriptor, err := EncodeShape(shape)
		if err != nil {
			return nil, err
		}
		node := &Node{
			ID:         r.NewID(),
			Type:       types[i],
			Descriptor: descriptor,
			Timestamp:  now,
		}
		r.board.mu.Lock()
		r.board.insertLocked(node)
		r.board.mu.Unlock()

		batch.Entities = append(batch.Entities, schema.Entity{
			ID:         node.ID,
			RoomID:     r.roomID,
			Descriptor: descriptor,
			Type:       node.Type,
			Timestamp:  now,
		})
	}
	return batch, nil
}

// Delete removes the given nodes locally and returns the batch to send.
// The batch carries each node's descriptor: peers delete by id, but an
// undo of this batch re-adds the entities from it.
func (r *Reconciler) Delete(ids []string) *schema.Batch {
	batch := &schema.Batch{Operation: schema.OpDelete, UndoState: schema.UndoNone}

	r.board.mu.Lock()
	defer r.board.mu.Unlock()
	for _, id := range ids {
		node, ok := r.board.nodes[id]
		if !ok {
			continue
		}
		batch.Entities = append(batch.Entities, schema.Entity{
			ID:         node.ID,
			RoomID:     r.roomID,
			Descriptor: node.Descriptor,
			Type:       node.Type,
			Timestamp:  node.Timestamp,
		})
		r.board.removeLocked(id)
	}
	return batch
}

// Modify serializes the node's new shape, snapshots the pre-edit
// descriptor so the server can echo a byte-exact undo later, updates the
// node in place and returns the batch to send.
func (r *Reconciler) Modify(id string, shape interface{}) (*schema.Batch, error) {
	descriptor, err := EncodeShape(shape)
	if err != nil {
		return nil, err
	}

	r.board.mu.Lock()
	defer r.board.mu.Unlock()
	node, ok := r.board.nodes[id]
	if !ok {
		return nil, fmt.Errorf("no such node %q", id)
	}

	previous := node.Descriptor
	node.Descriptor = descriptor

	return &schema.Batch{
		Operation: schema.OpModify,
		UndoState: schema.UndoNone,
		Entities: []schema.Entity{{
			ID:                 node.ID,
			RoomID:             r.roomID,
			Descriptor:         descriptor,
			PreviousDescriptor: previous,
			Type:               node.Type,
			Timestamp:          time.Now().UnixMilli(),
		}},
	}, nil
}

// Save serializes the whole board into one add batch, suitable for a
// local file. Load is the inverse; both leave ids intact so a loaded
// board can still be synchronized.
func (r *Reconciler) Save() (*schema.Batch, error) {
	batch := &schema.Batch{Operation: schema.OpAdd, UndoState: schema.UndoNone}
	for _, node := range r.board.Nodes() {
		batch.Entities = append(batch.Entities, schema.Entity{
			ID:         node.ID,
			RoomID:     r.roomID,
			Descriptor: node.Descriptor,
			Type:       node.Type,
			Timestamp:  node.Timestamp,
		})
	}
	return batch, nil
}

func (r *Reconciler) Load(batch *schema.Batch) {
	b := *batch
	b.Operation = schema.OpAdd
	b.UndoState = schema.UndoNone
	r.board.Apply(&b)
}
