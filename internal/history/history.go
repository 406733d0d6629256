// Package history holds each room's undo/redo log: a LIFO pair of stacks
// over full operation batches. Popping does not invert anything; the
// router computes the inverse at apply time from the original batch.
package history

import (
	"sync"

	"github.com/easeldraw/easel/backend/internal/schema"
)

// Log is one room's undo/redo history. Safe for concurrent use.
type Log struct {
	mu        sync.Mutex
	undoStack []*schema.Batch
	redoStack []*schema.Batch
}

func NewLog() *Log {
	return &Log{}
}

// Push records a newly authored batch. Any redo history is invalidated:
// redo only replays undos, never survives a fresh edit.
func (l *Log) Push(batch *schema.Batch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redoStack = l.redoStack[:0]
	l.undoStack = append(l.undoStack, batch)
}

// PopUndo removes the most recent batch from the undo stack, moves it to
// the redo stack and tags it as an undo. The returned batch is the same
// instance that was pushed; callers must not assume immutability. Returns
// nil on an empty stack, which is the only legal no-op outcome.
func (l *Log) PopUndo() *schema.Batch {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.undoStack)
	if n == 0 {
		return nil
	}
	batch := l.undoStack[n-1]
	l.undoStack = l.undoStack[:n-1]
	l.redoStack = append(l.redoStack, batch)
	batch.UndoState = schema.UndoUndo
	return batch
}

// PopRedo is the mirror of PopUndo: most recent undone batch moves back to
// the undo stack, tagged as a redo.
func (l *Log) PopRedo() *schema.Batch {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.redoStack)
	if n == 0 {
		return nil
	}
	batch := l.redoStack[n-1]
	l.redoStack = l.redoStack[:n-1]
	l.undoStack = append(l.undoStack, batch)
	batch.UndoState = schema.UndoRedo
	return batch
}

// Depths returns the current stack sizes, for stats.
func (l *Log) Depths() (undo, redo int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.undoStack), len(l.redoStack)
}

// Registry maps room ids to their logs. Logs are created lazily on first
// join and released when a room's last connection leaves.
type Registry struct {
	mu   sync.Mutex
	logs map[int64]*Log
}

func NewRegistry() *Registry {
	return &Registry{logs: make(map[int64]*Log)}
}

// Get returns the room's log, creating it if missing.
func (r *Registry) Get(roomID int64) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.logs[roomID]
	if !ok {
		log = NewLog()
		r.logs[roomID] = log
	}
	return log
}

// Release drops the room's log. History does not survive the room
// emptying out.
func (r *Registry) Release(roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logs, roomID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}
