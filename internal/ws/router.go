package ws

import (
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/easeldraw/easel/backend/internal/metrics"
	"github.com/easeldraw/easel/backend/internal/schema"
)

// route classifies one inbound frame and carries out its effects: entity
// store mutations, undo/redo log updates, and the rebroadcast decision.
// Routing runs on the hub goroutine, which is what makes frame arrival
// order the room's total order.
func (h *Hub) route(f *frame) {
	// An evicted connection can still have frames queued behind its
	// removal; they must not keep mutating the room.
	h.mu.RLock()
	live := h.clients[f.sender]
	h.mu.RUnlock()
	if !live {
		return
	}

	batch, err := schema.Decode(f.data)
	if err != nil {
		h.logger.Warn().Str("client", f.sender.id).Err(err).Msg("undecodable frame")
		h.fail(f.sender, "malformed message")
		return
	}

	metrics.OperationsRouted.WithLabelValues(batch.Operation.String()).Inc()

	switch batch.Operation {
	case schema.OpJoin:
		h.handleJoin(f.sender, batch)

	case schema.OpAdd, schema.OpDelete, schema.OpModify:
		h.handleEdit(f.sender, batch, f.data)

	case schema.OpUndo:
		h.handleUndo(f.sender)

	case schema.OpRedo:
		h.handleRedo(f.sender)

	default:
		h.logger.Warn().
			Str("client", f.sender.id).
			Int("operation", int(batch.Operation)).
			Msg("unknown operation")
		h.fail(f.sender, "unknown operation")
	}
}

// handleJoin late-binds the connection to a room and replies, to the
// sender only, with a bootstrap add batch of everything the room holds.
// An unknown code creates the room rather than failing silently.
func (h *Hub) handleJoin(sender *Client, batch *schema.Batch) {
	room, err := h.database.GetOrCreateRoom(batch.RoomCode)
	if err != nil {
		h.logger.Error().Str("roomCode", batch.RoomCode).Err(err).Msg("room lookup failed")
		h.fail(sender, "room lookup failed")
		return
	}

	h.bindRoom(sender, room.ID)
	h.logs.Get(room.ID)

	rows, err := h.database.LoadEntities(room.ID)
	if err != nil {
		h.logger.Error().Int64("room", room.ID).Err(err).Msg("bootstrap load failed")
		h.fail(sender, "bootstrap load failed")
		return
	}

	bootstrap := &schema.Batch{
		Entities:  make([]schema.Entity, 0, len(rows)),
		Operation: schema.OpAdd,
		UndoState: schema.UndoNone,
	}
	for _, row := range rows {
		bootstrap.Entities = append(bootstrap.Entities, schema.Entity{
			ID:         row.ID,
			RoomID:     row.RoomID,
			Descriptor: row.Descriptor,
			Type:       row.Type,
			Timestamp:  row.Timestamp,
		})
	}

	data, err := bootstrap.Encode()
	if err != nil {
		h.fail(sender, "bootstrap encode failed")
		return
	}
	h.send(sender, data)
	h.logger.Info().
		Str("client", sender.id).
		Int64("room", room.ID).
		Int("entities", len(rows)).
		Msg("client joined room")
}

// handleEdit applies an add/delete/modify batch to the store, records it
// in the room's history and rebroadcasts it to every peer except the
// sender, whose local state is already ahead.
func (h *Hub) handleEdit(sender *Client, batch *schema.Batch, raw []byte) {
	if sender.roomID == 0 {
		h.logger.Warn().Str("client", sender.id).Msg("edit before join dropped")
		return
	}

	if err := h.apply(sender.roomID, batch, batch.Operation, false); err != nil {
		h.logger.Error().Str("client", sender.id).Err(err).Msg("store write failed")
		h.fail(sender, "persistence failure")
		return
	}

	h.logs.Get(sender.roomID).Push(batch)
	h.broadcast(sender.roomID, raw, sender, false)
}

// handleUndo pops the room's most recent batch, applies its inverse to
// the store and echoes the original batch, tagged as an undo, to the
// whole room including the sender. Each client derives the reversal from
// the tag on its own copy of the state.
func (h *Hub) handleUndo(sender *Client) {
	if sender.roomID == 0 {
		return
	}

	batch := h.logs.Get(sender.roomID).PopUndo()
	if batch == nil {
		return
	}

	if err := h.apply(sender.roomID, batch, batch.Operation.Inverse(), true); err != nil {
		h.logger.Error().Str("client", sender.id).Err(err).Msg("undo apply failed")
		h.fail(sender, "persistence failure")
		return
	}

	data, err := batch.Encode()
	if err != nil {
		h.fail(sender, "undo encode failed")
		return
	}
	h.broadcast(sender.roomID, data, sender, true)
}

// handleRedo replays the most recently undone batch forward and echoes it
// to the whole room.
func (h *Hub) handleRedo(sender *Client) {
	if sender.roomID == 0 {
		return
	}

	batch := h.logs.Get(sender.roomID).PopRedo()
	if batch == nil {
		return
	}

	if err := h.apply(sender.roomID, batch, batch.Operation, false); err != nil {
		h.logger.Error().Str("client", sender.id).Err(err).Msg("redo apply failed")
		h.fail(sender, "persistence failure")
		return
	}

	data, err := batch.Encode()
	if err != nil {
		h.fail(sender, "redo encode failed")
		return
	}
	h.broadcast(sender.roomID, data, sender, true)
}

// apply writes a batch's effect to the entity store. The operation is
// passed separately from the batch because undo replays the inverse of
// what the batch nominally says; usePrevious selects the pre-edit
// descriptor when reversing a modify.
func (h *Hub) apply(roomID int64, batch *schema.Batch, op schema.Operation, usePrevious bool) error {
	for i := range batch.Entities {
		entity := &batch.Entities[i]
		switch op {
		case schema.OpAdd:
			if err := h.database.CreateEntity(entity.ID, roomID, entity.Descriptor, entity.Type, entity.Timestamp); err != nil {
				return fmt.Errorf("create entity %s: %w", entity.ID, err)
			}
		case schema.OpDelete:
			if err := h.database.DeleteEntity(entity.ID); err != nil {
				return fmt.Errorf("delete entity %s: %w", entity.ID, err)
			}
		case schema.OpModify:
			descriptor := entity.Descriptor
			if usePrevious && entity.PreviousDescriptor != "" {
				descriptor = entity.PreviousDescriptor
			}
			if err := h.database.ModifyEntity(entity.ID, descriptor); err != nil {
				return fmt.Errorf("modify entity %s: %w", entity.ID, err)
			}
		}
	}
	return nil
}

// fail closes a connection with an internal-error close code. Only the
// offending connection is affected; the room carries on.
func (h *Hub) fail(client *Client, reason string) {
	metrics.ClientsDropped.WithLabelValues("error").Inc()
	client.closeWith(websocket.CloseInternalServerErr, reason)
	h.removeClient(client)
}
