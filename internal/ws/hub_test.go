package ws

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/easeldraw/easel/backend/internal/db"
	"github.com/easeldraw/easel/backend/internal/history"
	"github.com/easeldraw/easel/backend/internal/schema"
)

func setupHub(t *testing.T) (*Hub, *db.Database, *history.Registry) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	logs := history.NewRegistry()
	hub := NewHub(database, logs, zerolog.Nop())
	go hub.Run()

	return hub, database, logs
}

// newTestClient registers a connection-less client; frames are injected
// straight into the hub and responses read off the send channel.
func newTestClient(t *testing.T, hub *Hub) *Client {
	t.Helper()
	client := &Client{
		hub:  hub,
		send: make(chan []byte, 256),
		id:   "test-" + t.Name(),
	}
	hub.register <- client
	return client
}

func sendBatch(t *testing.T, hub *Hub, sender *Client, batch *schema.Batch) {
	t.Helper()
	data, err := batch.Encode()
	if err != nil {
		t.Fatalf("Failed to encode batch: %v", err)
	}
	hub.frames <- &frame{sender: sender, data: data}
}

func recvBatch(t *testing.T, client *Client) *schema.Batch {
	t.Helper()
	select {
	case data, ok := <-client.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		batch, err := schema.Decode(data)
		if err != nil {
			t.Fatalf("Failed to decode batch: %v", err)
		}
		return batch
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for batch")
	}
	return nil
}

func expectNoBatch(t *testing.T, client *Client) {
	t.Helper()
	select {
	case data, ok := <-client.send:
		if ok {
			t.Fatalf("unexpected batch: %s", data)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func joinRoom(t *testing.T, hub *Hub, client *Client, code string) *schema.Batch {
	t.Helper()
	sendBatch(t, hub, client, &schema.Batch{Operation: schema.OpJoin, RoomCode: code})
	bootstrap := recvBatch(t, client)
	if bootstrap.Operation != schema.OpAdd {
		t.Fatalf("Expected bootstrap add batch, got %s", bootstrap.Operation)
	}
	return bootstrap
}

func addEntity(id, descriptor string, ts int64) *schema.Batch {
	return &schema.Batch{
		Entities: []schema.Entity{{
			ID:         id,
			Descriptor: descriptor,
			Type:       schema.TypeLine,
			Timestamp:  ts,
		}},
		Operation: schema.OpAdd,
		UndoState: schema.UndoNone,
	}
}

func TestJoinBootstrapsExistingEntities(t *testing.T) {
	hub, database, _ := setupHub(t)

	room, err := database.CreateRoom("seeded00")
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}
	database.CreateEntity("u/1-0", room.ID, "d1", "LINE", 1)
	database.CreateEntity("u/1-1", room.ID, "d2", "ELLIPSE", 2)

	client := newTestClient(t, hub)
	bootstrap := joinRoom(t, hub, client, "seeded00")

	if len(bootstrap.Entities) != 2 {
		t.Fatalf("Expected 2 bootstrap entities, got %d", len(bootstrap.Entities))
	}
	if bootstrap.UndoState != schema.UndoNone {
		t.Errorf("Bootstrap batch should not carry an undo state")
	}
	if bootstrap.Entities[0].ID != "u/1-0" {
		t.Errorf("Expected oldest entity first, got %s", bootstrap.Entities[0].ID)
	}
}

func TestJoinUnknownCodeCreatesRoom(t *testing.T) {
	hub, database, _ := setupHub(t)

	client := newTestClient(t, hub)
	bootstrap := joinRoom(t, hub, client, "fresh000")

	if len(bootstrap.Entities) != 0 {
		t.Errorf("Fresh room should bootstrap empty, got %d entities", len(bootstrap.Entities))
	}

	room, err := database.GetRoomByCode("fresh000")
	if err != nil || room == nil {
		t.Error("Join should have created the room")
	}
}

func TestEditBroadcastExcludesSender(t *testing.T) {
	hub, database, _ := setupHub(t)

	x := newTestClient(t, hub)
	y := newTestClient(t, hub)
	joinRoom(t, hub, x, "room0001")
	joinRoom(t, hub, y, "room0001")

	sendBatch(t, hub, x, addEntity("x/100-0", "D1", 100))

	got := recvBatch(t, y)
	if got.Operation != schema.OpAdd || got.Entities[0].ID != "x/100-0" {
		t.Errorf("Peer got wrong batch: %+v", got)
	}
	if got.UndoState != schema.UndoNone {
		t.Errorf("Edit broadcast should have no undo state")
	}
	expectNoBatch(t, x)

	room, _ := database.GetRoomByCode("room0001")
	count, _ := database.CountEntitiesInRoom(room.ID)
	if count != 1 {
		t.Errorf("Expected 1 persisted entity, got %d", count)
	}
}

func TestRoomIsolation(t *testing.T) {
	hub, _, _ := setupHub(t)

	a := newTestClient(t, hub)
	b := newTestClient(t, hub)
	joinRoom(t, hub, a, "rooma001")
	joinRoom(t, hub, b, "roomb001")

	sendBatch(t, hub, a, addEntity("a/1-0", "D1", 1))

	expectNoBatch(t, b)
}

func TestUndoRedoAddScenario(t *testing.T) {
	hub, database, _ := setupHub(t)

	x := newTestClient(t, hub)
	y := newTestClient(t, hub)
	joinRoom(t, hub, x, "room0002")
	joinRoom(t, hub, y, "room0002")

	sendBatch(t, hub, x, addEntity("u/100-0", "D1", 100))
	recvBatch(t, y)

	room, _ := database.GetRoomByCode("room0002")

	// Undo broadcasts the original add batch, tagged, to everyone
	sendBatch(t, hub, x, &schema.Batch{Operation: schema.OpUndo})

	forX := recvBatch(t, x)
	forY := recvBatch(t, y)
	for _, got := range []*schema.Batch{forX, forY} {
		if got.Operation != schema.OpAdd {
			t.Errorf("Undo must carry the original operation, got %s", got.Operation)
		}
		if got.UndoState != schema.UndoUndo {
			t.Errorf("Expected undo tag, got %v", got.UndoState)
		}
		if got.Entities[0].ID != "u/100-0" {
			t.Errorf("Wrong entity in undo broadcast: %s", got.Entities[0].ID)
		}
	}

	count, _ := database.CountEntitiesInRoom(room.ID)
	if count != 0 {
		t.Errorf("Undo of add should remove the entity, store has %d", count)
	}

	// Redo re-inserts the identical entity
	sendBatch(t, hub, y, &schema.Batch{Operation: schema.OpRedo})

	forX = recvBatch(t, x)
	forY = recvBatch(t, y)
	for _, got := range []*schema.Batch{forX, forY} {
		if got.UndoState != schema.UndoRedo {
			t.Errorf("Expected redo tag, got %v", got.UndoState)
		}
	}

	entities, _ := database.LoadEntities(room.ID)
	if len(entities) != 1 || entities[0].Descriptor != "D1" {
		t.Errorf("Redo should restore the identical entity, got %+v", entities)
	}
}

func TestUndoModifyRestoresPreviousDescriptor(t *testing.T) {
	hub, database, _ := setupHub(t)

	x := newTestClient(t, hub)
	y := newTestClient(t, hub)
	joinRoom(t, hub, x, "room0003")
	joinRoom(t, hub, y, "room0003")

	sendBatch(t, hub, x, addEntity("u/100-0", "D1", 100))
	recvBatch(t, y)

	sendBatch(t, hub, x, &schema.Batch{
		Entities: []schema.Entity{{
			ID:                 "u/100-0",
			Descriptor:         "D2",
			PreviousDescriptor: "D1",
			Type:               schema.TypeLine,
			Timestamp:          200,
		}},
		Operation: schema.OpModify,
		UndoState: schema.UndoNone,
	})
	recvBatch(t, y)

	room, _ := database.GetRoomByCode("room0003")
	entities, _ := database.LoadEntities(room.ID)
	if entities[0].Descriptor != "D2" {
		t.Fatalf("Modify should store D2, got %q", entities[0].Descriptor)
	}

	sendBatch(t, hub, y, &schema.Batch{Operation: schema.OpUndo})
	got := recvBatch(t, x)
	recvBatch(t, y)

	if got.Operation != schema.OpModify || got.UndoState != schema.UndoUndo {
		t.Errorf("Undo of modify should broadcast the modify batch tagged undo, got %+v", got)
	}

	entities, _ = database.LoadEntities(room.ID)
	if len(entities) != 1 {
		t.Fatalf("Undo of modify must not delete the entity")
	}
	if entities[0].Descriptor != "D1" {
		t.Errorf("Undo of modify should restore D1, got %q", entities[0].Descriptor)
	}
}

func TestUndoOnEmptyStackIsSilent(t *testing.T) {
	hub, _, _ := setupHub(t)

	x := newTestClient(t, hub)
	joinRoom(t, hub, x, "room0004")

	sendBatch(t, hub, x, &schema.Batch{Operation: schema.OpUndo})
	sendBatch(t, hub, x, &schema.Batch{Operation: schema.OpRedo})

	expectNoBatch(t, x)
}

func TestNewEditInvalidatesRedo(t *testing.T) {
	hub, _, _ := setupHub(t)

	x := newTestClient(t, hub)
	joinRoom(t, hub, x, "room0005")

	sendBatch(t, hub, x, addEntity("u/1-0", "D1", 1))
	sendBatch(t, hub, x, &schema.Batch{Operation: schema.OpUndo})
	recvBatch(t, x)

	// A fresh edit clears the redo stack
	sendBatch(t, hub, x, addEntity("u/1-1", "D2", 2))

	sendBatch(t, hub, x, &schema.Batch{Operation: schema.OpRedo})
	expectNoBatch(t, x)
}

func TestEditBeforeJoinIsDropped(t *testing.T) {
	hub, database, _ := setupHub(t)

	stray := newTestClient(t, hub)
	sendBatch(t, hub, stray, addEntity("s/1-0", "D1", 1))
	expectNoBatch(t, stray)

	stats, _ := database.GetStats()
	if stats["entity_count"] != 0 {
		t.Error("Edit before join must not persist anything")
	}
}

func TestRejoinSwitchesRooms(t *testing.T) {
	hub, _, _ := setupHub(t)

	mover := newTestClient(t, hub)
	peer := newTestClient(t, hub)
	joinRoom(t, hub, mover, "rooma002")
	joinRoom(t, hub, peer, "rooma002")

	joinRoom(t, hub, mover, "roomb002")

	sendBatch(t, hub, peer, addEntity("p/1-0", "D1", 1))
	expectNoBatch(t, mover)
}

func TestRejoinReleasesVacatedHistory(t *testing.T) {
	hub, _, logs := setupHub(t)

	mover := newTestClient(t, hub)
	joinRoom(t, hub, mover, "rooma003")
	sendBatch(t, hub, mover, addEntity("m/1-0", "D1", 1))

	joinRoom(t, hub, mover, "roomb003")
	if logs.Len() != 1 {
		t.Fatalf("Vacated room's history should be released, registry holds %d logs", logs.Len())
	}

	// A fresh occupant of the vacated room must not inherit old history
	late := newTestClient(t, hub)
	joinRoom(t, hub, late, "rooma003")
	sendBatch(t, hub, late, &schema.Batch{Operation: schema.OpUndo})
	expectNoBatch(t, late)
}

func TestFramesFromRemovedClientIgnored(t *testing.T) {
	hub, database, logs := setupHub(t)

	gone := newTestClient(t, hub)
	joinRoom(t, hub, gone, "room0008")
	hub.unregister <- gone

	// Frames pipelined behind the removal must not touch the room
	sendBatch(t, hub, gone, addEntity("g/1-0", "D1", 1))
	sendBatch(t, hub, gone, &schema.Batch{Operation: schema.OpUndo})

	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Removed client should leave the registry")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stats, _ := database.GetStats()
	if stats["entity_count"] != 0 {
		t.Errorf("Dead sender's edit must not persist, store has %d entities", stats["entity_count"])
	}
	if logs.Len() != 0 {
		t.Errorf("Dead sender must not resurrect a history log, registry holds %d", logs.Len())
	}
}

func TestLastLeaverReleasesHistory(t *testing.T) {
	hub, _, logs := setupHub(t)

	x := newTestClient(t, hub)
	joinRoom(t, hub, x, "room0006")

	sendBatch(t, hub, x, addEntity("u/1-0", "D1", 1))
	if logs.Len() != 1 {
		t.Fatalf("Expected 1 live log, got %d", logs.Len())
	}

	hub.unregister <- x

	deadline := time.Now().Add(time.Second)
	for logs.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("History should be released when the room empties")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if hub.GetRoomCount() != 0 {
		t.Errorf("Expected 0 active rooms, got %d", hub.GetRoomCount())
	}
}

func TestMalformedFrameDropsOnlySender(t *testing.T) {
	hub, _, _ := setupHub(t)

	bad := newTestClient(t, hub)
	good := newTestClient(t, hub)
	joinRoom(t, hub, bad, "room0007")
	joinRoom(t, hub, good, "room0007")

	hub.frames <- &frame{sender: bad, data: []byte("not json")}

	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Malformed frame should close the offending connection")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The surviving peer still routes normally
	sendBatch(t, hub, good, addEntity("g/1-0", "D1", 1))
	if hub.GetClientCount() != 1 {
		t.Error("Healthy connection should be unaffected")
	}
}
