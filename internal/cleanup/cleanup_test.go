package cleanup

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/easeldraw/easel/backend/internal/db"
)

type fakeOccupancy struct {
	occupied map[int64]bool
}

func (f *fakeOccupancy) HasClients(roomID int64) bool {
	return f.occupied[roomID]
}

func setupTestDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSweepRemovesColdRooms(t *testing.T) {
	database := setupTestDB(t)

	database.CreateRoom("cold0001")
	occupied, _ := database.CreateRoom("busy0001")
	drawn, _ := database.CreateRoom("full0001")
	database.CreateEntity("u/1-0", drawn.ID, "d", "LINE", 1)

	occ := &fakeOccupancy{occupied: map[int64]bool{occupied.ID: true}}
	service := New(database, occ, DefaultConfig(), zerolog.Nop())
	service.Sweep()

	if room, _ := database.GetRoomByCode("cold0001"); room != nil {
		t.Error("Cold empty room should be removed")
	}
	if room, _ := database.GetRoomByCode("busy0001"); room == nil {
		t.Error("Occupied room must survive the sweep")
	}
	if room, _ := database.GetRoomByCode("full0001"); room == nil {
		t.Error("Room with entities must survive the sweep")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	database := setupTestDB(t)
	database.CreateRoom("cold0002")

	service := New(database, &fakeOccupancy{occupied: map[int64]bool{}}, DefaultConfig(), zerolog.Nop())
	service.Sweep()
	service.Sweep()

	ids, err := database.ListRoomIDs()
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected no rooms after sweeps, got %d", len(ids))
	}
}
