package db

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

type Room struct {
	ID   int64
	Code string
}

type User struct {
	ID       int64
	Username string
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code VARCHAR(8) NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		room_id INTEGER NOT NULL,
		descriptor TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_entities_room_id ON entities(room_id);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username VARCHAR(128) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Room operations

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	roomCodeLength   = 8
)

func randomRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func (d *Database) CreateRoom(code string) (*Room, error) {
	result, err := d.db.Exec("INSERT INTO rooms (code) VALUES (?)", code)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Room{ID: id, Code: code}, nil
}

func (d *Database) GetRoomByCode(code string) (*Room, error) {
	row := d.db.QueryRow("SELECT id, code FROM rooms WHERE code = ?", code)

	var room Room
	err := row.Scan(&room.ID, &room.Code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetOrCreateRoom resolves a room code, creating the room if the code is
// unknown. Joins go through here so a never-validated code still lands
// somewhere deterministic.
func (d *Database) GetOrCreateRoom(code string) (*Room, error) {
	room, err := d.GetRoomByCode(code)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}
	return d.CreateRoom(code)
}

// GenerateRoom mints a fresh unique room code and creates the room.
func (d *Database) GenerateRoom() (*Room, error) {
	for {
		code, err := randomRoomCode()
		if err != nil {
			return nil, err
		}
		existing, err := d.GetRoomByCode(code)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		return d.CreateRoom(code)
	}
}

func (d *Database) DeleteRoom(id int64) error {
	_, err := d.db.Exec("DELETE FROM rooms WHERE id = ?", id)
	return err
}

func (d *Database) ListRoomIDs() ([]int64, error) {
	rows, err := d.db.Query("SELECT id FROM rooms")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Entity operations

type EntityRow struct {
	ID         string
	RoomID     int64
	Descriptor string
	Type       string
	Timestamp  int64
}

func (d *Database) CreateEntity(id string, roomID int64, descriptor, entityType string, timestamp int64) error {
	_, err := d.db.Exec(
		"INSERT OR REPLACE INTO entities (id, room_id, descriptor, type, timestamp) VALUES (?, ?, ?, ?, ?)",
		id, roomID, descriptor, entityType, timestamp,
	)
	return err
}

func (d *Database) DeleteEntity(id string) error {
	_, err := d.db.Exec("DELETE FROM entities WHERE id = ?", id)
	return err
}

func (d *Database) ModifyEntity(id, descriptor string) error {
	_, err := d.db.Exec("UPDATE entities SET descriptor = ? WHERE id = ?", descriptor, id)
	return err
}

// LoadEntities returns a room's entities ordered by timestamp, oldest
// first, matching the z-order clients render in.
func (d *Database) LoadEntities(roomID int64) ([]EntityRow, error) {
	rows, err := d.db.Query(
		"SELECT id, room_id, descriptor, type, timestamp FROM entities WHERE room_id = ? ORDER BY timestamp ASC",
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []EntityRow
	for rows.Next() {
		var e EntityRow
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Descriptor, &e.Type, &e.Timestamp); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (d *Database) CountEntitiesInRoom(roomID int64) (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM entities WHERE room_id = ?", roomID).Scan(&count)
	return count, err
}

func (d *Database) DeleteEntitiesInRoom(roomID int64) error {
	_, err := d.db.Exec("DELETE FROM entities WHERE room_id = ?", roomID)
	return err
}

// User operations

func (d *Database) CreateUser(username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	result, err := d.db.Exec(
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		username, string(hash),
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Username: username}, nil
}

func (d *Database) GetUserByUsername(username string) (*User, error) {
	row := d.db.QueryRow("SELECT id, username FROM users WHERE username = ?", username)

	var user User
	err := row.Scan(&user.ID, &user.Username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) GetUserByID(id int64) (*User, error) {
	row := d.db.QueryRow("SELECT id, username FROM users WHERE id = ?", id)

	var user User
	err := row.Scan(&user.ID, &user.Username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks a username/password pair and returns the user on
// success, nil on bad credentials.
func (d *Database) Authenticate(username, password string) (*User, error) {
	row := d.db.QueryRow("SELECT id, username, password_hash FROM users WHERE username = ?", username)

	var user User
	var hash string
	err := row.Scan(&user.ID, &user.Username, &hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, nil
	}
	return &user, nil
}

// Stats

func (d *Database) GetStats() (map[string]int, error) {
	stats := make(map[string]int)

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, fmt.Errorf("count rooms: %w", err)
	}
	stats["room_count"] = roomCount

	var entityCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&entityCount); err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	stats["entity_count"] = entityCount

	var userCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	stats["user_count"] = userCount

	return stats, nil
}
