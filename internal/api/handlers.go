package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/easeldraw/easel/backend/internal/auth"
	"github.com/easeldraw/easel/backend/internal/db"
	"github.com/easeldraw/easel/backend/internal/ws"
)

type Handler struct {
	hub      *ws.Hub
	database *db.Database
	tokens   *auth.Manager
	logger   zerolog.Logger
}

func NewHandler(hub *ws.Hub, database *db.Database, tokens *auth.Manager, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		database: database,
		tokens:   tokens,
		logger:   logger,
	}
}

// AppResponse is the envelope every form endpoint answers with. RoomCode
// rides along on success so a client always has a room to join next.
type AppResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	RoomCode string `json:"roomCode,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, resp AppResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("error encoding JSON response")
	}
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.respond(w, AppResponse{Success: true, Message: "Server online!"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RoomUpdate validates an existing room code or mints a brand-new one.
// An empty code always produces a fresh room.
func (h *Handler) RoomUpdate(w http.ResponseWriter, r *http.Request) {
	roomCode := r.FormValue("roomCode")
	if roomCode == "" {
		room, err := h.database.GenerateRoom()
		if err != nil {
			h.logger.Error().Err(err).Msg("room generation failed")
			h.respond(w, AppResponse{Success: false, Message: "Failed to create room. Please try again later."})
			return
		}
		h.respond(w, AppResponse{Success: true, RoomCode: room.Code})
		return
	}

	room, err := h.database.GetRoomByCode(roomCode)
	if err != nil {
		h.logger.Error().Err(err).Msg("room lookup failed")
		h.respond(w, AppResponse{Success: false, Message: "Failed to look up room. Please try again later."})
		return
	}
	if room == nil {
		h.respond(w, AppResponse{Success: false, Message: "Invalid room code."})
		return
	}
	h.respond(w, AppResponse{Success: true, RoomCode: room.Code})
}

func (h *Handler) UserCreate(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	if len(username) < 5 {
		h.respond(w, AppResponse{Success: false, Message: "Username length must be greater than 5 characters."})
		return
	}
	if len(username) > 16 {
		h.respond(w, AppResponse{Success: false, Message: "Username length must be less than or equal to 16 characters."})
		return
	}
	if len(password) < 5 {
		h.respond(w, AppResponse{Success: false, Message: "Password length must be greater than 5 characters."})
		return
	}

	existing, err := h.database.GetUserByUsername(username)
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		h.respond(w, AppResponse{Success: false, Message: "Failed to create user. Please try again later."})
		return
	}
	if existing != nil {
		h.respond(w, AppResponse{Success: false, Message: "A user with this username already exists."})
		return
	}

	user, err := h.database.CreateUser(username, password)
	if err != nil {
		h.logger.Error().Err(err).Msg("user creation failed")
		h.respond(w, AppResponse{Success: false, Message: "Failed to create user. Please try again later."})
		return
	}

	h.respondWithToken(w, user)
}

func (h *Handler) UserLogin(w http.ResponseWriter, r *http.Request) {
	user, err := h.database.Authenticate(r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		h.logger.Error().Err(err).Msg("login failed")
		h.respond(w, AppResponse{Success: false, Message: "Failed to log in. Please try again later."})
		return
	}
	if user == nil {
		h.respond(w, AppResponse{Success: false, Message: "Incorrect username or password."})
		return
	}

	h.respondWithToken(w, user)
}

// UserAutologin exchanges a previously issued token for the username and
// a fresh room code.
func (h *Handler) UserAutologin(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.tokens.VerifyToken(r.FormValue("token"))
	if err != nil {
		h.respond(w, AppResponse{Success: false, Message: "Autologin failed because token is invalid."})
		return
	}

	user, err := h.database.GetUserByID(userID)
	if err != nil || user == nil {
		h.respond(w, AppResponse{Success: false, Message: "Autologin failed because token is invalid."})
		return
	}

	room, err := h.database.GenerateRoom()
	if err != nil {
		h.logger.Error().Err(err).Msg("room generation failed")
		h.respond(w, AppResponse{Success: false, Message: "Failed to create room. Please try again later."})
		return
	}

	h.respond(w, AppResponse{Success: true, Message: user.Username, RoomCode: room.Code})
}

func (h *Handler) respondWithToken(w http.ResponseWriter, user *db.User) {
	token, err := h.tokens.CreateToken(user.ID, user.Username)
	if err != nil {
		h.logger.Error().Err(err).Msg("token creation failed")
		h.respond(w, AppResponse{Success: false, Message: "Failed to create session. Please try again later."})
		return
	}

	room, err := h.database.GenerateRoom()
	if err != nil {
		h.logger.Error().Err(err).Msg("room generation failed")
		h.respond(w, AppResponse{Success: false, Message: "Failed to create room. Please try again later."})
		return
	}

	h.respond(w, AppResponse{Success: true, Message: token, RoomCode: room.Code})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   h.hub.GetRoomCount(),
		"active_clients": h.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if h.database != nil {
		dbStats, err := h.database.GetStats()
		if err == nil {
			stats["total_rooms"] = dbStats["room_count"]
			stats["total_entities"] = dbStats["entity_count"]
			stats["total_users"] = dbStats["user_count"]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error().Err(err).Msg("error encoding JSON response")
	}
}
