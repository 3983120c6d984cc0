package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kalimahplay/kalimah/go/internal/hints"
	"github.com/kalimahplay/kalimah/go/internal/room"
	"github.com/kalimahplay/kalimah/go/internal/roomsync"
	"github.com/kalimahplay/kalimah/go/internal/round"
	"github.com/kalimahplay/kalimah/go/internal/storage/postgres"
)

// Handler exposes the room HTTP API: room lifecycle, the synchronizer
// commands, and the WebSocket upgrade endpoint.
type Handler struct {
	rooms    *room.App
	sessions *SessionManager
	cm       *ConnectionManager
	bridge   *Bridge
}

// NewHandler creates the HTTP handler.
func NewHandler(rooms *room.App, sessions *SessionManager, cm *ConnectionManager, bridge *Bridge) *Handler {
	return &Handler{
		rooms:    rooms,
		sessions: sessions,
		cm:       cm,
		bridge:   bridge,
	}
}

// RegisterRoutes registers all gateway routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.handleCreateRoom)
	mux.HandleFunc("POST /rooms/join", h.handleJoinRoom)
	mux.HandleFunc("GET /rooms/{id}/snapshot", h.handleSnapshot)
	mux.HandleFunc("POST /rooms/{id}/messages", h.handleSendMessage)
	mux.HandleFunc("POST /rooms/{id}/start", h.handleStartGame)
	mux.HandleFunc("POST /rooms/{id}/word", h.handleConfirmWord)
	mux.HandleFunc("POST /rooms/{id}/end", h.handleEndRound)
	mux.HandleFunc("POST /rooms/{id}/hint", h.handleUseHint)
	mux.HandleFunc("GET /ws", h.handleWebSocket)
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID uuid.UUID `json:"owner_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OwnerID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	created, err := h.rooms.CreateRoom(r.Context(), req.OwnerID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code      string    `json:"code"`
		RoomID    uuid.UUID `json:"room_id"`
		UserID    uuid.UUID `json:"user_id"`
		Username  string    `json:"username"`
		AvatarURL string    `json:"avatar_url"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "user_id and username are required")
		return
	}

	roomID := req.RoomID
	if roomID == uuid.Nil {
		if req.Code == "" {
			writeError(w, http.StatusBadRequest, "room_id or code is required")
			return
		}
		found, err := h.rooms.GetRoomByCode(r.Context(), req.Code)
		if err != nil {
			writeAppError(w, err)
			return
		}
		roomID = found.ID
	}

	member, err := h.rooms.JoinRoom(r.Context(), room.JoinRoomRequest{
		RoomID:    roomID,
		UserID:    req.UserID,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := s.SendMessage(r.Context(), req.Text); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleStartGame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := s.StartGame(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleConfirmWord(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Word string `json:"word"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.ConfirmWord(r.Context(), req.Word); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleEndRound(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.EndRound(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleUseHint(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	grant, err := s.UseHint(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID, ok := parseUUIDParam(w, r.URL.Query().Get("room_id"), "room_id")
	if !ok {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.bridge.EnsureRoom(roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Msg("failed to attach room to event bus")
		writeError(w, http.StatusServiceUnavailable, "room events unavailable")
		return
	}

	if err := h.cm.UpgradeConnection(w, r, userID, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": h.cm.ConnectionCount(),
	})
}

// session resolves the synchronizer for the room in the path and the
// user in the query, loading one on first use.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*roomsync.Synchronizer, bool) {
	roomID, ok := parseUUIDParam(w, r.PathValue("id"), "room id")
	if !ok {
		return nil, false
	}
	userID, ok := parseUUIDParam(w, r.URL.Query().Get("user_id"), "user_id")
	if !ok {
		return nil, false
	}
	username := r.URL.Query().Get("username")

	s, err := h.sessions.Get(r.Context(), roomID, userID, username)
	if err != nil {
		writeAppError(w, err)
		return nil, false
	}
	return s, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseUUIDParam(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	if raw == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps domain errors onto HTTP status codes.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, round.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, round.ErrInsufficientPlayers),
		errors.Is(err, round.ErrEmptyWord):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, round.ErrRoundInProgress),
		errors.Is(err, round.ErrRoundClosed),
		errors.Is(err, hints.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, round.ErrNoRound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, postgres.ErrUnavailable):
		// Advisory: the room stays usable, the client should retry.
		log.Warn().Err(err).Msg("backing store unavailable")
		writeError(w, http.StatusServiceUnavailable, "store unavailable, retry shortly")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
