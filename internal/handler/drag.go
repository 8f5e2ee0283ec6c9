package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/insignia/internal/service"
)

// DragHandler runs the bulk guild join.
type DragHandler struct {
	drag   *service.DragService
	logger *slog.Logger
}

// NewDragHandler creates a DragHandler.
func NewDragHandler(drag *service.DragService, logger *slog.Logger) *DragHandler {
	return &DragHandler{drag: drag, logger: logger}
}

type dragRequest struct {
	GuildID json.Number `json:"guild_id" validate:"required,number"`
}

// HandleDrag force-joins every stored user into a guild and reports one
// result per user. Per-user failures never fail the request.
//
// HTTP: POST /api/drag_users
// REQUEST BODY: {"guild_id": "123"}
// RESPONSE: [{"user_id":"1","status":201,"outcome":"joined"}, ...]
func (h *DragHandler) HandleDrag(w http.ResponseWriter, r *http.Request) {
	var req dragRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	guildID, err := parseSnowflake("guild_id", req.GuildID.String())
	if err != nil {
		writeError(w, err)
		return
	}

	seq, err := h.drag.Drag(r.Context(), guildID)
	if err != nil {
		h.logger.Error("drag failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	results := []service.DragResult{}
	joined := 0
	for res := range seq {
		if res.Succeeded() {
			joined++
		}
		results = append(results, res)
	}

	h.logger.Info("drag finished",
		slog.String("guildID", guildID.String()),
		slog.Int("users", len(results)),
		slog.Int("succeeded", joined),
	)
	writeJSON(w, http.StatusOK, results)
}
