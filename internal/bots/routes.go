package bots

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the bot message endpoint on the given router.
func RegisterRoutes(r chi.Router, g *Gateway) {
	r.Post("/api/bot/message", g.handleMessage)
}

func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg IncomingMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if msg.Text == "" && msg.CallbackData == "" && msg.Upload == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text, callback_data or upload is required"})
		return
	}
	if msg.Platform == "" {
		msg.Platform = PlatformHTTP
	}

	out, err := g.Process(r.Context(), msg)
	if err != nil {
		slog.Error("bot message failed", slog.Int64("chat_id", msg.ChatID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "message processing failed"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
