package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/easeaico/project-chara/internal/chat"
)

// wsInbound is a client frame on the chat socket.
type wsInbound struct {
	Type        string `json:"type"`
	CharacterID string `json:"character_id,omitempty"`
	Message     string `json:"message,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// handleWebSocket runs the realtime chat protocol: the client sends
// user_message frames, the server answers with response_start, one
// response_chunk per fragment, and response_complete.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()
	slog.Info("websocket connected", "session_id", sessionID)

	for {
		var inbound wsInbound
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "session_id", sessionID, "error", err)
			}
			return
		}

		switch inbound.Type {
		case "user_message":
			s.streamOverSocket(conn, r, sessionID, inbound)
		case "typing_start", "typing_stop":
			if inbound.Type == "typing_start" {
				// Typing counts as activity, keeping the session alive.
				if _, err := s.sessions.Activate(r.Context(), sessionID); err != nil {
					slog.Warn("failed to refresh session activity", "session_id", sessionID, "error", err)
				}
			}
			sendFrame(conn, map[string]any{
				"type":      "typing_status",
				"is_typing": inbound.Type == "typing_start",
				"timestamp": time.Now(),
			})
		case "ping":
			sendFrame(conn, map[string]any{"type": "pong", "timestamp": time.Now()})
		default:
			sendFrame(conn, map[string]any{"type": "error", "error": "未知的消息类型: " + inbound.Type})
		}
	}
}

func (s *Server) streamOverSocket(conn *websocket.Conn, r *http.Request, sessionID string, inbound wsInbound) {
	sendFrame(conn, map[string]any{
		"type":      "user_message_received",
		"message":   inbound.Message,
		"timestamp": time.Now(),
	})
	sendFrame(conn, map[string]any{
		"type":         "ai_thinking",
		"character_id": inbound.CharacterID,
		"timestamp":    time.Now(),
	})
	sendFrame(conn, map[string]any{
		"type":         "response_start",
		"character_id": inbound.CharacterID,
		"timestamp":    time.Now(),
	})

	req := chat.Request{
		CharacterID: inbound.CharacterID,
		SessionID:   sessionID,
		ClientID:    clientIP(r),
		Message:     inbound.Message,
		Provider:    inbound.Provider,
	}

	var full string
	index := 0
	for chunk, err := range s.chat.SendStream(r.Context(), req) {
		if err != nil {
			sendFrame(conn, map[string]any{"type": "error", "error": err.Error()})
			return
		}
		full += chunk
		sendFrame(conn, map[string]any{
			"type":         "response_chunk",
			"character_id": inbound.CharacterID,
			"content":      chunk,
			"full_content": full,
			"is_complete":  false,
			"chunk_index":  index,
			"timestamp":    time.Now(),
		})
		index++
	}

	sendFrame(conn, map[string]any{
		"type":         "response_complete",
		"character_id": inbound.CharacterID,
		"full_message": full,
		"timestamp":    time.Now(),
		"metadata":     map[string]any{"total_chunks": index},
	})
}

func sendFrame(conn *websocket.Conn, payload map[string]any) {
	if err := conn.WriteJSON(payload); err != nil {
		slog.Warn("websocket write failed", "error", err)
	}
}
