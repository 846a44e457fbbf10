package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/easeaico/project-chara/internal/chat"
	"github.com/easeaico/project-chara/internal/relationship"
	"github.com/easeaico/project-chara/internal/session"
	"github.com/easeaico/project-chara/internal/validate"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"providers":      s.providers,
	})
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.characters.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, summaries)
}

func (s *Server) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	character, err := s.characters.Get(mux.Vars(r)["character_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, character)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}
	if req.ClientID == "" {
		req.ClientID = clientIP(r)
	}
	reply, err := s.chat.Send(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, reply)
}

// handleChatStream streams the reply as server-sent events: a start
// event, one chunk event per fragment, and an end event with the full
// text.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}
	if req.ClientID == "" {
		req.ClientID = clientIP(r)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeBadRequest(w, "连接不支持流式响应")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent(w, flusher, map[string]any{"type": "start", "session_id": req.SessionID})

	var full string
	for chunk, err := range s.chat.SendStream(r.Context(), req) {
		if err != nil {
			writeEvent(w, flusher, map[string]any{"type": "error", "error": err.Error()})
			return
		}
		full += chunk
		writeEvent(w, flusher, map[string]any{
			"type":         "chunk",
			"content":      chunk,
			"full_content": full,
		})
	}
	writeEvent(w, flusher, map[string]any{"type": "end", "full_content": full})
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

type createSessionRequest struct {
	CharacterID        string `json:"character_id"`
	MaxMessages        int    `json:"max_messages,omitempty"`
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}

	var opts *session.CreateOptions
	if req.MaxMessages > 0 || req.IdleTimeoutSeconds > 0 {
		opts = &session.CreateOptions{
			MaxMessages: req.MaxMessages,
			IdleTimeout: time.Duration(req.IdleTimeoutSeconds) * time.Second,
		}
	}

	sess, err := s.chat.StartSession(r.Context(), req.CharacterID, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	greeting := ""
	if len(sess.Messages) > 0 {
		greeting = sess.Messages[0].Content
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"session":  sess,
		"greeting": greeting,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), mux.Vars(r)["session_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"session_id":         sess.ID,
		"character_id":       sess.CharacterID,
		"status":             sess.Status,
		"created_at":         sess.CreatedAt,
		"updated_at":         sess.UpdatedAt,
		"last_active_at":     sess.LastActiveAt,
		"message_count":      sess.TotalMessages,
		"user_messages":      sess.UserMessages,
		"assistant_messages": sess.AssistantMessages,
		"total_tokens":       sess.TotalTokens,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	if !s.sessions.Delete(r.Context(), sessionID) {
		writeJSON(w, http.StatusNotFound, apiResponse{
			Success:   false,
			Error:     &apiError{Code: "SESSION_NOT_FOUND", Message: "会话不存在"},
			Timestamp: time.Now(),
		})
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"message": "会话已删除", "session_id": sessionID})
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), mux.Vars(r)["session_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	total := len(sess.Messages)
	start := total - offset - limit
	if start < 0 {
		start = 0
	}
	end := total - offset
	if end < start {
		end = start
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"messages": sess.Messages[start:end],
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"has_more": offset+limit < total,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, s.sessions.List(mux.Vars(r)["character_id"]))
}

func (s *Server) handleCharacterState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.characters.Get(vars["character_id"]); err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.states.Summarize(r.Context(), vars["character_id"], vars["session_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	suggestions, err := s.states.InteractionSuggestions(r.Context(), vars["character_id"], vars["session_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"state":       summary,
		"suggestions": suggestions,
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	writeSuccess(w, http.StatusOK, map[string]any{
		"statistics": s.memories.Statistics(vars["character_id"], vars["session_id"]),
	})
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	characterID := mux.Vars(r)["character_id"]
	writeSuccess(w, http.StatusOK, map[string]any{
		"relationships":   s.relationships.RelationshipsOf(characterID),
		"network_summary": s.relationships.NetworkSummary(),
	})
}

type memorySearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// handleMemorySearch answers with the in-process memories relevant to
// the query plus similarity hits from the durable archive.
func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	var req memorySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}
	if req.Query == "" {
		writeBadRequest(w, "查询内容不能为空")
		return
	}

	vars := mux.Vars(r)
	local := s.memories.RelevantMemories(vars["character_id"], vars["session_id"], req.Query, req.Limit)
	archived, err := s.memories.Recall(r.Context(), vars["character_id"], req.Query, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"memories": local,
		"archived": archived,
		"total":    len(local) + len(archived),
		"query":    req.Query,
	})
}

type relationshipInteractionRequest struct {
	CharacterA      string  `json:"character_a"`
	CharacterB      string  `json:"character_b"`
	InteractionType string  `json:"interaction_type"`
	Context         string  `json:"context,omitempty"`
	Outcome         string  `json:"outcome"`
	ImpactScore     float64 `json:"impact_score"`
}

func (s *Server) handleRelationshipInteraction(w http.ResponseWriter, r *http.Request) {
	var req relationshipInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}
	if req.CharacterA == "" || req.CharacterB == "" || req.CharacterA == req.CharacterB {
		writeBadRequest(w, "需要两个不同的角色")
		return
	}

	rel := s.relationships.RecordInteraction(
		req.CharacterA, req.CharacterB,
		relationship.InteractionType(req.InteractionType),
		req.Context,
		relationship.Outcome(req.Outcome),
		req.ImpactScore,
	)
	writeSuccess(w, http.StatusOK, rel)
}

type simulateRequest struct {
	CharacterA string `json:"character_a"`
	CharacterB string `json:"character_b"`
	Topic      string `json:"topic"`
}

func (s *Server) handleSimulateInteraction(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}

	charA, err := s.characters.Get(req.CharacterA)
	if err != nil {
		writeError(w, err)
		return
	}
	charB, err := s.characters.Get(req.CharacterB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, s.relationships.Simulate(charA, charB, req.Topic))
}

// handleEmotionAnalysis reports the session's emotion distribution and
// the records from the last hour.
func (s *Server) handleEmotionAnalysis(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.characters.Get(vars["character_id"]); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"statistics": s.emotions.Statistics(vars["session_id"]),
		"recent":     s.emotions.RecentEmotions(vars["session_id"]),
	})
}

type validateRequest struct {
	CharacterID       string `json:"character_id"`
	UserMessage       string `json:"user_message"`
	CharacterResponse string `json:"character_response"`
	PreviousResponse  string `json:"previous_response,omitempty"`
	Level             string `json:"level,omitempty"`
}

func (s *Server) handleValidateResponse(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}
	character, err := s.characters.Get(req.CharacterID)
	if err != nil {
		writeError(w, err)
		return
	}

	level := validate.Level(req.Level)
	if level == "" {
		level = validate.LevelNormal
	}
	summary := s.validator.Validate(character, req.UserMessage, req.CharacterResponse,
		validate.Context{PreviousResponse: req.PreviousResponse}, level)
	writeSuccess(w, http.StatusOK, summary)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"sessions":       s.sessions.Stats(),
		"relationships":  s.relationships.NetworkSummary(),
		"providers":      s.providers,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, apiResponse{
		Success:   false,
		Error:     &apiError{Code: "BAD_REQUEST", Message: message},
		Timestamp: time.Now(),
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
