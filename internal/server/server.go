// Package server exposes the chat pipeline over HTTP: a JSON API under
// /api/v1 and a WebSocket endpoint for streamed conversation.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/easeaico/project-chara/internal/character"
	"github.com/easeaico/project-chara/internal/chat"
	"github.com/easeaico/project-chara/internal/emotion"
	"github.com/easeaico/project-chara/internal/memory"
	"github.com/easeaico/project-chara/internal/relationship"
	"github.com/easeaico/project-chara/internal/security"
	"github.com/easeaico/project-chara/internal/session"
	"github.com/easeaico/project-chara/internal/state"
	"github.com/easeaico/project-chara/internal/validate"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Chat          *chat.Service
	Characters    *character.Loader
	Sessions      *session.Manager
	States        *state.Manager
	Memories      *memory.Manager
	Relationships *relationship.Manager
	Emotions      *emotion.Manager
	Validator     *validate.Validator
	// Auth may be nil, which disables bearer authentication. Users
	// backs the register/login endpoints when auth is enabled.
	Auth      *security.TokenAuth
	Users     *security.UserRegistry
	Providers []string
}

// Server routes API requests to the chat services.
type Server struct {
	router        *mux.Router
	chat          *chat.Service
	characters    *character.Loader
	sessions      *session.Manager
	states        *state.Manager
	memories      *memory.Manager
	relationships *relationship.Manager
	emotions      *emotion.Manager
	validator     *validate.Validator
	auth          *security.TokenAuth
	users         *security.UserRegistry
	providers     []string
	upgrader      websocket.Upgrader
	startedAt     time.Time
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		chat:          deps.Chat,
		characters:    deps.Characters,
		sessions:      deps.Sessions,
		states:        deps.States,
		memories:      deps.Memories,
		relationships: deps.Relationships,
		emotions:      deps.Emotions,
		validator:     deps.Validator,
		auth:          deps.Auth,
		users:         deps.Users,
		providers:     deps.Providers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

// Router returns the http.Handler for the server. CORS wraps the
// router itself so preflight requests are answered before routing.
func (s *Server) Router() http.Handler {
	return allowCORS(s.router)
}

func (s *Server) routes() {
	s.router.Use(logRequests)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/chat/{session_id}", s.handleWebSocket).Methods(http.MethodGet)

	// Token issuance lives outside the authenticated subrouter, and
	// only when authentication is configured.
	if s.auth != nil && s.users != nil {
		s.router.HandleFunc("/api/v1/auth/register", s.handleRegister).Methods(http.MethodPost)
		s.router.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods(http.MethodPost)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.requireAuth)

	api.HandleFunc("/characters", s.handleListCharacters).Methods(http.MethodGet)
	api.HandleFunc("/characters/{character_id}", s.handleGetCharacter).Methods(http.MethodGet)
	api.HandleFunc("/characters/{character_id}/sessions", s.handleListSessions).Methods(http.MethodGet)

	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{session_id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{session_id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{session_id}/messages", s.handleSessionMessages).Methods(http.MethodGet)

	api.HandleFunc("/character-state/{character_id}/{session_id}", s.handleCharacterState).Methods(http.MethodGet)
	api.HandleFunc("/memory/{character_id}/{session_id}", s.handleMemory).Methods(http.MethodGet)
	api.HandleFunc("/memory/search/{character_id}/{session_id}", s.handleMemorySearch).Methods(http.MethodPost)
	api.HandleFunc("/relationships/{character_id}", s.handleRelationships).Methods(http.MethodGet)
	api.HandleFunc("/relationships/interactions", s.handleRelationshipInteraction).Methods(http.MethodPost)
	api.HandleFunc("/relationships/simulate", s.handleSimulateInteraction).Methods(http.MethodPost)
	api.HandleFunc("/validation/response", s.handleValidateResponse).Methods(http.MethodPost)
	api.HandleFunc("/stats/overview", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/stats/emotion-analysis/{character_id}/{session_id}", s.handleEmotionAnalysis).Methods(http.MethodGet)
}

// requireAuth enforces a bearer token when authentication is
// configured. The health and websocket endpoints stay open.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			writeJSON(w, http.StatusUnauthorized, apiResponse{
				Success:   false,
				Error:     &apiError{Code: "UNAUTHORIZED", Message: "缺少认证令牌"},
				Timestamp: time.Now(),
			})
			return
		}
		userID, err := s.auth.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, apiResponse{
				Success:   false,
				Error:     &apiError{Code: "UNAUTHORIZED", Message: "认证令牌无效"},
				Timestamp: time.Now(),
			})
			return
		}
		r.Header.Set("X-User-ID", userID)
		next.ServeHTTP(w, r)
	})
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request handled",
			"method", r.Method, "path", r.URL.Path,
			"remote", clientIP(r), "duration", time.Since(start))
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i > 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
