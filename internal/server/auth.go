package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/easeaico/project-chara/internal/security"
)

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"`
	User        *security.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}

	user, err := s.users.Register(req.Username, req.Password, req.DisplayName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{
			Success:   false,
			Error:     &apiError{Code: "REGISTRATION_FAILED", Message: err.Error()},
			Timestamp: time.Now(),
		})
		return
	}
	s.writeToken(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "无法解析请求")
		return
	}

	user, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, apiResponse{
			Success:   false,
			Error:     &apiError{Code: "UNAUTHORIZED", Message: err.Error()},
			Timestamp: time.Now(),
		})
		return
	}
	s.writeToken(w, http.StatusOK, user)
}

func (s *Server) writeToken(w http.ResponseWriter, status int, user *security.User) {
	token, err := s.auth.Issue(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.auth.TTL().Seconds()),
		User:        user,
	})
}
