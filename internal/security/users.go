package security

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is a registered account.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login,omitempty"`
}

// UserRegistry keeps registered users in memory, keyed by username.
// Passwords are stored as SHA-256 digests.
type UserRegistry struct {
	mu      sync.Mutex
	byName  map[string]*User
	digests map[string]string

	nowFunc func() time.Time
}

// NewUserRegistry returns an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		byName:  make(map[string]*User),
		digests: make(map[string]string),
		nowFunc: time.Now,
	}
}

// Register creates an account. Usernames are unique.
func (r *UserRegistry) Register(username, password, displayName string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("用户名和密码不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[username]; exists {
		return nil, fmt.Errorf("用户名已存在: %s", username)
	}

	user := &User{
		ID:          "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   r.nowFunc(),
	}
	r.byName[username] = user
	r.digests[username] = HashString(password)

	copied := *user
	return &copied, nil
}

// Authenticate checks the credentials and records the login time.
func (r *UserRegistry) Authenticate(username, password string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byName[username]
	if !ok || r.digests[username] != HashString(password) {
		return nil, fmt.Errorf("用户名或密码错误")
	}

	user.LastLogin = r.nowFunc()
	copied := *user
	return &copied, nil
}
