package session

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/kv"
	"github.com/easeaico/project-chara/internal/types"
)

// CharacterStats aggregates per-character session usage.
type CharacterStats struct {
	Sessions int `json:"sessions"`
	Messages int `json:"messages"`
}

// Stats is a point-in-time snapshot of the manager.
type Stats struct {
	ActiveSessions     int                       `json:"active_sessions"`
	MaxSessions        int                       `json:"max_sessions"`
	TotalMessages      int                       `json:"total_messages"`
	CharacterStats     map[string]CharacterStats `json:"character_stats"`
	MemoryUsagePercent float64                   `json:"memory_usage_percent"`
}

// Manager holds active sessions in an LRU list, evicting the oldest
// when the cap is reached and archiving sessions past their idle
// timeout. An optional store persists sessions write-through so they
// survive restarts and eviction.
type Manager struct {
	mu    sync.Mutex
	byID  map[string]*list.Element
	order *list.List // front = least recently used

	store kv.Store[Session]

	maxSessions    int
	defaultTimeout time.Duration
	nowFunc        func() time.Time
}

// NewManager returns a Manager. store may be nil for purely in-memory
// operation.
func NewManager(store kv.Store[Session], maxSessions int, defaultTimeout time.Duration) *Manager {
	if maxSessions <= 0 {
		maxSessions = 100
	}
	return &Manager{
		byID:           make(map[string]*list.Element),
		order:          list.New(),
		store:          store,
		maxSessions:    maxSessions,
		defaultTimeout: defaultTimeout,
		nowFunc:        time.Now,
	}
}

// StartCleanup sweeps expired sessions every period until ctx is done.
func (m *Manager) StartCleanup(ctx context.Context, period time.Duration) {
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.CleanExpired(ctx); n > 0 {
					slog.Info("cleaned expired sessions", "count", n)
				}
			}
		}
	}()
}

// Create opens a new session for characterID.
func (m *Manager) Create(ctx context.Context, characterID string, opts *CreateOptions) (*Session, error) {
	now := m.nowFunc()
	s := &Session{
		ID:           newSessionID(),
		CharacterID:  characterID,
		Status:       types.SessionActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
		MaxMessages:  defaultMaxMessages,
		IdleTimeout:  m.defaultTimeout,
	}
	if opts != nil {
		if opts.MaxMessages > 0 {
			s.MaxMessages = opts.MaxMessages
		}
		if opts.IdleTimeout > 0 {
			s.IdleTimeout = opts.IdleTimeout
		}
	}

	m.mu.Lock()
	m.evictToCapacityLocked(ctx)
	m.byID[s.ID] = m.order.PushBack(s)
	m.mu.Unlock()

	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}
	return snapshot(s), nil
}

// Get returns the session, refreshing its LRU position. Sessions past
// their idle timeout are archived and reported expired.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	s, err := m.getLocked(ctx, sessionID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	out := snapshot(s)
	m.mu.Unlock()
	return out, nil
}

func (m *Manager) getLocked(ctx context.Context, sessionID string) (*Session, error) {
	elem, ok := m.byID[sessionID]
	if !ok {
		restored, err := m.restoreLocked(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		elem = restored
	}

	s := elem.Value.(*Session)
	if s.expired(m.nowFunc()) {
		m.removeLocked(ctx, elem, types.SessionArchived)
		return nil, &errs.SessionExpiredError{SessionID: sessionID}
	}
	m.order.MoveToBack(elem)
	return s, nil
}

// restoreLocked pulls an evicted session back from the store.
func (m *Manager) restoreLocked(ctx context.Context, sessionID string) (*list.Element, error) {
	if m.store == nil {
		return nil, &errs.SessionNotFoundError{SessionID: sessionID}
	}
	stored, ok, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", sessionID, err)
	}
	if !ok {
		return nil, &errs.SessionNotFoundError{SessionID: sessionID}
	}
	stored.Status = types.SessionActive
	m.evictToCapacityLocked(ctx)
	elem := m.order.PushBack(&stored)
	m.byID[sessionID] = elem
	return elem, nil
}

// AddMessage appends a message to the session's history.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg types.Message) (*Session, error) {
	m.mu.Lock()
	s, err := m.getLocked(ctx, sessionID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	s.addMessage(msg, m.nowFunc())
	out := snapshot(s)
	m.mu.Unlock()

	if err := m.persist(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Activate refreshes the session's last-active timestamp.
func (m *Manager) Activate(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	s, err := m.getLocked(ctx, sessionID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	s.LastActiveAt = m.nowFunc()
	out := snapshot(s)
	m.mu.Unlock()

	if err := m.persist(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete archives and drops the session. It reports whether the
// session existed.
func (m *Manager) Delete(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.byID[sessionID]
	if !ok {
		return false
	}
	m.removeLocked(ctx, elem, types.SessionArchived)
	return true
}

// Archive is Delete under its API name: the session leaves active
// memory with archived status.
func (m *Manager) Archive(ctx context.Context, sessionID string) bool {
	return m.Delete(ctx, sessionID)
}

// List returns session summaries, newest activity first, optionally
// filtered by character.
func (m *Manager) List(characterID string) []Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := make([]Summary, 0, len(m.byID))
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		s := elem.Value.(*Session)
		if characterID != "" && s.CharacterID != characterID {
			continue
		}
		summaries = append(summaries, s.summary())
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActiveAt.After(summaries[j].LastActiveAt)
	})
	return summaries
}

// Stats returns a usage snapshot.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		ActiveSessions: len(m.byID),
		MaxSessions:    m.maxSessions,
		CharacterStats: make(map[string]CharacterStats),
	}
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		s := elem.Value.(*Session)
		stats.TotalMessages += s.TotalMessages
		cs := stats.CharacterStats[s.CharacterID]
		cs.Sessions++
		cs.Messages += s.TotalMessages
		stats.CharacterStats[s.CharacterID] = cs
	}
	stats.MemoryUsagePercent = float64(stats.ActiveSessions) / float64(stats.MaxSessions) * 100
	return stats
}

// CleanExpired archives every session past its idle timeout and
// returns how many were removed.
func (m *Manager) CleanExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	var expired []*list.Element
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*Session).expired(now) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		m.removeLocked(ctx, elem, types.SessionArchived)
	}
	return len(expired)
}

// Close archives all sessions.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.order.Front() != nil {
		m.removeLocked(ctx, m.order.Front(), types.SessionArchived)
	}
}

func (m *Manager) evictToCapacityLocked(ctx context.Context) {
	for len(m.byID) >= m.maxSessions {
		oldest := m.order.Front()
		if oldest == nil {
			return
		}
		s := oldest.Value.(*Session)
		slog.Info("session capacity reached, archiving oldest", "session_id", s.ID)
		m.removeLocked(ctx, oldest, types.SessionArchived)
	}
}

func (m *Manager) removeLocked(ctx context.Context, elem *list.Element, status types.SessionStatus) {
	s := elem.Value.(*Session)
	s.Status = status
	m.order.Remove(elem)
	delete(m.byID, s.ID)
	if m.store != nil {
		// Keep the archived snapshot in the store for later restore.
		if err := m.store.Set(ctx, s.ID, *s); err != nil {
			slog.Warn("failed to persist archived session", "session_id", s.ID, "error", err)
		}
	}
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Set(ctx, s.ID, *s); err != nil {
		return fmt.Errorf("persist session %s: %w", s.ID, err)
	}
	return nil
}

func snapshot(s *Session) *Session {
	out := *s
	out.Messages = append([]types.Message(nil), s.Messages...)
	return &out
}

func newSessionID() string {
	return "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
