// Package character loads character cards from disk, validates them
// against a schema, and caches them with a TTL.
package character

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/types"
)

// cardExtensions are tried in order when resolving a character id to a
// file.
var cardExtensions = []string{".json", ".yaml", ".yml"}

var cardSchema = mustResolveCardSchema()

func ptr[T any](v T) *T { return &v }

func mustResolveCardSchema() *jsonschema.Resolved {
	schema := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"id", "name"},
		Properties: map[string]*jsonschema.Schema{
			"id":   {Type: "string", MinLength: ptr(1)},
			"name": {Type: "string", MinLength: ptr(1)},
			"type": {
				Type: "string",
				Enum: []any{"anime", "game", "novel", "original"},
			},
			"temperature": {Type: "number", Minimum: ptr(0.0), Maximum: ptr(2.0)},
			"max_tokens":  {Type: "integer", Minimum: ptr(1.0)},
		},
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("resolve character card schema: %v", err))
	}
	return resolved
}

type cacheEntry struct {
	character *types.Character
	at        time.Time
}

// Loader reads character cards from a directory.
type Loader struct {
	dir string
	ttl time.Duration

	mu      sync.Mutex
	cache   map[string]cacheEntry
	list    []types.CharacterSummary
	listAt  time.Time
	nowFunc func() time.Time
}

// NewLoader returns a Loader over dir, creating it when missing. ttl
// zero disables caching.
func NewLoader(dir string, ttl time.Duration) (*Loader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create characters dir: %w", err)
	}
	return &Loader{
		dir:     dir,
		ttl:     ttl,
		cache:   make(map[string]cacheEntry),
		nowFunc: time.Now,
	}, nil
}

// Get returns the character with id, from cache when fresh.
func (l *Loader) Get(id string) (*types.Character, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked(id)
}

func (l *Loader) getLocked(id string) (*types.Character, error) {
	if entry, ok := l.cache[id]; ok && l.freshLocked(entry.at) {
		return entry.character, nil
	}
	character, err := l.loadFromFile(id)
	if err != nil {
		return nil, err
	}
	if l.ttl > 0 {
		l.cache[id] = cacheEntry{character: character, at: l.nowFunc()}
	}
	return character, nil
}

// List returns summaries of every loadable card, sorted by name.
// Cards that fail to load are skipped.
func (l *Loader) List() ([]types.CharacterSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.list != nil && l.freshLocked(l.listAt) {
		return l.list, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read characters dir: %w", err)
	}

	seen := make(map[string]bool)
	var summaries []types.CharacterSummary
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if !isCardExtension(ext) {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		if seen[id] {
			continue
		}
		seen[id] = true

		character, err := l.getLocked(id)
		if err != nil {
			slog.Warn("skipping unloadable character card", "character_id", id, "error", err)
			continue
		}
		summaries = append(summaries, character.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

	if l.ttl > 0 {
		l.list = summaries
		l.listAt = l.nowFunc()
	}
	return summaries, nil
}

// Exists reports whether a card file exists for id.
func (l *Loader) Exists(id string) bool {
	l.mu.Lock()
	if entry, ok := l.cache[id]; ok && l.freshLocked(entry.at) {
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()
	_, err := l.resolvePath(id)
	return err == nil
}

// Save writes the character back to disk as JSON and refreshes the
// cache.
func (l *Loader) Save(character *types.Character) error {
	data, err := json.MarshalIndent(character, "", "  ")
	if err != nil {
		return &errs.CharacterLoadError{CharacterID: character.ID, Reason: "保存失败", Err: err}
	}
	path := filepath.Join(l.dir, character.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &errs.CharacterLoadError{CharacterID: character.ID, Reason: "保存失败", Err: err}
	}

	l.mu.Lock()
	if l.ttl > 0 {
		l.cache[character.ID] = cacheEntry{character: character, at: l.nowFunc()}
	}
	l.list = nil
	l.mu.Unlock()
	return nil
}

// Delete removes a card and its cache entries. It reports whether a
// file was deleted.
func (l *Loader) Delete(id string) bool {
	path, err := l.resolvePath(id)
	if err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("failed to delete character card", "character_id", id, "error", err)
		return false
	}

	l.mu.Lock()
	delete(l.cache, id)
	l.list = nil
	l.mu.Unlock()
	return true
}

// ClearCache drops the cache for id, or all caches when id is empty.
func (l *Loader) ClearCache(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id != "" {
		delete(l.cache, id)
		return
	}
	l.cache = make(map[string]cacheEntry)
	l.list = nil
}

func (l *Loader) freshLocked(at time.Time) bool {
	if l.ttl <= 0 {
		return false
	}
	return l.nowFunc().Before(at.Add(l.ttl))
}

func (l *Loader) resolvePath(id string) (string, error) {
	for _, ext := range cardExtensions {
		path := filepath.Join(l.dir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat character card: %w", err)
		}
	}
	return "", &errs.CharacterNotFoundError{CharacterID: id}
}

func (l *Loader) loadFromFile(id string) (*types.Character, error) {
	path, err := l.resolvePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.CharacterLoadError{CharacterID: id, Reason: "文件读取错误", Err: err}
	}

	character := &types.Character{}
	var raw map[string]any
	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &errs.CharacterLoadError{CharacterID: id, Reason: "JSON解析错误", Err: err}
		}
		if err := json.Unmarshal(data, character); err != nil {
			return nil, &errs.CharacterLoadError{CharacterID: id, Reason: "JSON解析错误", Err: err}
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &errs.CharacterLoadError{CharacterID: id, Reason: "YAML解析错误", Err: err}
		}
		if err := yaml.Unmarshal(data, character); err != nil {
			return nil, &errs.CharacterLoadError{CharacterID: id, Reason: "YAML解析错误", Err: err}
		}
	}

	if err := cardSchema.Validate(raw); err != nil {
		return nil, &errs.CharacterLoadError{CharacterID: id, Reason: "配置校验失败", Err: err}
	}
	applyDefaults(character)
	return character, nil
}

func applyDefaults(c *types.Character) {
	if c.Type == "" {
		c.Type = types.CharacterTypeAnime
	}
	if c.Tone == "" {
		c.Tone = "friendly"
	}
	if c.MaxContextLength == 0 {
		c.MaxContextLength = 4000
	}
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
}

func isCardExtension(ext string) bool {
	for _, candidate := range cardExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
