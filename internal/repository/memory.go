package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/easeaico/project-chara/internal/memory"
)

// memoryModel maps to the memories table.
type memoryModel struct {
	ID          int
	MemoryID    string `gorm:"uniqueIndex"`
	CharacterID string
	SessionID   string
	Type        string
	Importance  string
	Content     string
	MessageCtx  string `gorm:"column:message_context"`
	// Keywords/RelatedEmotions are stored as JSONB for retrieval filters.
	Keywords        json.RawMessage `gorm:"type:jsonb"`
	RelatedEmotions json.RawMessage `gorm:"type:jsonb"`
	// Salience is a 0-1 importance score, used in ranking.
	Salience float64 `gorm:"column:salience_score"`
	// Embedding stores vector representation for similarity search.
	Embedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (memoryModel) TableName() string {
	return "memories"
}

// MemoryRepo archives memories in PostgreSQL. It implements
// memory.Archiver and memory.Recaller.
type MemoryRepo struct {
	db       *gorm.DB
	embedder memory.Embedder
}

// NewMemoryRepo returns a MemoryRepo. embedder may be nil.
func NewMemoryRepo(db *gorm.DB, embedder memory.Embedder) *MemoryRepo {
	return &MemoryRepo{db: db, embedder: embedder}
}

// Archive inserts the memory. When an embedder is configured the
// content is vectorized first; an embedding failure is logged and the
// memory is stored without a vector.
func (r *MemoryRepo) Archive(ctx context.Context, item memory.Item) error {
	var vector *pgvector.Vector
	if r.embedder != nil {
		values, err := r.embedder.EmbedDocument(ctx, item.Content)
		if err != nil {
			slog.Warn("failed to embed memory, archiving without vector",
				"memory_id", item.ID, "error", err)
		} else if len(values) > 0 {
			v := pgvector.NewVector(values)
			vector = &v
		}
	}

	keywords, err := marshalJSON(item.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode memory keywords: %w", err)
	}
	emotions, err := marshalJSON(item.RelatedEmotions)
	if err != nil {
		return fmt.Errorf("failed to encode memory emotions: %w", err)
	}

	record := memoryModel{
		MemoryID:        item.ID,
		CharacterID:     item.CharacterID,
		SessionID:       item.SessionID,
		Type:            string(item.Type),
		Importance:      string(item.Importance),
		Content:         item.Content,
		MessageCtx:      item.Context,
		Keywords:        keywords,
		RelatedEmotions: emotions,
		Salience:        salienceOf(item.Importance),
		Embedding:       vector,
		CreatedAt:       item.CreatedAt,
		ExpiresAt:       item.ExpiresAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// RecentMemories returns the newest archived memories for a character,
// oldest first.
func (r *MemoryRepo) RecentMemories(ctx context.Context, characterID, sessionID string, limit int) ([]memory.Item, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).
		Where("character_id = ?", characterID)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}

	var records []memoryModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}

	results := make([]memory.Item, 0, len(records))
	for _, record := range records {
		results = append(results, memoryFromModel(record))
	}

	// Oldest -> newest
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// SearchSimilar embeds the query text and returns the memories closest
// to it by cosine similarity, re-ranked with the salience score.
func (r *MemoryRepo) SearchSimilar(ctx context.Context, characterID, queryText string, topK int, threshold float64) ([]memory.RecalledItem, error) {
	if r.embedder == nil {
		return nil, nil
	}
	embedding, err := r.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	query := `
		SELECT content, type, created_at,
		       1 - (embedding <=> $1) AS similarity,
		       COALESCE(salience_score, 0) AS salience_score
		FROM memories
		WHERE character_id = $2
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) > $3
		ORDER BY (0.85 * (1 - (embedding <=> $1)) + 0.15 * COALESCE(salience_score, 0)) DESC
		LIMIT $4`

	var results []memory.RecalledItem
	if err := r.db.WithContext(ctx).
		Raw(query, pgvector.NewVector(embedding), characterID, threshold, topK).
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to search similar memories: %w", err)
	}
	return results, nil
}

// PruneExpired deletes memories past their retention period.
func (r *MemoryRepo) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <> '0001-01-01' AND expires_at < ?", now).
		Delete(&memoryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune memories: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// salienceOf collapses the importance grade to a 0-1 ranking weight.
func salienceOf(importance memory.Importance) float64 {
	switch importance {
	case memory.ImportanceCritical:
		return 1.0
	case memory.ImportanceHigh:
		return 0.75
	case memory.ImportanceMedium:
		return 0.5
	default:
		return 0.25
	}
}

// memoryFromModel converts database model to domain struct.
func memoryFromModel(model memoryModel) memory.Item {
	var keywords []string
	var emotions []string
	_ = unmarshalJSON(model.Keywords, &keywords)
	_ = unmarshalJSON(model.RelatedEmotions, &emotions)
	return memory.Item{
		ID:              model.MemoryID,
		CharacterID:     model.CharacterID,
		SessionID:       model.SessionID,
		Type:            memory.Type(model.Type),
		Importance:      memory.Importance(model.Importance),
		Content:         model.Content,
		Context:         model.MessageCtx,
		Keywords:        keywords,
		RelatedEmotions: emotions,
		CreatedAt:       model.CreatedAt,
		ExpiresAt:       model.ExpiresAt,
	}
}

// marshalJSON encodes a value into JSONB, returning nil for empty values.
func marshalJSON(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// unmarshalJSON decodes JSONB into the provided target.
func unmarshalJSON(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
