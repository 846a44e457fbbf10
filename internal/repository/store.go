// Package repository persists long-lived data in PostgreSQL: archived
// memories with pgvector embeddings and archived session snapshots.
package repository

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/easeaico/project-chara/internal/memory"
)

// Store holds the DB pool and repositories.
type Store struct {
	db       *gorm.DB
	Memories *MemoryRepo
	Sessions *SessionArchive
}

// NewStore initializes the PostgreSQL pool and repositories. embedder
// may be nil, in which case memories are archived without vectors.
func NewStore(ctx context.Context, databaseURL string, embedder memory.Embedder) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:       db,
		Memories: NewMemoryRepo(db, embedder),
		Sessions: NewSessionArchive(db),
	}, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
