package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZerkerEOD/krakenwifi/internal/db"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/google/uuid"
)

// DictionaryRepository handles database operations for wordlists.
type DictionaryRepository struct {
	db *db.DB
}

// NewDictionaryRepository creates a new dictionary repository
func NewDictionaryRepository(db *db.DB) *DictionaryRepository {
	return &DictionaryRepository{db: db}
}

// GetByID retrieves a dictionary by ID.
func (r *DictionaryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dictionary, error) {
	query := `
		SELECT id, name, file_path, word_count, created_at, updated_at
		FROM dictionaries
		WHERE id = $1
	`

	dictionary := &models.Dictionary{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&dictionary.ID,
		&dictionary.Name,
		&dictionary.FilePath,
		&dictionary.WordCount,
		&dictionary.CreatedAt,
		&dictionary.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dictionary %s not found: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dictionary: %w", err)
	}
	return dictionary, nil
}

// GetFilePath resolves just the on-disk path for a dictionary.
func (r *DictionaryRepository) GetFilePath(ctx context.Context, id uuid.UUID) (string, error) {
	var path string
	err := r.db.QueryRowContext(ctx, `SELECT file_path FROM dictionaries WHERE id = $1`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("dictionary %s not found: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get dictionary path: %w", err)
	}
	return path, nil
}
