package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZerkerEOD/krakenwifi/internal/db"
	"github.com/ZerkerEOD/krakenwifi/internal/models"
	"github.com/google/uuid"
)

// NetworkRepository handles database operations for captured networks.
type NetworkRepository struct {
	db *db.DB
}

// NewNetworkRepository creates a new network repository
func NewNetworkRepository(db *db.DB) *NetworkRepository {
	return &NetworkRepository{db: db}
}

// GetByID retrieves a network by ID.
func (r *NetworkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Network, error) {
	query := `
		SELECT id, bssid, essid, capture_path, processing, updated_at
		FROM networks
		WHERE id = $1
	`

	network := &models.Network{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&network.ID,
		&network.BSSID,
		&network.ESSID,
		&network.CapturePath,
		&network.Processing,
		&network.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("network %s not found: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get network: %w", err)
	}
	return network, nil
}

// SetProcessing atomically flips the processing flag on. Returns false
// when the network is already being processed by another job.
func (r *NetworkRepository) SetProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE networks
		SET processing = TRUE, updated_at = NOW()
		WHERE id = $1 AND processing = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark network processing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read processing result: %w", err)
	}
	return rows > 0, nil
}

// ClearProcessing flips the processing flag off. Idempotent.
func (r *NetworkRepository) ClearProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE networks
		SET processing = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to clear network processing: %w", err)
	}
	return nil
}
