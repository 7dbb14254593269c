package models

import (
	"time"

	"github.com/google/uuid"
)

// Dictionary is a registered wordlist available to crack jobs.
type Dictionary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	FilePath  string    `json:"file_path"`
	WordCount int64     `json:"word_count"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
