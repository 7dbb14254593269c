package models

import (
	"time"

	"github.com/google/uuid"
)

// Network is the minimal view of a captured network this core touches.
// Full network CRUD lives in the management surface; the executor only
// flips the processing flag while a job runs against the network and
// resolves the capture path for extraction.
type Network struct {
	ID          uuid.UUID `json:"id"`
	BSSID       string    `json:"bssid"`
	ESSID       string    `json:"essid"`
	CapturePath string    `json:"capture_path"`
	Processing  bool      `json:"processing"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
