package benefit

import (
	"time"

	"github.com/google/uuid"
)

// Category distinguishes flat benefits from rank-tiered ones.
type Category string

const (
	CategoryFixed  Category = "fixed"
	CategoryTiered Category = "tiered"
)

// Benefit is an entry in the catalog employees request against.
type Benefit struct {
	ID                uuid.UUID    `json:"id"`
	Name              string       `json:"name"`
	Description       *string      `json:"description,omitempty"`
	Category          Category     `json:"category"`
	DocumentsRequired []string     `json:"documents_required"`
	Active            bool         `json:"active"`
	CreatedBy         uuid.UUID    `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	Usage             RequestStats `json:"usage"`
}

// RequestStats counts requests filed against a benefit.
type RequestStats struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
}

// CreateInput carries the fields an administrator supplies.
type CreateInput struct {
	Name              string
	Description       *string
	Category          Category
	DocumentsRequired []string
}
