package model

import "time"

// FilterRecord is a single stored filter.
type FilterRecord struct {
	ID              int64          `json:"id"`
	Content         string         `json:"content"`
	Description     string         `json:"description"`
	Settings        map[string]any `json:"settings"`
	AdditionalField map[string]any `json:"additional_field"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// FilterListRecord is one stored (filter type, list type) list with its filters.
// ListType is 0 for a deny list and 1 for an allow list.
type FilterListRecord struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	ListType  int            `json:"list_type"`
	Settings  map[string]any `json:"settings"`
	Filters   []FilterRecord `json:"filters"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
