package model

// Category is a node in the spending category tree.
type Category struct {
	Meta
	Name     string `json:"name"`
	ParentID string `json:"parent_category_id,omitempty"`
	Type     string `json:"type,omitempty"`
}
