package audit

import "time"

// Entry is one row of the audit trail.
type Entry struct {
	ID       int64          `json:"id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// Filters narrows a timeline query. Zero values mean "no filter".
type Filters struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// Paging carries the page metadata returned alongside timeline rows.
type Paging struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result bundles a timeline page with its paging info.
type Result struct {
	Rows   []Entry `json:"rows"`
	Paging Paging  `json:"paging"`
}
