package collector

import "time"

// Sample is one line of a category's output stream: either a reading
// (Value set) or a recorded failure (Error set), never both.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Node      string    `json:"node"`
	Counter   string    `json:"counter,omitempty"`
	Instance  string    `json:"instance,omitempty"`
	Value     *float64  `json:"value,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Summary describes one finished collection.
type Summary struct {
	CollectionID    string    `json:"collection_id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Categories      []string  `json:"categories"`
	OutputFiles     []string  `json:"output_files"`
}
