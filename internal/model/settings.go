package model

// ModelSettings are the process-wide default model ids, consulted whenever a
// project has no model of its own assigned.
type ModelSettings struct {
	PrimaryModel  string `json:"primary_model" db:"primary_model"`
	FallbackModel string `json:"fallback_model" db:"fallback_model"`
	Mtime         int64  `json:"mtime" db:"mtime"`
}
