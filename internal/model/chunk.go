package model

// ChunkRecord is one embedded document fragment stored in a project's
// index partition.
type ChunkRecord struct {
	ProjectID  string
	DocumentID string
	Ordinal    int
	Content    string
	Embedding  []float32
}

// ChunkMatch is a retrieval hit with its similarity score.
type ChunkMatch struct {
	ChunkRecord
	Score float64
}
