package model

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusDone       DocumentStatus = "done"
	DocumentStatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID         string         `json:"id" db:"id"`
	ProjectID  string         `json:"project_id" db:"project_id"`
	Filename   string         `json:"filename" db:"filename"`
	FileType   string         `json:"file_type" db:"file_type"`
	Status     DocumentStatus `json:"status" db:"status"`
	ChunkCount int            `json:"chunk_count" db:"chunk_count"`
	LastError  string         `json:"last_error" db:"last_error"`
	Ctime      int64          `json:"ctime" db:"ctime"`
}
