// Package index is the project-partitioned vector similarity store. Every
// query carries the project id predicate, so one tenant's chunks can never
// surface in another tenant's search.
package index

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/askbase/askbase/internal/model"
)

type Index interface {
	CreatePartition(ctx context.Context, projectID string) error
	DropPartition(ctx context.Context, projectID string) error
	Upsert(ctx context.Context, projectID string, records []*model.ChunkRecord) error
	DeleteByDocument(ctx context.Context, projectID, documentID string) error
	Search(ctx context.Context, projectID string, queryVec []float32, topK int, minScore float64) ([]*model.ChunkMatch, error)
}

type PGIndex struct {
	db *sql.DB
}

func NewPGIndex(db *sql.DB) *PGIndex {
	return &PGIndex{db: db}
}

func (x *PGIndex) CreatePartition(ctx context.Context, projectID string) error {
	const query = `
		INSERT INTO index_partitions (project_id, ctime)
		VALUES ($1, $2)
		ON CONFLICT (project_id) DO NOTHING
	`
	_, err := x.db.ExecContext(ctx, query, projectID, time.Now().UnixMilli())
	return err
}

// DropPartition removes the partition marker and every vector in it.
// Dropping a partition that does not exist succeeds.
func (x *PGIndex) DropPartition(ctx context.Context, projectID string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE project_id = $1`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM index_partitions WHERE project_id = $1`, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

func (x *PGIndex) Upsert(ctx context.Context, projectID string, records []*model.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	const query = `
		INSERT INTO chunk_vectors (project_id, document_id, ordinal, content, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, document_id, ordinal) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().UnixMilli()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, query,
			projectID,
			rec.DocumentID,
			rec.Ordinal,
			rec.Content,
			pgvector.NewVector(rec.Embedding),
			now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (x *PGIndex) DeleteByDocument(ctx context.Context, projectID, documentID string) error {
	const query = `DELETE FROM chunk_vectors WHERE project_id = $1 AND document_id = $2`
	_, err := x.db.ExecContext(ctx, query, projectID, documentID)
	return err
}

func (x *PGIndex) Search(ctx context.Context, projectID string, queryVec []float32, topK int, minScore float64) ([]*model.ChunkMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	// Cosine distance; score = 1 - distance.
	const query = `
		SELECT document_id, ordinal, content, 1 - (embedding <=> $2) AS score
		FROM chunk_vectors
		WHERE project_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := x.db.QueryContext(ctx, query, projectID, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var matches []*model.ChunkMatch
	for rows.Next() {
		m := &model.ChunkMatch{}
		m.ProjectID = projectID
		if err := rows.Scan(&m.DocumentID, &m.Ordinal, &m.Content, &m.Score); err != nil {
			return nil, err
		}
		if m.Score < minScore {
			continue
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
