package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/pkg/dbutil"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
)

var documentFields = []string{
	"id", "project_id", "filename", "file_type", "status", "chunk_count", "last_error", "ctime",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":          doc.ID,
		"project_id":  doc.ProjectID,
		"filename":    doc.Filename,
		"file_type":   doc.FileType,
		"status":      string(doc.Status),
		"chunk_count": doc.ChunkCount,
		"last_error":  doc.LastError,
		"ctime":       doc.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{"id": docID}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanDocument(rows)
}

func (r *DocumentRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Document, error) {
	where := map[string]interface{}{
		"project_id": projectID,
		"_orderby":   "ctime",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListByStatus returns documents in the given status, oldest first. Used by
// the requeue job to recover work lost to a restart.
func (r *DocumentRepo) ListByStatus(ctx context.Context, status model.DocumentStatus, limit int) ([]*model.Document, error) {
	where := map[string]interface{}{
		"status":   string(status),
		"_orderby": "ctime",
		"_limit":   []uint{uint(limit)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var docs []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, docID string, status model.DocumentStatus, chunkCount int, lastError string) error {
	where := map[string]interface{}{"id": docID}
	update := map[string]interface{}{
		"status":      string(status),
		"chunk_count": chunkCount,
		"last_error":  lastError,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, docID string) error {
	where := map[string]interface{}{"id": docID}
	sqlStr, args, err := builder.BuildDelete("documents", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) DeleteByProject(ctx context.Context, projectID string) error {
	where := map[string]interface{}{"project_id": projectID}
	sqlStr, args, err := builder.BuildDelete("documents", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	var status string
	if err := rows.Scan(
		&doc.ID, &doc.ProjectID, &doc.Filename, &doc.FileType,
		&status, &doc.ChunkCount, &doc.LastError, &doc.Ctime,
	); err != nil {
		return nil, err
	}
	doc.Status = model.DocumentStatus(status)
	return &doc, nil
}
