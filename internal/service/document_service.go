package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/filestore"
	"github.com/askbase/askbase/internal/index"
	"github.com/askbase/askbase/internal/ingest"
	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
	"github.com/askbase/askbase/internal/repo"
)

type DocumentService struct {
	projects *repo.ProjectRepo
	docs     *repo.DocumentRepo
	files    filestore.Store
	idx      index.Index
	proc     *ingest.Processor
}

func NewDocumentService(projects *repo.ProjectRepo, docs *repo.DocumentRepo,
	files filestore.Store, idx index.Index, proc *ingest.Processor) *DocumentService {
	return &DocumentService{projects: projects, docs: docs, files: files, idx: idx, proc: proc}
}

// Upload stores the original bytes, records the document as pending and
// queues it for ingestion. The upload response never waits for parsing or
// embedding.
func (s *DocumentService) Upload(ctx context.Context, projectID, filename string, r io.Reader) (*model.Document, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", appErr.ErrInvalid)
	}
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	fileType, err := ingest.DetectFileType(filename, "")
	if err != nil {
		return nil, err
	}
	doc := &model.Document{
		ID:        newID(),
		ProjectID: projectID,
		Filename:  filename,
		FileType:  fileType,
		Status:    model.DocumentStatusPending,
		Ctime:     time.Now().UnixMilli(),
	}
	if err := s.files.Save(ctx, doc.ID, r); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		_ = s.files.Delete(ctx, doc.ID)
		return nil, err
	}
	if err := s.proc.Enqueue(ctx, doc.ID); err != nil {
		// Left pending; the requeue job picks it up.
		logutil.GetLogger(ctx).Warn("enqueue ingestion failed",
			zap.String("doc_id", doc.ID), zap.Error(err))
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, projectID string) ([]*model.Document, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.docs.ListByProject(ctx, projectID)
}

// Reingest queues an existing document again, e.g. after a failed parse.
func (s *DocumentService) Reingest(ctx context.Context, projectID, docID string) error {
	doc, err := s.getOwned(ctx, projectID, docID)
	if err != nil {
		return err
	}
	if err := s.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusPending, 0, ""); err != nil {
		return err
	}
	return s.proc.Enqueue(ctx, doc.ID)
}

// Delete removes the document's vectors from the project partition, the
// stored original and the row itself.
func (s *DocumentService) Delete(ctx context.Context, projectID, docID string) error {
	doc, err := s.getOwned(ctx, projectID, docID)
	if err != nil {
		return err
	}
	if err := s.idx.DeleteByDocument(ctx, doc.ProjectID, doc.ID); err != nil {
		return fmt.Errorf("purge vectors: %w", err)
	}
	if err := s.files.Delete(ctx, doc.ID); err != nil {
		logutil.GetLogger(ctx).Warn("stored file delete failed",
			zap.String("doc_id", doc.ID), zap.Error(err))
	}
	return s.docs.Delete(ctx, doc.ID)
}

func (s *DocumentService) getOwned(ctx context.Context, projectID, docID string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.ProjectID != projectID {
		return nil, appErr.ErrNotFound
	}
	return doc, nil
}
