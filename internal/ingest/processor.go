package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/filestore"
	"github.com/askbase/askbase/internal/index"
	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
)

// DocumentStore is the slice of the document repo the processor needs.
type DocumentStore interface {
	GetByID(ctx context.Context, docID string) (*model.Document, error)
	UpdateStatus(ctx context.Context, docID string, status model.DocumentStatus, chunkCount int, lastError string) error
}

// Embedder turns chunk text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

type ProcessorConfig struct {
	Workers   int
	QueueSize int
}

// Processor runs document ingestion off the request path: it pulls queued
// document ids, parses and chunks the stored file, embeds every chunk and
// upserts the vectors into the owning project's partition. One document's
// failure never blocks the rest of the queue.
type Processor struct {
	docs    DocumentStore
	files   filestore.Store
	idx     index.Index
	embed   Embedder
	chunker *Chunker

	queue chan string
	wg    sync.WaitGroup
	once  sync.Once
}

func NewProcessor(docs DocumentStore, files filestore.Store, idx index.Index, embed Embedder, chunker *Chunker, cfg ProcessorConfig) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	p := &Processor{
		docs:    docs,
		files:   files,
		idx:     idx,
		embed:   embed,
		chunker: chunker,
		queue:   make(chan string, cfg.QueueSize),
	}
	p.startWorkers(cfg.Workers)
	return p
}

func (p *Processor) startWorkers(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for docID := range p.queue {
				p.runOne(context.Background(), docID)
			}
		}()
	}
}

// Enqueue schedules a document for (re-)ingestion.
func (p *Processor) Enqueue(ctx context.Context, docID string) error {
	select {
	case p.queue <- docID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the workers.
func (p *Processor) Close() {
	p.once.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}

func (p *Processor) runOne(ctx context.Context, docID string) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", docID))
	doc, err := p.docs.GetByID(ctx, docID)
	if err != nil {
		// Deleted between enqueue and pickup.
		if appErr.IsNotFound(err) {
			return
		}
		logger.Error("load document failed", zap.Error(err))
		return
	}
	if err := p.docs.UpdateStatus(ctx, docID, model.DocumentStatusProcessing, 0, ""); err != nil {
		logger.Error("mark processing failed", zap.Error(err))
		return
	}
	count, err := p.ingest(ctx, doc)
	if err != nil {
		logger.Warn("ingestion failed", zap.String("project_id", doc.ProjectID), zap.Error(err))
		if uerr := p.docs.UpdateStatus(ctx, docID, model.DocumentStatusFailed, 0, err.Error()); uerr != nil {
			logger.Error("mark failed failed", zap.Error(uerr))
		}
		return
	}
	if err := p.docs.UpdateStatus(ctx, docID, model.DocumentStatusDone, count, ""); err != nil {
		logger.Error("mark done failed", zap.Error(err))
		return
	}
	logger.Info("document ingested", zap.String("project_id", doc.ProjectID), zap.Int("chunks", count))
}

func (p *Processor) ingest(ctx context.Context, doc *model.Document) (int, error) {
	rc, err := p.files.Open(ctx, doc.ID)
	if err != nil {
		return 0, fmt.Errorf("open stored file: %w", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return 0, fmt.Errorf("read stored file: %w", err)
	}
	text, err := Parse(doc.Filename, doc.FileType, data)
	if err != nil {
		return 0, err
	}

	// Re-ingestion must never leave stale fragments behind.
	if err := p.idx.DeleteByDocument(ctx, doc.ProjectID, doc.ID); err != nil {
		return 0, fmt.Errorf("purge old vectors: %w", err)
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}
	records := make([]*model.ChunkRecord, 0, len(chunks))
	for ordinal, chunk := range chunks {
		vec, err := p.embed.Embed(ctx, chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", ordinal, err)
		}
		records = append(records, &model.ChunkRecord{
			ProjectID:  doc.ProjectID,
			DocumentID: doc.ID,
			Ordinal:    ordinal,
			Content:    chunk,
			Embedding:  vec,
		})
	}
	if err := p.idx.Upsert(ctx, doc.ProjectID, records); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}
	return len(records), nil
}

// IsIngestionError reports whether the failure came from the file itself
// rather than from infrastructure.
func IsIngestionError(err error) bool {
	return errors.Is(err, appErr.ErrUnsupportedFormat) || errors.Is(err, appErr.ErrCorruptFile)
}
