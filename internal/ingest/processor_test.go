package ingest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
)

type statusChange struct {
	docID      string
	status     model.DocumentStatus
	chunkCount int
	lastError  string
}

type fakeDocStore struct {
	mu      sync.Mutex
	docs    map[string]*model.Document
	changes []statusChange
}

func newFakeDocStore(docs ...*model.Document) *fakeDocStore {
	f := &fakeDocStore{docs: make(map[string]*model.Document)}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return f
}

func (f *fakeDocStore) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStore) UpdateStatus(ctx context.Context, docID string, status model.DocumentStatus, chunkCount int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, statusChange{docID: docID, status: status, chunkCount: chunkCount, lastError: lastError})
	if doc, ok := f.docs[docID]; ok {
		doc.Status = status
		doc.ChunkCount = chunkCount
		doc.LastError = lastError
	}
	return nil
}

// final returns the last status transition recorded for the document.
func (f *fakeDocStore) final(t *testing.T, docID string) statusChange {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.changes) - 1; i >= 0; i-- {
		if f.changes[i].docID == docID {
			return f.changes[i]
		}
	}
	t.Fatalf("no status change recorded for %s", docID)
	return statusChange{}
}

type fakeFileStore struct {
	files map[string][]byte
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[string][]byte)}
}

func (f *fakeFileStore) Save(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[key] = data
	return nil
}

func (f *fakeFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFileStore) Delete(ctx context.Context, key string) error {
	delete(f.files, key)
	return nil
}

// fakeVectorIndex records the order of calls so tests can assert that a
// document's old vectors are purged before new ones land.
type fakeVectorIndex struct {
	mu      sync.Mutex
	ops     []string
	records map[string][]*model.ChunkRecord
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{records: make(map[string][]*model.ChunkRecord)}
}

func (f *fakeVectorIndex) CreatePartition(ctx context.Context, projectID string) error { return nil }

func (f *fakeVectorIndex) DropPartition(ctx context.Context, projectID string) error { return nil }

func (f *fakeVectorIndex) Upsert(ctx context.Context, projectID string, records []*model.ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	docID := records[0].DocumentID
	f.ops = append(f.ops, "upsert:"+docID)
	f.records[docID] = append(f.records[docID], records...)
	return nil
}

func (f *fakeVectorIndex) DeleteByDocument(ctx context.Context, projectID, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete:"+documentID)
	delete(f.records, documentID)
	return nil
}

func (f *fakeVectorIndex) Search(ctx context.Context, projectID string, queryVec []float32, topK int, minScore float64) ([]*model.ChunkMatch, error) {
	return nil, nil
}

type stubEmbedder struct {
	failOn string
}

func (s *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, appErr.ErrModelUnavailable
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// runIngestion enqueues the documents on a single worker and waits for the
// queue to drain, so assertions see the finished state.
func runIngestion(t *testing.T, docs *fakeDocStore, files *fakeFileStore, idx *fakeVectorIndex, embed Embedder, docIDs ...string) {
	t.Helper()
	p := NewProcessor(docs, files, idx, embed, NewChunker(0, 0), ProcessorConfig{Workers: 1})
	for _, id := range docIDs {
		require.NoError(t, p.Enqueue(context.Background(), id))
	}
	p.Close()
}

func TestProcessor_IngestsDocument(t *testing.T) {
	docs := newFakeDocStore(&model.Document{
		ID: "d1", ProjectID: "p1", Filename: "faq.txt", FileType: "txt",
		Status: model.DocumentStatusPending,
	})
	files := newFakeFileStore()
	require.NoError(t, files.Save(context.Background(), "d1",
		strings.NewReader("Refunds are issued within 14 days. Shipping is free over $50.")))
	idx := newFakeVectorIndex()

	runIngestion(t, docs, files, idx, &stubEmbedder{}, "d1")

	final := docs.final(t, "d1")
	require.Equal(t, model.DocumentStatusDone, final.status)
	require.Equal(t, 1, final.chunkCount)
	require.Empty(t, final.lastError)

	records := idx.records["d1"]
	require.Len(t, records, 1)
	require.Equal(t, "p1", records[0].ProjectID)
	require.Equal(t, "d1", records[0].DocumentID)
	require.Equal(t, 0, records[0].Ordinal)
	require.NotEmpty(t, records[0].Embedding)
}

func TestProcessor_ReingestionPurgesStaleVectors(t *testing.T) {
	docs := newFakeDocStore(&model.Document{
		ID: "d1", ProjectID: "p1", Filename: "faq.txt", FileType: "txt",
		Status: model.DocumentStatusDone, ChunkCount: 3,
	})
	files := newFakeFileStore()
	require.NoError(t, files.Save(context.Background(), "d1",
		strings.NewReader("Only this sentence survives the edit.")))
	idx := newFakeVectorIndex()
	for i := 0; i < 3; i++ {
		idx.records["d1"] = append(idx.records["d1"], &model.ChunkRecord{
			ProjectID: "p1", DocumentID: "d1", Ordinal: i, Content: "stale",
		})
	}

	runIngestion(t, docs, files, idx, &stubEmbedder{}, "d1")

	// Old fragments are gone before the new ones land.
	require.Equal(t, []string{"delete:d1", "upsert:d1"}, idx.ops)
	records := idx.records["d1"]
	require.Len(t, records, 1)
	require.Contains(t, records[0].Content, "survives")
	require.Equal(t, 1, docs.final(t, "d1").chunkCount)
}

func TestProcessor_OneFailureDoesNotStallBatch(t *testing.T) {
	docs := newFakeDocStore(
		&model.Document{ID: "d1", ProjectID: "p1", Filename: "deck.pptx", FileType: "pptx"},
		&model.Document{ID: "d2", ProjectID: "p1", Filename: "faq.txt", FileType: "txt"},
	)
	files := newFakeFileStore()
	require.NoError(t, files.Save(context.Background(), "d1", strings.NewReader("irrelevant")))
	require.NoError(t, files.Save(context.Background(), "d2", strings.NewReader("Plain answers.")))
	idx := newFakeVectorIndex()

	runIngestion(t, docs, files, idx, &stubEmbedder{}, "d1", "d2")

	failed := docs.final(t, "d1")
	require.Equal(t, model.DocumentStatusFailed, failed.status)
	require.Contains(t, failed.lastError, "unsupported")
	require.NotContains(t, idx.ops, "upsert:d1")

	done := docs.final(t, "d2")
	require.Equal(t, model.DocumentStatusDone, done.status)
	require.Equal(t, 1, done.chunkCount)
	require.Len(t, idx.records["d2"], 1)
}

func TestProcessor_EmbedFailureMarksFailed(t *testing.T) {
	docs := newFakeDocStore(&model.Document{
		ID: "d1", ProjectID: "p1", Filename: "faq.txt", FileType: "txt",
	})
	files := newFakeFileStore()
	require.NoError(t, files.Save(context.Background(), "d1", strings.NewReader("Poisoned content.")))
	idx := newFakeVectorIndex()

	runIngestion(t, docs, files, idx, &stubEmbedder{failOn: "Poisoned"}, "d1")

	final := docs.final(t, "d1")
	require.Equal(t, model.DocumentStatusFailed, final.status)
	require.Contains(t, final.lastError, "embed chunk")
	require.NotContains(t, idx.ops, "upsert:d1")
}

func TestProcessor_DeletedDocumentSkipped(t *testing.T) {
	docs := newFakeDocStore()
	files := newFakeFileStore()
	idx := newFakeVectorIndex()

	runIngestion(t, docs, files, idx, &stubEmbedder{}, "gone")

	require.Empty(t, docs.changes)
	require.Empty(t, idx.ops)
}
