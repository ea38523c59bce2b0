package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/session"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeGenerator struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakeGenerator) Generate(ctx context.Context, modelID string, prompt string) (string, error) {
	f.calls = append(f.calls, modelID)
	if err := f.errs[modelID]; err != nil {
		return "", err
	}
	return f.responses[modelID], nil
}

type fakeSearcher struct {
	matches []*model.ChunkMatch
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, projectID string, queryVec []float32, topK int, minScore float64) ([]*model.ChunkMatch, error) {
	return f.matches, f.err
}

func match(content string, score float64) *model.ChunkMatch {
	m := &model.ChunkMatch{}
	m.DocumentID = "doc1"
	m.Content = content
	m.Score = score
	return m
}

func testProject() *model.Project {
	return &model.Project{ID: "p1", Name: "kb", MaxResponseLength: 200}
}

func testSettings() model.ModelSettings {
	return model.ModelSettings{PrimaryModel: "model-a", FallbackModel: "model-b"}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	e := New(&fakeEmbedder{}, &fakeGenerator{}, &fakeSearcher{}, Config{})
	_, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: testSettings(),
		Question: "   ",
	})
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAnswer_NoMatchesSkipsModelCall(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"model-a": "should not appear"}}
	e := New(&fakeEmbedder{}, gen, &fakeSearcher{}, Config{})
	ans, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: testSettings(),
		Question: "what is this?",
	})
	require.NoError(t, err)
	require.True(t, ans.NoInfo)
	require.Equal(t, DefaultNoInfoMessage, ans.Text)
	require.Empty(t, gen.calls, "no model call without grounding")
}

func TestAnswer_SearchErrorDegradesToNoInfo(t *testing.T) {
	e := New(&fakeEmbedder{}, &fakeGenerator{}, &fakeSearcher{err: errors.New("index down")}, Config{})
	ans, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: testSettings(),
		Question: "anything",
	})
	require.NoError(t, err)
	require.True(t, ans.NoInfo)
}

func TestAnswer_EmbedFailureUnavailable(t *testing.T) {
	e := New(&fakeEmbedder{err: errors.New("embed down")}, &fakeGenerator{}, &fakeSearcher{}, Config{})
	ans, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: testSettings(),
		Question: "anything",
	})
	require.NoError(t, err)
	require.True(t, ans.Unavailable)
	require.Equal(t, DefaultUnavailableMessage, ans.Text)
}

func TestAnswer_PrimaryModelUsed(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"model-a": "grounded answer."}}
	searcher := &fakeSearcher{matches: []*model.ChunkMatch{match("relevant chunk", 0.9)}}
	e := New(&fakeEmbedder{}, gen, searcher, Config{})
	ans, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: testSettings(),
		Question: "what is this?",
	})
	require.NoError(t, err)
	require.Equal(t, "grounded answer.", ans.Text)
	require.False(t, ans.FromFallback)
	require.Equal(t, []string{"model-a"}, gen.calls)
	require.Equal(t, "model-a", ans.Trace.Model)
	require.Len(t, ans.Trace.Hits, 1)
}

func TestAnswer_ProjectModelOverridesGlobal(t *testing.T) {
	gen := &fakeGenerator{responses: map[string]string{"custom": "custom answer."}}
	searcher := &fakeSearcher{matches: []*model.ChunkMatch{match("chunk", 0.8)}}
	e := New(&fakeEmbedder{}, gen, searcher, Config{})
	project := testProject()
	project.ModelID = "custom"
	ans, err := e.Answer(context.Background(), &Request{
		Project:  project,
		Settings: testSettings(),
		Question: "q",
	})
	require.NoError(t, err)
	require.Equal(t, "custom answer.", ans.Text)
	require.Equal(t, []string{"custom"}, gen.calls)
}

func TestAnswer_FallbackAfterPrimaryFailure(t *testing.T) {
	gen := &fakeGenerator{
		responses: map[string]string{"model-b": "fallback answer."},
		errs:      map[string]error{"model-a": errors.New("timeout")},
	}
	searcher := &fakeSearcher{matches: []*model.ChunkMatch{match("chunk", 0.8)}}
	e := New(&fakeEmbedder{}, gen, searcher, Config{})
	ans, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: testSettings(),
		Question: "q",
	})
	require.NoError(t, err)
	require.Equal(t, "fallback answer.", ans.Text)
	require.True(t, ans.FromFallback)
	require.Equal(t, []string{"model-a", "model-b"}, gen.calls)
}

func TestAnswer_BothModelsFailUnavailable(t *testing.T) {
	gen := &fakeGenerator{
		errs: map[string]error{
			"model-a": errors.New("timeout"),
			"model-b": errors.New("quota"),
		},
	}
	searcher := &fakeSearcher{matches: []*model.ChunkMatch{match("chunk", 0.8)}}
	e := New(&fakeEmbedder{}, gen, searcher, Config{})
	ans, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: testSettings(),
		Question: "q",
	})
	require.NoError(t, err)
	require.True(t, ans.Unavailable)
	require.Equal(t, DefaultUnavailableMessage, ans.Text)
}

func TestAnswer_NoFallbackConfigured(t *testing.T) {
	gen := &fakeGenerator{errs: map[string]error{"model-a": errors.New("down")}}
	searcher := &fakeSearcher{matches: []*model.ChunkMatch{match("chunk", 0.8)}}
	e := New(&fakeEmbedder{}, gen, searcher, Config{})
	ans, err := e.Answer(context.Background(), &Request{
		Project:  testProject(),
		Settings: model.ModelSettings{PrimaryModel: "model-a"},
		Question: "q",
	})
	require.NoError(t, err)
	require.True(t, ans.Unavailable)
	require.Equal(t, []string{"model-a"}, gen.calls, "no second call without a distinct fallback")
}

func TestAnswer_TruncatesLongResponse(t *testing.T) {
	long := strings.Repeat("word and more. ", 50)
	gen := &fakeGenerator{responses: map[string]string{"model-a": long}}
	searcher := &fakeSearcher{matches: []*model.ChunkMatch{match("chunk", 0.8)}}
	e := New(&fakeEmbedder{}, gen, searcher, Config{})
	project := testProject()
	project.MaxResponseLength = 50
	ans, err := e.Answer(context.Background(), &Request{
		Project:  project,
		Settings: testSettings(),
		Question: "q",
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len([]rune(ans.Text)), 50)
	require.True(t, strings.HasSuffix(ans.Text, "."), "prefer a sentence boundary cut")
}

func TestRenderPrompt_Substitution(t *testing.T) {
	matches := []*model.ChunkMatch{match("alpha", 0.9), match("beta", 0.8)}
	history := []session.Turn{{Question: "prev q", Answer: "prev a"}}
	prompt := renderPrompt("CTX:{{context}}|HIST:{{history}}|Q:{{question}}|MAX:{{max_length}}", matches, history, "now?", 300)
	require.Contains(t, prompt, "[1] alpha")
	require.Contains(t, prompt, "[2] beta")
	require.Contains(t, prompt, "Q: prev q")
	require.Contains(t, prompt, "A: prev a")
	require.Contains(t, prompt, "Q:now?")
	require.Contains(t, prompt, "MAX:300")
}

func TestRenderPrompt_DefaultTemplateAndEmptyHistory(t *testing.T) {
	matches := []*model.ChunkMatch{match("only chunk", 0.7)}
	prompt := renderPrompt("", matches, nil, "question?", 100)
	require.Contains(t, prompt, "only chunk")
	require.Contains(t, prompt, "question?")
	require.Contains(t, prompt, "(none)")
	require.NotContains(t, prompt, "{{")
}
