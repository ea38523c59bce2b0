// Package engine is the retrieval-augmented answer core. Every answer is
// grounded in retrieved chunks from the asking project's index partition;
// with no usable chunks the engine refuses to call a model at all.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/session"
)

var ErrEmptyQuestion = errors.New("empty question")

const (
	DefaultNoInfoMessage      = "There is no information on this in the loaded documents."
	DefaultUnavailableMessage = "The service is temporarily unavailable, please try again in a minute."
)

// Embedder turns a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

// Generator runs a named model against a prompt.
type Generator interface {
	Generate(ctx context.Context, modelID string, prompt string) (string, error)
}

// Searcher is the read path of the retrieval index.
type Searcher interface {
	Search(ctx context.Context, projectID string, queryVec []float32, topK int, minScore float64) ([]*model.ChunkMatch, error)
}

type Config struct {
	TopK               int
	MinScore           float64
	DefaultMaxLength   int
	NoInfoMessage      string
	UnavailableMessage string
}

type Request struct {
	Project  *model.Project
	Settings model.ModelSettings
	History  []session.Turn
	Question string
}

type Answer struct {
	Text         string
	NoInfo       bool
	Unavailable  bool
	FromFallback bool
	Trace        *Trace
}

type TraceHit struct {
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// Trace is the diagnostic record of one answer, exposed through the ops
// API for manual debugging. Never shown to chat users.
type Trace struct {
	ProjectID    string     `json:"project_id"`
	Question     string     `json:"question"`
	Hits         []TraceHit `json:"hits"`
	Prompt       string     `json:"prompt"`
	Model        string     `json:"model"`
	FromFallback bool       `json:"from_fallback"`
	EmbedMillis  int64      `json:"embed_ms"`
	SearchMillis int64      `json:"search_ms"`
	ModelMillis  int64      `json:"model_ms"`
	Answer       string     `json:"answer"`
}

type Engine struct {
	embedder Embedder
	gen      Generator
	searcher Searcher
	cfg      Config
}

func New(embedder Embedder, gen Generator, searcher Searcher, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = 0.55
	}
	if cfg.DefaultMaxLength <= 0 {
		cfg.DefaultMaxLength = 1000
	}
	if cfg.NoInfoMessage == "" {
		cfg.NoInfoMessage = DefaultNoInfoMessage
	}
	if cfg.UnavailableMessage == "" {
		cfg.UnavailableMessage = DefaultUnavailableMessage
	}
	return &Engine{embedder: embedder, gen: gen, searcher: searcher, cfg: cfg}
}

// Answer runs the full retrieval-augmented pipeline for one question.
// Infrastructure failures degrade to user-safe fixed messages; the only
// returned error is an empty question.
func (e *Engine) Answer(ctx context.Context, req *Request) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("project_id", req.Project.ID),
	)
	trace := &Trace{ProjectID: req.Project.ID, Question: question}

	start := time.Now()
	queryVec, err := e.embedder.Embed(ctx, question, "RETRIEVAL_QUERY")
	trace.EmbedMillis = time.Since(start).Milliseconds()
	if err != nil {
		logger.Error("embed question failed", zap.Error(err))
		return &Answer{Text: e.cfg.UnavailableMessage, Unavailable: true, Trace: trace}, nil
	}

	start = time.Now()
	matches, err := e.searcher.Search(ctx, req.Project.ID, queryVec, e.cfg.TopK, e.cfg.MinScore)
	trace.SearchMillis = time.Since(start).Milliseconds()
	if err != nil {
		// Index outage: degrade to the grounded refusal rather than guessing.
		logger.Error("retrieval failed", zap.Error(err))
		return &Answer{Text: e.cfg.NoInfoMessage, NoInfo: true, Trace: trace}, nil
	}
	for _, m := range matches {
		trace.Hits = append(trace.Hits, TraceHit{
			DocumentID: m.DocumentID,
			Ordinal:    m.Ordinal,
			Score:      m.Score,
			Content:    m.Content,
		})
	}
	if len(matches) == 0 {
		// The anti-hallucination guard: no grounding, no model call.
		return &Answer{Text: e.cfg.NoInfoMessage, NoInfo: true, Trace: trace}, nil
	}

	maxLen := req.Project.MaxResponseLength
	if maxLen <= 0 {
		maxLen = e.cfg.DefaultMaxLength
	}
	prompt := renderPrompt(req.Project.PromptTemplate, matches, req.History, question, maxLen)
	trace.Prompt = prompt

	primary := req.Project.ModelID
	if primary == "" {
		primary = req.Settings.PrimaryModel
	}
	fallback := req.Settings.FallbackModel

	start = time.Now()
	text, usedModel, fromFallback, err := e.generate(ctx, primary, fallback, prompt)
	trace.ModelMillis = time.Since(start).Milliseconds()
	trace.Model = usedModel
	trace.FromFallback = fromFallback
	if err != nil {
		logger.Error("all models failed", zap.String("primary", primary), zap.String("fallback", fallback), zap.Error(err))
		return &Answer{Text: e.cfg.UnavailableMessage, Unavailable: true, Trace: trace}, nil
	}

	text = truncate(text, maxLen)
	trace.Answer = text
	return &Answer{Text: text, FromFallback: fromFallback, Trace: trace}, nil
}

// generate tries the primary model, then retries exactly once against the
// fallback. The fallback call carries its own timeout and nothing else
// cancels it.
func (e *Engine) generate(ctx context.Context, primary, fallback, prompt string) (string, string, bool, error) {
	text, primaryErr := e.gen.Generate(ctx, primary, prompt)
	if primaryErr == nil {
		return text, primary, false, nil
	}
	logutil.GetLogger(ctx).Warn("primary model failed, trying fallback",
		zap.String("primary", primary), zap.String("fallback", fallback), zap.Error(primaryErr))
	if fallback == "" || fallback == primary {
		return "", primary, false, primaryErr
	}
	text, fallbackErr := e.gen.Generate(ctx, fallback, prompt)
	if fallbackErr != nil {
		return "", fallback, true, errors.Join(primaryErr, fallbackErr)
	}
	return text, fallback, true, nil
}
