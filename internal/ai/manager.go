package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type ManagerConfig struct {
	EmbedModel     string
	Timeout        time.Duration
	EmbedCacheSize int
}

// Manager is the single entry point for model calls. Generation targets a
// caller-chosen model id; embeddings always use the configured embed model
// and go through a content-hash LRU cache.
type Manager struct {
	gen   IGenProvider
	embed IEmbedProvider
	cache *expirable.LRU[string, []float32]
	cfg   ManagerConfig
}

func NewManager(gen IGenProvider, embed IEmbedProvider, cfg ManagerConfig) *Manager {
	size := cfg.EmbedCacheSize
	if size <= 0 {
		size = 10000
	}
	return &Manager{
		gen:   gen,
		embed: embed,
		cache: expirable.NewLRU[string, []float32](size, nil, 2*time.Hour),
		cfg:   cfg,
	}
}

func (m *Manager) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if m.gen == nil {
		return "", fmt.Errorf("generator not configured")
	}
	if model == "" {
		return "", fmt.Errorf("model id is required")
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	resp, err := m.gen.Generate(ctx, model, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty model response")
	}
	return text, nil
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embed == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	key := m.cacheKey(text, taskType)
	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	vec, err := m.embed.Embed(ctx, m.cfg.EmbedModel, text, taskType)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, vec)
	return vec, nil
}

func (m *Manager) EmbedModelName() string {
	return m.cfg.EmbedModel
}

func (m *Manager) cacheKey(text, taskType string) string {
	hash := sha256.Sum256([]byte(text))
	return m.cfg.EmbedModel + ":" + taskType + ":" + hex.EncodeToString(hash[:])
}
