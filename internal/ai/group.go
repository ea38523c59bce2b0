package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// groupGenProvider tries each provider in order until one succeeds, so a
// single model call survives the outage of one upstream.
type groupGenProvider struct {
	items []IGenProvider
}

func NewGroupGenProvider(items []IGenProvider) IGenProvider {
	if len(items) == 0 {
		return nil
	}
	return &groupGenProvider{items: items}
}

func (g *groupGenProvider) Name() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		names = append(names, item.Name())
	}
	return strings.Join(names, "|")
}

func (g *groupGenProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item == nil {
			continue
		}
		res, err := item.Generate(ctx, model, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("gen provider failed", zap.Int("index", i), zap.String("name", item.Name()), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		return "", fmt.Errorf("gen provider not configured")
	}
	return "", lastErr
}

type groupEmbedProvider struct {
	items []IEmbedProvider
}

func NewGroupEmbedProvider(items []IEmbedProvider) IEmbedProvider {
	if len(items) == 0 {
		return nil
	}
	return &groupEmbedProvider{items: items}
}

func (g *groupEmbedProvider) Name() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		names = append(names, item.Name())
	}
	return strings.Join(names, "|")
}

func (g *groupEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item == nil {
			continue
		}
		res, err := item.Embed(ctx, model, text, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embed provider failed", zap.Int("index", i), zap.String("name", item.Name()), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embed provider not configured")
	}
	return nil, lastErr
}
