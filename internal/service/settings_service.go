package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
	"github.com/askbase/askbase/internal/repo"
)

// SettingsService wraps the singleton global model assignment. Workers
// read it on every turn, so a saved change applies to the next message.
type SettingsService struct {
	settings *repo.SettingsRepo
}

func NewSettingsService(settings *repo.SettingsRepo) *SettingsService {
	return &SettingsService{settings: settings}
}

func (s *SettingsService) Get(ctx context.Context) (*model.ModelSettings, error) {
	primary, fallback, mtime, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &model.ModelSettings{PrimaryModel: primary, FallbackModel: fallback, Mtime: mtime}, nil
}

func (s *SettingsService) Save(ctx context.Context, primary, fallback string) (*model.ModelSettings, error) {
	primary = strings.TrimSpace(primary)
	fallback = strings.TrimSpace(fallback)
	if primary == "" {
		return nil, fmt.Errorf("%w: primary_model is required", appErr.ErrInvalid)
	}
	mtime := time.Now().UnixMilli()
	if err := s.settings.Save(ctx, primary, fallback, mtime); err != nil {
		return nil, err
	}
	return &model.ModelSettings{PrimaryModel: primary, FallbackModel: fallback, Mtime: mtime}, nil
}
