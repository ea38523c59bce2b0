package service

import (
	"context"

	"github.com/askbase/askbase/internal/engine"
	"github.com/askbase/askbase/internal/repo"
)

// DiagnoseService runs a question through the full answer pipeline and
// returns the trace instead of a chat reply. Admin debugging only.
type DiagnoseService struct {
	projects *repo.ProjectRepo
	settings *SettingsService
	eng      *engine.Engine
}

func NewDiagnoseService(projects *repo.ProjectRepo, settings *SettingsService, eng *engine.Engine) *DiagnoseService {
	return &DiagnoseService{projects: projects, settings: settings, eng: eng}
}

func (s *DiagnoseService) Diagnose(ctx context.Context, projectID, question string) (*engine.Trace, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	answer, err := s.eng.Answer(ctx, &engine.Request{
		Project:  project,
		Settings: *settings,
		Question: question,
	})
	if err != nil {
		return nil, err
	}
	return answer.Trace, nil
}
