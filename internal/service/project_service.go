// Package service holds the business operations behind the ops API.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/filestore"
	"github.com/askbase/askbase/internal/index"
	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
	"github.com/askbase/askbase/internal/pkg/password"
	"github.com/askbase/askbase/internal/repo"
)

type CreateProjectArgs struct {
	Name              string
	Password          string
	PromptTemplate    string
	MaxResponseLength int
	ModelID           string
	BotToken          string
	Active            bool
}

// UpdateProjectArgs carries optional field updates; nil means untouched.
type UpdateProjectArgs struct {
	Name              *string
	Password          *string
	PromptTemplate    *string
	MaxResponseLength *int
	ModelID           *string
	BotToken          *string
	Active            *bool
}

type ProjectService struct {
	projects *repo.ProjectRepo
	docs     *repo.DocumentRepo
	subs     *repo.SubscriberRepo
	idx      index.Index
	files    filestore.Store
}

func NewProjectService(projects *repo.ProjectRepo, docs *repo.DocumentRepo,
	subs *repo.SubscriberRepo, idx index.Index, files filestore.Store) *ProjectService {
	return &ProjectService{projects: projects, docs: docs, subs: subs, idx: idx, files: files}
}

func (s *ProjectService) Create(ctx context.Context, args CreateProjectArgs) (*model.Project, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", appErr.ErrInvalid)
	}
	if strings.TrimSpace(args.Password) == "" {
		return nil, fmt.Errorf("%w: access password is required", appErr.ErrInvalid)
	}
	hash, err := password.Hash(args.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	p := &model.Project{
		ID:                newID(),
		Name:              name,
		AccessPassword:    hash,
		PromptTemplate:    args.PromptTemplate,
		MaxResponseLength: args.MaxResponseLength,
		ModelID:           args.ModelID,
		BotToken:          strings.TrimSpace(args.BotToken),
		Active:            args.Active,
		Ctime:             now,
		Mtime:             now,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	if err := s.idx.CreatePartition(ctx, p.ID); err != nil {
		_ = s.projects.Delete(ctx, p.ID)
		return nil, fmt.Errorf("create index partition: %w", err)
	}
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, projectID string) (*model.Project, error) {
	return s.projects.GetByID(ctx, projectID)
}

func (s *ProjectService) List(ctx context.Context) ([]*model.Project, error) {
	return s.projects.List(ctx)
}

func (s *ProjectService) Update(ctx context.Context, projectID string, args UpdateProjectArgs) (*model.Project, error) {
	update := make(map[string]interface{})
	if args.Name != nil {
		name := strings.TrimSpace(*args.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: project name cannot be empty", appErr.ErrInvalid)
		}
		update["name"] = name
	}
	if args.Password != nil {
		if strings.TrimSpace(*args.Password) == "" {
			return nil, fmt.Errorf("%w: access password cannot be empty", appErr.ErrInvalid)
		}
		hash, err := password.Hash(*args.Password)
		if err != nil {
			return nil, err
		}
		update["access_password"] = hash
	}
	if args.PromptTemplate != nil {
		update["prompt_template"] = *args.PromptTemplate
	}
	if args.MaxResponseLength != nil {
		if *args.MaxResponseLength < 0 {
			return nil, fmt.Errorf("%w: max_response_length cannot be negative", appErr.ErrInvalid)
		}
		update["max_response_length"] = *args.MaxResponseLength
	}
	if args.ModelID != nil {
		update["model_id"] = *args.ModelID
	}
	if args.BotToken != nil {
		update["bot_token"] = strings.TrimSpace(*args.BotToken)
	}
	if args.Active != nil {
		update["active"] = *args.Active
	}
	if len(update) == 0 {
		return s.projects.GetByID(ctx, projectID)
	}
	update["mtime"] = time.Now().UnixMilli()
	if err := s.projects.Update(ctx, projectID, update); err != nil {
		return nil, err
	}
	return s.projects.GetByID(ctx, projectID)
}

// Delete removes the project and everything hanging off it: stored files,
// index partition, document rows and subscribers. The bot worker, if any,
// is stopped by the fleet reconciler within one tick once the row is gone.
func (s *ProjectService) Delete(ctx context.Context, projectID string) error {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return err
	}
	docs, err := s.docs.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.files.Delete(ctx, doc.ID); err != nil {
			logutil.GetLogger(ctx).Warn("stored file delete failed",
				zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	if err := s.idx.DropPartition(ctx, projectID); err != nil {
		return fmt.Errorf("drop index partition: %w", err)
	}
	if err := s.docs.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	if err := s.subs.DeleteByProject(ctx, projectID); err != nil {
		return err
	}
	return s.projects.Delete(ctx, projectID)
}
