package service

import (
	"context"

	"github.com/askbase/askbase/internal/model"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
	"github.com/askbase/askbase/internal/repo"
)

type SubscriberService struct {
	subs *repo.SubscriberRepo
}

func NewSubscriberService(subs *repo.SubscriberRepo) *SubscriberService {
	return &SubscriberService{subs: subs}
}

func (s *SubscriberService) List(ctx context.Context, projectID string) ([]*model.Subscriber, error) {
	return s.subs.ListByProject(ctx, projectID)
}

// Block denies the subscriber on their next message. History and the row
// itself are kept.
func (s *SubscriberService) Block(ctx context.Context, projectID, subID string) error {
	return s.setStatus(ctx, projectID, subID, model.SubscriberStatusBlocked)
}

func (s *SubscriberService) Unblock(ctx context.Context, projectID, subID string) error {
	return s.setStatus(ctx, projectID, subID, model.SubscriberStatusActive)
}

func (s *SubscriberService) setStatus(ctx context.Context, projectID, subID string, status model.SubscriberStatus) error {
	sub, err := s.subs.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.ProjectID != projectID {
		return appErr.ErrNotFound
	}
	if sub.Status == status {
		return nil
	}
	return s.subs.Update(ctx, subID, map[string]interface{}{"status": string(status)})
}
