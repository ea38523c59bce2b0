package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/pkg/dbutil"
	appErr "github.com/askbase/askbase/internal/pkg/errors"
)

var subscriberFields = []string{
	"id", "project_id", "chat_id", "phone", "display_name", "status", "first_login_time", "ctime",
}

type SubscriberRepo struct {
	db *sql.DB
}

func NewSubscriberRepo(db *sql.DB) *SubscriberRepo {
	return &SubscriberRepo{db: db}
}

func (r *SubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	data := map[string]interface{}{
		"id":               sub.ID,
		"project_id":       sub.ProjectID,
		"chat_id":          sub.ChatID,
		"phone":            sub.Phone,
		"display_name":     sub.DisplayName,
		"status":           string(sub.Status),
		"first_login_time": sub.FirstLoginTime,
		"ctime":            sub.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("subscribers", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *SubscriberRepo) GetByPhone(ctx context.Context, projectID, phone string) (*model.Subscriber, error) {
	where := map[string]interface{}{
		"project_id": projectID,
		"phone":      phone,
	}
	return r.getOne(ctx, where)
}

func (r *SubscriberRepo) GetByChatID(ctx context.Context, projectID string, chatID int64) (*model.Subscriber, error) {
	where := map[string]interface{}{
		"project_id": projectID,
		"chat_id":    chatID,
	}
	return r.getOne(ctx, where)
}

func (r *SubscriberRepo) GetByID(ctx context.Context, subID string) (*model.Subscriber, error) {
	return r.getOne(ctx, map[string]interface{}{"id": subID})
}

func (r *SubscriberRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Subscriber, error) {
	sqlStr, args, err := builder.BuildSelect("subscribers", where, subscriberFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanSubscriber(rows)
}

func (r *SubscriberRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Subscriber, error) {
	where := map[string]interface{}{
		"project_id": projectID,
		"_orderby":   "ctime",
	}
	sqlStr, args, err := builder.BuildSelect("subscribers", where, subscriberFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var subs []*model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *SubscriberRepo) Update(ctx context.Context, subID string, update map[string]interface{}) error {
	where := map[string]interface{}{"id": subID}
	sqlStr, args, err := builder.BuildUpdate("subscribers", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) DeleteByProject(ctx context.Context, projectID string) error {
	where := map[string]interface{}{"project_id": projectID}
	sqlStr, args, err := builder.BuildDelete("subscribers", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanSubscriber(rows *sql.Rows) (*model.Subscriber, error) {
	var sub model.Subscriber
	var status string
	if err := rows.Scan(
		&sub.ID, &sub.ProjectID, &sub.ChatID, &sub.Phone, &sub.DisplayName,
		&status, &sub.FirstLoginTime, &sub.Ctime,
	); err != nil {
		return nil, err
	}
	sub.Status = model.SubscriberStatus(status)
	return &sub, nil
}
